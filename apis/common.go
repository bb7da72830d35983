package apis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rangelab/rangehub/common"
)

// ErrorDetail in case of REST error, the response
type ErrorDetail struct {
	Code int     `json:"code"`
	Msg  *string `json:"message,omitempty"`
}

// StandardResponse standard REST API response
type StandardResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// getStdRESTSuccessMsg define a standard success message
func getStdRESTSuccessMsg() StandardResponse {
	return StandardResponse{Success: true}
}

// getStdRESTErrorMsg define a standard error message
func getStdRESTErrorMsg(code int, message *string) StandardResponse {
	return StandardResponse{
		Success: false, Error: &ErrorDetail{Code: code, Msg: message},
	}
}

// writeRESTResponse write a REST response
func writeRESTResponse(w http.ResponseWriter, respCode int, resp interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(respCode)
	t, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(500)
		return err
	}
	if _, err = w.Write(t); err != nil {
		w.WriteHeader(500)
		return err
	}
	return nil
}

// ========================================================================================
// MethodHandlers DICT of method-endpoint handler
type MethodHandlers map[string]http.HandlerFunc

// RegisterPathPrefix Register new method handler for an end-point
func RegisterPathPrefix(
	parentRouter *mux.Router, pathPrefix string, methodHandlers MethodHandlers,
) *mux.Router {
	router := parentRouter.PathPrefix(pathPrefix).Subrouter()
	for method, handler := range methodHandlers {
		router.Methods(method).Path("").HandlerFunc(handler)
	}
	return router
}

// ========================================================================================

// APIRestHandler base REST handler
type APIRestHandler struct {
	common.Component
	requestIDHeader string
}

// reply helper function for writing responses
func (h APIRestHandler) reply(
	w http.ResponseWriter, respCode int, resp interface{}, restCall string,
) {
	if err := writeRESTResponse(w, respCode, &resp); err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf(
			"Failed to write REST response for %s", restCall,
		)
	}
}

// Write logging support
func (h APIRestHandler) Write(p []byte) (n int, err error) {
	log.WithFields(h.LogTags).Infof("%s", p)
	return len(p), nil
}

// attachRequestID middleware function to attach a request ID to a API request
func (h APIRestHandler) attachRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		// use provided request id from incoming request if any
		reqID := r.Header.Get(h.requestIDHeader)
		if reqID == "" {
			// or use some generated string
			reqID = uuid.New().String()
		}
		rw.Header().Set(h.requestIDHeader, reqID)
		log.WithFields(h.LogTags).Debugf("New request ID %s", reqID)
		ctx := context.WithValue(
			r.Context(), common.RequestParam{}, common.RequestParam{
				ID: reqID, Method: r.Method, URI: r.URL.String(),
			},
		)

		next(rw, r.WithContext(ctx))
	}
}

// pathVar read one mux path variable
func (h APIRestHandler) pathVar(
	r *http.Request, name string, respCode *int, respBody *interface{},
) (string, bool) {
	vars := mux.Vars(r)
	value, ok := vars[name]
	if !ok || value == "" {
		msg := fmt.Sprintf("No %s provided", name)
		log.WithFields(h.LogTags).Error(msg)
		*respCode = http.StatusBadRequest
		*respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return "", false
	}
	return value, true
}

// requestLogTags derive per-request log tags from the parameters stored
// by attachRequestID
func (h APIRestHandler) requestLogTags(ctxt context.Context) log.Fields {
	tags := log.Fields{}
	for key, value := range h.LogTags {
		tags[key] = value
	}
	if param, ok := ctxt.Value(common.RequestParam{}).(common.RequestParam); ok {
		param.UpdateLogTags(tags)
	}
	return tags
}
