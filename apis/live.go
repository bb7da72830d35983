// Copyright 2024-2025 The rangehub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apis

import (
	"context"
	"fmt"
	"net/http"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/dispatch"
	"github.com/rangelab/rangehub/storage"
)

// liveFeedBuffer buffered envelopes per attached viewer before drops start
const liveFeedBuffer = 64

// APIRestLiveHandler REST handler exposing live telemetry over websocket
type APIRestLiveHandler struct {
	APIRestHandler
	hub         dispatch.TelemetryHub
	store       storage.Store
	auth        *APIAuthenticator
	upgrader    websocket.Upgrader
	rootContext context.Context
}

// GetAPIRestLiveHandler define APIRestLiveHandler
func GetAPIRestLiveHandler(
	ctxt context.Context,
	hub dispatch.TelemetryHub,
	store storage.Store,
	auth *APIAuthenticator,
	httpConfig common.HTTPConfig,
) (APIRestLiveHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "live-feed",
	}
	return APIRestLiveHandler{
		APIRestHandler: APIRestHandler{
			Component:       common.Component{LogTags: logTags},
			requestIDHeader: httpConfig.Logging.RequestIDHeader,
		},
		hub:   hub,
		store: store,
		auth:  auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		rootContext: ctxt,
	}, nil
}

// RoomFeed upgrade to websocket and stream a room's telemetry envelopes.
// Browsers cannot set headers on websocket requests, so the session token
// rides in the "token" query parameter.
func (h APIRestLiveHandler) RoomFeed(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/live/room/{roomID}"
	localLogTags := h.requestLogTags(r.Context())

	if _, err := h.auth.ValidateToken(r.URL.Query().Get("token")); err != nil {
		log.WithError(err).WithFields(localLogTags).Debug("Rejected live feed token")
		writeAuthFailure(w, "invalid session token")
		return
	}

	var respCode int
	var respBody interface{}
	roomID, ok := h.pathVar(r, "roomID", &respCode, &respBody)
	if !ok {
		h.reply(w, respCode, respBody, restCall)
		return
	}

	targets, err := h.store.ListTargets(r.Context(), roomID)
	if err != nil {
		msg := fmt.Sprintf("Unable to fetch targets of room %s", roomID)
		log.WithError(err).WithFields(localLogTags).Error(msg)
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			restCall,
		)
		return
	}
	if len(targets) == 0 {
		msg := fmt.Sprintf("Room %s has no targets", roomID)
		h.reply(w, http.StatusNotFound, getStdRESTErrorMsg(http.StatusNotFound, &msg), restCall)
		return
	}
	deviceIDs := make([]string, 0, len(targets))
	for _, target := range targets {
		deviceIDs = append(deviceIDs, target.DeviceID)
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Websocket upgrade failed")
		return
	}

	consumerName := fmt.Sprintf("live-%s-%s", roomID, uuid.New().String())
	feed, err := h.hub.AddConsumer(h.rootContext, consumerName, deviceIDs, liveFeedBuffer)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Unable to attach to telemetry hub")
		_ = wsConn.Close()
		return
	}
	log.WithFields(localLogTags).Infof("Viewer %s attached to room %s", consumerName, roomID)

	// Reader goroutine only watches for the client going away
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	func() {
		for {
			select {
			case <-h.rootContext.Done():
				return
			case <-clientGone:
				return
			case envelope, active := <-feed:
				if !active {
					return
				}
				if err := wsConn.WriteJSON(&envelope); err != nil {
					log.WithError(err).WithFields(localLogTags).Debugf(
						"Viewer %s write failed", consumerName,
					)
					return
				}
			}
		}
	}()

	if err := h.hub.RemoveConsumer(h.rootContext, consumerName); err != nil {
		log.WithError(err).WithFields(localLogTags).Errorf(
			"Unable to detach viewer %s", consumerName,
		)
	}
	_ = wsConn.Close()
	log.WithFields(localLogTags).Infof("Viewer %s left room %s", consumerName, roomID)
}

// RoomFeedHandler Wrapper around RoomFeed
func (h APIRestLiveHandler) RoomFeedHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.RoomFeed(w, r)
	})
}
