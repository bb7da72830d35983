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

package telemetry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Envelope is the normalized per-device telemetry record delivered to the
// caller regardless of which transport produced it
type Envelope struct {
	// SubscriptionID is the push transport subscription ID, if the record
	// arrived over the push transport
	SubscriptionID *int `json:"subscriptionId,omitempty"`
	// EntityID identifies the source device
	EntityID string `json:"entityId,omitempty"`
	// Data holds the latest known values for one or more telemetry keys
	Data map[string]interface{} `json:"data,omitempty"`
}

// MessageHandlerCB callback used to forward telemetry envelopes to the caller
type MessageHandlerCB func(envelope Envelope)

// AlertOnErrorCB callback used to expose internal error to an outer context for handling
type AlertOnErrorCB func(err error)

// ==============================================================================
// Push transport wire format

// pushSubscribePath is the fixed path of the push transport endpoint
const pushSubscribePath = "/api/ws/plugins/telemetry"

// tsSubCmd one per-device subscription command within a subscription request
type tsSubCmd struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Scope      string `json:"scope"`
	CmdID      int    `json:"cmdId"`
}

// tsUnsubCmd one per-subscription entry within an unsubscription request
type tsUnsubCmd struct {
	SubscriptionID int `json:"subscriptionId"`
}

// subscribeRequest wire message sent once after the push transport opens
type subscribeRequest struct {
	TsSubCmds   []tsSubCmd    `json:"tsSubCmds"`
	HistoryCmds []interface{} `json:"historyCmds"`
	AttrSubCmds []interface{} `json:"attrSubCmds"`
}

// unsubscribeRequest wire message sent on teardown when subscriptions are live
type unsubscribeRequest struct {
	TsUnsubCmds []tsUnsubCmd `json:"tsUnsubCmds"`
}

// wireFrame covers every inbound push transport frame shape: subscription
// updates, typed telemetry / error notices, and the legacy error shape
type wireFrame struct {
	SubscriptionID *int                   `json:"subscriptionId,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Type           string                 `json:"type,omitempty"`
	Payload        []Envelope             `json:"payload,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Error          string                 `json:"error,omitempty"`
	ErrorMsg       string                 `json:"errorMsg,omitempty"`
	ErrorCode      int                    `json:"errorCode,omitempty"`
}

// frameTypeTelemetry typed frame carrying a batch of per-device records
const frameTypeTelemetry = "telemetry"

// frameTypeError typed frame carrying a server-reported error notice
const frameTypeError = "error"

// parseWireFrame parse one inbound push transport frame
func parseWireFrame(data []byte) (wireFrame, error) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return wireFrame{}, fmt.Errorf("malformed push transport frame: %w", err)
	}
	return frame, nil
}

// errorText collapse the typed and legacy error fields into one message
func (f wireFrame) errorText() string {
	if f.Message != "" {
		return f.Message
	}
	if f.ErrorMsg != "" {
		return f.ErrorMsg
	}
	return f.Error
}

// isErrorNotice whether the frame reports a server-side error
func (f wireFrame) isErrorNotice() bool {
	return f.Type == frameTypeError || f.Error != "" || f.ErrorMsg != ""
}

// ==============================================================================
// Authorization failure classification

// AuthErrorClassifier decides whether a transport error or close event
// indicates an authorization failure. The vendor's wire format conflates
// numeric codes with human readable text, so the rule is replaceable.
type AuthErrorClassifier func(code int, message string) bool

// DefaultAuthErrorClassifier matches HTTP 401 / 403 class numeric codes, the
// WebSocket policy violation close code, and the vendor's error text patterns
func DefaultAuthErrorClassifier(code int, message string) bool {
	switch code {
	case 401, 403, websocket.ClosePolicyViolation:
		return true
	}
	lowered := strings.ToLower(message)
	return strings.Contains(lowered, "401") || strings.Contains(lowered, "unauthor")
}

// ==============================================================================

// buildPushEndpoint build the push transport URL from a http(s) base URL,
// upgrading the scheme to ws(s) and attaching the bearer token
func buildPushEndpoint(baseURL, token string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported push endpoint scheme '%s'", parsed.Scheme)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + pushSubscribePath
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
