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
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the subset of the push transport socket the stream client uses
type Conn interface {
	// ReadMessage blocks for the next inbound frame
	ReadMessage() (messageType int, p []byte, err error)
	// WriteJSON sends v as one JSON frame
	WriteJSON(v interface{}) error
	// Close closes the socket
	Close() error
}

// Dialer opens a push transport connection against an endpoint URL
type Dialer func(ctxt context.Context, endpoint string) (Conn, error)

// websocketDial production Dialer backed by gorilla/websocket
func websocketDial(ctxt context.Context, endpoint string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctxt, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// closeInfo extract the close code and text from a socket read error
func closeInfo(err error) (int, string) {
	if closeErr, ok := err.(*websocket.CloseError); ok {
		return closeErr.Code, closeErr.Text
	}
	return 0, err.Error()
}
