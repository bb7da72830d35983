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
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestParseWireFrame(t *testing.T) {
	assert := assert.New(t)

	// Case 0: malformed frames are rejected
	_, err := parseWireFrame([]byte("not json"))
	assert.NotNil(err)

	// Case 1: subscription update
	frame, err := parseWireFrame([]byte(`{"subscriptionId": 3, "data": {"hits": 2}}`))
	assert.Nil(err)
	assert.NotNil(frame.SubscriptionID)
	assert.Equal(3, *frame.SubscriptionID)
	assert.False(frame.isErrorNotice())

	// Case 2: subscription ID zero is still a subscription update
	frame, err = parseWireFrame([]byte(`{"subscriptionId": 0, "data": {}}`))
	assert.Nil(err)
	assert.NotNil(frame.SubscriptionID)
	assert.Equal(0, *frame.SubscriptionID)

	// Case 3: typed error notice
	frame, err = parseWireFrame([]byte(
		`{"type": "error", "message": "no access", "errorCode": 403}`,
	))
	assert.Nil(err)
	assert.Nil(frame.SubscriptionID)
	assert.True(frame.isErrorNotice())
	assert.Equal("no access", frame.errorText())
	assert.Equal(403, frame.ErrorCode)

	// Case 4: legacy error shapes
	frame, err = parseWireFrame([]byte(`{"error": "boom"}`))
	assert.Nil(err)
	assert.True(frame.isErrorNotice())
	assert.Equal("boom", frame.errorText())
	frame, err = parseWireFrame([]byte(`{"errorMsg": "bad token", "errorCode": 401}`))
	assert.Nil(err)
	assert.True(frame.isErrorNotice())
	assert.Equal("bad token", frame.errorText())

	// Case 5: typed telemetry batch
	frame, err = parseWireFrame([]byte(
		`{"type": "telemetry", "payload": [{"entityId": "device-0", "data": {"event": "hit"}}]}`,
	))
	assert.Nil(err)
	assert.False(frame.isErrorNotice())
	assert.Equal(frameTypeTelemetry, frame.Type)
	assert.Len(frame.Payload, 1)
	assert.Equal("device-0", frame.Payload[0].EntityID)
}

func TestDefaultAuthErrorClassifier(t *testing.T) {
	assert := assert.New(t)

	assert.True(DefaultAuthErrorClassifier(401, ""))
	assert.True(DefaultAuthErrorClassifier(403, ""))
	assert.True(DefaultAuthErrorClassifier(websocket.ClosePolicyViolation, ""))
	assert.True(DefaultAuthErrorClassifier(0, "HTTP 401 from upstream"))
	assert.True(DefaultAuthErrorClassifier(0, "request was Unauthorized"))
	assert.True(DefaultAuthErrorClassifier(0, "unauthorised session"))
	assert.False(DefaultAuthErrorClassifier(0, "connection reset"))
	assert.False(DefaultAuthErrorClassifier(500, "internal error"))
	assert.False(DefaultAuthErrorClassifier(websocket.CloseNormalClosure, "bye"))
}

func TestBuildPushEndpoint(t *testing.T) {
	assert := assert.New(t)

	// http upgrades to ws
	endpoint, err := buildPushEndpoint("http://cloud.example.com", "tok")
	assert.Nil(err)
	assert.Equal("ws://cloud.example.com/api/ws/plugins/telemetry?token=tok", endpoint)

	// https upgrades to wss, trailing slashes collapse
	endpoint, err = buildPushEndpoint("https://cloud.example.com/", "tok")
	assert.Nil(err)
	assert.Equal("wss://cloud.example.com/api/ws/plugins/telemetry?token=tok", endpoint)

	// ws and wss pass through
	endpoint, err = buildPushEndpoint("wss://cloud.example.com/base", "tok")
	assert.Nil(err)
	assert.Equal("wss://cloud.example.com/base/api/ws/plugins/telemetry?token=tok", endpoint)

	// anything else is rejected
	_, err = buildPushEndpoint("ftp://cloud.example.com", "tok")
	assert.NotNil(err)
}
