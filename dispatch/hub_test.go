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

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/telemetry"
	"github.com/stretchr/testify/assert"
)

func defineTestHub(
	t *testing.T, assert *assert.Assertions,
) (TelemetryHub, context.Context) {
	ctxt, cancel := context.WithCancel(context.Background())
	tp, err := common.GetNewTaskProcessorInstance("unit-test", 16, ctxt)
	assert.Nil(err)
	uut, err := GetTelemetryHub("unit-test", tp)
	assert.Nil(err)
	wg := &sync.WaitGroup{}
	assert.Nil(tp.StartEventLoop(wg))
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return uut, ctxt
}

func waitEnvelope(
	assert *assert.Assertions, feed <-chan telemetry.Envelope,
) telemetry.Envelope {
	select {
	case envelope := <-feed:
		return envelope
	case <-time.After(time.Second):
		assert.FailNow("timed out waiting for an envelope")
	}
	return telemetry.Envelope{}
}

func TestTelemetryHubFanOut(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	uut, ctxt := defineTestHub(t, assert)

	// Case 0: envelopes with no consumers vanish quietly
	assert.Nil(uut.Handle(ctxt, telemetry.Envelope{EntityID: "device-0"}))

	// Case 1: a watch-all consumer and a filtered consumer
	allFeed, err := uut.AddConsumer(ctxt, "watch-all", nil, 8)
	assert.Nil(err)
	filteredFeed, err := uut.AddConsumer(ctxt, "watch-one", []string{"device-1"}, 8)
	assert.Nil(err)

	// Duplicate registration is rejected
	_, err = uut.AddConsumer(ctxt, "watch-all", nil, 8)
	assert.NotNil(err)

	assert.Nil(uut.Handle(ctxt, telemetry.Envelope{
		EntityID: "device-0", Data: map[string]interface{}{"hits": 1},
	}))
	assert.Nil(uut.Handle(ctxt, telemetry.Envelope{
		EntityID: "device-1", Data: map[string]interface{}{"hits": 2},
	}))

	// The watch-all consumer sees both, the filtered one only its device
	first := waitEnvelope(assert, allFeed)
	assert.Equal("device-0", first.EntityID)
	second := waitEnvelope(assert, allFeed)
	assert.Equal("device-1", second.EntityID)
	only := waitEnvelope(assert, filteredFeed)
	assert.Equal("device-1", only.EntityID)
	assert.Empty(filteredFeed)

	// Case 2: removal closes the feed
	assert.Nil(uut.RemoveConsumer(ctxt, "watch-one"))
	_, active := <-filteredFeed
	assert.False(active)
	assert.NotNil(uut.RemoveConsumer(ctxt, "watch-one"))
}

func TestTelemetryHubSaturatedConsumer(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	uut, ctxt := defineTestHub(t, assert)

	feed, err := uut.AddConsumer(ctxt, "slow", nil, 1)
	assert.Nil(err)

	// The buffer holds one envelope; the overflow is dropped, not blocking
	for itr := 0; itr < 4; itr++ {
		assert.Nil(uut.Handle(ctxt, telemetry.Envelope{EntityID: "device-0"}))
	}
	// A later envelope still flows once the consumer drains
	_ = waitEnvelope(assert, feed)
	assert.Nil(uut.Handle(ctxt, telemetry.Envelope{EntityID: "device-1"}))
	for {
		envelope := waitEnvelope(assert, feed)
		if envelope.EntityID == "device-1" {
			break
		}
	}
}
