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

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/core"
	"github.com/rangelab/rangehub/dispatch"
	"github.com/rangelab/rangehub/telemetry"
)

// relayConsumerName hub consumer registration of the relay
const relayConsumerName = "nats-relay"

// relayFeedBuffer buffered envelopes before the relay starts dropping
const relayFeedBuffer = 256

// TelemetryRelay republishes live telemetry envelopes onto NATS, one
// subject per device
type TelemetryRelay interface {
	// Start attach to the hub and begin forwarding
	Start(wg *sync.WaitGroup) error
	// Stop detach from the hub
	Stop(ctxt context.Context) error
}

// telemetryRelayImpl implements TelemetryRelay
type telemetryRelayImpl struct {
	common.Component
	hub           dispatch.TelemetryHub
	nats          core.NatsClient
	subjectPrefix string
	rootContext   context.Context
}

// GetTelemetryRelay define a new TelemetryRelay
func GetTelemetryRelay(
	ctxt context.Context,
	hub dispatch.TelemetryHub,
	natsClient core.NatsClient,
	config common.RelayConfig,
) (TelemetryRelay, error) {
	logTags := log.Fields{
		"module": "relay", "component": "telemetry-relay", "instance": config.SubjectPrefix,
	}
	if config.SubjectPrefix == "" {
		return nil, fmt.Errorf("relay requires a subject prefix")
	}
	return &telemetryRelayImpl{
		Component:     common.Component{LogTags: logTags},
		hub:           hub,
		nats:          natsClient,
		subjectPrefix: config.SubjectPrefix,
		rootContext:   ctxt,
	}, nil
}

// Start attach to the hub and begin forwarding
func (r *telemetryRelayImpl) Start(wg *sync.WaitGroup) error {
	feed, err := r.hub.AddConsumer(r.rootContext, relayConsumerName, nil, relayFeedBuffer)
	if err != nil {
		log.WithError(err).WithFields(r.LogTags).Error("Unable to attach to telemetry hub")
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer log.WithFields(r.LogTags).Info("Relay loop exiting")
		for {
			select {
			case <-r.rootContext.Done():
				return
			case envelope, ok := <-feed:
				if !ok {
					return
				}
				r.forward(envelope)
			}
		}
	}()
	log.WithFields(r.LogTags).Info("Telemetry relay started")
	return nil
}

// Stop detach from the hub
func (r *telemetryRelayImpl) Stop(ctxt context.Context) error {
	return r.hub.RemoveConsumer(ctxt, relayConsumerName)
}

// forward publish one envelope onto NATS
func (r *telemetryRelayImpl) forward(envelope telemetry.Envelope) {
	subject := fmt.Sprintf("%s.%s", r.subjectPrefix, sanitizeSubjectToken(envelope.EntityID))
	payload, err := json.Marshal(&envelope)
	if err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf(
			"Unable to serialize envelope for %s", envelope.EntityID,
		)
		return
	}
	if err := r.nats.Publish(subject, payload); err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf("Publish on %s failed", subject)
	}
}

// sanitizeSubjectToken device IDs may carry characters with meaning in NATS
// subjects; map them to "_" so each ID stays a single token
func sanitizeSubjectToken(deviceID string) string {
	return strings.Map(func(c rune) rune {
		switch c {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return c
	}, deviceID)
}
