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
	"fmt"
	"reflect"

	"github.com/apex/log"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/telemetry"
)

// TelemetryHub fans live telemetry envelopes out to a set of registered
// consumers. Registry mutation and delivery are serialized on one event
// loop, so they never race.
type TelemetryHub interface {
	// Handle accept one envelope for fan-out
	Handle(ctxt context.Context, envelope telemetry.Envelope) error
	// AddConsumer register a consumer. A nil or empty watch list receives
	// every envelope; otherwise only envelopes of the watched device IDs.
	// Returned is the consumer's envelope feed.
	AddConsumer(
		ctxt context.Context, name string, watch []string, bufferLen int,
	) (<-chan telemetry.Envelope, error)
	// RemoveConsumer deregister a consumer and close its feed
	RemoveConsumer(ctxt context.Context, name string) error
}

// hubConsumer one registered consumer
type hubConsumer struct {
	name  string
	watch map[string]bool
	feed  chan telemetry.Envelope
}

// telemetryHubImpl implements TelemetryHub
type telemetryHubImpl struct {
	common.Component
	tp        common.TaskProcessor
	consumers map[string]*hubConsumer
}

// GetTelemetryHub define a new TelemetryHub running on the given task processor
func GetTelemetryHub(instance string, tp common.TaskProcessor) (TelemetryHub, error) {
	logTags := log.Fields{
		"module": "dispatch", "component": "telemetry-hub", "instance": instance,
	}
	hub := &telemetryHubImpl{
		Component: common.Component{LogTags: logTags},
		tp:        tp,
		consumers: make(map[string]*hubConsumer),
	}
	if err := tp.SetTaskExecutionMap(map[reflect.Type]common.TaskHandler{
		reflect.TypeOf(hubEnvelopeTask{}):       hub.processEnvelope,
		reflect.TypeOf(hubAddConsumerTask{}):    hub.processAddConsumer,
		reflect.TypeOf(hubRemoveConsumerTask{}): hub.processRemoveConsumer,
	}); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define task execution map")
		return nil, err
	}
	return hub, nil
}

// ==============================================================================
// Task parameters

type hubEnvelopeTask struct {
	envelope telemetry.Envelope
}

type hubAddConsumerTask struct {
	name      string
	watch     []string
	bufferLen int
	resultCB  func(<-chan telemetry.Envelope, error)
}

type hubRemoveConsumerTask struct {
	name     string
	resultCB func(error)
}

// ==============================================================================
// Public API

// Handle accept one envelope for fan-out
func (h *telemetryHubImpl) Handle(ctxt context.Context, envelope telemetry.Envelope) error {
	return h.tp.Submit(ctxt, hubEnvelopeTask{envelope: envelope})
}

// AddConsumer register a consumer
func (h *telemetryHubImpl) AddConsumer(
	ctxt context.Context, name string, watch []string, bufferLen int,
) (<-chan telemetry.Envelope, error) {
	resultChan := make(chan error, 1)
	var feed <-chan telemetry.Envelope
	if err := h.tp.Submit(ctxt, hubAddConsumerTask{
		name: name, watch: watch, bufferLen: bufferLen,
		resultCB: func(newFeed <-chan telemetry.Envelope, err error) {
			feed = newFeed
			resultChan <- err
		},
	}); err != nil {
		return nil, err
	}
	select {
	case err := <-resultChan:
		return feed, err
	case <-ctxt.Done():
		return nil, ctxt.Err()
	}
}

// RemoveConsumer deregister a consumer and close its feed
func (h *telemetryHubImpl) RemoveConsumer(ctxt context.Context, name string) error {
	resultChan := make(chan error, 1)
	if err := h.tp.Submit(ctxt, hubRemoveConsumerTask{
		name: name, resultCB: func(err error) { resultChan <- err },
	}); err != nil {
		return err
	}
	select {
	case err := <-resultChan:
		return err
	case <-ctxt.Done():
		return ctxt.Err()
	}
}

// ==============================================================================
// Task handlers, running on the event loop

// processEnvelope fan one envelope out to the matching consumers
func (h *telemetryHubImpl) processEnvelope(param interface{}) error {
	task, ok := param.(hubEnvelopeTask)
	if !ok {
		return fmt.Errorf("received unexpected task param %s", reflect.TypeOf(param))
	}
	for _, consumer := range h.consumers {
		if len(consumer.watch) > 0 && !consumer.watch[task.envelope.EntityID] {
			continue
		}
		select {
		case consumer.feed <- task.envelope:
		default:
			// Saturated consumer; drop rather than stall the loop
			log.WithFields(h.LogTags).Warnf(
				"Consumer %s saturated, dropping envelope for %s",
				consumer.name, task.envelope.EntityID,
			)
		}
	}
	return nil
}

// processAddConsumer register a consumer
func (h *telemetryHubImpl) processAddConsumer(param interface{}) error {
	task, ok := param.(hubAddConsumerTask)
	if !ok {
		return fmt.Errorf("received unexpected task param %s", reflect.TypeOf(param))
	}
	if _, exists := h.consumers[task.name]; exists {
		task.resultCB(nil, fmt.Errorf("consumer '%s' already registered", task.name))
		return nil
	}
	consumer := &hubConsumer{
		name: task.name, feed: make(chan telemetry.Envelope, task.bufferLen),
	}
	if len(task.watch) > 0 {
		consumer.watch = make(map[string]bool, len(task.watch))
		for _, deviceID := range task.watch {
			consumer.watch[deviceID] = true
		}
	}
	h.consumers[task.name] = consumer
	log.WithFields(h.LogTags).Infof(
		"Registered consumer %s watching %d devices", task.name, len(task.watch),
	)
	task.resultCB(consumer.feed, nil)
	return nil
}

// processRemoveConsumer deregister a consumer
func (h *telemetryHubImpl) processRemoveConsumer(param interface{}) error {
	task, ok := param.(hubRemoveConsumerTask)
	if !ok {
		return fmt.Errorf("received unexpected task param %s", reflect.TypeOf(param))
	}
	consumer, exists := h.consumers[task.name]
	if !exists {
		task.resultCB(fmt.Errorf("consumer '%s' is unknown", task.name))
		return nil
	}
	delete(h.consumers, task.name)
	close(consumer.feed)
	log.WithFields(h.LogTags).Infof("Deregistered consumer %s", task.name)
	task.resultCB(nil)
	return nil
}
