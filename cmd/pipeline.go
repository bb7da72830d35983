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

package cmd

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/core"
	"github.com/rangelab/rangehub/dispatch"
	"github.com/rangelab/rangehub/storage"
	"github.com/rangelab/rangehub/telemetry"
)

// hubTaskBuffer pending fan-out tasks before hub submission blocks
const hubTaskBuffer = 64

// targetResyncInterval how often the watched device set is re-read from storage
const targetResyncInterval = time.Minute

// telemetryPipeline the telemetry machinery shared between server modes:
// device cloud client, stream client, fan-out hub, and the resync loop
// keeping the upstream subscription aligned with the stored targets.
type telemetryPipeline struct {
	common.Component
	store       storage.Store
	cloud       *core.CloudClient
	stream      telemetry.StreamClient
	hub         dispatch.TelemetryHub
	resyncTimer common.IntervalTimer
	rootContext context.Context

	lock     sync.Mutex
	watched  []string
	teardown func()
}

// startTelemetryPipeline assemble and start the telemetry pipeline
func startTelemetryPipeline(
	runTimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	wg *sync.WaitGroup,
) (*telemetryPipeline, error) {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "telemetry-pipeline",
		"instance":  instance,
	}

	store, err := storage.GetSqliteStore(config.Storage)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to open local storage")
		return nil, err
	}

	cloud, err := core.GetCloudClient(config.Cloud)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define cloud client")
		return nil, err
	}

	stream, err := telemetry.GetStreamClient(runTimeContext, telemetry.StreamClientParams{
		Config: config.Telemetry, Tokens: cloud, Fetcher: cloud,
	})
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define stream client")
		return nil, err
	}

	tp, err := common.GetNewTaskProcessorInstance("telemetry-hub", hubTaskBuffer, runTimeContext)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define task processor")
		return nil, err
	}
	hub, err := dispatch.GetTelemetryHub(instance, tp)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define telemetry hub")
		return nil, err
	}
	if err := tp.StartEventLoop(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start hub event loop")
		return nil, err
	}

	resyncTimer, err := common.GetIntervalTimerInstance("target-resync", runTimeContext, wg)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define resync timer")
		return nil, err
	}

	pipeline := &telemetryPipeline{
		Component:   common.Component{LogTags: logTags},
		store:       store,
		cloud:       cloud,
		stream:      stream,
		hub:         hub,
		resyncTimer: resyncTimer,
		rootContext: runTimeContext,
	}

	if err := pipeline.resyncSubscription(); err != nil {
		log.WithError(err).WithFields(logTags).Error("Initial target subscription failed")
		return nil, err
	}
	if err := resyncTimer.Start(targetResyncInterval, pipeline.resyncSubscription, false); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start resync timer")
		return nil, err
	}

	return pipeline, nil
}

// resyncSubscription re-read the stored targets and replace the upstream
// subscription when the watched device set changed
func (p *telemetryPipeline) resyncSubscription() error {
	targets, err := p.store.ListTargets(p.rootContext, "")
	if err != nil {
		log.WithError(err).WithFields(p.LogTags).Error("Unable to list targets")
		return err
	}
	deviceIDs := make([]string, 0, len(targets))
	for _, target := range targets {
		deviceIDs = append(deviceIDs, target.DeviceID)
	}
	sort.Strings(deviceIDs)

	p.lock.Lock()
	defer p.lock.Unlock()
	if sameDeviceSet(p.watched, deviceIDs) {
		return nil
	}
	if p.teardown != nil {
		p.teardown()
		p.teardown = nil
	}
	p.watched = deviceIDs
	if len(deviceIDs) == 0 {
		log.WithFields(p.LogTags).Warn("No targets defined, telemetry stream idle")
		return nil
	}
	p.teardown = p.stream.Subscribe(deviceIDs, p.forwardToHub, telemetry.SubscribeOptions{
		OnError: func(err error) {
			log.WithError(err).WithFields(p.LogTags).Warn("Telemetry stream error")
		},
		OnAuthError: func(err error) {
			log.WithError(err).WithFields(p.LogTags).Error("Telemetry stream auth failure")
		},
	})
	log.WithFields(p.LogTags).Infof("Streaming telemetry of %d devices", len(deviceIDs))
	return nil
}

// forwardToHub hand one envelope to the fan-out hub
func (p *telemetryPipeline) forwardToHub(envelope telemetry.Envelope) {
	if err := p.hub.Handle(p.rootContext, envelope); err != nil {
		log.WithError(err).WithFields(p.LogTags).Error("Envelope fan-out failed")
	}
}

// stop release the upstream subscription and close the store
func (p *telemetryPipeline) stop() {
	_ = p.resyncTimer.Stop()
	p.lock.Lock()
	if p.teardown != nil {
		p.teardown()
		p.teardown = nil
	}
	p.lock.Unlock()
	if err := p.store.Close(); err != nil {
		log.WithError(err).WithFields(p.LogTags).Error("Unable to close local storage")
	}
}

// sameDeviceSet compare two sorted device ID lists
func sameDeviceSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for idx, entry := range a {
		if entry != b[idx] {
			return false
		}
	}
	return true
}
