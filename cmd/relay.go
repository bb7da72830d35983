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
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/core"
	"github.com/rangelab/rangehub/relay"
)

// RunRelayServer run the NATS telemetry relay
func RunRelayServer(
	runTimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	natsClient core.NatsClient,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "relay",
		"instance":  instance,
	}

	pipeline, err := startTelemetryPipeline(runTimeContext, config, instance, wg)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start telemetry pipeline")
		return err
	}
	defer pipeline.stop()

	forwarder, err := relay.GetTelemetryRelay(
		runTimeContext, pipeline.hub, natsClient, *config.Relay,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define telemetry relay")
		return err
	}
	if err := forwarder.Start(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start telemetry relay")
		return err
	}

	log.WithFields(logTags).Info("Telemetry relay running")

	// ============================================================================

	<-runTimeContext.Done()

	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		natsClient.Close(ctx)
	}

	return nil
}
