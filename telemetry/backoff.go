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
	"math"
	"time"

	"github.com/rangelab/rangehub/common"
)

// ResolveIntervalWithBackoff compute the next poll interval. The base interval
// scales by the configured multiplier raised to the consecutive error count,
// then clamps to the configured bounds. The error count saturates at the
// configured retry ceiling, so the result is non-decreasing in errCount.
func ResolveIntervalWithBackoff(
	base time.Duration, errCount int, config common.TelemetryBackoffConfig,
) time.Duration {
	if errCount < 0 {
		errCount = 0
	}
	if errCount > config.MaxRetries {
		errCount = config.MaxRetries
	}
	interval := time.Duration(float64(base) * math.Pow(config.Multiplier, float64(errCount)))
	minInterval := time.Duration(config.MinIntervalMS) * time.Millisecond
	maxInterval := time.Duration(config.MaxIntervalMS) * time.Millisecond
	if interval < minInterval {
		interval = minInterval
	}
	if interval > maxInterval {
		interval = maxInterval
	}
	return interval
}
