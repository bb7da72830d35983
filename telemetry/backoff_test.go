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
	"time"

	"github.com/rangelab/rangehub/common"
	"github.com/stretchr/testify/assert"
)

func TestResolveIntervalWithBackoff(t *testing.T) {
	assert := assert.New(t)

	config := common.TelemetryBackoffConfig{
		MinIntervalMS: 1000,
		MaxIntervalMS: 120000,
		Multiplier:    1.5,
		MaxRetries:    10,
	}

	// Case 0: no errors leaves the base interval untouched
	assert.Equal(
		time.Second*5, ResolveIntervalWithBackoff(time.Second*5, 0, config),
	)

	// Case 1: each consecutive error scales by the multiplier
	assert.Equal(
		time.Millisecond*7500, ResolveIntervalWithBackoff(time.Second*5, 1, config),
	)
	assert.Equal(
		time.Millisecond*11250, ResolveIntervalWithBackoff(time.Second*5, 2, config),
	)

	// Case 2: non-decreasing in the error count
	previous := time.Duration(0)
	for errCount := 0; errCount < 20; errCount++ {
		interval := ResolveIntervalWithBackoff(time.Second*5, errCount, config)
		assert.GreaterOrEqual(interval, previous)
		previous = interval
	}

	// Case 3: the error count saturates at the retry ceiling
	assert.Equal(
		ResolveIntervalWithBackoff(time.Second*5, config.MaxRetries, config),
		ResolveIntervalWithBackoff(time.Second*5, config.MaxRetries+7, config),
	)

	// Case 4: the floor applies even with no errors
	floored := common.TelemetryBackoffConfig{
		MinIntervalMS: 5000, MaxIntervalMS: 120000, Multiplier: 1.5, MaxRetries: 10,
	}
	assert.Equal(
		time.Second*5, ResolveIntervalWithBackoff(time.Second, 0, floored),
	)

	// Case 5: the ceiling clamps runaway growth
	capped := common.TelemetryBackoffConfig{
		MinIntervalMS: 1000, MaxIntervalMS: 8000, Multiplier: 3.0, MaxRetries: 10,
	}
	assert.Equal(
		time.Second*8, ResolveIntervalWithBackoff(time.Second*5, 6, capped),
	)

	// Case 6: negative error counts behave like zero
	assert.Equal(
		time.Second*5, ResolveIntervalWithBackoff(time.Second*5, -3, config),
	)
}
