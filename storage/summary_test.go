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

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeSession(t *testing.T) {
	assert := assert.New(t)

	start := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	session := TrainingSession{ID: "session-0", StartedAt: start}

	// Case 0: no hits at all
	summary := SummarizeSession(session, nil)
	assert.Equal("session-0", summary.SessionID)
	assert.Equal(0, summary.TotalHits)
	assert.Zero(summary.ReactionTime)
	assert.Zero(summary.Accuracy)
	assert.Zero(summary.Duration)
	assert.Empty(summary.PerTarget)

	// Case 1: single hit means reaction time but no splits
	summary = SummarizeSession(session, []Hit{
		{TargetID: "target-0", Seq: 1, Timestamp: start.Add(time.Millisecond * 800), Score: 5},
	})
	assert.Equal(1, summary.TotalHits)
	assert.Equal(time.Millisecond*800, summary.ReactionTime)
	assert.Zero(summary.MeanSplit)
	assert.Zero(summary.BestSplit)
	assert.Equal(1.0, summary.Accuracy)
	assert.Equal(time.Millisecond*800, summary.Duration)

	// Case 2: full run across two targets
	hits := []Hit{
		{TargetID: "target-0", Seq: 1, Timestamp: start.Add(time.Second), Score: 5},
		{TargetID: "target-0", Seq: 2, Timestamp: start.Add(time.Millisecond * 1400), Score: 5},
		{TargetID: "target-1", Seq: 3, Timestamp: start.Add(time.Millisecond * 2400), Score: 3},
		{TargetID: "target-1", Seq: 4, Timestamp: start.Add(time.Millisecond * 3000), Score: 0},
	}
	summary = SummarizeSession(session, hits)
	assert.Equal(4, summary.TotalHits)
	assert.Equal(time.Second, summary.ReactionTime)
	// Splits: 400ms, 1000ms, 600ms
	assert.Equal(time.Millisecond*400, summary.BestSplit)
	assert.Equal(time.Second*2/3, summary.MeanSplit)
	// One cross-target transition of 1000ms
	assert.Equal(1, summary.SwitchCount)
	assert.Equal(time.Second, summary.MeanSwitch)
	// Three of four hits scored
	assert.Equal(0.75, summary.Accuracy)
	// Still running: duration runs to the last hit
	assert.Equal(time.Second*3, summary.Duration)
	// Per-target tallies come back sorted by target ID
	assert.Equal([]TargetHitCount{
		{TargetID: "target-0", Hits: 2},
		{TargetID: "target-1", Hits: 2},
	}, summary.PerTarget)

	// Case 3: an ended session reports wall clock duration
	endedAt := start.Add(time.Minute)
	session.EndedAt = &endedAt
	summary = SummarizeSession(session, hits)
	assert.Equal(time.Minute, summary.Duration)
}
