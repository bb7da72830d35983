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
	"context"
	"sort"
	"time"
)

// SessionSummary compute the aggregated analytics of one session
func (s *sqliteStoreImpl) SessionSummary(
	ctxt context.Context, sessionID string,
) (SessionSummary, error) {
	session, err := s.GetSession(ctxt, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	hits, err := s.ListHits(ctxt, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	return SummarizeSession(session, hits), nil
}

// SummarizeSession derive session analytics from the ordered hit records.
// Splits are intervals between consecutive impacts; switch times are the
// subset of splits where the impact moved to a different target.
func SummarizeSession(session TrainingSession, hits []Hit) SessionSummary {
	summary := SessionSummary{
		SessionID: session.ID,
		TotalHits: len(hits),
	}

	perTarget := map[string]int{}
	scored := 0
	var splitTotal, switchTotal time.Duration
	splitCount := 0
	for idx, hit := range hits {
		perTarget[hit.TargetID]++
		if hit.Score > 0 {
			scored++
		}
		if idx == 0 {
			summary.ReactionTime = hit.Timestamp.Sub(session.StartedAt)
			continue
		}
		split := hit.Timestamp.Sub(hits[idx-1].Timestamp)
		splitTotal += split
		splitCount++
		if summary.BestSplit == 0 || split < summary.BestSplit {
			summary.BestSplit = split
		}
		if hit.TargetID != hits[idx-1].TargetID {
			switchTotal += split
			summary.SwitchCount++
		}
	}

	if splitCount > 0 {
		summary.MeanSplit = splitTotal / time.Duration(splitCount)
	}
	if summary.SwitchCount > 0 {
		summary.MeanSwitch = switchTotal / time.Duration(summary.SwitchCount)
	}
	if len(hits) > 0 {
		summary.Accuracy = float64(scored) / float64(len(hits))
	}

	targetIDs := make([]string, 0, len(perTarget))
	for targetID := range perTarget {
		targetIDs = append(targetIDs, targetID)
	}
	sort.Strings(targetIDs)
	summary.PerTarget = make([]TargetHitCount, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		summary.PerTarget = append(summary.PerTarget, TargetHitCount{
			TargetID: targetID, Hits: perTarget[targetID],
		})
	}

	switch {
	case session.EndedAt != nil:
		summary.Duration = session.EndedAt.Sub(session.StartedAt)
	case len(hits) > 0:
		summary.Duration = hits[len(hits)-1].Timestamp.Sub(session.StartedAt)
	}
	return summary
}
