package storage

import "time"

// Room a physical room grouping a set of target devices
type Room struct {
	// ID is the room ID
	ID string `json:"id"`
	// Name is the room display name
	Name string `json:"name" validate:"required"`
	// Notes is free-form operator notes
	Notes string `json:"notes,omitempty"`
}

// Target one physical target device, bound to a device in the telemetry cloud
type Target struct {
	// ID is the target ID
	ID string `json:"id"`
	// RoomID is the room the target is mounted in
	RoomID string `json:"room_id" validate:"required"`
	// DeviceID is the telemetry cloud device identifier
	DeviceID string `json:"device_id" validate:"required"`
	// Name is the target display name
	Name string `json:"name" validate:"required"`
	// Kind is the target hardware kind
	Kind string `json:"kind,omitempty"`
}

// Game a timed shooting game definition
type Game struct {
	// ID is the game ID
	ID string `json:"id"`
	// Name is the game display name
	Name string `json:"name" validate:"required"`
	// Mode is the game mode
	Mode string `json:"mode,omitempty"`
	// DurationSec is the game length in seconds
	DurationSec int `json:"duration_sec" validate:"gte=0"`
	// TargetCount is the number of targets the game engages
	TargetCount int `json:"target_count" validate:"gte=0"`
}

// TrainingSession one play-through of a game in a room
type TrainingSession struct {
	// ID is the session ID
	ID string `json:"id"`
	// GameID is the game played
	GameID string `json:"game_id" validate:"required"`
	// RoomID is the room the session ran in
	RoomID string `json:"room_id" validate:"required"`
	// Shooter is the display name of the person training
	Shooter string `json:"shooter,omitempty"`
	// StartedAt is the session start timestamp
	StartedAt time.Time `json:"started_at"`
	// EndedAt is the session end timestamp, nil while running
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// Hit one registered impact on a target during a session
type Hit struct {
	// SessionID is the owning session
	SessionID string `json:"session_id" validate:"required"`
	// TargetID is the target that registered the impact
	TargetID string `json:"target_id" validate:"required"`
	// Seq is the hit order within the session, starting at 1
	Seq int `json:"seq"`
	// Timestamp is when the impact registered
	Timestamp time.Time `json:"timestamp"`
	// Zone is the scoring zone struck
	Zone string `json:"zone,omitempty"`
	// Score is the points awarded; zero means a miss of the scoring zones
	Score int `json:"score"`
}

// TargetHitCount per-target hit tally within a session summary
type TargetHitCount struct {
	// TargetID is the target
	TargetID string `json:"target_id"`
	// Hits is the number of impacts on the target
	Hits int `json:"hits"`
}

// SessionSummary aggregated analytics of one session
type SessionSummary struct {
	// SessionID is the summarized session
	SessionID string `json:"session_id"`
	// TotalHits is the number of impacts across all targets
	TotalHits int `json:"total_hits"`
	// PerTarget are per-target hit tallies
	PerTarget []TargetHitCount `json:"per_target"`
	// ReactionTime is session start to first impact
	ReactionTime time.Duration `json:"reaction_time_ns"`
	// MeanSplit is the mean interval between consecutive impacts
	MeanSplit time.Duration `json:"mean_split_ns"`
	// BestSplit is the shortest interval between consecutive impacts
	BestSplit time.Duration `json:"best_split_ns"`
	// MeanSwitch is the mean interval between consecutive impacts on
	// different targets
	MeanSwitch time.Duration `json:"mean_switch_ns"`
	// SwitchCount is the number of cross-target transitions
	SwitchCount int `json:"switch_count"`
	// Accuracy is scored impacts over total impacts, in [0, 1]
	Accuracy float64 `json:"accuracy"`
	// Duration is session start to end, or to the last impact while running
	Duration time.Duration `json:"duration_ns"`
}
