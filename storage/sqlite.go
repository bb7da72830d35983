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
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/rangelab/rangehub/common"

	// tell sql to use sqlite
	_ "modernc.org/sqlite"
)

// Store persistence for rooms, targets, games, sessions, and hit records
type Store interface {
	// CreateRoom persist a new room. The ID is assigned when blank.
	CreateRoom(ctxt context.Context, room Room) (Room, error)
	// GetRoom fetch one room by ID
	GetRoom(ctxt context.Context, roomID string) (Room, error)
	// ListRooms fetch all rooms
	ListRooms(ctxt context.Context) ([]Room, error)
	// UpdateRoom replace a room's mutable fields
	UpdateRoom(ctxt context.Context, room Room) error
	// DeleteRoom remove a room and its targets
	DeleteRoom(ctxt context.Context, roomID string) error

	// CreateTarget persist a new target. The ID is assigned when blank.
	CreateTarget(ctxt context.Context, target Target) (Target, error)
	// GetTarget fetch one target by ID
	GetTarget(ctxt context.Context, targetID string) (Target, error)
	// ListTargets fetch targets, all or restricted to one room
	ListTargets(ctxt context.Context, roomID string) ([]Target, error)
	// UpdateTarget replace a target's mutable fields
	UpdateTarget(ctxt context.Context, target Target) error
	// DeleteTarget remove a target
	DeleteTarget(ctxt context.Context, targetID string) error

	// CreateGame persist a new game. The ID is assigned when blank.
	CreateGame(ctxt context.Context, game Game) (Game, error)
	// GetGame fetch one game by ID
	GetGame(ctxt context.Context, gameID string) (Game, error)
	// ListGames fetch all games
	ListGames(ctxt context.Context) ([]Game, error)
	// UpdateGame replace a game's mutable fields
	UpdateGame(ctxt context.Context, game Game) error
	// DeleteGame remove a game
	DeleteGame(ctxt context.Context, gameID string) error

	// CreateSession persist a new running session. The ID and start
	// timestamp are assigned when blank.
	CreateSession(ctxt context.Context, session TrainingSession) (TrainingSession, error)
	// GetSession fetch one session by ID
	GetSession(ctxt context.Context, sessionID string) (TrainingSession, error)
	// ListSessions fetch sessions, all or restricted to one room
	ListSessions(ctxt context.Context, roomID string) ([]TrainingSession, error)
	// EndSession mark a running session ended
	EndSession(ctxt context.Context, sessionID string, endedAt time.Time) error

	// RecordHit persist one impact. The sequence number is assigned.
	RecordHit(ctxt context.Context, hit Hit) (Hit, error)
	// ListHits fetch a session's impacts in sequence order
	ListHits(ctxt context.Context, sessionID string) ([]Hit, error)
	// SessionSummary compute the aggregated analytics of one session
	SessionSummary(ctxt context.Context, sessionID string) (SessionSummary, error)

	// Close close the store
	Close() error
}

// sqliteStoreImpl implements Store against SQLite
type sqliteStoreImpl struct {
	common.Component
	db *sql.DB
}

// GetSqliteStore define a new SQLite backed Store
func GetSqliteStore(config common.StorageConfig) (Store, error) {
	logTags := log.Fields{
		"module":    "storage",
		"component": "sqlite",
		"instance":  config.DBFile,
	}

	db, err := sql.Open("sqlite", config.DBFile)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to open database")
		return nil, err
	}
	// SQLite allows one writer; a single pooled connection avoids
	// "database is locked" errors under concurrent writes
	db.SetMaxOpenConns(1)

	instance := &sqliteStoreImpl{
		Component: common.Component{LogTags: logTags}, db: db,
	}
	if err := instance.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return instance, nil
}

// migrate create the schema when missing
func (s *sqliteStoreImpl) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rooms (id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			notes TEXT)`,
		`CREATE TABLE IF NOT EXISTS targets (id TEXT NOT NULL PRIMARY KEY,
			room_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT)`,
		`CREATE TABLE IF NOT EXISTS games (id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			mode TEXT,
			duration_sec INT,
			target_count INT)`,
		`CREATE TABLE IF NOT EXISTS sessions (id TEXT NOT NULL PRIMARY KEY,
			game_id TEXT NOT NULL,
			room_id TEXT NOT NULL,
			shooter TEXT,
			started_ms INT NOT NULL,
			ended_ms INT)`,
		`CREATE TABLE IF NOT EXISTS hits (session_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			seq INT NOT NULL,
			hit_ms INT NOT NULL,
			zone TEXT,
			score INT,
			PRIMARY KEY (session_id, seq))`,
		`CREATE INDEX IF NOT EXISTS idx_targets_room ON targets (room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_room ON sessions (room_id)`,
	}
	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Schema migration failed")
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	return nil
}

// Close close the store
func (s *sqliteStoreImpl) Close() error {
	log.WithFields(s.LogTags).Info("Closing store")
	return s.db.Close()
}

// ==============================================================================
// Rooms

// CreateRoom persist a new room
func (s *sqliteStoreImpl) CreateRoom(ctxt context.Context, room Room) (Room, error) {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(
		ctxt, `INSERT INTO rooms (id, name, notes) VALUES (?, ?, ?)`,
		room.ID, room.Name, room.Notes,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to create room %s", room.Name)
		return Room{}, err
	}
	return room, nil
}

// GetRoom fetch one room by ID
func (s *sqliteStoreImpl) GetRoom(ctxt context.Context, roomID string) (Room, error) {
	row := s.db.QueryRowContext(
		ctxt, `SELECT id, name, notes FROM rooms WHERE id = ?`, roomID,
	)
	var room Room
	var notes sql.NullString
	if err := row.Scan(&room.ID, &room.Name, &notes); err != nil {
		if err == sql.ErrNoRows {
			return Room{}, fmt.Errorf("room '%s' is unknown", roomID)
		}
		return Room{}, err
	}
	room.Notes = notes.String
	return room, nil
}

// ListRooms fetch all rooms
func (s *sqliteStoreImpl) ListRooms(ctxt context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctxt, `SELECT id, name, notes FROM rooms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	result := []Room{}
	for rows.Next() {
		var room Room
		var notes sql.NullString
		if err := rows.Scan(&room.ID, &room.Name, &notes); err != nil {
			return nil, err
		}
		room.Notes = notes.String
		result = append(result, room)
	}
	return result, rows.Err()
}

// UpdateRoom replace a room's mutable fields
func (s *sqliteStoreImpl) UpdateRoom(ctxt context.Context, room Room) error {
	result, err := s.db.ExecContext(
		ctxt, `UPDATE rooms SET name = ?, notes = ? WHERE id = ?`,
		room.Name, room.Notes, room.ID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(result, "room", room.ID)
}

// DeleteRoom remove a room and its targets
func (s *sqliteStoreImpl) DeleteRoom(ctxt context.Context, roomID string) error {
	if _, err := s.db.ExecContext(
		ctxt, `DELETE FROM targets WHERE room_id = ?`, roomID,
	); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctxt, `DELETE FROM rooms WHERE id = ?`, roomID)
	if err != nil {
		return err
	}
	return requireOneRow(result, "room", roomID)
}

// ==============================================================================
// Targets

// CreateTarget persist a new target
func (s *sqliteStoreImpl) CreateTarget(ctxt context.Context, target Target) (Target, error) {
	if target.ID == "" {
		target.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(
		ctxt, `INSERT INTO targets (id, room_id, device_id, name, kind)
			VALUES (?, ?, ?, ?, ?)`,
		target.ID, target.RoomID, target.DeviceID, target.Name, target.Kind,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to create target %s", target.Name,
		)
		return Target{}, err
	}
	return target, nil
}

// GetTarget fetch one target by ID
func (s *sqliteStoreImpl) GetTarget(ctxt context.Context, targetID string) (Target, error) {
	row := s.db.QueryRowContext(
		ctxt, `SELECT id, room_id, device_id, name, kind FROM targets WHERE id = ?`,
		targetID,
	)
	target, err := scanTarget(row.Scan)
	if err == sql.ErrNoRows {
		return Target{}, fmt.Errorf("target '%s' is unknown", targetID)
	}
	return target, err
}

// ListTargets fetch targets, all or restricted to one room
func (s *sqliteStoreImpl) ListTargets(ctxt context.Context, roomID string) ([]Target, error) {
	queryStr := `SELECT id, room_id, device_id, name, kind FROM targets ORDER BY name`
	args := []interface{}{}
	if roomID != "" {
		queryStr = `SELECT id, room_id, device_id, name, kind FROM targets
			WHERE room_id = ? ORDER BY name`
		args = append(args, roomID)
	}
	rows, err := s.db.QueryContext(ctxt, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	result := []Target{}
	for rows.Next() {
		target, err := scanTarget(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, target)
	}
	return result, rows.Err()
}

// UpdateTarget replace a target's mutable fields
func (s *sqliteStoreImpl) UpdateTarget(ctxt context.Context, target Target) error {
	result, err := s.db.ExecContext(
		ctxt, `UPDATE targets SET room_id = ?, device_id = ?, name = ?, kind = ?
			WHERE id = ?`,
		target.RoomID, target.DeviceID, target.Name, target.Kind, target.ID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(result, "target", target.ID)
}

// DeleteTarget remove a target
func (s *sqliteStoreImpl) DeleteTarget(ctxt context.Context, targetID string) error {
	result, err := s.db.ExecContext(ctxt, `DELETE FROM targets WHERE id = ?`, targetID)
	if err != nil {
		return err
	}
	return requireOneRow(result, "target", targetID)
}

// scanTarget scan one target row
func scanTarget(scan func(...interface{}) error) (Target, error) {
	var target Target
	var kind sql.NullString
	if err := scan(
		&target.ID, &target.RoomID, &target.DeviceID, &target.Name, &kind,
	); err != nil {
		return Target{}, err
	}
	target.Kind = kind.String
	return target, nil
}

// ==============================================================================
// Games

// CreateGame persist a new game
func (s *sqliteStoreImpl) CreateGame(ctxt context.Context, game Game) (Game, error) {
	if game.ID == "" {
		game.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(
		ctxt, `INSERT INTO games (id, name, mode, duration_sec, target_count)
			VALUES (?, ?, ?, ?, ?)`,
		game.ID, game.Name, game.Mode, game.DurationSec, game.TargetCount,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to create game %s", game.Name)
		return Game{}, err
	}
	return game, nil
}

// GetGame fetch one game by ID
func (s *sqliteStoreImpl) GetGame(ctxt context.Context, gameID string) (Game, error) {
	row := s.db.QueryRowContext(
		ctxt, `SELECT id, name, mode, duration_sec, target_count FROM games WHERE id = ?`,
		gameID,
	)
	var game Game
	var mode sql.NullString
	if err := row.Scan(
		&game.ID, &game.Name, &mode, &game.DurationSec, &game.TargetCount,
	); err != nil {
		if err == sql.ErrNoRows {
			return Game{}, fmt.Errorf("game '%s' is unknown", gameID)
		}
		return Game{}, err
	}
	game.Mode = mode.String
	return game, nil
}

// ListGames fetch all games
func (s *sqliteStoreImpl) ListGames(ctxt context.Context) ([]Game, error) {
	rows, err := s.db.QueryContext(
		ctxt, `SELECT id, name, mode, duration_sec, target_count FROM games ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	result := []Game{}
	for rows.Next() {
		var game Game
		var mode sql.NullString
		if err := rows.Scan(
			&game.ID, &game.Name, &mode, &game.DurationSec, &game.TargetCount,
		); err != nil {
			return nil, err
		}
		game.Mode = mode.String
		result = append(result, game)
	}
	return result, rows.Err()
}

// UpdateGame replace a game's mutable fields
func (s *sqliteStoreImpl) UpdateGame(ctxt context.Context, game Game) error {
	result, err := s.db.ExecContext(
		ctxt, `UPDATE games SET name = ?, mode = ?, duration_sec = ?, target_count = ?
			WHERE id = ?`,
		game.Name, game.Mode, game.DurationSec, game.TargetCount, game.ID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(result, "game", game.ID)
}

// DeleteGame remove a game
func (s *sqliteStoreImpl) DeleteGame(ctxt context.Context, gameID string) error {
	result, err := s.db.ExecContext(ctxt, `DELETE FROM games WHERE id = ?`, gameID)
	if err != nil {
		return err
	}
	return requireOneRow(result, "game", gameID)
}

// ==============================================================================
// Sessions and hits

// CreateSession persist a new running session
func (s *sqliteStoreImpl) CreateSession(
	ctxt context.Context, session TrainingSession,
) (TrainingSession, error) {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctxt, `INSERT INTO sessions (id, game_id, room_id, shooter, started_ms, ended_ms)
			VALUES (?, ?, ?, ?, ?, NULL)`,
		session.ID, session.GameID, session.RoomID, session.Shooter,
		session.StartedAt.UnixMilli(),
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Unable to create session")
		return TrainingSession{}, err
	}
	session.EndedAt = nil
	return session, nil
}

// GetSession fetch one session by ID
func (s *sqliteStoreImpl) GetSession(
	ctxt context.Context, sessionID string,
) (TrainingSession, error) {
	row := s.db.QueryRowContext(
		ctxt, `SELECT id, game_id, room_id, shooter, started_ms, ended_ms
			FROM sessions WHERE id = ?`, sessionID,
	)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return TrainingSession{}, fmt.Errorf("session '%s' is unknown", sessionID)
	}
	return session, err
}

// ListSessions fetch sessions, all or restricted to one room
func (s *sqliteStoreImpl) ListSessions(
	ctxt context.Context, roomID string,
) ([]TrainingSession, error) {
	queryStr := `SELECT id, game_id, room_id, shooter, started_ms, ended_ms
		FROM sessions ORDER BY started_ms DESC`
	args := []interface{}{}
	if roomID != "" {
		queryStr = `SELECT id, game_id, room_id, shooter, started_ms, ended_ms
			FROM sessions WHERE room_id = ? ORDER BY started_ms DESC`
		args = append(args, roomID)
	}
	rows, err := s.db.QueryContext(ctxt, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	result := []TrainingSession{}
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

// EndSession mark a running session ended
func (s *sqliteStoreImpl) EndSession(
	ctxt context.Context, sessionID string, endedAt time.Time,
) error {
	result, err := s.db.ExecContext(
		ctxt, `UPDATE sessions SET ended_ms = ? WHERE id = ? AND ended_ms IS NULL`,
		endedAt.UnixMilli(), sessionID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(result, "running session", sessionID)
}

// scanSession scan one session row
func scanSession(scan func(...interface{}) error) (TrainingSession, error) {
	var session TrainingSession
	var shooter sql.NullString
	var startedMS int64
	var endedMS sql.NullInt64
	if err := scan(
		&session.ID, &session.GameID, &session.RoomID, &shooter, &startedMS, &endedMS,
	); err != nil {
		return TrainingSession{}, err
	}
	session.Shooter = shooter.String
	session.StartedAt = time.UnixMilli(startedMS)
	if endedMS.Valid {
		endedAt := time.UnixMilli(endedMS.Int64)
		session.EndedAt = &endedAt
	}
	return session, nil
}

// RecordHit persist one impact
func (s *sqliteStoreImpl) RecordHit(ctxt context.Context, hit Hit) (Hit, error) {
	if hit.Timestamp.IsZero() {
		hit.Timestamp = time.Now()
	}
	// Sequence assignment rides inside the insert so two concurrent hit
	// posts for one session cannot compute the same seq
	result, err := s.db.ExecContext(
		ctxt, `INSERT INTO hits (session_id, target_id, seq, hit_ms, zone, score)
			SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?
			FROM hits WHERE session_id = ?`,
		hit.SessionID,
		hit.TargetID,
		hit.Timestamp.UnixMilli(),
		hit.Zone,
		hit.Score,
		hit.SessionID,
	)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Unable to record hit")
		return Hit{}, err
	}
	rowID, err := result.LastInsertId()
	if err != nil {
		return Hit{}, err
	}
	row := s.db.QueryRowContext(ctxt, `SELECT seq FROM hits WHERE rowid = ?`, rowID)
	if err := row.Scan(&hit.Seq); err != nil {
		return Hit{}, err
	}
	return hit, nil
}

// ListHits fetch a session's impacts in sequence order
func (s *sqliteStoreImpl) ListHits(ctxt context.Context, sessionID string) ([]Hit, error) {
	rows, err := s.db.QueryContext(
		ctxt, `SELECT session_id, target_id, seq, hit_ms, zone, score
			FROM hits WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	result := []Hit{}
	for rows.Next() {
		var hit Hit
		var zone sql.NullString
		var hitMS int64
		if err := rows.Scan(
			&hit.SessionID, &hit.TargetID, &hit.Seq, &hitMS, &zone, &hit.Score,
		); err != nil {
			return nil, err
		}
		hit.Zone = zone.String
		hit.Timestamp = time.UnixMilli(hitMS)
		result = append(result, hit)
	}
	return result, rows.Err()
}

// ==============================================================================

// requireOneRow verify a mutation touched a row
func requireOneRow(result sql.Result, entity, id string) error {
	touched, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if touched == 0 {
		return fmt.Errorf("%s '%s' is unknown", entity, id)
	}
	return nil
}
