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

package apis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/storage"
)

// CredentialChecker verifies a username / password pair against the
// upstream identity holder
type CredentialChecker interface {
	CheckCredentials(ctxt context.Context, username, password string) error
}

// APIRestDashboardHandler REST handler for the dashboard management APIs
type APIRestDashboardHandler struct {
	APIRestHandler
	store    storage.Store
	auth     *APIAuthenticator
	creds    CredentialChecker
	validate *validator.Validate
}

// GetAPIRestDashboardHandler define APIRestDashboardHandler
func GetAPIRestDashboardHandler(
	store storage.Store,
	auth *APIAuthenticator,
	creds CredentialChecker,
	httpConfig common.HTTPConfig,
) (APIRestDashboardHandler, error) {
	logTags := log.Fields{
		"module":    "apis",
		"component": "dashboard",
	}
	return APIRestDashboardHandler{
		APIRestHandler: APIRestHandler{
			Component:       common.Component{LogTags: logTags},
			requestIDHeader: httpConfig.Logging.RequestIDHeader,
		},
		store:    store,
		auth:     auth,
		creds:    creds,
		validate: validator.New(),
	}, nil
}

// =======================================================================
// Login

// APIRestReqLogin login request parameters
type APIRestReqLogin struct {
	// Username is the account name
	Username string `json:"username" validate:"required"`
	// Password is the account password
	Password string `json:"password" validate:"required"`
}

// APIRestRespLogin response for login
type APIRestRespLogin struct {
	StandardResponse
	// Token is the issued session token
	Token string `json:"token"`
	// ExpiresAt is when the token stops being valid
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verify credentials and issue a dashboard session token
func (h APIRestDashboardHandler) Login(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/login"
	localLogTags := h.requestLogTags(r.Context())

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	var params APIRestReqLogin
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		msg := "Unable to parse login request"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}
	if err := h.validate.Struct(&params); err != nil {
		msg := "Login request missing fields"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	if err := h.creds.CheckCredentials(r.Context(), params.Username, params.Password); err != nil {
		msg := "Invalid credentials"
		log.WithError(err).WithFields(localLogTags).Infof(
			"Rejected login of %s", params.Username,
		)
		respCode = http.StatusUnauthorized
		respBody = getStdRESTErrorMsg(http.StatusUnauthorized, &msg)
		return
	}

	token, expiry, err := h.auth.IssueToken(params.Username)
	if err != nil {
		msg := "Unable to issue session token"
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespLogin{
		StandardResponse: getStdRESTSuccessMsg(), Token: token, ExpiresAt: expiry,
	}
}

// LoginHandler Wrapper around Login
func (h APIRestDashboardHandler) LoginHandler() http.HandlerFunc {
	return h.attachRequestID(func(w http.ResponseWriter, r *http.Request) {
		h.Login(w, r)
	})
}

// =======================================================================
// Room management

// APIRestRespOneRoom response for fetching one room
type APIRestRespOneRoom struct {
	StandardResponse
	// Room the room details
	Room storage.Room `json:"room"`
}

// APIRestRespAllRooms response for listing all rooms
type APIRestRespAllRooms struct {
	StandardResponse
	// Rooms the set of known rooms
	Rooms []storage.Room `json:"rooms"`
}

// CreateRoom define a new room
func (h APIRestDashboardHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/room"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	var room storage.Room
	if !h.parsePayload(r, &room, &respCode, &respBody) {
		return
	}

	created, err := h.store.CreateRoom(r.Context(), room)
	if err != nil {
		msg := "Failed to create new room"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneRoom{StandardResponse: getStdRESTSuccessMsg(), Room: created}
}

// ListRooms fetch all rooms
func (h APIRestDashboardHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/room"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	rooms, err := h.store.ListRooms(r.Context())
	if err != nil {
		msg := "Failed to list rooms"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespAllRooms{StandardResponse: getStdRESTSuccessMsg(), Rooms: rooms}
}

// GetRoom fetch one room
func (h APIRestDashboardHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/room/{roomID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	roomID, ok := h.pathVar(r, "roomID", &respCode, &respBody)
	if !ok {
		return
	}
	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		msg := fmt.Sprintf("Unable to fetch room %s", roomID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusNotFound
		respBody = getStdRESTErrorMsg(http.StatusNotFound, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneRoom{StandardResponse: getStdRESTSuccessMsg(), Room: room}
}

// UpdateRoom replace a room's mutable fields
func (h APIRestDashboardHandler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	restCall := "PUT /v1/room/{roomID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	roomID, ok := h.pathVar(r, "roomID", &respCode, &respBody)
	if !ok {
		return
	}
	var room storage.Room
	if !h.parsePayload(r, &room, &respCode, &respBody) {
		return
	}
	room.ID = roomID
	if err := h.store.UpdateRoom(r.Context(), room); err != nil {
		msg := fmt.Sprintf("Unable to update room %s", roomID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// DeleteRoom remove a room and its targets
func (h APIRestDashboardHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /v1/room/{roomID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	roomID, ok := h.pathVar(r, "roomID", &respCode, &respBody)
	if !ok {
		return
	}
	if err := h.store.DeleteRoom(r.Context(), roomID); err != nil {
		msg := fmt.Sprintf("Unable to delete room %s", roomID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// CreateRoomHandler Wrapper around CreateRoom
func (h APIRestDashboardHandler) CreateRoomHandler() http.HandlerFunc {
	return h.secured(h.CreateRoom)
}

// ListRoomsHandler Wrapper around ListRooms
func (h APIRestDashboardHandler) ListRoomsHandler() http.HandlerFunc {
	return h.secured(h.ListRooms)
}

// GetRoomHandler Wrapper around GetRoom
func (h APIRestDashboardHandler) GetRoomHandler() http.HandlerFunc {
	return h.secured(h.GetRoom)
}

// UpdateRoomHandler Wrapper around UpdateRoom
func (h APIRestDashboardHandler) UpdateRoomHandler() http.HandlerFunc {
	return h.secured(h.UpdateRoom)
}

// DeleteRoomHandler Wrapper around DeleteRoom
func (h APIRestDashboardHandler) DeleteRoomHandler() http.HandlerFunc {
	return h.secured(h.DeleteRoom)
}

// =======================================================================
// Target management

// APIRestRespOneTarget response for fetching one target
type APIRestRespOneTarget struct {
	StandardResponse
	// Target the target details
	Target storage.Target `json:"target"`
}

// APIRestRespAllTargets response for listing targets
type APIRestRespAllTargets struct {
	StandardResponse
	// Targets the matching targets
	Targets []storage.Target `json:"targets"`
}

// CreateTarget define a new target
func (h APIRestDashboardHandler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/target"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	var target storage.Target
	if !h.parsePayload(r, &target, &respCode, &respBody) {
		return
	}
	if _, err := h.store.GetRoom(r.Context(), target.RoomID); err != nil {
		msg := fmt.Sprintf("Room %s is unknown", target.RoomID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}
	created, err := h.store.CreateTarget(r.Context(), target)
	if err != nil {
		msg := "Failed to create new target"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneTarget{StandardResponse: getStdRESTSuccessMsg(), Target: created}
}

// ListTargets fetch targets, optionally restricted to one room via the
// "room" query parameter
func (h APIRestDashboardHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/target"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	roomID := r.URL.Query().Get("room")
	targets, err := h.store.ListTargets(r.Context(), roomID)
	if err != nil {
		msg := "Failed to list targets"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespAllTargets{StandardResponse: getStdRESTSuccessMsg(), Targets: targets}
}

// GetTarget fetch one target
func (h APIRestDashboardHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/target/{targetID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	targetID, ok := h.pathVar(r, "targetID", &respCode, &respBody)
	if !ok {
		return
	}
	target, err := h.store.GetTarget(r.Context(), targetID)
	if err != nil {
		msg := fmt.Sprintf("Unable to fetch target %s", targetID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusNotFound
		respBody = getStdRESTErrorMsg(http.StatusNotFound, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneTarget{StandardResponse: getStdRESTSuccessMsg(), Target: target}
}

// UpdateTarget replace a target's mutable fields
func (h APIRestDashboardHandler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	restCall := "PUT /v1/target/{targetID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	targetID, ok := h.pathVar(r, "targetID", &respCode, &respBody)
	if !ok {
		return
	}
	var target storage.Target
	if !h.parsePayload(r, &target, &respCode, &respBody) {
		return
	}
	target.ID = targetID
	if err := h.store.UpdateTarget(r.Context(), target); err != nil {
		msg := fmt.Sprintf("Unable to update target %s", targetID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// DeleteTarget remove a target
func (h APIRestDashboardHandler) DeleteTarget(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /v1/target/{targetID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	targetID, ok := h.pathVar(r, "targetID", &respCode, &respBody)
	if !ok {
		return
	}
	if err := h.store.DeleteTarget(r.Context(), targetID); err != nil {
		msg := fmt.Sprintf("Unable to delete target %s", targetID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// CreateTargetHandler Wrapper around CreateTarget
func (h APIRestDashboardHandler) CreateTargetHandler() http.HandlerFunc {
	return h.secured(h.CreateTarget)
}

// ListTargetsHandler Wrapper around ListTargets
func (h APIRestDashboardHandler) ListTargetsHandler() http.HandlerFunc {
	return h.secured(h.ListTargets)
}

// GetTargetHandler Wrapper around GetTarget
func (h APIRestDashboardHandler) GetTargetHandler() http.HandlerFunc {
	return h.secured(h.GetTarget)
}

// UpdateTargetHandler Wrapper around UpdateTarget
func (h APIRestDashboardHandler) UpdateTargetHandler() http.HandlerFunc {
	return h.secured(h.UpdateTarget)
}

// DeleteTargetHandler Wrapper around DeleteTarget
func (h APIRestDashboardHandler) DeleteTargetHandler() http.HandlerFunc {
	return h.secured(h.DeleteTarget)
}

// =======================================================================
// Game management

// APIRestRespOneGame response for fetching one game
type APIRestRespOneGame struct {
	StandardResponse
	// Game the game details
	Game storage.Game `json:"game"`
}

// APIRestRespAllGames response for listing all games
type APIRestRespAllGames struct {
	StandardResponse
	// Games the set of known games
	Games []storage.Game `json:"games"`
}

// CreateGame define a new game
func (h APIRestDashboardHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/game"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	var game storage.Game
	if !h.parsePayload(r, &game, &respCode, &respBody) {
		return
	}
	created, err := h.store.CreateGame(r.Context(), game)
	if err != nil {
		msg := "Failed to create new game"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneGame{StandardResponse: getStdRESTSuccessMsg(), Game: created}
}

// ListGames fetch all games
func (h APIRestDashboardHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/game"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	games, err := h.store.ListGames(r.Context())
	if err != nil {
		msg := "Failed to list games"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespAllGames{StandardResponse: getStdRESTSuccessMsg(), Games: games}
}

// GetGame fetch one game
func (h APIRestDashboardHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/game/{gameID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	gameID, ok := h.pathVar(r, "gameID", &respCode, &respBody)
	if !ok {
		return
	}
	game, err := h.store.GetGame(r.Context(), gameID)
	if err != nil {
		msg := fmt.Sprintf("Unable to fetch game %s", gameID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusNotFound
		respBody = getStdRESTErrorMsg(http.StatusNotFound, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneGame{StandardResponse: getStdRESTSuccessMsg(), Game: game}
}

// UpdateGame replace a game's mutable fields
func (h APIRestDashboardHandler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	restCall := "PUT /v1/game/{gameID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	gameID, ok := h.pathVar(r, "gameID", &respCode, &respBody)
	if !ok {
		return
	}
	var game storage.Game
	if !h.parsePayload(r, &game, &respCode, &respBody) {
		return
	}
	game.ID = gameID
	if err := h.store.UpdateGame(r.Context(), game); err != nil {
		msg := fmt.Sprintf("Unable to update game %s", gameID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// DeleteGame remove a game
func (h APIRestDashboardHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	restCall := "DELETE /v1/game/{gameID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	gameID, ok := h.pathVar(r, "gameID", &respCode, &respBody)
	if !ok {
		return
	}
	if err := h.store.DeleteGame(r.Context(), gameID); err != nil {
		msg := fmt.Sprintf("Unable to delete game %s", gameID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// CreateGameHandler Wrapper around CreateGame
func (h APIRestDashboardHandler) CreateGameHandler() http.HandlerFunc {
	return h.secured(h.CreateGame)
}

// ListGamesHandler Wrapper around ListGames
func (h APIRestDashboardHandler) ListGamesHandler() http.HandlerFunc {
	return h.secured(h.ListGames)
}

// GetGameHandler Wrapper around GetGame
func (h APIRestDashboardHandler) GetGameHandler() http.HandlerFunc {
	return h.secured(h.GetGame)
}

// UpdateGameHandler Wrapper around UpdateGame
func (h APIRestDashboardHandler) UpdateGameHandler() http.HandlerFunc {
	return h.secured(h.UpdateGame)
}

// DeleteGameHandler Wrapper around DeleteGame
func (h APIRestDashboardHandler) DeleteGameHandler() http.HandlerFunc {
	return h.secured(h.DeleteGame)
}

// =======================================================================
// Session tracking

// APIRestRespOneSession response for fetching one session
type APIRestRespOneSession struct {
	StandardResponse
	// Session the session details
	Session storage.TrainingSession `json:"session"`
}

// APIRestRespAllSessions response for listing sessions
type APIRestRespAllSessions struct {
	StandardResponse
	// Sessions the matching sessions
	Sessions []storage.TrainingSession `json:"sessions"`
}

// APIRestRespOneHit response for recording one hit
type APIRestRespOneHit struct {
	StandardResponse
	// Hit the recorded hit, with its assigned sequence number
	Hit storage.Hit `json:"hit"`
}

// APIRestRespAllHits response for listing a session's hits
type APIRestRespAllHits struct {
	StandardResponse
	// Hits the session's impacts in sequence order
	Hits []storage.Hit `json:"hits"`
}

// APIRestRespSessionSummary response for a session summary
type APIRestRespSessionSummary struct {
	StandardResponse
	// Summary the aggregated session analytics
	Summary storage.SessionSummary `json:"summary"`
}

// StartSession begin tracking a new training session
func (h APIRestDashboardHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/session"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	var session storage.TrainingSession
	if !h.parsePayload(r, &session, &respCode, &respBody) {
		return
	}
	if _, err := h.store.GetGame(r.Context(), session.GameID); err != nil {
		msg := fmt.Sprintf("Game %s is unknown", session.GameID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}
	created, err := h.store.CreateSession(r.Context(), session)
	if err != nil {
		msg := "Failed to start new session"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneSession{StandardResponse: getStdRESTSuccessMsg(), Session: created}
}

// ListSessions fetch sessions, optionally restricted to one room via the
// "room" query parameter
func (h APIRestDashboardHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/session"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	roomID := r.URL.Query().Get("room")
	sessions, err := h.store.ListSessions(r.Context(), roomID)
	if err != nil {
		msg := "Failed to list sessions"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespAllSessions{
		StandardResponse: getStdRESTSuccessMsg(), Sessions: sessions,
	}
}

// GetSession fetch one session
func (h APIRestDashboardHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/session/{sessionID}"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	sessionID, ok := h.pathVar(r, "sessionID", &respCode, &respBody)
	if !ok {
		return
	}
	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		msg := fmt.Sprintf("Unable to fetch session %s", sessionID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusNotFound
		respBody = getStdRESTErrorMsg(http.StatusNotFound, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneSession{StandardResponse: getStdRESTSuccessMsg(), Session: session}
}

// StopSession mark a running session ended
func (h APIRestDashboardHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/session/{sessionID}/stop"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	sessionID, ok := h.pathVar(r, "sessionID", &respCode, &respBody)
	if !ok {
		return
	}
	if err := h.store.EndSession(r.Context(), sessionID, time.Now()); err != nil {
		msg := fmt.Sprintf("Unable to stop session %s", sessionID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = getStdRESTSuccessMsg()
}

// RecordHit record one impact against a session
func (h APIRestDashboardHandler) RecordHit(w http.ResponseWriter, r *http.Request) {
	restCall := "POST /v1/session/{sessionID}/hit"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	sessionID, ok := h.pathVar(r, "sessionID", &respCode, &respBody)
	if !ok {
		return
	}
	var hit storage.Hit
	if err := json.NewDecoder(r.Body).Decode(&hit); err != nil {
		msg := "Unable to parse hit record"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}
	hit.SessionID = sessionID
	if hit.Timestamp.IsZero() {
		hit.Timestamp = time.Now()
	}
	if err := h.validate.Struct(&hit); err != nil {
		msg := "Hit record missing fields"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return
	}

	recorded, err := h.store.RecordHit(r.Context(), hit)
	if err != nil {
		msg := fmt.Sprintf("Unable to record hit against session %s", sessionID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespOneHit{StandardResponse: getStdRESTSuccessMsg(), Hit: recorded}
}

// ListHits fetch a session's impacts in sequence order
func (h APIRestDashboardHandler) ListHits(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/session/{sessionID}/hit"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	sessionID, ok := h.pathVar(r, "sessionID", &respCode, &respBody)
	if !ok {
		return
	}
	hits, err := h.store.ListHits(r.Context(), sessionID)
	if err != nil {
		msg := fmt.Sprintf("Unable to list hits of session %s", sessionID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespAllHits{StandardResponse: getStdRESTSuccessMsg(), Hits: hits}
}

// GetSessionSummary compute the aggregated analytics of one session
func (h APIRestDashboardHandler) GetSessionSummary(w http.ResponseWriter, r *http.Request) {
	restCall := "GET /v1/session/{sessionID}/summary"

	var respCode int
	var respBody interface{}
	defer func() {
		h.reply(w, respCode, respBody, restCall)
	}()

	sessionID, ok := h.pathVar(r, "sessionID", &respCode, &respBody)
	if !ok {
		return
	}
	summary, err := h.store.SessionSummary(r.Context(), sessionID)
	if err != nil {
		msg := fmt.Sprintf("Unable to summarize session %s", sessionID)
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = getStdRESTErrorMsg(http.StatusInternalServerError, &msg)
		return
	}
	respCode = http.StatusOK
	respBody = APIRestRespSessionSummary{
		StandardResponse: getStdRESTSuccessMsg(), Summary: summary,
	}
}

// StartSessionHandler Wrapper around StartSession
func (h APIRestDashboardHandler) StartSessionHandler() http.HandlerFunc {
	return h.secured(h.StartSession)
}

// ListSessionsHandler Wrapper around ListSessions
func (h APIRestDashboardHandler) ListSessionsHandler() http.HandlerFunc {
	return h.secured(h.ListSessions)
}

// GetSessionHandler Wrapper around GetSession
func (h APIRestDashboardHandler) GetSessionHandler() http.HandlerFunc {
	return h.secured(h.GetSession)
}

// StopSessionHandler Wrapper around StopSession
func (h APIRestDashboardHandler) StopSessionHandler() http.HandlerFunc {
	return h.secured(h.StopSession)
}

// RecordHitHandler Wrapper around RecordHit
func (h APIRestDashboardHandler) RecordHitHandler() http.HandlerFunc {
	return h.secured(h.RecordHit)
}

// ListHitsHandler Wrapper around ListHits
func (h APIRestDashboardHandler) ListHitsHandler() http.HandlerFunc {
	return h.secured(h.ListHits)
}

// GetSessionSummaryHandler Wrapper around GetSessionSummary
func (h APIRestDashboardHandler) GetSessionSummaryHandler() http.HandlerFunc {
	return h.secured(h.GetSessionSummary)
}

// =======================================================================
// Health checks

// Alive expose whether the process is still up
func (h APIRestDashboardHandler) Alive(w http.ResponseWriter, r *http.Request) {
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), "GET /alive")
}

// AliveHandler Wrapper around Alive
func (h APIRestDashboardHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// Ready expose whether the dashboard can serve requests
func (h APIRestDashboardHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.ListRooms(r.Context()); err != nil {
		msg := "not ready"
		h.reply(
			w,
			http.StatusInternalServerError,
			getStdRESTErrorMsg(http.StatusInternalServerError, &msg),
			"GET /ready",
		)
		return
	}
	h.reply(w, http.StatusOK, getStdRESTSuccessMsg(), "GET /ready")
}

// ReadyHandler Wrapper around Ready
func (h APIRestDashboardHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}

// =======================================================================
// Shared helpers

// secured chain the request ID and bearer token middleware onto a handler
func (h APIRestDashboardHandler) secured(handler http.HandlerFunc) http.HandlerFunc {
	return h.attachRequestID(h.auth.Middleware(handler))
}

// parsePayload decode and validate a JSON request payload
func (h APIRestDashboardHandler) parsePayload(
	r *http.Request, payload interface{}, respCode *int, respBody *interface{},
) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		msg := "Unable to parse request payload"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		*respCode = http.StatusBadRequest
		*respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		msg := "Request payload missing fields"
		log.WithError(err).WithFields(h.LogTags).Error(msg)
		*respCode = http.StatusBadRequest
		*respBody = getStdRESTErrorMsg(http.StatusBadRequest, &msg)
		return false
	}
	return true
}
