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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/mux"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/storage"
	"github.com/stretchr/testify/assert"
)

// fakeCredentialChecker accepts exactly one username / password pair
type fakeCredentialChecker struct {
	username string
	password string
}

func (f *fakeCredentialChecker) CheckCredentials(
	ctxt context.Context, username, password string,
) error {
	if username != f.username || password != f.password {
		return fmt.Errorf("invalid credentials")
	}
	return nil
}

func defineTestDashboardHandler(
	t *testing.T, assert *assert.Assertions,
) (APIRestDashboardHandler, string) {
	store, err := storage.GetSqliteStore(common.StorageConfig{
		DBFile: filepath.Join(t.TempDir(), "unit-test.db"),
	})
	assert.Nil(err)
	t.Cleanup(func() { _ = store.Close() })

	auth, err := GetAPIAuthenticator(common.DashboardAuthConfig{
		TokenSigningKey: "unit-test-signing-key", TokenTTLMinutes: 30,
	})
	assert.Nil(err)

	uut, err := GetAPIRestDashboardHandler(
		store,
		auth,
		&fakeCredentialChecker{username: "ops", password: "secret"},
		common.HTTPConfig{
			Logging: common.HTTPRequestLogging{RequestIDHeader: "Rangehub-Request-ID"},
		},
	)
	assert.Nil(err)

	token, _, err := auth.IssueToken("ops")
	assert.Nil(err)
	return uut, token
}

func TestDashboardLogin(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	uut, _ := defineTestDashboardHandler(t, assert)

	// Case 0: bad credentials
	payload, err := json.Marshal(APIRestReqLogin{Username: "ops", Password: "wrong"})
	assert.Nil(err)
	req, err := http.NewRequest("POST", "/v1/login", bytes.NewReader(payload))
	assert.Nil(err)
	respRecorder := httptest.NewRecorder()
	uut.LoginHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusUnauthorized, respRecorder.Code)

	// Case 1: missing fields
	req, err = http.NewRequest("POST", "/v1/login", bytes.NewReader([]byte(`{}`)))
	assert.Nil(err)
	respRecorder = httptest.NewRecorder()
	uut.LoginHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusBadRequest, respRecorder.Code)

	// Case 2: good credentials come back with a usable session token
	payload, err = json.Marshal(APIRestReqLogin{Username: "ops", Password: "secret"})
	assert.Nil(err)
	req, err = http.NewRequest("POST", "/v1/login", bytes.NewReader(payload))
	assert.Nil(err)
	respRecorder = httptest.NewRecorder()
	uut.LoginHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusOK, respRecorder.Code)
	var loginResp APIRestRespLogin
	assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &loginResp))
	assert.True(loginResp.Success)
	assert.NotEmpty(loginResp.Token)
	subject, err := uut.auth.ValidateToken(loginResp.Token)
	assert.Nil(err)
	assert.Equal("ops", subject)
	assert.NotEmpty(respRecorder.Header().Get("Rangehub-Request-ID"))
}

func TestDashboardRoomEndpoints(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	uut, token := defineTestDashboardHandler(t, assert)

	// Case 0: no bearer token
	req, err := http.NewRequest("GET", "/v1/room", nil)
	assert.Nil(err)
	respRecorder := httptest.NewRecorder()
	uut.ListRoomsHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusUnauthorized, respRecorder.Code)

	// Case 1: create a room
	payload, err := json.Marshal(storage.Room{Name: "Bay A"})
	assert.Nil(err)
	req, err = http.NewRequest("POST", "/v1/room", bytes.NewReader(payload))
	assert.Nil(err)
	req.Header.Set("Authorization", "Bearer "+token)
	respRecorder = httptest.NewRecorder()
	uut.CreateRoomHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusOK, respRecorder.Code)
	var created APIRestRespOneRoom
	assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &created))
	assert.True(created.Success)
	assert.NotEmpty(created.Room.ID)

	// Case 2: invalid create payload
	req, err = http.NewRequest("POST", "/v1/room", bytes.NewReader([]byte(`{}`)))
	assert.Nil(err)
	req.Header.Set("Authorization", "Bearer "+token)
	respRecorder = httptest.NewRecorder()
	uut.CreateRoomHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusBadRequest, respRecorder.Code)

	// Case 3: fetch it back by path variable
	req, err = http.NewRequest("GET", "/v1/room/"+created.Room.ID, nil)
	assert.Nil(err)
	req.Header.Set("Authorization", "Bearer "+token)
	req = mux.SetURLVars(req, map[string]string{"roomID": created.Room.ID})
	respRecorder = httptest.NewRecorder()
	uut.GetRoomHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusOK, respRecorder.Code)
	var fetched APIRestRespOneRoom
	assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &fetched))
	assert.Equal("Bay A", fetched.Room.Name)

	// Case 4: unknown room is a 404
	req, err = http.NewRequest("GET", "/v1/room/missing", nil)
	assert.Nil(err)
	req.Header.Set("Authorization", "Bearer "+token)
	req = mux.SetURLVars(req, map[string]string{"roomID": "missing"})
	respRecorder = httptest.NewRecorder()
	uut.GetRoomHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusNotFound, respRecorder.Code)
}

func TestDashboardSessionEndpoints(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	uut, token := defineTestDashboardHandler(t, assert)
	ctxt := context.Background()

	room, err := uut.store.CreateRoom(ctxt, storage.Room{Name: "Bay B"})
	assert.Nil(err)
	game, err := uut.store.CreateGame(ctxt, storage.Game{Name: "Steel", DurationSec: 60})
	assert.Nil(err)

	authedReq := func(method, target string, body []byte) *http.Request {
		var req *http.Request
		if body != nil {
			req, err = http.NewRequest(method, target, bytes.NewReader(body))
		} else {
			req, err = http.NewRequest(method, target, nil)
		}
		assert.Nil(err)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	// Case 0: a session against an unknown game is rejected
	payload, err := json.Marshal(storage.TrainingSession{
		GameID: "missing", RoomID: room.ID,
	})
	assert.Nil(err)
	respRecorder := httptest.NewRecorder()
	uut.StartSessionHandler().ServeHTTP(respRecorder, authedReq("POST", "/v1/session", payload))
	assert.Equal(http.StatusBadRequest, respRecorder.Code)

	// Case 1: start a session
	payload, err = json.Marshal(storage.TrainingSession{
		GameID: game.ID, RoomID: room.ID, Shooter: "alex",
	})
	assert.Nil(err)
	respRecorder = httptest.NewRecorder()
	uut.StartSessionHandler().ServeHTTP(respRecorder, authedReq("POST", "/v1/session", payload))
	assert.Equal(http.StatusOK, respRecorder.Code)
	var started APIRestRespOneSession
	assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &started))
	assert.NotEmpty(started.Session.ID)
	sessionID := started.Session.ID

	// Case 2: record two hits; sequence numbers are assigned in order
	hitAt := started.Session.StartedAt.Add(time.Second)
	for itr := 0; itr < 2; itr++ {
		payload, err = json.Marshal(storage.Hit{
			TargetID:  "target-0",
			Timestamp: hitAt.Add(time.Duration(itr) * time.Second),
			Zone:      "A",
			Score:     5,
		})
		assert.Nil(err)
		req := authedReq("POST", "/v1/session/"+sessionID+"/hit", payload)
		req = mux.SetURLVars(req, map[string]string{"sessionID": sessionID})
		respRecorder = httptest.NewRecorder()
		uut.RecordHitHandler().ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
		var recorded APIRestRespOneHit
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &recorded))
		assert.Equal(itr+1, recorded.Hit.Seq)
		assert.Equal(sessionID, recorded.Hit.SessionID)
	}

	// Case 3: stop the session
	req := authedReq("POST", "/v1/session/"+sessionID+"/stop", nil)
	req = mux.SetURLVars(req, map[string]string{"sessionID": sessionID})
	respRecorder = httptest.NewRecorder()
	uut.StopSessionHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusOK, respRecorder.Code)

	// Case 4: the summary reflects the recorded hits
	req = authedReq("GET", "/v1/session/"+sessionID+"/summary", nil)
	req = mux.SetURLVars(req, map[string]string{"sessionID": sessionID})
	respRecorder = httptest.NewRecorder()
	uut.GetSessionSummaryHandler().ServeHTTP(respRecorder, req)
	assert.Equal(http.StatusOK, respRecorder.Code)
	var summary APIRestRespSessionSummary
	assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &summary))
	assert.Equal(2, summary.Summary.TotalHits)
	assert.Equal([]storage.TargetHitCount{
		{TargetID: "target-0", Hits: 2},
	}, summary.Summary.PerTarget)
}
