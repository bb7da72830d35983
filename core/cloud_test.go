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

package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/telemetry"
	"github.com/stretchr/testify/assert"
)

// signTestToken mint a token with the given expiry for the fake cloud
func signTestToken(assert *assert.Assertions, expiry time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "unit-test", ExpiresAt: jwt.NewNumericDate(expiry),
	})
	signed, err := token.SignedString([]byte("unit-test-key"))
	assert.Nil(err)
	return signed
}

type fakeCloud struct {
	lock       sync.Mutex
	assert     *assert.Assertions
	token      string
	logins     int
	fetches    int
	lastDevIDs string
	lastKeys   string
	fetchCode  int
}

func (f *fakeCloud) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.lock.Lock()
		f.logins++
		f.lock.Unlock()
		var params map[string]string
		f.assert.Nil(json.NewDecoder(r.Body).Decode(&params))
		if params["username"] != "ops" || params["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": f.token})
	})
	mux.HandleFunc("/api/devices/telemetry", func(w http.ResponseWriter, r *http.Request) {
		f.lock.Lock()
		f.fetches++
		f.lastDevIDs = r.URL.Query().Get("deviceIds")
		f.lastKeys = r.URL.Query().Get("keys")
		code := f.fetchCode
		f.lock.Unlock()
		f.assert.Equal("Bearer "+f.token, r.Header.Get("Authorization"))
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"details": []map[string]interface{}{
				{"deviceId": "device-0", "telemetry": map[string]interface{}{"hits": 4}},
			},
		})
	})
	return mux
}

func defineTestCloudClient(
	assert *assert.Assertions, baseURL string,
) *CloudClient {
	uut, err := GetCloudClient(common.CloudConfig{
		BaseURL:        baseURL,
		RequestTimeout: 5,
		Auth:           common.CloudAuthConfig{Username: "ops", Password: "secret"},
	})
	assert.Nil(err)
	return uut
}

func TestCloudSessionToken(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	cloud := &fakeCloud{assert: assert}
	cloud.token = signTestToken(assert, time.Now().Add(time.Hour))
	server := httptest.NewServer(cloud.handler())
	defer server.Close()

	uut := defineTestCloudClient(assert, server.URL)
	ctxt := context.Background()

	// Case 0: first call logs in
	token, err := uut.SessionToken(ctxt)
	assert.Nil(err)
	assert.Equal(cloud.token, token)
	assert.Equal(1, cloud.logins)

	// Case 1: the token is cached while far from expiry
	token, err = uut.SessionToken(ctxt)
	assert.Nil(err)
	assert.Equal(cloud.token, token)
	assert.Equal(1, cloud.logins)

	// Case 2: a near-expiry token triggers a fresh login
	uut.lock.Lock()
	uut.tokenExpiry = time.Now().Add(time.Second * 5)
	uut.lock.Unlock()
	_, err = uut.SessionToken(ctxt)
	assert.Nil(err)
	assert.Equal(2, cloud.logins)
}

func TestCloudCheckCredentials(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	cloud := &fakeCloud{assert: assert}
	cloud.token = signTestToken(assert, time.Now().Add(time.Hour))
	server := httptest.NewServer(cloud.handler())
	defer server.Close()

	uut := defineTestCloudClient(assert, server.URL)
	ctxt := context.Background()

	assert.Nil(uut.CheckCredentials(ctxt, "ops", "secret"))
	assert.NotNil(uut.CheckCredentials(ctxt, "ops", "wrong"))
}

func TestCloudFetchDetails(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	cloud := &fakeCloud{assert: assert}
	cloud.token = signTestToken(assert, time.Now().Add(time.Hour))
	server := httptest.NewServer(cloud.handler())
	defer server.Close()

	uut := defineTestCloudClient(assert, server.URL)
	ctxt := context.Background()

	// Case 0: query parameters carry the device set and key filter
	details, err := uut.FetchDetails(
		ctxt, []string{"device-0", "device-1"}, telemetry.DetailQuery{
			TelemetryKeys: []string{"hits", "event"},
		},
	)
	assert.Nil(err)
	assert.Len(details, 1)
	assert.Equal("device-0", details[0].DeviceID)
	assert.EqualValues(4, details[0].Telemetry["hits"])
	assert.Equal("device-0,device-1", cloud.lastDevIDs)
	assert.Equal("hits,event", cloud.lastKeys)

	// Case 1: a 401 clears the cached token so the next cycle logs in again
	loginsBefore := cloud.logins
	cloud.lock.Lock()
	cloud.fetchCode = http.StatusUnauthorized
	cloud.lock.Unlock()
	_, err = uut.FetchDetails(ctxt, []string{"device-0"}, telemetry.DetailQuery{})
	assert.NotNil(err)
	cloud.lock.Lock()
	cloud.fetchCode = 0
	cloud.lock.Unlock()
	_, err = uut.FetchDetails(ctxt, []string{"device-0"}, telemetry.DetailQuery{})
	assert.Nil(err)
	assert.Equal(loginsBefore+1, cloud.logins)
}
