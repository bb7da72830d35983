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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rangelab/rangehub/common"
	"github.com/rangelab/rangehub/telemetry"
)

// tokenRefreshSkew refresh the session token this long before it expires
const tokenRefreshSkew = time.Second * 30

// CloudClient REST wrapper over the device-telemetry cloud. Satisfies both
// telemetry.TokenSource and telemetry.DeviceFetcher.
type CloudClient struct {
	common.Component
	baseURL  string
	username string
	password string
	client   *http.Client

	lock        sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

// GetCloudClient define a new device cloud client
func GetCloudClient(config common.CloudConfig) (*CloudClient, error) {
	logTags := log.Fields{
		"module":    "core",
		"component": "cloud-client",
		"instance":  config.BaseURL,
	}
	validate := validator.New()
	if err := validate.Struct(&config); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define cloud client")
		return nil, err
	}
	return &CloudClient{
		Component: common.Component{LogTags: logTags},
		baseURL:   strings.TrimSuffix(config.BaseURL, "/"),
		username:  config.Auth.Username,
		password:  config.Auth.Password,
		client: &http.Client{
			Timeout: time.Second * time.Duration(config.RequestTimeout),
		},
	}, nil
}

// cloudLoginRequest login request payload
type cloudLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// cloudLoginResponse login response payload
type cloudLoginResponse struct {
	Token string `json:"token"`
}

// SessionToken return a bearer token for the device cloud, logging in again
// when the cached token is missing or near expiry
func (c *CloudClient) SessionToken(ctxt context.Context) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cachedToken != "" && time.Until(c.tokenExpiry) > tokenRefreshSkew {
		return c.cachedToken, nil
	}

	token, err := c.login(ctxt, c.username, c.password)
	if err != nil {
		return "", err
	}
	c.cachedToken = token
	c.tokenExpiry = readTokenExpiry(token)
	log.WithFields(c.LogTags).Infof("New cloud session, expires %s", c.tokenExpiry)
	return c.cachedToken, nil
}

// CheckCredentials verify a username / password pair against the cloud. The
// returned token is discarded; this only answers whether the pair is valid.
func (c *CloudClient) CheckCredentials(ctxt context.Context, username, password string) error {
	_, err := c.login(ctxt, username, password)
	return err
}

// login perform one login exchange and return the session token
func (c *CloudClient) login(ctxt context.Context, username, password string) (string, error) {
	payload, err := json.Marshal(cloudLoginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	request, err := http.NewRequestWithContext(
		ctxt, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload),
	)
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := c.client.Do(request)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).Error("Cloud login request failed")
		return "", err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		err := fmt.Errorf("cloud login failed with status %d", response.StatusCode)
		log.WithError(err).WithFields(c.LogTags).Error("Cloud login rejected")
		return "", err
	}
	var parsed cloudLoginResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		log.WithError(err).WithFields(c.LogTags).Error("Malformed cloud login response")
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("cloud login response carried no token")
	}
	return parsed.Token, nil
}

// readTokenExpiry read the exp claim of a bearer token. The token is opaque
// to this client beyond its expiry; signature verification is the cloud's
// concern. Tokens without a readable expiry get a short fixed lifespan.
func readTokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err == nil &&
		claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(time.Minute * 5)
}

// cloudDeviceDetail one entry of the bulk detail response
type cloudDeviceDetail struct {
	DeviceID  string                 `json:"deviceId"`
	Telemetry map[string]interface{} `json:"telemetry"`
}

// cloudDetailResponse bulk detail response payload
type cloudDetailResponse struct {
	Details []cloudDeviceDetail `json:"details"`
}

// FetchDetails fetch the latest telemetry of a set of devices in one request
func (c *CloudClient) FetchDetails(
	ctxt context.Context, deviceIDs []string, query telemetry.DetailQuery,
) ([]telemetry.DeviceDetail, error) {
	token, err := c.SessionToken(ctxt)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("deviceIds", strings.Join(deviceIDs, ","))
	params.Set("keys", strings.Join(query.TelemetryKeys, ","))
	params.Set("includeHistory", fmt.Sprintf("%t", query.IncludeHistory))
	endpoint := c.baseURL + "/api/devices/telemetry?" + params.Encode()

	request, err := http.NewRequestWithContext(ctxt, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "Bearer "+token)
	response, err := c.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		err := fmt.Errorf(
			"bulk detail fetch failed with status %d: %s", response.StatusCode, body,
		)
		if response.StatusCode == http.StatusUnauthorized {
			// Session died server side; next cycle logs in again
			c.lock.Lock()
			c.cachedToken = ""
			c.lock.Unlock()
		}
		return nil, err
	}

	var parsed cloudDetailResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("malformed bulk detail response: %w", err)
	}
	details := make([]telemetry.DeviceDetail, 0, len(parsed.Details))
	for _, entry := range parsed.Details {
		details = append(details, telemetry.DeviceDetail{
			DeviceID:  entry.DeviceID,
			Telemetry: entry.Telemetry,
		})
	}
	return details, nil
}
