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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rangelab/rangehub/common"
)

// tokenIssuer iss claim of locally issued dashboard tokens
const tokenIssuer = "rangehub"

// APIAuthenticator issues and validates the dashboard's own bearer tokens.
// Credentials themselves are checked upstream; this only covers the session
// tokens handed to dashboard users after login.
type APIAuthenticator struct {
	common.Component
	signingKey []byte
	tokenTTL   time.Duration
}

// GetAPIAuthenticator define a new APIAuthenticator
func GetAPIAuthenticator(config common.DashboardAuthConfig) (*APIAuthenticator, error) {
	logTags := log.Fields{
		"module": "apis", "component": "authenticator",
	}
	if config.TokenSigningKey == "" {
		return nil, fmt.Errorf("dashboard auth requires a token signing key")
	}
	if config.TokenTTLMinutes <= 0 {
		return nil, fmt.Errorf("dashboard auth requires a positive token TTL")
	}
	return &APIAuthenticator{
		Component:  common.Component{LogTags: logTags},
		signingKey: []byte(config.TokenSigningKey),
		tokenTTL:   time.Minute * time.Duration(config.TokenTTLMinutes),
	}, nil
}

// IssueToken mint a signed session token for a user
func (a *APIAuthenticator) IssueToken(user string) (string, time.Time, error) {
	expiry := time.Now().Add(a.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiry),
	})
	signed, err := token.SignedString(a.signingKey)
	if err != nil {
		log.WithError(err).WithFields(a.LogTags).Errorf("Unable to sign token for %s", user)
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// ValidateToken check a session token and return its subject
func (a *APIAuthenticator) ValidateToken(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(*jwt.Token) (interface{}, error) { return a.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Middleware middleware function rejecting requests without a valid bearer token
func (a *APIAuthenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeAuthFailure(rw, "request carried no bearer token")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		user, err := a.ValidateToken(token)
		if err != nil {
			log.WithError(err).WithFields(a.LogTags).Debug("Rejected bearer token")
			writeAuthFailure(rw, "invalid bearer token")
			return
		}
		r.Header.Set("Rangehub-User", user)
		next(rw, r)
	}
}

// writeAuthFailure write the standard 401 response
func writeAuthFailure(rw http.ResponseWriter, msg string) {
	_ = writeRESTResponse(
		rw, http.StatusUnauthorized, getStdRESTErrorMsg(http.StatusUnauthorized, &msg),
	)
}
