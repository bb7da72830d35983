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
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rangelab/rangehub/common"
)

// TokenSource resolves bearer credentials for the push transport
type TokenSource interface {
	// SessionToken returns a bearer token for the push transport
	SessionToken(ctxt context.Context) (string, error)
}

// DetailQuery parameters of one bulk device detail request
type DetailQuery struct {
	// IncludeHistory whether historical telemetry is requested
	IncludeHistory bool
	// TelemetryKeys is the set of telemetry keys requested
	TelemetryKeys []string
}

// DeviceDetail latest known telemetry of one device
type DeviceDetail struct {
	// DeviceID identifies the device
	DeviceID string
	// Telemetry maps telemetry key to its latest value
	Telemetry map[string]interface{}
}

// DeviceFetcher fetches device details in bulk for the polling path
type DeviceFetcher interface {
	// FetchDetails fetch the latest telemetry of a set of devices
	FetchDetails(
		ctxt context.Context, deviceIDs []string, query DetailQuery,
	) ([]DeviceDetail, error)
}

// ==============================================================================

// SubscribeOptions per-subscription parameters
type SubscribeOptions struct {
	// DisableRealtime skips the push transport entirely and polls from the start
	DisableRealtime bool
	// PollInterval is the base polling interval. Defaulted from config if zero.
	PollInterval time.Duration
	// Token is an optional pre-fetched bearer credential for the push
	// transport. The TokenSource is consulted when unset.
	Token string
	// OnError is the side channel for transport errors
	OnError AlertOnErrorCB
	// OnAuthError is the side channel for authentication failures
	OnAuthError AlertOnErrorCB
}

// StreamClient establishes live telemetry feeds for sets of device IDs,
// preferring the push transport and degrading to polling when the push
// transport is unavailable, slow to upgrade, or fails
type StreamClient interface {
	// Subscribe starts a telemetry stream covering deviceIDs. Returned is the
	// teardown closure, the sole way to release the stream's resources.
	// An empty deviceIDs list is a no-op.
	Subscribe(deviceIDs []string, onMessage MessageHandlerCB, opts SubscribeOptions) func()
}

// StreamClientParams parameters for defining a stream client
type StreamClientParams struct {
	// Config are the telemetry stream config parameters
	Config common.TelemetryConfig `validate:"required,dive"`
	// Tokens resolves push transport credentials
	Tokens TokenSource `validate:"required"`
	// Fetcher serves the polling path
	Fetcher DeviceFetcher `validate:"required"`
	// IsAuthError decides whether an error indicates an authorization
	// failure. DefaultAuthErrorClassifier is used when unset.
	IsAuthError AuthErrorClassifier
	// Dialer opens push transport connections. A gorilla/websocket dialer
	// is used when unset.
	Dialer Dialer
}

// streamClientImpl implements StreamClient
type streamClientImpl struct {
	common.Component
	rootContext context.Context
	config      common.TelemetryConfig
	tokens      TokenSource
	fetcher     DeviceFetcher
	isAuthError AuthErrorClassifier
	dial        Dialer
}

// GetStreamClient define a new StreamClient
func GetStreamClient(ctxt context.Context, params StreamClientParams) (StreamClient, error) {
	logTags := log.Fields{
		"module": "telemetry", "component": "stream-client",
	}
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define stream client")
		return nil, err
	}
	if params.IsAuthError == nil {
		params.IsAuthError = DefaultAuthErrorClassifier
	}
	if params.Dialer == nil {
		params.Dialer = websocketDial
	}
	return &streamClientImpl{
		Component:   common.Component{LogTags: logTags},
		rootContext: ctxt,
		config:      params.Config,
		tokens:      params.Tokens,
		fetcher:     params.Fetcher,
		isAuthError: params.IsAuthError,
		dial:        params.Dialer,
	}, nil
}

// Subscribe starts a telemetry stream covering deviceIDs
func (c *streamClientImpl) Subscribe(
	deviceIDs []string, onMessage MessageHandlerCB, opts SubscribeOptions,
) func() {
	session := c.newSession(deviceIDs, onMessage, opts)
	if session == nil {
		return func() {}
	}
	return session.teardown
}

// ==============================================================================
// Stream session state machine

// sessionState the stream session state
type sessionState int

// Stream session states. The push socket and the poll timer are mutually
// exclusive: at most one of the two is doing work at any instant.
const (
	stateConnecting sessionState = iota
	stateStreaming
	statePolling
	stateClosed
)

// String toString function
func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case statePolling:
		return "polling"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("state-%d", int(s))
}

// streamSession one active subscription. Owns the push socket (if any), the
// pending timers (if any), and the subscription ID map.
type streamSession struct {
	common.Component
	client       *streamClientImpl
	deviceIDs    []string
	onMessage    MessageHandlerCB
	onError      AlertOnErrorCB
	onAuthError  AlertOnErrorCB
	pollInterval time.Duration

	lock          sync.Mutex
	state         sessionState
	subscriptions map[int]string
	conn          Conn
	fallbackTimer *time.Timer
	pollTimer     *time.Timer
	errCount      int
}

// newSession create and start a stream session. Nil when deviceIDs is empty.
func (c *streamClientImpl) newSession(
	deviceIDs []string, onMessage MessageHandlerCB, opts SubscribeOptions,
) *streamSession {
	if len(deviceIDs) == 0 {
		log.WithFields(c.LogTags).Debug("Ignoring subscribe request with no device IDs")
		return nil
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Duration(c.config.PollIntervalMS) * time.Millisecond
	}
	logTags := log.Fields{
		"module":    "telemetry",
		"component": "stream-session",
		"instance":  uuid.New().String(),
		"devices":   len(deviceIDs),
	}
	session := &streamSession{
		Component:    common.Component{LogTags: logTags},
		client:       c,
		deviceIDs:    append([]string{}, deviceIDs...),
		onMessage:    onMessage,
		onError:      opts.OnError,
		onAuthError:  opts.OnAuthError,
		pollInterval: pollInterval,
		state:        stateConnecting,
	}
	if opts.DisableRealtime {
		session.startPolling()
	} else {
		go session.connect(opts.Token)
	}
	return session
}

// alertError forward a transport error to the caller's side channel
func (s *streamSession) alertError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// alertAuthError forward an authentication failure to the caller's side channel
func (s *streamSession) alertAuthError(err error) {
	if s.onAuthError != nil {
		s.onAuthError(err)
	}
}

// connect attempt the push transport upgrade. Failures never propagate; they
// degrade the session to polling.
func (s *streamSession) connect(preFetchedToken string) {
	token := preFetchedToken
	if token == "" {
		fetched, err := s.client.tokens.SessionToken(s.client.rootContext)
		if err != nil {
			log.WithError(err).WithFields(s.LogTags).Error("Push credential fetch failed")
			s.alertAuthError(err)
			s.alertError(err)
			s.startPolling()
			return
		}
		token = fetched
	}

	baseURL := s.client.config.WSBaseURL
	endpoint, err := buildPushEndpoint(baseURL, token)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Unable to build push endpoint")
		s.alertError(err)
		s.startPolling()
		return
	}

	// The grace timer runs while the connection attempt is in flight. If the
	// session has not reached streaming before it fires, polling wins.
	grace := time.Duration(s.client.config.FallbackGraceSec) * time.Second
	s.lock.Lock()
	if s.state != stateConnecting {
		s.lock.Unlock()
		return
	}
	s.fallbackTimer = time.AfterFunc(grace, s.fallbackGraceExpired)
	s.lock.Unlock()

	conn, err := s.client.dial(s.client.rootContext, endpoint)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Push transport connect failed")
		s.alertError(err)
		s.startPolling()
		return
	}
	s.handleOpened(conn)
}

// handleOpened transition to streaming once the push socket opens. The grace
// timer and this handler race; whichever fires first wins and the loser's
// side effects are no-ops.
func (s *streamSession) handleOpened(conn Conn) {
	s.lock.Lock()
	if s.state != stateConnecting {
		// Lost the race against the grace timer or teardown
		s.lock.Unlock()
		_ = conn.Close()
		return
	}
	if s.fallbackTimer != nil {
		s.fallbackTimer.Stop()
		s.fallbackTimer = nil
	}
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	s.state = stateStreaming
	s.conn = conn
	s.subscriptions = make(map[int]string)
	request := subscribeRequest{
		TsSubCmds:   make([]tsSubCmd, 0, len(s.deviceIDs)),
		HistoryCmds: []interface{}{},
		AttrSubCmds: []interface{}{},
	}
	for idx, deviceID := range s.deviceIDs {
		cmdID := idx + 1
		s.subscriptions[cmdID] = deviceID
		request.TsSubCmds = append(request.TsSubCmds, tsSubCmd{
			EntityType: "DEVICE",
			EntityID:   deviceID,
			Scope:      "LATEST_TELEMETRY",
			CmdID:      cmdID,
		})
	}
	s.lock.Unlock()

	log.WithFields(s.LogTags).Info("Push transport open, subscribing")
	if err := conn.WriteJSON(&request); err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Subscription request failed")
		s.alertError(err)
		s.handleSocketClosed(err)
		return
	}
	go s.readLoop(conn)
}

// fallbackGraceExpired the connection attempt took too long; abandon it
func (s *streamSession) fallbackGraceExpired() {
	s.lock.Lock()
	if s.state != stateConnecting {
		s.lock.Unlock()
		return
	}
	s.fallbackTimer = nil
	s.lock.Unlock()
	log.WithFields(s.LogTags).Warn("Push transport upgrade timed out")
	s.startPolling()
}

// readLoop pump inbound frames until the socket dies
func (s *streamSession) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleSocketClosed(err)
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame dispatch one inbound push frame by shape
func (s *streamSession) handleFrame(data []byte) {
	frame, err := parseWireFrame(data)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Discarding malformed frame")
		s.alertError(err)
		return
	}

	if frame.SubscriptionID != nil {
		s.lock.Lock()
		deviceID, known := s.subscriptions[*frame.SubscriptionID]
		s.lock.Unlock()
		if !known {
			log.WithFields(s.LogTags).Debugf(
				"Discarding frame for unknown subscription %d", *frame.SubscriptionID,
			)
			return
		}
		s.onMessage(Envelope{
			SubscriptionID: frame.SubscriptionID,
			EntityID:       deviceID,
			Data:           frame.Data,
		})
		return
	}

	if frame.isErrorNotice() {
		notice := fmt.Errorf("push transport error: %s", frame.errorText())
		log.WithError(notice).WithFields(s.LogTags).Error("Server reported error")
		s.alertError(notice)
		if s.client.isAuthError(frame.ErrorCode, frame.errorText()) {
			s.alertAuthError(notice)
		}
		return
	}

	if frame.Type == frameTypeTelemetry {
		for _, envelope := range frame.Payload {
			s.onMessage(envelope)
		}
	}
}

// handleSocketClosed the push socket died; fall back to polling unless the
// stream was explicitly torn down
func (s *streamSession) handleSocketClosed(err error) {
	s.lock.Lock()
	if s.conn == nil || s.state == stateClosed {
		s.lock.Unlock()
		return
	}
	s.conn = nil
	s.subscriptions = nil
	s.lock.Unlock()

	code, message := closeInfo(err)
	log.WithError(err).WithFields(s.LogTags).Warnf("Push transport closed [%d]", code)
	if s.client.isAuthError(code, message) {
		s.alertAuthError(err)
	}
	s.startPolling()
}

// startPolling transition to the polling state and schedule an immediate
// first cycle. No-op when the session is already polling or closed.
func (s *streamSession) startPolling() {
	s.lock.Lock()
	if s.state == stateClosed || s.state == statePolling {
		s.lock.Unlock()
		return
	}
	if s.fallbackTimer != nil {
		s.fallbackTimer.Stop()
		s.fallbackTimer = nil
	}
	s.state = statePolling
	s.errCount = 0
	s.pollTimer = time.AfterFunc(0, s.pollCycle)
	s.lock.Unlock()
	log.WithFields(s.LogTags).Info("Entering polling state")
}

// pollCycle one bulk fetch cycle. Failures never stop the loop; they only
// slow it via backoff.
func (s *streamSession) pollCycle() {
	s.lock.Lock()
	if s.state != statePolling {
		s.lock.Unlock()
		return
	}
	s.pollTimer = nil
	deviceIDs := s.deviceIDs
	s.lock.Unlock()

	if s.client.rootContext.Err() != nil {
		log.WithFields(s.LogTags).Info("Root context gone, stopping poll loop")
		s.teardown()
		return
	}

	startedAt := time.Now()
	details, err := s.client.fetcher.FetchDetails(
		s.client.rootContext, deviceIDs, DetailQuery{
			IncludeHistory: false,
			TelemetryKeys:  s.client.config.Keys,
		},
	)
	elapsed := time.Since(startedAt)
	threshold := time.Duration(s.client.config.SlowResponseThresholdMS) * time.Millisecond
	if elapsed > threshold {
		log.WithFields(s.LogTags).Warnf("Slow poll cycle: %s", elapsed)
	}

	s.lock.Lock()
	if s.state != statePolling {
		// Torn down while the fetch was in flight
		s.lock.Unlock()
		return
	}
	if err != nil {
		if s.errCount < s.client.config.Backoff.MaxRetries {
			s.errCount++
		}
	} else {
		s.errCount = 0
	}
	delay := ResolveIntervalWithBackoff(s.pollInterval, s.errCount, s.client.config.Backoff)
	s.pollTimer = time.AfterFunc(delay, s.pollCycle)
	s.lock.Unlock()

	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Bulk detail fetch failed")
		s.alertError(err)
		return
	}
	for _, detail := range details {
		s.onMessage(Envelope{EntityID: detail.DeviceID, Data: detail.Telemetry})
	}
}

// teardown release the session's resources. Safe to call multiple times and
// from any state.
func (s *streamSession) teardown() {
	s.lock.Lock()
	if s.state == stateClosed {
		s.lock.Unlock()
		return
	}
	previous := s.state
	s.state = stateClosed
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	if s.fallbackTimer != nil {
		s.fallbackTimer.Stop()
		s.fallbackTimer = nil
	}
	conn := s.conn
	s.conn = nil
	subIDs := make([]int, 0, len(s.subscriptions))
	for subID := range s.subscriptions {
		subIDs = append(subIDs, subID)
	}
	s.subscriptions = nil
	s.lock.Unlock()

	log.WithFields(s.LogTags).Infof("Stream closed from %s state", previous)
	if conn == nil {
		return
	}
	if len(subIDs) > 0 {
		// Best effort; the socket may already be dead
		sort.Ints(subIDs)
		request := unsubscribeRequest{TsUnsubCmds: make([]tsUnsubCmd, 0, len(subIDs))}
		for _, subID := range subIDs {
			request.TsUnsubCmds = append(request.TsUnsubCmds, tsUnsubCmd{SubscriptionID: subID})
		}
		if err := conn.WriteJSON(&request); err != nil {
			log.WithError(err).WithFields(s.LogTags).Debug("Unsubscribe request failed")
		}
	}
	_ = conn.Close()
}
