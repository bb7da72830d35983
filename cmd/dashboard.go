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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rangelab/rangehub/apis"
	"github.com/rangelab/rangehub/common"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunDashboardServer run the dashboard server
func RunDashboardServer(
	runTimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "dashboard",
		"instance":  instance,
	}

	dashboardConfig := config.Dashboard

	pipeline, err := startTelemetryPipeline(runTimeContext, config, instance, wg)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start telemetry pipeline")
		return err
	}
	defer pipeline.stop()

	authenticator, err := apis.GetAPIAuthenticator(dashboardConfig.Auth)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define authenticator")
		return err
	}

	localCtxt, lclCancel := context.WithCancel(runTimeContext)
	defer lclCancel()

	restHandler, err := apis.GetAPIRestDashboardHandler(
		pipeline.store, authenticator, pipeline.cloud, dashboardConfig.HTTPSetting,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define HTTP handler")
		return err
	}
	liveHandler, err := apis.GetAPIRestLiveHandler(
		localCtxt, pipeline.hub, pipeline.store, authenticator, dashboardConfig.HTTPSetting,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define live feed handler")
		return err
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(
		router, dashboardConfig.Endpoints.PathPrefix, nil,
	)

	// Login
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/login", map[string]http.HandlerFunc{
		"post": restHandler.LoginHandler(),
	})

	// Room management
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/room", map[string]http.HandlerFunc{
		"post": restHandler.CreateRoomHandler(),
		"get":  restHandler.ListRoomsHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/room/{roomID}", map[string]http.HandlerFunc{
		"get":    restHandler.GetRoomHandler(),
		"put":    restHandler.UpdateRoomHandler(),
		"delete": restHandler.DeleteRoomHandler(),
	})

	// Target management
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/target", map[string]http.HandlerFunc{
		"post": restHandler.CreateTargetHandler(),
		"get":  restHandler.ListTargetsHandler(),
	})
	_ = apis.RegisterPathPrefix(
		mainRouter, "/v1/target/{targetID}", map[string]http.HandlerFunc{
			"get":    restHandler.GetTargetHandler(),
			"put":    restHandler.UpdateTargetHandler(),
			"delete": restHandler.DeleteTargetHandler(),
		},
	)

	// Game management
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/game", map[string]http.HandlerFunc{
		"post": restHandler.CreateGameHandler(),
		"get":  restHandler.ListGamesHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/game/{gameID}", map[string]http.HandlerFunc{
		"get":    restHandler.GetGameHandler(),
		"put":    restHandler.UpdateGameHandler(),
		"delete": restHandler.DeleteGameHandler(),
	})

	// Session tracking
	_ = apis.RegisterPathPrefix(mainRouter, "/v1/session", map[string]http.HandlerFunc{
		"post": restHandler.StartSessionHandler(),
		"get":  restHandler.ListSessionsHandler(),
	})
	sessionRouter := apis.RegisterPathPrefix(
		mainRouter, "/v1/session/{sessionID}", map[string]http.HandlerFunc{
			"get": restHandler.GetSessionHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(sessionRouter, "/stop", map[string]http.HandlerFunc{
		"post": restHandler.StopSessionHandler(),
	})
	_ = apis.RegisterPathPrefix(sessionRouter, "/hit", map[string]http.HandlerFunc{
		"post": restHandler.RecordHitHandler(),
		"get":  restHandler.ListHitsHandler(),
	})
	_ = apis.RegisterPathPrefix(sessionRouter, "/summary", map[string]http.HandlerFunc{
		"get": restHandler.GetSessionSummaryHandler(),
	})

	// Live telemetry feed
	_ = apis.RegisterPathPrefix(
		mainRouter, "/v1/live/room/{roomID}", map[string]http.HandlerFunc{
			"get": liveHandler.RoomFeedHandler(),
		},
	)

	// Health check
	_ = apis.RegisterPathPrefix(mainRouter, "/alive", map[string]http.HandlerFunc{
		"get": restHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/ready", map[string]http.HandlerFunc{
		"get": restHandler.ReadyHandler(),
	})

	// Add logging
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(restHandler, next)
	})

	serverConfig := dashboardConfig.HTTPSetting.Server
	serverListen := fmt.Sprintf("%s:%d", serverConfig.ListenOn, serverConfig.Port)
	httpSrv := &http.Server{
		Addr:         serverListen,
		ReadTimeout:  time.Second * time.Duration(serverConfig.ReadTimeout),
		WriteTimeout: time.Second * time.Duration(serverConfig.WriteTimeout),
		IdleTimeout:  time.Second * time.Duration(serverConfig.IdleTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	// Cancel runtime context on shutdown
	httpSrv.RegisterOnShutdown(lclCancel)

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)

	// ============================================================================

	<-runTimeContext.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
