// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package controlapi implements the node's HTTP control plane (spec
// §6.5): `/ping` and `/version`, plus pipeline lifecycle CRUD layered on
// top of internal/manager. Routing follows the teacher's gorilla/mux +
// gorilla/handlers convention (server.go, routes.go): a router built
// once at startup, wrapped in compression/recovery/CORS middleware, with
// an additional JWT bearer-auth middleware gating every route per §6.5's
// "authentication errors return 401".
package controlapi

import (
	"encoding/json"
	"net/http"
	"strings"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenzir/pipeline-core/internal/manager"
)

// Version is the node build identifier returned by /ping and /version
// (spec §6.5's exact `{"version": "..."}` payload).
var Version = "dev"

// API bundles the HTTP handlers against one node's pipeline manager.
type API struct {
	Manager               *manager.Manager
	DisableAuthentication bool
	JWTSigningKey         string

	// PrometheusGatherer is where pkg/tenzir/metrics' buffer-stats
	// Exporter registers its gauge vectors; /metrics serves this
	// registry unauthenticated, the same scrape-friendly convention the
	// teacher uses for its own Prometheus endpoint. Nil disables the
	// route.
	PrometheusGatherer prometheus.Gatherer
}

// Router builds the fully wired *mux.Router: routes, then the
// compression/recovery/CORS/auth middleware stack, outermost last so it
// runs first per gorilla/mux's evaluation order.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ping", a.handlePing).Methods(http.MethodPost)
	r.HandleFunc("/version", a.handlePing).Methods(http.MethodPost)

	r.HandleFunc("/pipelines", a.handleListPipelines).Methods(http.MethodGet)
	r.HandleFunc("/pipelines", a.handleStartPipeline).Methods(http.MethodPost)
	r.HandleFunc("/pipelines/{id}", a.handleGetPipeline).Methods(http.MethodGet)
	r.HandleFunc("/pipelines/{id}", a.handleStopPipeline).Methods(http.MethodDelete)
	r.HandleFunc("/pipelines/{id}/cancel", a.handleCancelPipeline).Methods(http.MethodPost)

	if a.PrometheusGatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.PrometheusGatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.Use(a.authMiddleware)
	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE"}),
		handlers.AllowedOrigins([]string{"*"})))
	return r
}

// authMiddleware enforces the bearer JWT check named in spec §6.5;
// DisableAuthentication exists for local development only, mirroring the
// teacher's ProgramConfig.DisableAuthentication escape hatch.
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if a.DisableAuthentication || r.URL.Path == "/metrics" {
			next.ServeHTTP(rw, r)
			return
		}
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(rw, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(a.JWTSigningKey), nil
		})
		if err != nil {
			cclog.Warnf("controlapi: rejected request to %s: %v", r.URL.Path, err)
			writeError(rw, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (a *API) handlePing(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"version": Version})
}

type startRequest struct {
	Source string `json:"source"`
}

func (a *API) handleStartPipeline(rw http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid_argument: "+err.Error())
		return
	}
	info, err := a.Manager.Start(req.Source)
	if err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(rw, http.StatusCreated, info)
}

func (a *API) handleListPipelines(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, a.Manager.List())
}

func (a *API) handleGetPipeline(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	info, ok := a.Manager.Get(id)
	if !ok {
		writeError(rw, http.StatusNotFound, "lookup_error: no such pipeline")
		return
	}
	writeJSON(rw, http.StatusOK, info)
}

func (a *API) handleStopPipeline(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.Manager.Stop(id); err != nil {
		writeError(rw, http.StatusNotFound, err.Error())
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

func (a *API) handleCancelPipeline(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.Manager.Cancel(id); err != nil {
		writeError(rw, http.StatusNotFound, err.Error())
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

func writeJSON(rw http.ResponseWriter, status int, v interface{}) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		cclog.Errorf("controlapi: encode response: %v", err)
	}
}

func writeError(rw http.ResponseWriter, status int, message string) {
	writeJSON(rw, status, map[string]string{"error": message})
}
