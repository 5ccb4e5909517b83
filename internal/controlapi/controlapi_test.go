// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package controlapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzir/pipeline-core/internal/config"
	"github.com/tenzir/pipeline-core/internal/manager"
	"github.com/tenzir/pipeline-core/pkg/tenzir/catalog"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/metrics"
	"github.com/tenzir/pipeline-core/pkg/tenzir/pipeline"
)

func newTestAPI(t *testing.T, disableAuth bool) *API {
	t.Helper()
	m := manager.New(config.Default(), pipeline.DefaultRegistry(), expr.NewRegistry(), catalog.New(), metrics.NewRegistry(), nil)
	return &API{Manager: m, DisableAuthentication: disableAuth, JWTSigningKey: "test-secret"}
}

func TestPingRequiresAuth(t *testing.T) {
	api := newTestAPI(t, false)
	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ping", nil)
	api.Router().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestPingWithValidToken(t *testing.T) {
	api := newTestAPI(t, false)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "test"})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	api.Router().ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rw.Body).Decode(&body))
	assert.Equal(t, Version, body["version"])
}

func TestPingWithAuthDisabled(t *testing.T) {
	api := newTestAPI(t, true)
	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ping", nil)
	api.Router().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
}

func TestCreatePipelineRejectsPipelineWithoutSink(t *testing.T) {
	api := newTestAPI(t, true)

	body := `{"source": "from [{\"a\": 1}] | where a == 1 | head 1 | select a"}`
	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pipelines", strings.NewReader(body))
	api.Router().ServeHTTP(rw, req)
	require.Equal(t, http.StatusBadRequest, rw.Code, "select is a transformation, not a sink, and must fail composition")
}

func TestStopUnknownPipeline(t *testing.T) {
	api := newTestAPI(t, true)
	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/pipelines/does-not-exist", nil)
	api.Router().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestMetricsUnauthenticatedWhenWired(t *testing.T) {
	api := newTestAPI(t, false)
	api.PrometheusGatherer = prometheus.NewRegistry()

	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	api.Router().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code, "/metrics must be scrapeable without a bearer token")
}

func TestMetricsRouteAbsentWhenNotWired(t *testing.T) {
	api := newTestAPI(t, true)
	rw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	api.Router().ServeHTTP(rw, req)
	assert.Equal(t, http.StatusNotFound, rw.Code)
}
