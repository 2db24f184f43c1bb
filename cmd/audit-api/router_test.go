package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/wms-audit-api/internal/models"
	"github.com/noah-isme/wms-audit-api/internal/service"
	"github.com/noah-isme/wms-audit-api/pkg/config"
)

type testEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *struct{ Code string } `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

type testServer struct {
	router *gin.Engine
	deps   routerDeps
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:       "test",
		APIPrefix: "/api/v1",
		JWT:       config.JWTConfig{Secret: "router-test-secret"},
		Flags: config.FlagsConfig{
			Source:           config.SourceFixture,
			RecoveryCheckTTL: time.Minute,
		},
		HHD:        config.HHDConfig{Source: config.SourceFixture},
		AuditTrail: config.AuditTrailConfig{Workers: 1, Retries: 1, RetryDelay: time.Millisecond},
	}
	deps, cleanup, err := wire(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	deps.audit.Start(context.Background())
	t.Cleanup(func() {
		deps.audit.Stop()
		cleanup()
	})
	return &testServer{router: newRouter(cfg, zap.NewNop(), deps), deps: deps}
}

func (s *testServer) token(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	token, _, err := s.deps.auth.IssueToken(userID, role, "7")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var envelope testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope
}

func TestRouterHealthAndAuth(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/audit/flags", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/audit/flags", srv.token(t, "auditor-1", models.RoleAuditor), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterFlagResolutionFlow(t *testing.T) {
	srv := newTestServer(t)
	supervisor := srv.token(t, "sup-1", models.RoleSupervisor)

	rec, envelope := srv.do(t, http.MethodGet, "/api/v1/audit/flags", supervisor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &list))
	assert.Equal(t, 7, list.Total)
	assert.Equal(t, true, envelope.Meta["degraded"])
	assert.Equal(t, service.DegradedWarning, envelope.Meta["warning"])

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/audit/flags/1/resolve", supervisor, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/audit/flags/1/resolve", supervisor, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ILLEGAL_STATE", envelope.Error.Code)

	rec, envelope = srv.do(t, http.MethodGet, "/api/v1/audit/flags/2/recovery-check", supervisor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var check models.RecoveryCheck
	require.NoError(t, json.Unmarshal(envelope.Data, &check))
	assert.Equal(t, 7, check.RecoveryQty)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/audit/flags/export?format=csv", supervisor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, rec.Body.String(), "Flag ID")
}

func TestRouterHHDWalkthroughStart(t *testing.T) {
	srv := newTestServer(t)
	auditor := srv.token(t, "auditor-1", models.RoleAuditor)

	rec, envelope := srv.do(t, http.MethodGet, "/api/v1/hhd/session", auditor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Session models.StepperSnapshot `json:"session"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &resp))
	assert.Equal(t, models.StepStartTask, resp.Session.Step)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/hhd/start", auditor, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/hhd/rack/scan", auditor, `{"barcode":"R3"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(envelope.Data, &resp))
	assert.Equal(t, models.StepScanRack, resp.Session.Step)

	rec, envelope = srv.do(t, http.MethodPost, "/api/v1/hhd/rack/scan", auditor, `{"barcode":"r1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(envelope.Data, &resp))
	assert.Equal(t, models.StepScanBox, resp.Session.Step)
}
