package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/config"
	"github.com/raaihank/logmask/internal/logger"
	"github.com/raaihank/logmask/internal/masking"
	"github.com/raaihank/logmask/internal/stats"
	"github.com/raaihank/logmask/internal/websocket"
)

type fakeCounters struct {
	findings []masking.Finding
	snapshot *stats.Snapshot
	err      error
}

func (f *fakeCounters) RecordFindings(_ context.Context, findings []masking.Finding) error {
	f.findings = append(f.findings, findings...)
	return f.err
}

func (f *fakeCounters) Snapshot(context.Context) (*stats.Snapshot, error) {
	return f.snapshot, f.err
}

func newTestServer(t *testing.T, cfg *config.Config, deps Deps) *Server {
	t.Helper()
	if deps.Masker == nil {
		deps.Masker = masking.NewMasker(nil, masking.WithMaxMessageBytes(cfg.Masking.MaxMessageBytes))
	}
	s, err := New(cfg, &logger.Logger{Logger: zap.NewNop()}, deps)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestNewRequiresMasker(t *testing.T) {
	_, err := New(config.GetDefaults(), &logger.Logger{Logger: zap.NewNop()}, Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.GetDefaults(), Deps{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, config.GetDefaults(), Deps{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]interface{}
	decode(t, rec, &info)
	assert.Equal(t, "logmask", info["name"])
	assert.Equal(t, "closed", info["fail_mode"])
	assert.EqualValues(t, masking.DefaultActiveSet().Len(), info["rules"])
}

func TestMask(t *testing.T) {
	counters := &fakeCounters{}
	s := newTestServer(t, config.GetDefaults(), Deps{Hits: counters})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", map[string]string{
		"message": "call 010-1234-5678 or mail user@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp maskResponse
	decode(t, rec, &resp)
	assert.Equal(t, "call 010-****-5678 or mail us****@example.com", resp.Masked)
	require.Len(t, resp.Findings, 2)
	assert.Equal(t, masking.Partial, resp.Findings[0].Strategy)
	assert.Equal(t, masking.Email, resp.Findings[1].Strategy)
	assert.Len(t, counters.findings, 2)
	assert.NotContains(t, rec.Body.String(), "1234")
}

func TestMaskKeepsRequestID(t *testing.T) {
	s := newTestServer(t, config.GetDefaults(), Deps{})

	req := httptest.NewRequest(http.MethodPost, "/v1/mask", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestMaskRecorderFailureDoesNotFailRequest(t *testing.T) {
	counters := &fakeCounters{err: errors.New("redis down")}
	s := newTestServer(t, config.GetDefaults(), Deps{Hits: counters})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", map[string]string{"message": "pwd=hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WARNING")
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestMaskBadRequest(t *testing.T) {
	s := newTestServer(t, config.GetDefaults(), Deps{})

	req := httptest.NewRequest(http.MethodPost, "/v1/mask", strings.NewReader(`{"message":`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/mask", strings.NewReader(`{"msg":"x"}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMaskDisabled(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Masking.Enabled = false
	s := newTestServer(t, cfg, Deps{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", map[string]string{"message": "call 010-1234-5678"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp maskResponse
	decode(t, rec, &resp)
	assert.Equal(t, "call 010-1234-5678", resp.Masked)
	assert.Empty(t, resp.Findings)
}

func TestMaskFailModes(t *testing.T) {
	failing := func(t *testing.T) *masking.Masker {
		m := masking.NewMasker(nil)
		require.NoError(t, m.Reload([]string{`ID:\d+:PARTIAL:2-2`}))
		return m
	}

	t.Run("closed", func(t *testing.T) {
		s := newTestServer(t, config.GetDefaults(), Deps{Masker: failing(t)})

		rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", map[string]string{"message": "id 123"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.NotContains(t, rec.Body.String(), "123")
	})

	t.Run("open", func(t *testing.T) {
		cfg := config.GetDefaults()
		cfg.Masking.FailMode = "open"
		s := newTestServer(t, cfg, Deps{Masker: failing(t)})

		rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", map[string]string{"message": "id 123"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp maskResponse
		decode(t, rec, &resp)
		assert.Equal(t, "id 123", resp.Masked)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("too large", func(t *testing.T) {
		cfg := config.GetDefaults()
		cfg.Masking.MaxMessageBytes = 8
		s := newTestServer(t, cfg, Deps{})

		rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", map[string]string{"message": "0123456789"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestMaskBatch(t *testing.T) {
	m := masking.NewMasker(nil)
	require.NoError(t, m.Reload([]string{"EMAIL:NONE", `ID:id \d+:PARTIAL:2-2`}))
	s := newTestServer(t, config.GetDefaults(), Deps{Masker: m})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask/batch", map[string][]string{
		"messages": {"call 010-1234-5678", "id 12", "mail a@b.io"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "call 010-****-5678", resp.Results[0].Masked)
	assert.Equal(t, masking.FailedText, resp.Results[1].Masked)
	assert.NotEmpty(t, resp.Results[1].Error)
	assert.Equal(t, "mail a@b.io", resp.Results[2].Masked)
	assert.Empty(t, resp.Results[2].Error)
}

func TestMaskBatchTooLarge(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Server.MaxBatchSize = 2
	s := newTestServer(t, cfg, Deps{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/v1/mask/batch", map[string][]string{
		"messages": {"a", "b", "c"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func adminConfig() *config.Config {
	cfg := config.GetDefaults()
	cfg.Server.AdminUsername = "admin"
	cfg.Server.AdminPassword = "s3cret"
	return cfg
}

func postReload(t *testing.T, h http.Handler, options []string, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string][]string{"options": options})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/rules/reload", bytes.NewReader(body))
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReloadRequiresAdminCredentials(t *testing.T) {
	card := map[string]string{"message": "card 1234-5678-9012-3456"}

	t.Run("disabled without configured credentials", func(t *testing.T) {
		s := newTestServer(t, config.GetDefaults(), Deps{})

		rec := postReload(t, s.Handler(), []string{"CARD_NUMBER:NONE"}, "", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", card)
		assert.NotContains(t, rec.Body.String(), "1234-5678-9012-3456")
	})

	t.Run("missing credentials", func(t *testing.T) {
		s := newTestServer(t, adminConfig(), Deps{})

		rec := postReload(t, s.Handler(), []string{"CARD_NUMBER:NONE"}, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

		rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", card)
		assert.NotContains(t, rec.Body.String(), "1234-5678-9012-3456")
	})

	t.Run("wrong password", func(t *testing.T) {
		s := newTestServer(t, adminConfig(), Deps{})

		rec := postReload(t, s.Handler(), []string{"CARD_NUMBER:NONE"}, "admin", "guess")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRulesAndReload(t *testing.T) {
	s := newTestServer(t, adminConfig(), Deps{})

	rec := postReload(t, s.Handler(), []string{"PHONE:NONE", "BOGUS", `ORDER:ORD-\d{6}:PARTIAL:4-0`}, "admin", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)

	var reload reloadResponse
	decode(t, rec, &reload)
	assert.Equal(t, masking.DefaultActiveSet().Len()+1, reload.Rules)
	require.Len(t, reload.Errors, 1)
	assert.Contains(t, reload.Errors[0], "BOGUS")

	rec = doJSON(t, s.Handler(), http.MethodGet, "/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rules struct {
		Rules []ruleView `json:"rules"`
	}
	decode(t, rec, &rules)
	require.Len(t, rules.Rules, reload.Rules)

	last := rules.Rules[len(rules.Rules)-1]
	assert.Equal(t, `ORD-\d{6}`, last.Expression)
	assert.Equal(t, masking.Partial, last.Strategy)
	assert.Equal(t, "4-0", last.Param)

	secondLast := rules.Rules[len(rules.Rules)-2]
	assert.Equal(t, masking.None, secondLast.Strategy)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/v1/mask", map[string]string{"message": "call 010-1234-5678"})
	assert.Contains(t, rec.Body.String(), "010-1234-5678")
}

func TestStats(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, config.GetDefaults(), Deps{})
		rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/stats", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("snapshot", func(t *testing.T) {
		counters := &fakeCounters{snapshot: &stats.Snapshot{
			Hits:    map[string]int64{`\d+`: 3},
			Signals: map[string]int64{"security_warning": 1},
		}}
		s := newTestServer(t, config.GetDefaults(), Deps{Counters: counters})

		rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "security_warning")
	})

	t.Run("unavailable", func(t *testing.T) {
		counters := &fakeCounters{err: errors.New("redis down")}
		s := newTestServer(t, config.GetDefaults(), Deps{Counters: counters})

		rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/stats", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 2
	s := newTestServer(t, cfg, Deps{})

	for i := 0; i < 2; i++ {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/rules", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, s.Handler(), http.MethodGet, "/v1/rules", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// health is outside the limited API
	rec = doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboardRoute(t *testing.T) {
	hub := websocket.NewHub(&websocket.HubConfig{}, zap.NewNop())
	s := newTestServer(t, config.GetDefaults(), Deps{Hub: hub})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/ws")

	without := newTestServer(t, config.GetDefaults(), Deps{})
	rec = doJSON(t, without.Handler(), http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
