package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kart-io/relayhub/observability"
	"github.com/kart-io/relayhub/pkg/config"
	relayerrors "github.com/kart-io/relayhub/pkg/errors"
	"github.com/kart-io/relayhub/pkg/platforms/telegram"
	"github.com/kart-io/relayhub/pkg/relay"
)

type stubProcessor struct {
	mu    sync.Mutex
	body  []byte
	addr  string
	calls int
	err   error
}

func (s *stubProcessor) Process(_ context.Context, body []byte, clientAddr string) (*relay.Acknowledgement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.body = body
	s.addr = clientAddr
	if s.err != nil {
		return nil, s.err
	}
	return &relay.Acknowledgement{Success: true, SubmissionID: "sub-1", Status: "delivered"}, nil
}

func newTestServer(t *testing.T, p *stubProcessor, maxBody int64) *httptest.Server {
	t.Helper()
	srv := NewServer(Config{MaxBodyBytes: maxBody}, p, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_PostBothPaths(t *testing.T) {
	p := &stubProcessor{}
	ts := newTestServer(t, p, 1024)

	for _, path := range []string{TelegramPath, SubmissionsPath} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(`{"mobile":"1"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

		out := decode(t, resp)
		assert.Equal(t, true, out["success"])
		assert.Equal(t, "sub-1", out["submissionId"])
	}
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, `{"mobile":"1"}`, string(p.body))
	assert.Equal(t, "127.0.0.1", p.addr)
}

func TestServer_ForwardedClientAddr(t *testing.T) {
	p := &stubProcessor{}
	ts := newTestServer(t, p, 1024)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+TelegramPath, strings.NewReader(`{}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "203.0.113.7", p.addr)
}

func TestServer_GetReturnsStatus(t *testing.T) {
	p := &stubProcessor{}
	ts := newTestServer(t, p, 1024)

	resp, err := http.Get(ts.URL + TelegramPath)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, TelegramPath, out["endpoint"])
	assert.Zero(t, p.calls)
}

func TestServer_Preflight(t *testing.T) {
	p := &stubProcessor{}
	ts := newTestServer(t, p, 1024)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+SubmissionsPath, nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "86400", resp.Header.Get("Access-Control-Max-Age"))
	assert.Zero(t, p.calls)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	p := &stubProcessor{}
	ts := newTestServer(t, p, 1024)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req, _ := http.NewRequest(method, ts.URL+TelegramPath, strings.NewReader(`{}`))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
		assert.Contains(t, resp.Header.Get("Allow"), "POST")
		out := decode(t, resp)
		assert.Equal(t, false, out["success"])
	}
	assert.Zero(t, p.calls)
}

func TestServer_BodyTooLarge(t *testing.T) {
	p := &stubProcessor{}
	ts := newTestServer(t, p, 16)

	resp, err := http.Post(ts.URL+TelegramPath, "application/json", strings.NewReader(`{"mobile":"12345678901234567890"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, string(relayerrors.ErrBodyTooLarge), out["code"])
	assert.Zero(t, p.calls)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"malformed", relayerrors.New(relayerrors.ErrMalformedInput, "invalid JSON in request body"), http.StatusBadRequest, "INP001"},
		{"missing config", relayerrors.New(relayerrors.ErrConfigurationMissing, "server configuration missing"), http.StatusInternalServerError, "CON002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubProcessor{err: tt.err}, 1024)
			resp, err := http.Post(ts.URL+TelegramPath, "application/json", strings.NewReader(`x`))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			out := decode(t, resp)
			assert.Equal(t, tt.code, out["code"])
			assert.Equal(t, false, out["success"])
		})
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	p := &stubProcessor{}
	ts := newTestServer(t, p, 1024)

	resp, err := http.Post(ts.URL+TelegramPath, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + HealthPath)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode(t, resp)["status"])

	resp, err = http.Get(ts.URL + MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `relayhub_http_requests_total{method="POST",route="/api/telegram",status="200"} 1`)
	assert.Contains(t, string(body), "relayhub_http_request_duration_seconds")
}

func TestServer_PipelineMetricsOnSharedRegistry(t *testing.T) {
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer bot.Close()

	cfg, err := config.New(config.WithTestDefaults(), config.WithTelegramAPI(bot.URL))
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	reader, err := observability.NewPrometheusReader(registry)
	require.NoError(t, err)
	telemetry, err := observability.NewTelemetryProvider(cfg.Telemetry, observability.WithMetricReader(reader))
	require.NoError(t, err)
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	svc := relay.NewService(cfg, telegram.NewSender(telegram.OptionsFromConfig(cfg), nil), relay.WithTelemetry(telemetry))
	serverCfg := ConfigFromService(cfg)
	serverCfg.Registry = registry
	srv := NewServer(serverCfg, svc, nil)
	assert.Same(t, registry, srv.Registry())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+TelegramPath, "application/json", strings.NewReader(`{"mobile":"9876543210","photo":false}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "relayhub_submissions")
	assert.Contains(t, string(body), "relayhub_deliveries")
	assert.Contains(t, string(body), "relayhub_http_requests_total")
}

func TestServer_EndToEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer bot.Close()

	cfg, err := config.New(config.WithTestDefaults(), config.WithTelegramAPI(bot.URL))
	require.NoError(t, err)
	svc := relay.NewService(cfg, telegram.NewSender(telegram.OptionsFromConfig(cfg), nil))
	ts := httptest.NewServer(NewServer(ConfigFromService(cfg), svc, nil).Handler())
	defer ts.Close()

	body := `{"mobile":"9876543210","operator":"Jio","location":{"status":"Permission Denied"},"photo":false}`
	resp, err := http.Post(ts.URL+TelegramPath, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, true, out["success"])
	capture := out["capture"].(map[string]any)
	assert.Equal(t, "absent", capture["attachment"])
	assert.Equal(t, "denied", capture["location"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/bottest-token/sendMessage"}, paths)
}
