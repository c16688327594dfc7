package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blacklotus-ai/lotusvoice/internal/config"
	"github.com/blacklotus-ai/lotusvoice/internal/tools"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.ListenAddr = ":0"
	cfg.Server.LogLevel = config.LogInfo
	cfg.Providers.STT = config.ProviderEntry{Name: "deepgram", APIKey: "k"}
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai", APIKey: "k", Model: "gpt-5-nano"}
	cfg.Providers.TTS = config.ProviderEntry{Name: "deepgram", APIKey: "k", Model: "aura-2-thalia-en"}
	cfg.Agent.Greeting = "Welcome to Black Lotus Hotel."
	cfg.Agent.Instructions = "You are a hotel reservation assistant."
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	providers, _ := newTestMocks()
	a, err := New(testConfig(), providers, WithTools(tools.NewRegistry()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_RequiresAllProviders(t *testing.T) {
	t.Parallel()

	providers, _ := newTestMocks()
	providers.TTS = nil

	if _, err := New(testConfig(), providers); err == nil {
		t.Error("expected error when a provider is missing")
	}
	if _, err := New(testConfig(), nil); err == nil {
		t.Error("expected error for nil providers")
	}
}

func TestApp_HealthEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestApp_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestApp_StatusEndpoint(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/ status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Service   string            `json:"service"`
		Providers map[string]string `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if body.Service != "lotusvoice" {
		t.Errorf("service = %q", body.Service)
	}
	if body.Providers["llm"] != "openai" {
		t.Errorf("llm provider = %q", body.Providers["llm"])
	}
}

func TestApp_WebhookServesTwiML(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)

	req := httptest.NewRequest("POST", "/incoming-call", strings.NewReader("CallSid=CA123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Connect>") || !strings.Contains(body, "/ws/twilio") {
		t.Errorf("unexpected TwiML: %s", body)
	}

	// Twilio numbers configured with HTTP GET must get the same document.
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/incoming-call?CallSid=CA123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "<Connect>") {
		t.Errorf("unexpected TwiML on GET: %s", rec.Body.String())
	}
}

func TestApp_WebhookPathConfigurable(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.WebhookPath = "/twilio/voice"
	providers, _ := newTestMocks()
	a, err := New(cfg, providers, WithTools(tools.NewRegistry()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/twilio/voice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "<Connect>") {
		t.Errorf("unexpected TwiML: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/incoming-call", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("default path status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	providers, _ := newTestMocks()
	var level slog.LevelVar
	a, err := New(testConfig(), providers, WithTools(tools.NewRegistry()), WithLogLevel(&level))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Agent.Greeting = "Good evening."
	a.ApplyConfig(updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}

	a.calls.mu.Lock()
	greeting := a.calls.agent.Greeting
	a.calls.mu.Unlock()
	if greeting != "Good evening." {
		t.Errorf("call manager greeting = %q", greeting)
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	ctx := t.Context()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
