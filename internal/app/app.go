// Package app wires all Lotusvoice subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithTools, WithMetrics, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/blacklotus-ai/lotusvoice/internal/config"
	"github.com/blacklotus-ai/lotusvoice/internal/health"
	"github.com/blacklotus-ai/lotusvoice/internal/observe"
	"github.com/blacklotus-ai/lotusvoice/internal/telephony"
	"github.com/blacklotus-ai/lotusvoice/internal/tools"
	"github.com/blacklotus-ai/lotusvoice/internal/tools/reservations"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/stt"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/tts"
)

// shutdownTimeout bounds the HTTP server drain when the run context ends.
const shutdownTimeout = 10 * time.Second

// Version is the service version reported on the status endpoint.
// Overridden at build time with -ldflags "-X .../internal/app.Version=v1.2.3".
var Version = "dev"

// Providers holds one interface value per provider slot. All three are
// required; a voice call cannot run without transcription, a model, and
// synthesis. Populated by main.go via the config registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes: the call manager, the tool registry, and
// the HTTP server that carries both the Twilio webhook and the media stream.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	registry  *tools.Registry
	calls     *CallManager
	handler   http.Handler
	logLevel  *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTools injects a tool registry instead of building the reservation tools
// from config.
func WithTools(r *tools.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects a metrics instance instead of using the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the level var backing the process logger so
// config reloads can adjust verbosity at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm, and tts providers are all required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initTools(); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	a.calls = NewCallManager(CallManagerConfig{
		Providers: providers,
		Tools:     a.registry,
		Metrics:   a.metrics,
		Agent:     cfg.Agent,
		Session:   cfg.Session,
		Voice:     cfg.Providers.TTS.Model,
	})
	a.closers = append(a.closers, a.calls.CloseAll)

	a.handler = a.buildHandler()
	return a, nil
}

// initTools builds the reservation tool set unless a registry was injected.
// A missing desk URL leaves the agent without tools; it can still converse.
func (a *App) initTools() error {
	if a.registry != nil {
		return nil
	}
	a.registry = tools.NewRegistry()

	deskURL := a.cfg.Agent.ReservationDeskURL
	if deskURL == "" {
		slog.Warn("no reservation desk configured, agent runs without tools")
		return nil
	}
	desk, err := reservations.NewClient(deskURL)
	if err != nil {
		return err
	}
	a.registry.Register(desk.Tools()...)
	slog.Info("reservation tools registered", "desk_url", deskURL)
	return nil
}

// buildHandler assembles the HTTP surface: the Twilio webhook, the media
// stream websocket, health probes, and the Prometheus scrape endpoint. All
// routes run through the observability middleware.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	// Twilio fetches the webhook with GET or POST depending on the number's
	// configuration, so the route carries no method restriction.
	webhookPath := a.cfg.Server.WebhookPath
	if webhookPath == "" {
		webhookPath = telephony.WebhookPath
	}
	mux.Handle(webhookPath, telephony.WebhookHandler(slog.Default()))
	mux.Handle(telephony.StreamPath, telephony.NewBridge(a.calls.CreateSession, slog.Default()))

	var checkers []health.Checker
	for kind, entry := range map[string]config.ProviderEntry{
		"stt_credentials": a.cfg.Providers.STT,
		"llm_credentials": a.cfg.Providers.LLM,
		"tts_credentials": a.cfg.Providers.TTS,
	} {
		var err error
		if entry.APIKey == "" {
			err = fmt.Errorf("provider %q has no api key", entry.Name)
		}
		checkers = append(checkers, health.Static(kind, err))
	}
	if url := a.cfg.Agent.ReservationDeskURL; url != "" {
		checkers = append(checkers, health.Endpoint("reservation_desk", url, nil))
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", a.handleStatus)

	return observe.Middleware(a.metrics)(mux)
}

// handleStatus reports the service identity and configured providers. Handy
// as a smoke check after deploys.
func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": "lotusvoice",
		"version": Version,
		"providers": map[string]string{
			"stt": a.cfg.Providers.STT.Name,
			"llm": a.cfg.Providers.LLM.Name,
			"tts": a.cfg.Providers.TTS.Name,
		},
	})
}

// Handler returns the app's HTTP handler. Primarily useful in tests.
func (a *App) Handler() http.Handler { return a.handler }

// Calls returns the call manager.
func (a *App) Calls() *CallManager { return a.calls }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and
// returns the context error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tlsCfg := a.cfg.Server.TLS; tlsCfg != nil {
			slog.Info("listening", "addr", srv.Addr, "tls", true)
			err = srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			slog.Info("listening", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			slog.Warn("http server drain error", "err", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a new config: log level,
// agent persona, and session tuning. Provider changes are reported but need a
// restart to take effect. In-flight calls keep their settings; changes apply
// to calls started afterwards.
func (a *App) ApplyConfig(new *config.Config) {
	d := config.Diff(a.cfg, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AgentChanged || d.SessionChanged {
		a.calls.UpdateConfig(new.Agent, new.Session)
		slog.Info("agent configuration reloaded", "active_calls", a.calls.Count())
	}
	if d.ProvidersChanged {
		slog.Warn("provider configuration changed, restart required to apply")
	}

	a.cfg = new
}

// slogLevel maps a config log level to its slog equivalent.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
