package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blacklotus-ai/lotusvoice/internal/config"
	"github.com/blacklotus-ai/lotusvoice/internal/observe"
	"github.com/blacklotus-ai/lotusvoice/internal/session"
	"github.com/blacklotus-ai/lotusvoice/internal/telephony"
	"github.com/blacklotus-ai/lotusvoice/internal/tools"
)

// activeCall tracks one running session for bookkeeping and teardown.
type activeCall struct {
	sess      *session.Session
	callSid   string
	startedAt time.Time
}

// CallManager creates and tracks the voice session behind each telephone
// call. It implements [telephony.SessionFactory] via CreateSession. All
// exported methods are safe for concurrent use.
type CallManager struct {
	providers *Providers
	registry  *tools.Registry
	metrics   *observe.Metrics
	log       *slog.Logger

	mu      sync.Mutex
	agent   config.AgentConfig
	tuning  config.SessionConfig
	voice   string
	active  map[string]*activeCall
	closing bool
}

// CallManagerConfig holds all dependencies for a [CallManager].
type CallManagerConfig struct {
	Providers *Providers
	Tools     *tools.Registry
	Metrics   *observe.Metrics
	Agent     config.AgentConfig
	Session   config.SessionConfig
	Voice     string
	Logger    *slog.Logger
}

// NewCallManager creates a CallManager with the given dependencies.
func NewCallManager(cfg CallManagerConfig) *CallManager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CallManager{
		providers: cfg.Providers,
		registry:  cfg.Tools,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		agent:     cfg.Agent,
		tuning:    cfg.Session,
		voice:     cfg.Voice,
		active:    make(map[string]*activeCall),
	}
}

// CreateSession starts a voice session for a newly connected call. The
// session lives until ctx is cancelled (the media stream closing) or the
// pipeline fails. Satisfies [telephony.SessionFactory].
func (cm *CallManager) CreateSession(ctx context.Context, callSid string) (telephony.VoiceSession, error) {
	cm.mu.Lock()
	if cm.closing {
		cm.mu.Unlock()
		return nil, errors.New("call manager: shutting down")
	}
	sessCfg := cm.sessionConfigLocked()
	cm.mu.Unlock()

	id := uuid.NewString()
	log := cm.log.With("call_sid", callSid)
	sess := session.New(id, cm.providers.STT, cm.providers.LLM, cm.providers.TTS, cm.registry, sessCfg, log)

	if err := sess.Start(ctx); err != nil {
		return nil, fmt.Errorf("call manager: start session: %w", err)
	}

	call := &activeCall{sess: sess, callSid: callSid, startedAt: time.Now()}
	cm.mu.Lock()
	cm.active[id] = call
	cm.mu.Unlock()

	cm.metrics.ActiveCalls.Add(ctx, 1)
	log.Info("call started", "session_id", id, "active", cm.Count())

	go cm.reap(id, call)
	return sess, nil
}

// reap waits for the session to end, then removes it from the active set and
// records the call outcome.
func (cm *CallManager) reap(id string, call *activeCall) {
	<-call.sess.Done()

	cm.mu.Lock()
	delete(cm.active, id)
	cm.mu.Unlock()

	ctx := context.Background()
	cm.metrics.ActiveCalls.Add(ctx, -1)

	status := "completed"
	if err := call.sess.Err(); err != nil {
		status = "failed"
		cm.log.Warn("call ended with error", "call_sid", call.callSid, "err", err)
	}
	cm.metrics.RecordCall(ctx, status, time.Since(call.startedAt).Seconds())
	cm.log.Info("call ended", "call_sid", call.callSid, "status", status,
		"duration", time.Since(call.startedAt).Round(time.Second))
}

// sessionConfigLocked builds a session config from the current agent persona
// and tuning values. Callers must hold cm.mu.
func (cm *CallManager) sessionConfigLocked() session.Config {
	return session.Config{
		Greeting:        cm.agent.Greeting,
		Instructions:    cm.agent.Instructions,
		Voice:           cm.voice,
		SampleRate:      cm.tuning.SampleRate,
		EOTThreshold:    cm.tuning.EOTThreshold,
		EOTTimeout:      time.Duration(cm.tuning.EOTTimeoutMs) * time.Millisecond,
		BargeInMinChars: cm.tuning.BargeInMinChars,
		BargeInDebounce: time.Duration(cm.tuning.BargeInDebounceMs) * time.Millisecond,
	}
}

// UpdateConfig replaces the agent persona and session tuning for calls
// started after this point. In-flight calls are not touched.
func (cm *CallManager) UpdateConfig(agent config.AgentConfig, tuning config.SessionConfig) {
	cm.mu.Lock()
	cm.agent = agent
	cm.tuning = tuning
	cm.mu.Unlock()
}

// Count returns the number of active calls.
func (cm *CallManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.active)
}

// CloseAll ends every active call and rejects new ones. Used during shutdown.
func (cm *CallManager) CloseAll() error {
	cm.mu.Lock()
	cm.closing = true
	calls := make([]*activeCall, 0, len(cm.active))
	for _, c := range cm.active {
		calls = append(calls, c)
	}
	cm.mu.Unlock()

	for _, c := range calls {
		_ = c.sess.Close()
	}
	if len(calls) > 0 {
		cm.log.Info("closed active calls", "count", len(calls))
	}
	return nil
}
