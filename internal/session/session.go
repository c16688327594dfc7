// Package session implements the per-call voice pipeline orchestrator.
//
// A Session owns one phone call: it feeds caller audio into a persistent STT
// stream, turns end-of-turn transcripts into LLM responses, synthesises the
// reply sentence by sentence over TTS, and emits the resulting PCM on its
// Output channel. The caller-facing transport (the telephony bridge) stays
// outside this package; it only moves bytes in and out.
//
// # Barge-in
//
// The caller may interrupt the agent mid-reply. Every speaking phase is
// stamped with a speak epoch; an interrupt bumps the epoch, emits a Clear
// output so the transport drops queued playback, then cancels and awaits the
// in-flight turn. Synthesised audio carrying a stale epoch is discarded
// unconditionally, so no audio from a cancelled reply can reach the caller.
// The STT stream and the LLM conversation survive interrupts; only the
// speaking turn dies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/blacklotus-ai/lotusvoice/internal/observe"
	"github.com/blacklotus-ai/lotusvoice/internal/tools"
	"github.com/blacklotus-ai/lotusvoice/pkg/audio"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/stt"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/tts"
)

// State is the session's pipeline phase.
type State int

const (
	// StateIdle means the session has not started or has ended.
	StateIdle State = iota

	// StateListening means caller audio flows to STT and no reply is active.
	StateListening

	// StateProcessing means an end-of-turn transcript is being handed to the
	// model but no audio is playing yet.
	StateProcessing

	// StateSpeaking means synthesised reply audio is streaming to the caller.
	StateSpeaking
)

// String returns the lowercase state name.
func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	}
	return "unknown"
}

// OutputKind classifies an Output value.
type OutputKind int

const (
	// OutputAudio carries a PCM chunk of synthesised speech.
	OutputAudio OutputKind = iota

	// OutputClear tells the transport to drop all queued playback
	// immediately. Emitted when the caller barges in.
	OutputClear
)

// Output is one instruction from the session to the telephony transport.
type Output struct {
	Kind OutputKind

	// Frame carries the synthesised audio for OutputAudio: linear16 mono PCM
	// at the configured sample rate, stamped with the speak epoch it was
	// produced under.
	Frame audio.Frame
}

// Config tunes a Session. Zero values fall back to the defaults noted on
// each field.
type Config struct {
	// Greeting is spoken to the caller as soon as the call starts. Empty
	// skips the greeting.
	Greeting string

	// Instructions is the system prompt applied to every model response.
	Instructions string

	// Voice selects the TTS voice model.
	Voice string

	// SampleRate is the internal PCM rate in Hz shared by STT input and TTS
	// output. Default 16000.
	SampleRate int

	// EOTThreshold and EOTTimeout tune the STT end-of-turn detector. Zero
	// values use the STT provider's defaults.
	EOTThreshold float64
	EOTTimeout   time.Duration

	// BargeInMinChars is the number of non-whitespace transcript characters
	// an interim update needs before it counts as an interruption. Default 4.
	// Filters out coughs and backchannel noises.
	BargeInMinChars int

	// BargeInDebounce suppresses repeat interrupts within this window.
	// Default 400ms.
	BargeInDebounce time.Duration

	// OutputBuffer is the Output channel depth. Default 256.
	OutputBuffer int
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.BargeInMinChars == 0 {
		c.BargeInMinChars = 4
	}
	if c.BargeInDebounce == 0 {
		c.BargeInDebounce = 400 * time.Millisecond
	}
	if c.OutputBuffer == 0 {
		c.OutputBuffer = 256
	}
}

// Session orchestrates one call. Create with New, drive with Start,
// HandleAudio, and Close. All exported methods are safe for concurrent use.
type Session struct {
	id       string
	log      *slog.Logger
	metrics  *observe.Metrics
	sttP     stt.Provider
	llmP     llm.Provider
	ttsP     tts.Provider
	registry *tools.Registry
	cfg      Config

	// epoch stamps speaking phases. Audio tagged with an older epoch is
	// dropped before it reaches the Output channel.
	epoch atomic.Uint64

	// emitMu serialises audio delivery against epoch invalidation: a frame's
	// epoch check and its send, and an interrupt's epoch bump and Clear, each
	// run as one critical section. Without it a frame that passed the check
	// could still land on the transport after the epoch advanced.
	emitMu sync.Mutex

	out  chan Output
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	state          State
	conversationID string
	sttSess        stt.SessionHandle
	turnCancel     context.CancelFunc
	turnDone       chan struct{}
	latched        bool
	lastInterrupt  time.Time
	closed         bool
	err            error

	wg sync.WaitGroup
}

// New constructs a Session. registry may be nil when no tools are offered.
func New(id string, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, registry *tools.Registry, cfg Config, logger *slog.Logger) *Session {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:       id,
		log:      logger.With("session_id", id),
		metrics:  observe.DefaultMetrics(),
		sttP:     sttP,
		llmP:     llmP,
		ttsP:     ttsP,
		registry: registry,
		cfg:      cfg,
		out:      make(chan Output, cfg.OutputBuffer),
		done:     make(chan struct{}),
	}
}

// Output returns the channel of transport instructions. The channel is never
// closed; consumers should select on Done to detect the end of the session.
func (s *Session) Output() <-chan Output { return s.out }

// Done is closed when the session has ended, whether by Close or by a fatal
// pipeline failure.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the fatal error that ended the session, or nil after a clean
// Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Epoch returns the current speak epoch. It advances on every speaking phase
// and on every interrupt.
func (s *Session) Epoch() uint64 { return s.epoch.Load() }

// State returns the current pipeline phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the persistent STT stream and begins the session. When a
// greeting is configured it plays immediately as a normal speaking phase,
// interruptible like any reply.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	sttSess, err := s.sttP.StartStream(s.ctx, stt.StreamConfig{
		SampleRate:   s.cfg.SampleRate,
		EOTThreshold: s.cfg.EOTThreshold,
		EOTTimeout:   s.cfg.EOTTimeout,
	})
	if err != nil {
		return fmt.Errorf("session: start STT stream: %w", err)
	}

	s.mu.Lock()
	s.sttSess = sttSess
	s.state = StateListening
	s.mu.Unlock()

	s.wg.Add(1)
	go s.eventLoop(sttSess)

	s.log.Info("session started")

	if s.cfg.Greeting != "" {
		s.startTurn("")
	}
	return nil
}

// HandleAudio forwards one chunk of caller PCM to the STT stream. The chunk
// must be linear16 mono at the configured sample rate.
func (s *Session) HandleAudio(pcm []byte) error {
	s.mu.Lock()
	sttSess := s.sttSess
	closed := s.closed
	s.mu.Unlock()

	if closed || sttSess == nil {
		return errors.New("session: not running")
	}
	return sttSess.SendMedia(pcm)
}

// Close ends the session: the in-flight turn is cancelled, the STT stream is
// closed, and Done is closed. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateIdle
	turnCancel := s.turnCancel
	sttSess := s.sttSess
	s.mu.Unlock()

	// Invalidate any in-flight audio before tearing the pipeline down.
	s.emitMu.Lock()
	s.epoch.Add(1)
	s.emitMu.Unlock()

	if turnCancel != nil {
		turnCancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if sttSess != nil {
		_ = sttSess.Close()
	}
	close(s.done)
	s.log.Info("session closed")
	return nil
}

// Wait blocks until all background goroutines have finished. Primarily
// useful in tests to synchronise before inspecting mock call records.
func (s *Session) Wait() {
	s.wg.Wait()
}

// ─── STT event handling ───────────────────────────────────────────────────────

// eventLoop consumes the STT event stream for the lifetime of the call.
func (s *Session) eventLoop(sttSess stt.SessionHandle) {
	defer s.wg.Done()

	for ev := range sttSess.Events() {
		switch ev.Type {
		case stt.EventConnected:
			s.log.Debug("stt connected")

		case stt.EventStartOfTurn:
			s.maybeInterrupt("start of turn")

		case stt.EventUpdate:
			if nonWhitespaceLen(ev.Transcript) >= s.cfg.BargeInMinChars {
				s.maybeInterrupt("interim transcript")
			}

		case stt.EventEndOfTurn:
			s.mu.Lock()
			s.latched = false
			s.mu.Unlock()

			text := strings.TrimSpace(ev.Transcript)
			if text == "" {
				continue
			}
			s.log.Info("turn transcript", "text", text, "confidence", ev.Confidence)
			s.startTurn(text)

		case stt.EventError:
			// Without transcription the call cannot continue.
			s.fail(fmt.Errorf("session: stt stream: %w", ev.Err))
			return
		}
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.fail(errors.New("session: stt stream ended unexpectedly"))
	}
}

// maybeInterrupt handles a potential barge-in trigger. Interrupts fire only
// while speaking, at most once per caller turn (the latch rearms on the next
// end of turn), and never twice within the debounce window.
//
// Teardown order matters: the epoch bump must precede the Clear so that any
// audio chunk racing with the interrupt is already stale by the time the
// transport's queue is flushed. invalidateSpeech provides both that order and
// atomicity against in-flight chunk delivery.
func (s *Session) maybeInterrupt(reason string) {
	s.mu.Lock()
	if s.state != StateSpeaking || s.latched || time.Since(s.lastInterrupt) < s.cfg.BargeInDebounce {
		s.mu.Unlock()
		return
	}
	s.latched = true
	s.lastInterrupt = time.Now()
	turnCancel := s.turnCancel
	turnDone := s.turnDone
	s.mu.Unlock()

	s.log.Info("barge-in", "reason", reason)
	s.metrics.RecordBargeIn(s.ctx)

	s.invalidateSpeech()
	if turnCancel != nil {
		turnCancel()
	}
	if turnDone != nil {
		<-turnDone
	}
	s.setState(StateListening)
}

// ─── Turn execution ───────────────────────────────────────────────────────────

// startTurn launches the reply for one caller turn in a fresh goroutine.
// An empty transcript means the greeting phase.
func (s *Session) startTurn(transcript string) {
	s.stopCurrentTurn()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	turnCtx, cancel := context.WithCancel(s.ctx)
	turnDone := make(chan struct{})
	s.turnCancel = cancel
	s.turnDone = turnDone
	s.state = StateProcessing
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runTurn(turnCtx, turnDone, transcript)
}

// stopCurrentTurn interrupts a still-running turn, if any. Normally the
// previous turn has already finished (or was barged in) by the time the next
// end of turn arrives; this covers short utterances that never tripped the
// barge-in threshold.
func (s *Session) stopCurrentTurn() {
	s.mu.Lock()
	turnCancel := s.turnCancel
	turnDone := s.turnDone
	s.mu.Unlock()

	if turnDone == nil {
		return
	}
	select {
	case <-turnDone:
		return
	default:
	}

	s.invalidateSpeech()
	turnCancel()
	<-turnDone
}

// runTurn produces and speaks one reply. The state always returns to
// listening when the turn ends, regardless of how it ends.
func (s *Session) runTurn(ctx context.Context, turnDone chan struct{}, transcript string) {
	defer s.wg.Done()
	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.turnCancel = nil
		s.turnDone = nil
		if !s.closed {
			s.state = StateListening
		}
		s.mu.Unlock()
		close(turnDone)
	}()

	conversationID := ""
	if transcript != "" {
		var err error
		conversationID, err = s.ensureConversation(ctx)
		if err != nil {
			s.log.Error("create conversation failed", "error", err)
			return
		}
	}

	// Every speaking phase gets its own epoch; audio from any earlier phase
	// is stale from here on.
	epoch := s.epoch.Add(1)
	handle, err := s.ttsP.OpenStream(ctx, tts.StreamConfig{
		Voice:      s.cfg.Voice,
		SampleRate: s.cfg.SampleRate,
	})
	if err != nil {
		s.log.Error("open TTS stream failed", "error", err)
		return
	}

	s.setState(StateSpeaking)

	// Forward synthesised audio, dropping frames from superseded epochs.
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		first := true
		for chunk := range handle.Audio() {
			frame := audio.Frame{
				Data:      chunk,
				Format:    audio.FormatPCM16k,
				Direction: audio.Outbound,
				Epoch:     epoch,
			}
			if !s.emitFrame(frame) {
				s.metrics.StaleAudioDropped.Add(s.ctx, 1)
				continue
			}
			if first {
				first = false
				s.metrics.FirstAudioDelay.Record(s.ctx, time.Since(start).Seconds())
			}
		}
	}()

	if transcript == "" {
		err = s.speakGreeting(handle)
	} else {
		err = s.streamReply(ctx, conversationID, transcript, handle)
	}
	if err != nil && ctx.Err() == nil {
		// The turn is lost but the call survives; the caller can repeat
		// themselves.
		s.log.Warn("turn aborted", "error", err)
	}

	_ = handle.Close()
	<-forwardDone

	status := "ok"
	switch {
	case ctx.Err() != nil:
		status = "interrupted"
	case err != nil:
		status = "error"
	}
	s.metrics.RecordTurn(s.ctx, status, time.Since(start).Seconds())
}

// ensureConversation creates the server-side conversation on the first turn
// and reuses it for the rest of the call, including across interrupts.
func (s *Session) ensureConversation(ctx context.Context) (string, error) {
	s.mu.Lock()
	conversationID := s.conversationID
	s.mu.Unlock()
	if conversationID != "" {
		return conversationID, nil
	}

	conversationID, err := s.llmP.CreateConversation(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.conversationID = conversationID
	s.mu.Unlock()
	s.log.Info("conversation created", "conversation_id", conversationID)
	return conversationID, nil
}

// speakGreeting synthesises the configured greeting.
func (s *Session) speakGreeting(handle tts.StreamHandle) error {
	if err := handle.SendText(s.cfg.Greeting); err != nil {
		return err
	}
	return handle.Flush()
}

// streamReply drives the model for one caller turn, forwarding complete
// sentences to TTS as they form and resolving tool calls until the model
// produces its final text.
func (s *Session) streamReply(ctx context.Context, conversationID, transcript string, handle tts.StreamHandle) error {
	var defs []llm.ToolDefinition
	if s.registry != nil {
		defs = s.registry.Definitions()
	}

	input := []llm.InputItem{llm.MessageInput("user", transcript)}
	for {
		stream, err := s.llmP.StreamResponse(ctx, llm.ResponseRequest{
			ConversationID: conversationID,
			Instructions:   s.cfg.Instructions,
			Input:          input,
			Tools:          defs,
		})
		if err != nil {
			return err
		}

		var buf string
		var calls []llm.ToolCall
		var streamErr error

		for ev := range stream {
			switch ev.Type {
			case llm.EventTextDelta:
				buf += ev.Delta
				for {
					sentence, rest, ok := splitSentence(buf)
					if !ok {
						break
					}
					buf = rest
					if sentence == "" {
						continue
					}
					if err := s.sendSentence(handle, sentence); err != nil {
						return err
					}
				}

			case llm.EventToolCall:
				calls = append(calls, ev.ToolCall)

			case llm.EventError:
				streamErr = ev.Err

			case llm.EventCompleted:
			}
		}

		if tail := cleanForSpeech(buf); tail != "" {
			if err := s.sendSentence(handle, tail); err != nil {
				return err
			}
		}
		if streamErr != nil {
			return streamErr
		}
		if len(calls) == 0 {
			return nil
		}

		// Execute the requested tools and hand the results back to the model.
		next := make([]llm.InputItem, 0, len(calls))
		for _, call := range calls {
			s.log.Info("tool call", "tool", call.Name)
			result := s.executeTool(ctx, call)
			next = append(next, llm.FunctionCallOutputInput(call.CallID, result))
		}
		input = next
	}
}

// sendSentence pushes one sentence to TTS and flushes so its audio starts
// streaming back before the model finishes the reply.
func (s *Session) sendSentence(handle tts.StreamHandle, sentence string) error {
	if err := handle.SendText(sentence); err != nil {
		return err
	}
	return handle.Flush()
}

// executeTool resolves one tool call. Failures come back as JSON error
// payloads so the model can recover conversationally.
func (s *Session) executeTool(ctx context.Context, call llm.ToolCall) string {
	if s.registry == nil {
		return `{"error":"no tools available"}`
	}
	return s.registry.Execute(ctx, call.Name, call.Arguments)
}

// ─── plumbing ─────────────────────────────────────────────────────────────────

// emit delivers one output to the transport, giving up when the session ends.
func (s *Session) emit(out Output) {
	select {
	case s.out <- out:
	case <-s.ctx.Done():
	}
}

// emitFrame delivers one synthesised frame unless its epoch has been
// superseded. The check and the send form one critical section under emitMu,
// so an interrupt cannot advance the epoch between them: a frame that passed
// the check is fully delivered before the interrupt's Clear, and once the
// interrupt holds the lock every not-yet-delivered frame is stale. Reports
// whether the frame was delivered.
func (s *Session) emitFrame(frame audio.Frame) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.epoch.Load() != frame.Epoch {
		return false
	}
	s.emit(Output{Kind: OutputAudio, Frame: frame})
	return true
}

// invalidateSpeech advances the speak epoch and tells the transport to drop
// queued playback. Both happen under emitMu, ordering the Clear after any
// frame already mid-delivery and before any frame still awaiting its epoch
// check.
func (s *Session) invalidateSpeech() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.epoch.Add(1)
	s.emit(Output{Kind: OutputClear})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if !s.closed {
		s.state = state
	}
	s.mu.Unlock()
}

// fail records a fatal pipeline error and ends the session.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()

	s.log.Error("session failed", "error", err)
	_ = s.Close()
}

// nonWhitespaceLen counts the non-whitespace runes in s.
func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
