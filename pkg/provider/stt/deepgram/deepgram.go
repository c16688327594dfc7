// Package deepgram provides a Deepgram Flux-backed STT provider using the
// Deepgram v2 streaming WebSocket API. It implements the stt.Provider
// interface.
//
// Flux is Deepgram's turn-based recognition model: instead of a flat stream
// of interim and final results it reports TurnInfo events (StartOfTurn,
// Update, EndOfTurn) with an end-of-turn confidence, which is what the voice
// session uses for barge-in and turn hand-off.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v2/listen"
	defaultModel     = "flux-general-en"
	defaultEncoding  = "linear16"

	defaultSampleRate = 16000

	// Flux ships with eot_threshold 0.7 and eot_timeout_ms 5000; the phone
	// pipeline wants snappier turn ends.
	defaultEOTThreshold = 0.6
	defaultEOTTimeout   = 3 * time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "flux-general-en").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEOTThreshold sets the provider-level default end-of-turn confidence
// threshold.
func WithEOTThreshold(threshold float64) Option {
	return func(p *Provider) {
		p.eotThreshold = threshold
	}
}

// WithEOTTimeout sets the provider-level default end-of-turn silence timeout.
func WithEOTTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		p.eotTimeout = timeout
	}
}

// Provider implements stt.Provider backed by the Deepgram Flux streaming API.
type Provider struct {
	apiKey       string
	model        string
	sampleRate   int
	eotThreshold float64
	eotTimeout   time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		sampleRate:   defaultSampleRate,
		eotThreshold: defaultEOTThreshold,
		eotTimeout:   defaultEOTTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram Flux.
// It respects cfg.SampleRate, cfg.EOTThreshold, and cfg.EOTTimeout.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	// Turn events are small; audio goes out, not in.
	conn.SetReadLimit(1 << 20)

	sess := &session{
		conn:   conn,
		events: make(chan stt.Event, 64),
		audio:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Flux streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	threshold := cfg.EOTThreshold
	if threshold == 0 {
		threshold = p.eotThreshold
	}
	timeout := cfg.EOTTimeout
	if timeout == 0 {
		timeout = p.eotTimeout
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("encoding", defaultEncoding)
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("eot_threshold", strconv.FormatFloat(threshold, 'g', -1, 64))
	q.Set("eot_timeout_ms", strconv.Itoa(int(timeout.Milliseconds())))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// fluxMessage is the JSON structure of a Deepgram Flux v2 WebSocket message.
type fluxMessage struct {
	Type                string  `json:"type"`
	Event               string  `json:"event"`
	Transcript          string  `json:"transcript"`
	TurnIndex           int     `json:"turn_index"`
	EndOfTurnConfidence float64 `json:"end_of_turn_confidence"`
	Description         string  `json:"description"`
}

// session is a live Deepgram Flux streaming session. It implements
// stt.SessionHandle.
type session struct {
	conn   *websocket.Conn
	events chan stt.Event
	audio  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendMedia queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendMedia(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Events returns the channel of turn events.
func (s *session) Events() <-chan stt.Event { return s.events }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// CloseStream asks Deepgram to flush buffered audio before closing.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// events channel.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Close was requested; this is the normal shutdown path.
			default:
				s.emit(stt.Event{Type: stt.EventError, Err: fmt.Errorf("deepgram: read: %w", err)})
			}
			return
		}

		ev, ok := parseFluxMessage(msg)
		if !ok {
			continue
		}
		s.emit(ev)
	}
}

func (s *session) emit(ev stt.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// parseFluxMessage parses a raw Flux WebSocket message into an Event.
// Returns (Event, true) on success, or (zero, false) if the message should be
// ignored.
func parseFluxMessage(data []byte) (stt.Event, bool) {
	var msg fluxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return stt.Event{}, false
	}

	switch msg.Type {
	case "Connected":
		return stt.Event{Type: stt.EventConnected}, true
	case "Error", "FatalError":
		return stt.Event{
			Type: stt.EventError,
			Err:  fmt.Errorf("deepgram: server error: %s", msg.Description),
		}, true
	case "TurnInfo":
	default:
		return stt.Event{}, false
	}

	ev := stt.Event{
		Transcript: msg.Transcript,
		Confidence: msg.EndOfTurnConfidence,
		TurnIndex:  msg.TurnIndex,
	}
	switch msg.Event {
	case "StartOfTurn":
		ev.Type = stt.EventStartOfTurn
	case "Update":
		ev.Type = stt.EventUpdate
	case "EndOfTurn":
		ev.Type = stt.EventEndOfTurn
	default:
		return stt.Event{}, false
	}
	return ev, true
}
