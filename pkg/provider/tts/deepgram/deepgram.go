// Package deepgram provides a Deepgram Aura-backed TTS provider using the
// Deepgram v1 speak WebSocket API. It implements the tts.Provider interface.
//
// The speak socket is a half-duplex text-in/audio-out stream: the client
// sends JSON control frames (Speak, Flush, Clear, Close) and receives binary
// PCM frames plus occasional JSON status messages (Metadata, Flushed,
// Warning).
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

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/tts"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/speak"
	defaultVoice     = "aura-2-thalia-en"
	defaultEncoding  = "linear16"

	defaultSampleRate = 16000

	// closeGrace bounds how long Close waits for the server to deliver
	// remaining audio and shut the socket.
	closeGrace = 5 * time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithVoice sets the default Aura voice model (e.g., "aura-2-thalia-en",
// "aura-2-arcas-en").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithSampleRate sets the PCM output sample rate in Hz for the provider-level
// default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements tts.Provider backed by the Deepgram Aura speak API.
type Provider struct {
	apiKey     string
	voice      string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		voice:      defaultVoice,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// OpenStream opens a synthesis stream with Deepgram Aura. It respects
// cfg.Voice and cfg.SampleRate.
func (p *Provider) OpenStream(ctx context.Context, cfg tts.StreamConfig) (tts.StreamHandle, error) {
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
	// Aura frames can carry several seconds of PCM.
	conn.SetReadLimit(1 << 22)

	st := &stream{
		conn:  conn,
		audio: make(chan []byte, 256),
		done:  make(chan struct{}),
	}

	st.wg.Add(1)
	go st.readLoop(ctx)

	return st, nil
}

// buildURL constructs the speak endpoint URL for the given config.
func (p *Provider) buildURL(cfg tts.StreamConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	voice := cfg.Voice
	if voice == "" {
		voice = p.voice
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", voice)
	q.Set("encoding", defaultEncoding)
	q.Set("sample_rate", strconv.Itoa(sr))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- stream ----

// controlMessage is a JSON frame sent to the speak socket.
type controlMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// stream is a live Aura synthesis stream. It implements tts.StreamHandle.
type stream struct {
	conn  *websocket.Conn
	audio chan []byte

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// SendText queues a text fragment for synthesis.
func (s *stream) SendText(text string) error {
	return s.writeControl(controlMessage{Type: "Speak", Text: text})
}

// Flush forces synthesis of all buffered text.
func (s *stream) Flush() error {
	return s.writeControl(controlMessage{Type: "Flush"})
}

// Clear discards buffered text and audio on the server side.
func (s *stream) Clear() error {
	return s.writeControl(controlMessage{Type: "Clear"})
}

// Audio returns the channel of synthesised PCM chunks.
func (s *stream) Audio() <-chan []byte { return s.audio }

// Close terminates the stream. The server delivers any remaining audio and
// closes the socket after receiving the Close frame; readLoop exits on that
// close and shuts the audio channel.
func (s *stream) Close() error {
	s.once.Do(func() {
		_ = s.writeControl(controlMessage{Type: "Close"})
		close(s.done)

		finished := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(closeGrace):
		}
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
	})
	return nil
}

func (s *stream) writeControl(msg controlMessage) error {
	select {
	case <-s.done:
		return errors.New("deepgram: stream is closed")
	default:
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("deepgram: marshal %s: %w", msg.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(context.Background(), websocket.MessageText, payload); err != nil {
		return fmt.Errorf("deepgram: send %s: %w", msg.Type, err)
	}
	return nil
}

// readLoop receives frames from the speak socket: binary frames carry PCM and
// go to the audio channel, text frames are status messages and are dropped.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.audio)

	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		if typ != websocket.MessageBinary {
			// Metadata, Flushed, Cleared, Warning. Nothing to forward.
			continue
		}
		if len(msg) == 0 {
			continue
		}

		// Prefer delivery: during Close the caller is still draining the
		// channel and expects every chunk the server produced.
		select {
		case s.audio <- msg:
			continue
		default:
		}
		select {
		case s.audio <- msg:
		case <-s.done:
			// Closing with no consumer left; drop.
		case <-ctx.Done():
			return
		}
	}
}
