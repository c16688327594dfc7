// Package mock provides test doubles for the tts package interfaces.
//
// Use Provider to verify that the caller opens streams with the expected
// StreamConfig. Use Stream to feed controlled audio chunks and inspect which
// text fragments were sent.
//
// Example:
//
//	st := &mock.Stream{AudioCh: make(chan []byte, 4)}
//	p := &mock.Provider{Stream: st}
//	handle, _ := p.OpenStream(ctx, cfg)
//	st.AudioCh <- []byte{0x01, 0x02}
package mock

import (
	"context"
	"sync"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/tts"
)

// OpenStreamCall records a single invocation of Provider.OpenStream.
type OpenStreamCall struct {
	// Ctx is the context passed to OpenStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to OpenStream.
	Cfg tts.StreamConfig
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is the StreamHandle returned by OpenStream. If nil, OpenStream
	// returns a new default Stream with a buffered audio channel that closes
	// on Close.
	Stream tts.StreamHandle

	// NewStream, if set, is called for every OpenStream and takes precedence
	// over Stream. Useful when each turn of a test needs a fresh stream.
	NewStream func() tts.StreamHandle

	// OpenStreamErr, if non-nil, is returned as the error from OpenStream.
	OpenStreamErr error

	// OpenStreamCalls records every call to OpenStream.
	OpenStreamCalls []OpenStreamCall
}

// OpenStream records the call and returns Stream, OpenStreamErr.
func (p *Provider) OpenStream(ctx context.Context, cfg tts.StreamConfig) (tts.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenStreamCalls = append(p.OpenStreamCalls, OpenStreamCall{Ctx: ctx, Cfg: cfg})
	if p.OpenStreamErr != nil {
		return nil, p.OpenStreamErr
	}
	if p.NewStream != nil {
		return p.NewStream(), nil
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	return &Stream{AudioCh: make(chan []byte, 16), CloseClosesAudio: true}, nil
}

// OpenStreamCallCount returns the number of OpenStream calls. Thread-safe.
func (p *Provider) OpenStreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.OpenStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenStreamCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Stream is a mock implementation of tts.StreamHandle.
// Callers should send the audio chunks they want the consumer to receive on
// AudioCh, then close it when done. Setting EchoText makes every SendText
// fragment come back on AudioCh as synthetic audio, which is convenient for
// end-to-end pipeline tests.
type Stream struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio(). Callers own this channel
	// unless CloseClosesAudio is set.
	AudioCh chan []byte

	// EchoText, when true, writes each SendText fragment to AudioCh as a
	// []byte so tests can correlate synthesised audio with input text.
	EchoText bool

	// CloseClosesAudio, when true, makes Close close AudioCh, mimicking a
	// real stream's shutdown behaviour.
	CloseClosesAudio bool

	// SendTextErr, if non-nil, is returned by every SendText call.
	SendTextErr error

	// FlushErr, if non-nil, is returned by every Flush call.
	FlushErr error

	// ClearErr, if non-nil, is returned by every Clear call.
	ClearErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// SendTextCalls records every text fragment passed to SendText in order.
	SendTextCalls []string

	// FlushCallCount is the number of times Flush was called.
	FlushCallCount int

	// ClearCallCount is the number of times Clear was called.
	ClearCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendText records the call and returns SendTextErr.
func (s *Stream) SendText(text string) error {
	s.mu.Lock()
	s.SendTextCalls = append(s.SendTextCalls, text)
	echo := s.EchoText && s.SendTextErr == nil
	s.mu.Unlock()
	if echo {
		s.AudioCh <- []byte(text)
	}
	return s.SendTextErr
}

// Flush records the call and returns FlushErr.
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FlushCallCount++
	return s.FlushErr
}

// Clear records the call and returns ClearErr.
func (s *Stream) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearCallCount++
	return s.ClearErr
}

// Audio returns AudioCh. The caller must have initialised AudioCh before
// calling this method.
func (s *Stream) Audio() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioCh
}

// Close records the call and returns CloseErr.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.CloseClosesAudio && s.CloseCallCount == 1 {
		close(s.AudioCh)
	}
	return s.CloseErr
}

// FlushCount returns the number of Flush calls. Thread-safe.
func (s *Stream) FlushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FlushCallCount
}

// ClearCount returns the number of Clear calls. Thread-safe.
func (s *Stream) ClearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ClearCallCount
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Stream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Texts returns a copy of all recorded SendText fragments. Thread-safe.
func (s *Stream) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SendTextCalls))
	copy(out, s.SendTextCalls)
	return out
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Stream) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendTextCalls = nil
	s.FlushCallCount = 0
	s.ClearCallCount = 0
	s.CloseCallCount = 0
}

// Ensure Stream implements tts.StreamHandle at compile time.
var _ tts.StreamHandle = (*Stream)(nil)
