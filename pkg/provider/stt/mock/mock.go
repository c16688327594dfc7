// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Event values and inspect which
// audio chunks were delivered.
//
// Example:
//
//	sess := &mock.Session{EventsCh: make(chan stt.Event, 4)}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.EventsCh <- stt.Event{Type: stt.EventEndOfTurn, Transcript: "hello"}
package mock

import (
	"context"
	"sync"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil, StartStream
	// returns a new default Session with a buffered event channel.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{EventsCh: make(chan stt.Event, 16)}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendMediaCall records a single invocation of Session.SendMedia.
type SendMediaCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendMedia.
	Chunk []byte
}

// Session is a mock implementation of stt.SessionHandle.
// Callers should pre-populate EventsCh with the Event values they want the
// consumer to receive, then close it when done.
type Session struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers own this channel
	// and are responsible for sending to and closing it in tests.
	EventsCh chan stt.Event

	// SendMediaErr, if non-nil, is returned by every SendMedia call.
	SendMediaErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// SendMediaCalls records every call to SendMedia in order.
	SendMediaCalls []SendMediaCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendMedia records the call and returns SendMediaErr.
func (s *Session) SendMedia(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendMediaCalls = append(s.SendMediaCalls, SendMediaCall{Chunk: cp})
	return s.SendMediaErr
}

// Events returns EventsCh. The caller must have initialised EventsCh before
// calling this method.
func (s *Session) Events() <-chan stt.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// SendMediaCallCount returns the number of SendMedia calls. Thread-safe.
func (s *Session) SendMediaCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendMediaCalls)
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendMediaCalls = nil
	s.CloseCallCount = 0
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
