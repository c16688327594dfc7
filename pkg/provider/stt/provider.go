// Package stt defines the Provider interface for streaming Speech-to-Text
// backends with turn detection.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram
// Flux) and exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio frames and emits
// a single ordered stream of Event values describing the conversational turn
// as the service understands it — interim updates while the caller speaks, an
// authoritative end-of-turn transcript when they stop, and a start-of-turn
// marker when speech resumes.
//
// Implementations must be safe for concurrent use. Audio input and the event
// channel are goroutine-safe by construction.
package stt

import (
	"context"
	"time"
)

// EventType classifies an Event emitted by an STT session.
type EventType int

const (
	// EventConnected signals that the provider accepted the stream and is
	// ready for audio. Emitted at most once, before any turn events.
	EventConnected EventType = iota

	// EventStartOfTurn signals that the provider detected the caller starting
	// to speak. Sessions that are currently playing synthesized audio treat
	// this as a barge-in trigger.
	EventStartOfTurn

	// EventUpdate carries an interim transcript of the in-progress turn. The
	// text is a low-latency guess and may be revised by later updates.
	EventUpdate

	// EventEndOfTurn carries the authoritative transcript of a completed turn.
	// This is the text that should be handed to the language model.
	EventEndOfTurn

	// EventError reports a stream-level failure. The session is unusable
	// afterwards and its event channel will be closed.
	EventError
)

// String returns the provider-facing name of the event type.
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "Connected"
	case EventStartOfTurn:
		return "StartOfTurn"
	case EventUpdate:
		return "Update"
	case EventEndOfTurn:
		return "EndOfTurn"
	case EventError:
		return "Error"
	}
	return "Unknown"
}

// Event is a single message from the STT service about the current turn.
type Event struct {
	// Type classifies the event; the remaining fields are meaningful only for
	// the types documented on each.
	Type EventType

	// Transcript is the recognised text. Interim for EventUpdate,
	// authoritative for EventEndOfTurn, empty otherwise.
	Transcript string

	// Confidence is the provider's end-of-turn confidence in [0,1], when
	// reported.
	Confidence float64

	// TurnIndex numbers the turn this event belongs to, when the provider
	// reports one. Monotonically increasing within a session.
	TurnIndex int

	// Err is the failure for EventError, nil otherwise.
	Err error
}

// StreamConfig describes the audio format and turn-detection tuning for a new
// STT session. Zero values fall back to the provider's defaults.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The telephony pipeline
	// upsamples phone audio to 16000 before it reaches the provider.
	SampleRate int

	// EOTThreshold is the end-of-turn confidence threshold in (0,1]. Lower
	// values detect the end of the caller's turn sooner at the cost of more
	// false cuts.
	EOTThreshold float64

	// EOTTimeout is the silence duration after which the provider forces an
	// end of turn regardless of confidence.
	EOTTimeout time.Duration
}

// SessionHandle represents an open STT streaming session. It is an interface
// so that test code can provide mock implementations without requiring a live
// provider connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendMedia delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk must match the SampleRate agreed in
	// StreamConfig. Calling SendMedia after Close returns an error.
	SendMedia(chunk []byte) error

	// Events returns a read-only channel carrying the session's turn events
	// in arrival order. The channel is closed when the session ends, whether
	// by Close or by a stream failure (reported as a final EventError).
	Events() <-chan Event

	// Close flushes pending audio, terminates the session, and releases all
	// associated resources. After Close returns, the Events channel is
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any turn-detecting STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously, one per active call.
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and turn-detection configuration. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close when
	// done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
