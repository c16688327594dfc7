// Package tts defines the Provider interface for streaming Text-to-Speech
// backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Deepgram Aura) and
// presents a uniform streaming interface. The primary entry point is
// OpenStream, which returns a StreamHandle: the caller pushes text fragments
// in with SendText, forces synthesis of buffered text with Flush, and reads
// raw PCM audio chunks off the Audio channel as they become available. This
// design lets the voice session pipe sentence-chunked LLM output directly
// into synthesis without waiting for the full reply.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// StreamConfig describes the voice and audio format for a new synthesis
// stream. Zero values fall back to the provider's defaults.
type StreamConfig struct {
	// Voice selects the provider voice model (e.g., "aura-2-thalia-en").
	Voice string

	// SampleRate is the PCM output sample rate in Hz.
	SampleRate int
}

// StreamHandle represents an open synthesis stream. It is an interface so
// that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the stream is no longer needed and must drain
// the Audio channel to avoid blocking the provider's internal goroutines.
// All methods must be safe for concurrent use.
type StreamHandle interface {
	// SendText queues a text fragment for synthesis. Fragments accumulate in
	// the provider's buffer until Flush. Calling SendText after Close returns
	// an error.
	SendText(text string) error

	// Flush forces synthesis of all buffered text. Audio for the flushed text
	// arrives on the Audio channel while the caller continues sending more
	// fragments.
	Flush() error

	// Clear discards any text and audio still buffered on the provider side
	// without closing the stream. Used when the caller interrupts playback.
	Clear() error

	// Audio returns a read-only channel emitting raw PCM audio chunks in
	// synthesis order. The channel is closed when the stream ends.
	Audio() <-chan []byte

	// Close flushes nothing further, terminates the stream, and releases all
	// associated resources. Audio already synthesised is delivered before the
	// Audio channel closes. Calling Close more than once is safe and returns
	// nil.
	Close() error
}

// Provider is the abstraction over any streaming TTS backend.
//
// Implementations must be safe for concurrent use. Multiple streams may be
// open simultaneously, one per speaking session.
type Provider interface {
	// OpenStream opens a new synthesis stream with the given voice and audio
	// format. The returned StreamHandle is ready to accept text immediately.
	//
	// Returns an error if the provider cannot establish the stream (e.g.,
	// authentication failure, unknown voice, or ctx already cancelled). The
	// caller owns the StreamHandle and must call Close when done.
	OpenStream(ctx context.Context, cfg StreamConfig) (StreamHandle, error)
}
