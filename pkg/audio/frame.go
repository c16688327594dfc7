// Package audio provides the audio primitives for the telephony pipeline:
// the G.711 μ-law codec, rational-ratio polyphase resampling, and the Frame
// value type that tags audio buffers with direction, format, and speak-epoch.
//
// All PCM byte slices in this package are little-endian signed 16-bit mono
// samples. Telephony transports carry μ-law at 8 kHz; the STT and TTS
// providers consume and produce linear PCM at 16 kHz. The conversion helpers
// here are pure functions with no I/O and no state beyond their output buffer.
package audio

// Direction marks which way a frame travels relative to the service.
type Direction int

const (
	// Inbound frames arrive from the caller via the telephony transport.
	Inbound Direction = iota

	// Outbound frames were synthesised by TTS and head toward the caller.
	Outbound
)

// Format identifies the wire encoding of a frame's payload.
type Format int

const (
	// FormatMuLaw8k is G.711 μ-law, 8000 Hz, mono — the telephony format.
	FormatMuLaw8k Format = iota

	// FormatPCM16k is linear PCM int16 LE, 16000 Hz, mono — the internal format.
	FormatPCM16k
)

// String returns the conventional short name of the format.
func (f Format) String() string {
	switch f {
	case FormatMuLaw8k:
		return "mulaw/8000"
	case FormatPCM16k:
		return "linear16/16000"
	}
	return "unknown"
}

// Frame is an immutable audio buffer moving through the pipeline.
//
// Epoch is meaningful only for Outbound frames: it records the session
// speak-epoch current at the moment the producing TTS stream was opened.
// The session drops any outbound frame whose Epoch no longer matches its
// current speak-epoch, which is what guarantees that no stale audio from a
// cancelled reply reaches the caller.
type Frame struct {
	Data      []byte
	Format    Format
	Direction Direction
	Epoch     uint64
}
