package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/blacklotus-ai/lotusvoice/internal/session"
	"github.com/blacklotus-ai/lotusvoice/pkg/audio"
)

// fakeVoiceSession records bridge interactions and lets the test drive the
// output side.
type fakeVoiceSession struct {
	mu        sync.Mutex
	audio     [][]byte
	out       chan session.Output
	done      chan struct{}
	err       error
	closeOnce sync.Once
	closes    int
}

func newFakeVoiceSession() *fakeVoiceSession {
	return &fakeVoiceSession{
		out:  make(chan session.Output, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeVoiceSession) HandleAudio(pcm []byte) error {
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.mu.Lock()
	f.audio = append(f.audio, cp)
	f.mu.Unlock()
	return nil
}

func (f *fakeVoiceSession) Output() <-chan session.Output { return f.out }
func (f *fakeVoiceSession) Done() <-chan struct{}         { return f.done }

func (f *fakeVoiceSession) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeVoiceSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeVoiceSession) audioChunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

func (f *fakeVoiceSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

var _ VoiceSession = (*fakeVoiceSession)(nil)

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func sendEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) streamMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode envelope %q: %v", data, err)
	}
	return msg
}

func startEnvelope(callSid, streamSid string) string {
	return `{"event":"start","sequenceNumber":"1","start":{"accountSid":"AC0","callSid":"` + callSid +
		`","streamSid":"` + streamSid +
		`","mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"` + streamSid + `"}`
}

func TestBridge_FullCall(t *testing.T) {
	t.Parallel()

	fs := newFakeVoiceSession()
	var mu sync.Mutex
	var factoryCalls []string
	bridge := NewBridge(func(_ context.Context, callSid string) (VoiceSession, error) {
		mu.Lock()
		factoryCalls = append(factoryCalls, callSid)
		mu.Unlock()
		return fs, nil
	}, testLogger())

	srv := httptest.NewServer(bridge)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Handshake noise before start must be tolerated.
	sendEnvelope(t, ctx, conn, `{"event":"connected","protocol":"Call","version":"1.0.0"}`)
	sendEnvelope(t, ctx, conn, startEnvelope("CA1234", "MZ5678"))

	// 20 ms of mu-law silence from the caller.
	mulawFrame := make([]byte, 160)
	for i := range mulawFrame {
		mulawFrame[i] = 0xFF
	}
	sendEnvelope(t, ctx, conn, `{"event":"media","media":{"track":"inbound","payload":"`+
		base64.StdEncoding.EncodeToString(mulawFrame)+`"},"streamSid":"MZ5678"}`)

	waitUntil(t, func() bool { return fs.audioChunks() == 1 }, "caller audio to reach the session")

	fs.mu.Lock()
	pcmLen := len(fs.audio[0])
	fs.mu.Unlock()
	// 160 samples at 8 kHz become 320 samples (640 bytes) at 16 kHz.
	if pcmLen != 640 {
		t.Errorf("decoded pcm length: want 640, got %d", pcmLen)
	}

	mu.Lock()
	if len(factoryCalls) != 1 || factoryCalls[0] != "CA1234" {
		t.Errorf("factory calls: %v", factoryCalls)
	}
	mu.Unlock()

	// Session speaks: 640 bytes of 16 kHz PCM must come back as 160 mu-law
	// bytes addressed to the stream.
	fs.out <- session.Output{Kind: session.OutputAudio, Frame: audio.Frame{
		Data:      make([]byte, 640),
		Format:    audio.FormatPCM16k,
		Direction: audio.Outbound,
	}}
	msg := readEnvelope(t, ctx, conn)
	if msg.Event != eventMedia || msg.StreamSid != "MZ5678" {
		t.Fatalf("media envelope: %+v", msg)
	}
	payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		t.Fatalf("decode outbound payload: %v", err)
	}
	if len(payload) != 160 {
		t.Errorf("outbound mu-law length: want 160, got %d", len(payload))
	}

	// Barge-in clear is forwarded verbatim.
	fs.out <- session.Output{Kind: session.OutputClear}
	msg = readEnvelope(t, ctx, conn)
	if msg.Event != eventClear || msg.StreamSid != "MZ5678" {
		t.Fatalf("clear envelope: %+v", msg)
	}

	// Caller hangs up.
	sendEnvelope(t, ctx, conn, `{"event":"stop","streamSid":"MZ5678"}`)
	waitUntil(t, func() bool { return fs.closeCount() >= 1 }, "session teardown")
}

func TestBridge_SessionEndHangsUp(t *testing.T) {
	t.Parallel()

	fs := newFakeVoiceSession()
	bridge := NewBridge(func(_ context.Context, _ string) (VoiceSession, error) {
		return fs, nil
	}, testLogger())

	srv := httptest.NewServer(bridge)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendEnvelope(t, ctx, conn, startEnvelope("CA1", "MZ1"))

	// A fatal pipeline failure ends the session; the bridge must hang up.
	_ = fs.Close()

	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("expected the bridge to close the connection")
	}
}

func TestBridge_StopBeforeStart(t *testing.T) {
	t.Parallel()

	factoryCalled := false
	bridge := NewBridge(func(_ context.Context, _ string) (VoiceSession, error) {
		factoryCalled = true
		return newFakeVoiceSession(), nil
	}, testLogger())

	srv := httptest.NewServer(bridge)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendEnvelope(t, ctx, conn, `{"event":"stop","streamSid":"MZ1"}`)

	// The server should close cleanly without ever creating a session.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("expected connection close after stop")
	}
	if factoryCalled {
		t.Error("factory must not run for a stream that never started")
	}
}
