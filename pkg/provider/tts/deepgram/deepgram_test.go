package deepgram

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/tts"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(tts.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "aura-2-thalia-en", q.Get("model"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
}

func TestBuildURL_ProviderOptions(t *testing.T) {
	p, err := New("key", WithVoice("aura-2-arcas-en"), WithSampleRate(24000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(tts.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "model", "aura-2-arcas-en", q.Get("model"))
	assertEqual(t, "sample_rate", "24000", q.Get("sample_rate"))
}

func TestBuildURL_ConfigOverridesProvider(t *testing.T) {
	p, err := New("key", WithVoice("aura-2-arcas-en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := tts.StreamConfig{Voice: "aura-2-helena-en", SampleRate: 8000}
	rawURL, err := p.buildURL(cfg)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "model", "aura-2-helena-en", q.Get("model"))
	assertEqual(t, "sample_rate", "8000", q.Get("sample_rate"))
}

// ---- control frame tests ----

func TestControlMessage_Speak(t *testing.T) {
	payload, err := json.Marshal(controlMessage{Type: "Speak", Text: "Hello there."})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	assertEqual(t, "payload", `{"type":"Speak","text":"Hello there."}`, string(payload))
}

func TestControlMessage_FlushOmitsText(t *testing.T) {
	payload, err := json.Marshal(controlMessage{Type: "Flush"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	assertEqual(t, "payload", `{"type":"Flush"}`, string(payload))
}

// ---- constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "voice", defaultVoice, p.voice)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
