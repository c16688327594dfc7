package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
)

func testTool(name string, handler func(ctx context.Context, args string) (string, error)) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:       name,
			Parameters: map[string]any{"type": "object"},
		},
		Handler: handler,
	}
}

func TestRegistry_DefinitionsInRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(
		testTool("alpha", nil),
		testTool("beta", nil),
		testTool("gamma", nil),
	)

	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if defs[i].Name != want {
			t.Errorf("definition %d: want %q, got %q", i, want, defs[i].Name)
		}
	}
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(testTool("echo", func(_ context.Context, args string) (string, error) {
		return `{"version":1}`, nil
	}))
	r.Register(testTool("echo", func(_ context.Context, args string) (string, error) {
		return `{"version":2}`, nil
	}))

	if got := len(r.Definitions()); got != 1 {
		t.Fatalf("expected 1 definition after replacement, got %d", got)
	}
	if got := r.Execute(context.Background(), "echo", "{}"); got != `{"version":2}` {
		t.Errorf("expected replacement handler to run, got %q", got)
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	result := r.Execute(context.Background(), "missing", "{}")

	var parsed map[string]string
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if parsed["error"] == "" {
		t.Errorf("expected error field, got %q", result)
	}
}

func TestRegistry_ExecuteHandlerError(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(testTool("flaky", func(_ context.Context, _ string) (string, error) {
		return "", errors.New("backend unreachable")
	}))

	result := r.Execute(context.Background(), "flaky", "{}")

	var parsed map[string]string
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if parsed["error"] != "backend unreachable" {
		t.Errorf("expected handler error in result, got %q", result)
	}
}

func TestRegistry_ExecutePassesArgs(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var gotArgs string
	r.Register(testTool("capture", func(_ context.Context, args string) (string, error) {
		gotArgs = args
		return `{}`, nil
	}))

	r.Execute(context.Background(), "capture", `{"check_in":"2026-09-01"}`)
	if gotArgs != `{"check_in":"2026-09-01"}` {
		t.Errorf("handler args: got %q", gotArgs)
	}
}
