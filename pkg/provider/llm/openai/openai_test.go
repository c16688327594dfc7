package openai

import (
	"testing"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
)

// ---- constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", "gpt-5-nano"); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// ---- param building tests ----

func TestBuildParams_ConversationAndInstructions(t *testing.T) {
	p, err := New("key", "gpt-5-nano")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := llm.ResponseRequest{
		ConversationID: "conv_123",
		Instructions:   "You are a hotel receptionist.",
		Input:          []llm.InputItem{llm.MessageInput("user", "hello")},
	}

	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if got := params.Conversation.OfString.Value; got != "conv_123" {
		t.Errorf("conversation: want %q, got %q", "conv_123", got)
	}
	if got := params.Instructions.Value; got != "You are a hotel receptionist." {
		t.Errorf("instructions: want receptionist prompt, got %q", got)
	}
	if string(params.Model) != "gpt-5-nano" {
		t.Errorf("model: want gpt-5-nano, got %q", params.Model)
	}
	if len(params.Input.OfInputItemList) != 1 {
		t.Fatalf("expected 1 input item, got %d", len(params.Input.OfInputItemList))
	}
}

func TestBuildParams_Tools(t *testing.T) {
	p, err := New("key", "gpt-5-nano")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := llm.ResponseRequest{
		Input: []llm.InputItem{llm.MessageInput("user", "any rooms?")},
		Tools: []llm.ToolDefinition{
			{
				Name:        "query_room_inventory",
				Description: "Check room availability",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"check_in": map[string]any{"type": "string"},
					},
				},
				Strict: true,
			},
		},
	}

	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if len(params.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(params.Tools))
	}
	fn := params.Tools[0].OfFunction
	if fn == nil {
		t.Fatal("expected function tool")
	}
	if fn.Name != "query_room_inventory" {
		t.Errorf("tool name: want query_room_inventory, got %q", fn.Name)
	}
	if !fn.Strict.Value {
		t.Error("expected strict tool schema")
	}
	if fn.Description.Value != "Check room availability" {
		t.Errorf("tool description: got %q", fn.Description.Value)
	}
}

func TestConvertInput_MessageAndToolOutput(t *testing.T) {
	items := []llm.InputItem{
		llm.MessageInput("user", "book it"),
		llm.FunctionCallOutputInput("call_42", `{"ticket_id":"T-1001"}`),
	}

	input, err := convertInput(items)
	if err != nil {
		t.Fatalf("convertInput: %v", err)
	}
	if len(input) != 2 {
		t.Fatalf("expected 2 items, got %d", len(input))
	}

	msg := input[0].OfMessage
	if msg == nil {
		t.Fatal("expected first item to be a message")
	}
	if string(msg.Role) != "user" {
		t.Errorf("role: want user, got %q", msg.Role)
	}
	if msg.Content.OfString.Value != "book it" {
		t.Errorf("content: got %q", msg.Content.OfString.Value)
	}

	fco := input[1].OfFunctionCallOutput
	if fco == nil {
		t.Fatal("expected second item to be a function call output")
	}
	if fco.CallID != "call_42" {
		t.Errorf("call id: want call_42, got %q", fco.CallID)
	}
}

func TestConvertInput_EmptyItem(t *testing.T) {
	if _, err := convertInput([]llm.InputItem{{}}); err == nil {
		t.Error("expected error for input item with no content")
	}
}
