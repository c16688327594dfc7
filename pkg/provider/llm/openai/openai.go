// Package openai provides an LLM provider backed by the OpenAI Responses API
// with server-side conversation state.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/conversations"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared"

	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
)

// Provider implements llm.Provider using the OpenAI Responses and
// Conversations APIs.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// CreateConversation implements llm.Provider.
func (p *Provider) CreateConversation(ctx context.Context) (string, error) {
	conv, err := p.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		return "", fmt.Errorf("openai: create conversation: %w", err)
	}
	return conv.ID, nil
}

// StreamResponse implements llm.Provider.
func (p *Provider) StreamResponse(ctx context.Context, req llm.ResponseRequest) (<-chan llm.StreamEvent, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	stream := p.client.Responses.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan llm.StreamEvent, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		emit := func(ev llm.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if ev.Delta == "" {
					continue
				}
				if !emit(llm.StreamEvent{Type: llm.EventTextDelta, Delta: ev.Delta}) {
					return
				}

			case responses.ResponseOutputItemDoneEvent:
				if ev.Item.Type != "function_call" {
					continue
				}
				fc := ev.Item.AsFunctionCall()
				out := llm.StreamEvent{
					Type: llm.EventToolCall,
					ToolCall: llm.ToolCall{
						CallID:    fc.CallID,
						Name:      fc.Name,
						Arguments: fc.Arguments,
					},
				}
				if !emit(out) {
					return
				}

			case responses.ResponseCompletedEvent:
				emit(llm.StreamEvent{Type: llm.EventCompleted})
				return

			case responses.ResponseErrorEvent:
				emit(llm.StreamEvent{
					Type: llm.EventError,
					Err:  fmt.Errorf("openai: response error: %s", ev.Message),
				})
				return
			}
		}

		if err := stream.Err(); err != nil {
			emit(llm.StreamEvent{Type: llm.EventError, Err: fmt.Errorf("openai: stream: %w", err)})
			return
		}
		emit(llm.StreamEvent{Type: llm.EventCompleted})
	}()

	return ch, nil
}

// buildParams converts a ResponseRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.ResponseRequest) (responses.ResponseNewParams, error) {
	input, err := convertInput(req.Input)
	if err != nil {
		return responses.ResponseNewParams{}, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(p.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if req.ConversationID != "" {
		params.Conversation = responses.ResponseNewParamsConversationUnion{
			OfString: param.NewOpt(req.ConversationID),
		}
	}
	if req.Instructions != "" {
		params.Instructions = param.NewOpt(req.Instructions)
	}

	for _, td := range req.Tools {
		fn := responses.FunctionToolParam{
			Name:       td.Name,
			Parameters: shared.FunctionParameters(td.Parameters),
			Strict:     param.NewOpt(td.Strict),
		}
		if td.Description != "" {
			fn.Description = param.NewOpt(td.Description)
		}
		params.Tools = append(params.Tools, responses.ToolUnionParam{OfFunction: &fn})
	}

	return params, nil
}

// convertInput converts input items to SDK input item params.
func convertInput(items []llm.InputItem) (responses.ResponseInputParam, error) {
	out := make(responses.ResponseInputParam, 0, len(items))
	for _, item := range items {
		switch {
		case item.Message != nil:
			msg := responses.EasyInputMessageParam{
				Role: responses.EasyInputMessageRole(item.Message.Role),
				Content: responses.EasyInputMessageContentUnionParam{
					OfString: param.NewOpt(item.Message.Content),
				},
			}
			out = append(out, responses.ResponseInputItemUnionParam{OfMessage: &msg})

		case item.FunctionCallOutput != nil:
			fco := item.FunctionCallOutput
			out = append(out, responses.ResponseInputItemParamOfFunctionCallOutput(fco.CallID, fco.Output))

		default:
			return nil, fmt.Errorf("openai: input item has no content")
		}
	}
	return out, nil
}
