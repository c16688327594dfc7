// Package reservations provides the hotel reservation tools offered to the
// language model: room availability lookup, reservation ticket creation, and
// ticket status checks.
//
// The tools are thin HTTP clients against the reservation desk service, which
// owns the shadow inventory database and the staff review queue. The voice
// service never books anything directly; create_reservation_ticket files a
// ticket for human staff to confirm by callback.
package reservations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacklotus-ai/lotusvoice/internal/resilience"
	"github.com/blacklotus-ai/lotusvoice/internal/tools"
	"github.com/blacklotus-ai/lotusvoice/pkg/provider/llm"
)

const defaultTimeout = 10 * time.Second

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client calls the reservation desk service's tool endpoints. A circuit
// breaker guards the desk: when it is down, tool calls fail fast instead of
// stacking up request timeouts mid-conversation.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.Breaker
}

// NewClient creates a Client for the reservation desk service at baseURL
// (e.g., "http://localhost:8100"). baseURL must be non-empty.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("reservations: baseURL must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		breaker: resilience.NewBreaker(resilience.Settings{
			Name:             "reservation_desk",
			FailureThreshold: 3,
			Cooldown:         15 * time.Second,
		}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Tools returns the reservation tool set backed by this client, ready for
// registration.
func (c *Client) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "query_room_inventory",
				Description: "Check room availability for given dates. Returns available room types with rates and amenities. Use this when guests ask about availability or pricing.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"check_in": map[string]any{
							"type":        "string",
							"description": "Check-in date in YYYY-MM-DD format (e.g., 2026-02-15)",
						},
						"check_out": map[string]any{
							"type":        "string",
							"description": "Check-out date in YYYY-MM-DD format (e.g., 2026-02-18)",
						},
						"guests": map[string]any{
							"type":        "integer",
							"description": "Number of guests (1-4)",
							"minimum":     1,
							"maximum":     4,
						},
					},
					"required": []string{"check_in", "check_out", "guests"},
				},
			},
			Handler: c.queryRoomInventory,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "create_reservation_ticket",
				Description: "Create a reservation ticket for human staff review. Use this ONLY when the guest explicitly wants to book a room and has provided all required information: name, phone, dates, room type, and number of guests.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"guest_name": map[string]any{
							"type":        "string",
							"description": "Guest's full name",
						},
						"phone_number": map[string]any{
							"type":        "string",
							"description": "Guest's phone number for callback (e.g., +1-555-123-4567)",
						},
						"check_in": map[string]any{
							"type":        "string",
							"description": "Check-in date in YYYY-MM-DD format",
						},
						"check_out": map[string]any{
							"type":        "string",
							"description": "Check-out date in YYYY-MM-DD format",
						},
						"room_type": map[string]any{
							"type":        "string",
							"enum":        []string{"standard", "deluxe", "suite"},
							"description": "Room type requested by guest",
						},
						"guests": map[string]any{
							"type":        "integer",
							"description": "Number of guests",
						},
						"special_requests": map[string]any{
							"type":        "string",
							"description": "Any special requests from the guest (optional)",
						},
					},
					"required": []string{"guest_name", "phone_number", "check_in", "check_out", "room_type", "guests"},
				},
			},
			Handler: c.createReservationTicket,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "check_ticket_status",
				Description: "Check the status of an existing reservation ticket by ID. Use this when guests ask about their existing reservation.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"ticket_id": map[string]any{
							"type":        "string",
							"description": "The ticket ID (e.g., LOTUS-001)",
						},
					},
					"required": []string{"ticket_id"},
				},
			},
			Handler: c.checkTicketStatus,
		},
	}
}

// queryArgs is the JSON-decoded input for query_room_inventory.
type queryArgs struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Guests   int    `json:"guests"`
}

func (c *Client) queryRoomInventory(ctx context.Context, args string) (string, error) {
	var q queryArgs
	if err := json.Unmarshal([]byte(args), &q); err != nil {
		return "", fmt.Errorf("reservations: decode query args: %w", err)
	}
	if q.CheckIn == "" || q.CheckOut == "" {
		return "", fmt.Errorf("reservations: check_in and check_out are required")
	}
	return c.post(ctx, "/tools/query_inventory", q)
}

// ticketArgs is the JSON-decoded input for create_reservation_ticket.
type ticketArgs struct {
	GuestName       string `json:"guest_name"`
	PhoneNumber     string `json:"phone_number"`
	CheckIn         string `json:"check_in"`
	CheckOut        string `json:"check_out"`
	RoomType        string `json:"room_type"`
	Guests          int    `json:"guests"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

func (c *Client) createReservationTicket(ctx context.Context, args string) (string, error) {
	var tk ticketArgs
	if err := json.Unmarshal([]byte(args), &tk); err != nil {
		return "", fmt.Errorf("reservations: decode ticket args: %w", err)
	}
	if tk.GuestName == "" || tk.PhoneNumber == "" {
		return "", fmt.Errorf("reservations: guest_name and phone_number are required")
	}
	return c.post(ctx, "/tools/create_ticket", tk)
}

// statusArgs is the JSON-decoded input for check_ticket_status.
type statusArgs struct {
	TicketID string `json:"ticket_id"`
}

func (c *Client) checkTicketStatus(ctx context.Context, args string) (string, error) {
	var st statusArgs
	if err := json.Unmarshal([]byte(args), &st); err != nil {
		return "", fmt.Errorf("reservations: decode status args: %w", err)
	}
	if st.TicketID == "" {
		return "", fmt.Errorf("reservations: ticket_id is required")
	}
	return c.get(ctx, "/tools/ticket_status/"+url.PathEscape(st.TicketID))
}

func (c *Client) post(ctx context.Context, path string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("reservations: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("reservations: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("reservations: build request: %w", err)
	}
	return c.do(req)
}

// do issues the request through the circuit breaker. Transport failures and
// 5xx responses count against the breaker; a 4xx means the desk is up and the
// request itself was bad, so it errors without tripping anything.
func (c *Client) do(req *http.Request) (string, error) {
	req.Header.Set("Accept", "application/json")

	var out string
	var reqErr error
	err := c.breaker.Do(func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("reservations: %s %s: %w", req.Method, req.URL.Path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("reservations: read response: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("reservations: %s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			reqErr = fmt.Errorf("reservations: %s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
			return nil
		}
		out = string(body)
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) {
			return "", fmt.Errorf("reservations: desk service unavailable: %w", err)
		}
		return "", err
	}
	return out, reqErr
}
