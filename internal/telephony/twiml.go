package telephony

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Default HTTP paths served by the voice service.
const (
	// WebhookPath answers Twilio's incoming-call webhook with TwiML.
	WebhookPath = "/incoming-call"

	// StreamPath accepts the Media Streams WebSocket.
	StreamPath = "/ws/twilio"
)

const twimlDocument = `<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s://%s%s" />
    </Connect>
</Response>`

// WebhookHandler answers the incoming-call webhook with a TwiML document that
// connects the call's audio to the Media Streams endpoint on the same host.
// Twilio may fetch the webhook with either GET or POST.
//
// The stream URL scheme follows how the webhook itself was reached: wss when
// the request arrived over TLS (directly or behind a forwarding proxy), or
// through a tunneling host that always terminates TLS at its edge; ws
// otherwise.
func WebhookHandler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme := "ws"
		if r.TLS != nil ||
			strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") ||
			isTunnelHost(r.Host) {
			scheme = "wss"
		}

		logger.Info("incoming call",
			"call_sid", r.FormValue("CallSid"),
			"from", r.FormValue("From"),
			"stream_scheme", scheme,
		)

		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprintf(w, twimlDocument, scheme, r.Host, StreamPath)
	})
}

// isTunnelHost reports whether host belongs to a development tunnel provider.
// Tunnels serve HTTPS externally but often forward plain HTTP without the
// X-Forwarded-Proto header.
func isTunnelHost(host string) bool {
	return strings.Contains(strings.ToLower(host), "ngrok")
}
