package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/blacklotus-ai/lotusvoice/internal/session"
	"github.com/blacklotus-ai/lotusvoice/pkg/audio"
)

// telephonyRate is the PCM rate on the Twilio side of the bridge.
const telephonyRate = 8000

// VoiceSession is the part of a session the bridge drives. Satisfied by
// *session.Session.
type VoiceSession interface {
	HandleAudio(pcm []byte) error
	Output() <-chan session.Output
	Done() <-chan struct{}
	Err() error
	Close() error
}

// SessionFactory creates and starts the voice session for one call. callSid
// is Twilio's call identifier from the stream's start event.
type SessionFactory func(ctx context.Context, callSid string) (VoiceSession, error)

// Bridge serves the Media Streams WebSocket endpoint. Each accepted
// connection is one phone call: the bridge waits for the start event, spins
// up a session through the factory, then pumps audio both ways until the
// caller hangs up or the session ends.
type Bridge struct {
	factory SessionFactory
	log     *slog.Logger
}

// NewBridge creates a Bridge that builds sessions with factory.
func NewBridge(factory SessionFactory, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{factory: factory, log: logger}
}

// ServeHTTP upgrades the request and runs the call to completion.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "bridge failure")

	conn.SetReadLimit(1 << 20)

	if err := b.handleCall(r.Context(), conn); err != nil {
		b.log.Warn("call ended with error", "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleCall runs one call on an accepted connection.
func (b *Bridge) handleCall(ctx context.Context, conn *websocket.Conn) error {
	start, err := b.awaitStart(ctx, conn)
	if err != nil {
		return err
	}
	if start == nil {
		// Stream closed before it started; nothing to do.
		return nil
	}
	if start.MediaFormat.Encoding != "" && start.MediaFormat.Encoding != mulawEncoding {
		b.log.Warn("unexpected media encoding", "encoding", start.MediaFormat.Encoding)
	}

	log := b.log.With("call_sid", start.CallSid, "stream_sid", start.StreamSid)
	log.Info("media stream started")

	sess, err := b.factory(ctx, start.CallSid)
	if err != nil {
		return fmt.Errorf("telephony: start session: %w", err)
	}
	defer sess.Close()

	// Hang up when the session ends on its own (e.g. a fatal STT failure),
	// which unblocks the read loop below.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-sess.Done():
			conn.Close(websocket.StatusNormalClosure, "session ended")
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	writeCtx, cancelWrites := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pumpOutput(writeCtx, conn, sess, start.StreamSid)
	}()
	defer wg.Wait()
	defer cancelWrites()

	err = b.readLoop(ctx, conn, sess)
	if sessErr := sess.Err(); sessErr != nil {
		return sessErr
	}
	return err
}

// awaitStart reads envelopes until the start event arrives. Twilio sends a
// "connected" handshake first; anything else before start is ignored. A nil
// payload with nil error means the stream ended before starting.
func (b *Bridge) awaitStart(ctx context.Context, conn *websocket.Conn) (*startPayload, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if isClosed(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("telephony: await start: %w", err)
		}
		msg, err := parseStreamMessage(data)
		if err != nil {
			b.log.Warn("unparseable envelope before start", "error", err)
			continue
		}
		switch msg.Event {
		case eventStart:
			if msg.Start == nil {
				return nil, errors.New("telephony: start event without payload")
			}
			return msg.Start, nil
		case eventStop:
			return nil, nil
		case eventConnected:
		default:
			b.log.Debug("ignoring pre-start event", "event", msg.Event)
		}
	}
}

// readLoop decodes caller audio and feeds it to the session until the caller
// hangs up.
func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn, sess VoiceSession) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if isClosed(err) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telephony: read: %w", err)
		}

		msg, err := parseStreamMessage(data)
		if err != nil {
			b.log.Warn("unparseable envelope", "error", err)
			continue
		}

		switch msg.Event {
		case eventMedia:
			mulaw, err := msg.audioPayload()
			if err != nil {
				b.log.Warn("bad media payload", "error", err)
				continue
			}
			pcm := audio.DecodeMuLawToPCM16(mulaw, telephonyRate)
			if err := sess.HandleAudio(pcm); err != nil {
				b.log.Warn("session rejected audio", "error", err)
			}
		case eventStop:
			return nil
		case eventMark, eventConnected:
		default:
			b.log.Debug("ignoring event", "event", msg.Event)
		}
	}
}

// pumpOutput forwards session outputs to Twilio: audio as mulaw media
// envelopes, clears as clear envelopes.
func (b *Bridge) pumpOutput(ctx context.Context, conn *websocket.Conn, sess VoiceSession, streamSid string) {
	for {
		select {
		case out := <-sess.Output():
			data, err := encodeOutput(out, streamSid)
			if err != nil {
				b.log.Warn("encode output failed", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-sess.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func encodeOutput(out session.Output, streamSid string) ([]byte, error) {
	switch out.Kind {
	case session.OutputClear:
		return encodeClearMessage(streamSid)
	case session.OutputAudio:
		return encodeMediaMessage(streamSid, audio.EncodePCM16ToMuLaw(out.Frame.Data, telephonyRate))
	}
	return nil, fmt.Errorf("telephony: unknown output kind %d", out.Kind)
}

// isClosed reports whether err is an ordinary connection teardown rather than
// a protocol failure. Twilio may drop the TCP connection without a close
// frame when the caller hangs up abruptly, so plain EOFs count too.
func isClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var closeErr websocket.CloseError
	return errors.As(err, &closeErr)
}
