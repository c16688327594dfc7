// Package telephony connects Twilio Media Streams calls to voice sessions.
//
// Twilio opens one WebSocket per call and exchanges JSON envelopes: inbound
// "start"/"media"/"stop" events carrying base64 mu-law audio at 8 kHz, and
// outbound "media"/"clear" envelopes addressed by stream SID. The bridge
// translates between that wire format and the session's 16 kHz linear PCM.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Inbound event names from the Media Streams protocol.
const (
	eventConnected = "connected"
	eventStart     = "start"
	eventMedia     = "media"
	eventMark      = "mark"
	eventStop      = "stop"
	eventClear     = "clear"
)

// streamMessage is one JSON envelope on the Media Streams socket. Only the
// fields for the events the bridge handles are modelled; unknown events are
// identified by Event alone.
type streamMessage struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
}

// startPayload carries call metadata from the "start" event.
type startPayload struct {
	AccountSid  string      `json:"accountSid"`
	CallSid     string      `json:"callSid"`
	StreamSid   string      `json:"streamSid"`
	MediaFormat mediaFormat `json:"mediaFormat"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// mediaPayload carries one chunk of audio. Payload is base64 mu-law.
type mediaPayload struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

// mulawEncoding is the only media format Media Streams sends for phone calls.
const mulawEncoding = "audio/x-mulaw"

func parseStreamMessage(data []byte) (streamMessage, error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return streamMessage{}, fmt.Errorf("telephony: parse stream message: %w", err)
	}
	return msg, nil
}

// audioPayload decodes the base64 audio of a "media" envelope.
func (m streamMessage) audioPayload() ([]byte, error) {
	if m.Media == nil {
		return nil, fmt.Errorf("telephony: media event without media payload")
	}
	raw, err := base64.StdEncoding.DecodeString(m.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("telephony: decode media payload: %w", err)
	}
	return raw, nil
}

// encodeMediaMessage builds an outbound "media" envelope carrying mulaw audio.
func encodeMediaMessage(streamSid string, mulaw []byte) ([]byte, error) {
	msg := streamMessage{
		Event:     eventMedia,
		StreamSid: streamSid,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("telephony: encode media message: %w", err)
	}
	return data, nil
}

// encodeClearMessage builds an outbound "clear" envelope, which makes Twilio
// drop all buffered playback for the stream immediately.
func encodeClearMessage(streamSid string) ([]byte, error) {
	data, err := json.Marshal(streamMessage{Event: eventClear, StreamSid: streamSid})
	if err != nil {
		return nil, fmt.Errorf("telephony: encode clear message: %w", err)
	}
	return data, nil
}
