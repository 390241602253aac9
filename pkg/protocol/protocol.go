// Package protocol defines the JSON control messages exchanged with the voice
// backend.
//
// Outbound messages carry an "action" discriminator and are marshalled with
// encoding/json. Inbound messages carry a "type" discriminator and are decoded
// by [Decode] into one concrete [Inbound] variant per kind; unrecognised kinds
// decode to [Unknown] so that newer servers do not break older clients.
//
// Binary frames (raw little-endian 16-bit mono PCM) are not modelled here;
// they pass through the transport untouched.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound action names.
const (
	ActionStartSession = "start_session"
	ActionPauseSession = "pause_session"
	ActionEndSession   = "end_session"
	ActionStreamData   = "stream_data"
	ActionPing         = "ping"
)

// Inbound message types.
const (
	TypeSessionStarted = "session_started"
	TypeUserActivity   = "user_activity"
	TypeAudioChunk     = "audio_chunk"
)

// InputAudio is the only input_type this client produces.
const InputAudio = "audio"

// ── Outbound ──────────────────────────────────────────────────────────────────

// StartSession asks the server to open a voice session. The server answers
// with [SessionStarted].
type StartSession struct {
	// AudioFormat optionally names the encoding the client expects for
	// synthesized audio. Empty omits the field.
	AudioFormat string
}

// MarshalJSON implements [json.Marshaler].
func (m StartSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action      string `json:"action"`
		InputType   string `json:"input_type"`
		AudioFormat string `json:"audio_format,omitempty"`
	}{ActionStartSession, InputAudio, m.AudioFormat})
}

// PauseSession asks the server to stop expecting microphone audio while
// keeping the session alive.
type PauseSession struct{}

// MarshalJSON implements [json.Marshaler].
func (PauseSession) MarshalJSON() ([]byte, error) {
	return actionOnly(ActionPauseSession)
}

// EndSession asks the server to tear the voice session down.
type EndSession struct{}

// MarshalJSON implements [json.Marshaler].
func (EndSession) MarshalJSON() ([]byte, error) {
	return actionOnly(ActionEndSession)
}

// StreamData carries one captured microphone frame as signed 16-bit samples.
type StreamData struct {
	Samples []int16
}

// MarshalJSON implements [json.Marshaler]. A nil Samples slice encodes as an
// empty array.
func (m StreamData) MarshalJSON() ([]byte, error) {
	samples := m.Samples
	if samples == nil {
		samples = []int16{}
	}
	return json.Marshal(struct {
		Action    string  `json:"action"`
		InputType string  `json:"input_type"`
		Data      []int16 `json:"data"`
	}{ActionStreamData, InputAudio, samples})
}

// Heartbeat is the keep-alive message sent on the heartbeat interval.
type Heartbeat struct{}

// MarshalJSON implements [json.Marshaler].
func (Heartbeat) MarshalJSON() ([]byte, error) {
	return actionOnly(ActionPing)
}

// Ping returns the default heartbeat payload, {"action":"ping"}.
func Ping() Heartbeat { return Heartbeat{} }

func actionOnly(action string) ([]byte, error) {
	return json.Marshal(struct {
		Action string `json:"action"`
	}{action})
}

// ── Inbound ───────────────────────────────────────────────────────────────────

// Inbound is one decoded server control message. The concrete type is one of
// [SessionStarted], [UserActivity], [AudioChunk] or [Unknown].
type Inbound interface {
	// Type returns the wire "type" discriminator.
	Type() string

	inbound()
}

// SessionStarted acknowledges a [StartSession] request.
type SessionStarted struct{}

// UserActivity reports that the server detected the user speaking.
type UserActivity struct {
	// InterruptedSpeechID is the turn the server believes was interrupted.
	// Empty when absent or null.
	InterruptedSpeechID string
}

// AudioChunk announces the turn that the following binary frames belong to.
type AudioChunk struct {
	// SpeechID is empty for untagged audio.
	SpeechID string
}

// Unknown is any message whose type this client does not consume, such as
// status updates or transcripts.
type Unknown struct {
	// Kind is the raw "type" field; empty when the field was missing.
	Kind string

	// Raw is the original message.
	Raw json.RawMessage
}

func (SessionStarted) Type() string { return TypeSessionStarted }
func (UserActivity) Type() string   { return TypeUserActivity }
func (AudioChunk) Type() string     { return TypeAudioChunk }
func (u Unknown) Type() string      { return u.Kind }

func (SessionStarted) inbound() {}
func (UserActivity) inbound()   {}
func (AudioChunk) inbound()     {}
func (Unknown) inbound()        {}

// envelope keeps every field raw so that a field of an unexpected JSON type
// never fails the whole message.
type envelope struct {
	Type                json.RawMessage `json:"type"`
	SpeechID            json.RawMessage `json:"speech_id"`
	InterruptedSpeechID json.RawMessage `json:"interrupted_speech_id"`
}

// Decode parses one inbound JSON control message. It fails only when data is
// not a JSON object; objects with an unrecognised or missing type decode to
// [Unknown].
//
// Speech ids are normally strings. A numeric id keeps its literal text, and
// null or any other JSON type reads as untagged.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}

	kind := stringField(env.Type)
	switch kind {
	case TypeSessionStarted:
		return SessionStarted{}, nil
	case TypeUserActivity:
		return UserActivity{InterruptedSpeechID: idField(env.InterruptedSpeechID)}, nil
	case TypeAudioChunk:
		return AudioChunk{SpeechID: idField(env.SpeechID)}, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Kind: kind, Raw: raw}, nil
	}
}

// stringField returns raw as a string, or "" if it is missing, null or not a
// JSON string.
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func idField(raw json.RawMessage) string {
	if s := stringField(raw); s != "" {
		return s
	}
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return ""
	}
	return n.String()
}
