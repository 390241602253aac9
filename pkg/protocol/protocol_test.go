package protocol_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/MrWong99/parley/pkg/protocol"
)

func TestOutbound_Encoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"start without format", protocol.StartSession{}, `{"action":"start_session","input_type":"audio"}`},
		{"start with format", protocol.StartSession{AudioFormat: "pcm16"}, `{"action":"start_session","input_type":"audio","audio_format":"pcm16"}`},
		{"pause", protocol.PauseSession{}, `{"action":"pause_session"}`},
		{"end", protocol.EndSession{}, `{"action":"end_session"}`},
		{"ping", protocol.Ping(), `{"action":"ping"}`},
		{"stream data", protocol.StreamData{Samples: []int16{0, -32768, 32767}}, `{"action":"stream_data","input_type":"audio","data":[0,-32768,32767]}`},
		{"stream data nil samples", protocol.StreamData{}, `{"action":"stream_data","input_type":"audio","data":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want protocol.Inbound
	}{
		{"session started", `{"type":"session_started"}`, protocol.SessionStarted{}},
		{"user activity with id", `{"type":"user_activity","interrupted_speech_id":"s1"}`, protocol.UserActivity{InterruptedSpeechID: "s1"}},
		{"user activity null id", `{"type":"user_activity","interrupted_speech_id":null}`, protocol.UserActivity{}},
		{"user activity no id", `{"type":"user_activity"}`, protocol.UserActivity{}},
		{"audio chunk", `{"type":"audio_chunk","speech_id":"s2"}`, protocol.AudioChunk{SpeechID: "s2"}},
		{"audio chunk untagged", `{"type":"audio_chunk"}`, protocol.AudioChunk{}},
		{"audio chunk numeric id", `{"type":"audio_chunk","speech_id":7}`, protocol.AudioChunk{SpeechID: "7"}},
		{"audio chunk object id", `{"type":"audio_chunk","speech_id":{"n":1}}`, protocol.AudioChunk{}},
		{"user activity numeric id", `{"type":"user_activity","interrupted_speech_id":12}`, protocol.UserActivity{InterruptedSpeechID: "12"}},
		{"user activity bool id", `{"type":"user_activity","interrupted_speech_id":true}`, protocol.UserActivity{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := protocol.Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_UnknownKeepsRaw(t *testing.T) {
	t.Parallel()

	in := `{"type":"transcript","text":"hello"}`
	got, err := protocol.Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := got.(protocol.Unknown)
	if !ok {
		t.Fatalf("got %T, want protocol.Unknown", got)
	}
	if u.Type() != "transcript" {
		t.Errorf("Type() = %q, want transcript", u.Type())
	}
	if string(u.Raw) != in {
		t.Errorf("Raw = %s", u.Raw)
	}

	got, err = protocol.Decode([]byte(`{"status":"ok"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if u, ok := got.(protocol.Unknown); !ok || u.Kind != "" {
		t.Errorf("missing type: got %#v", got)
	}

	got, err = protocol.Decode([]byte(`{"type":3}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if u, ok := got.(protocol.Unknown); !ok || u.Kind != "" {
		t.Errorf("non-string type: got %#v", got)
	}
}

func TestDecode_NotAnObject(t *testing.T) {
	t.Parallel()
	for _, in := range []string{`not json`, `[1,2]`, `"text"`} {
		if _, err := protocol.Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%q): expected error", in)
		}
	}
}
