package daemon

import (
	"encoding/json"
	"testing"
)

func TestCommandMarshalStart(t *testing.T) {
	cmd := Command{
		Cmd:         CmdStart,
		Locale:      "en_US",
		Device:      "MacBook Pro Microphone",
		SystemAudio: BoolPtr(false),
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"cmd":"start","locale":"en_US","device":"MacBook Pro Microphone","systemAudio":false}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestCommandOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Command{Cmd: CmdStop})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"cmd":"stop"}` {
		t.Errorf("json = %s", data)
	}
}

func TestResponseError(t *testing.T) {
	j := `{"ok":false,"error":"Microphone permission denied"}`

	var resp Response
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.OK {
		t.Error("ok = true, want false")
	}
	if resp.Error != "Microphone permission denied" {
		t.Errorf("error = %q, want %q", resp.Error, "Microphone permission denied")
	}
}

func TestEventSegment(t *testing.T) {
	j := `{"event":"segment","text":"Hello there","source":"microphone","sessionId":"sess-1","sequenceNumber":5}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.SequenceNumber == nil || *ev.SequenceNumber != 5 {
		t.Errorf("sequenceNumber = %v, want 5", ev.SequenceNumber)
	}
	if ev.SessionID != "sess-1" {
		t.Errorf("sessionId = %q, want %q", ev.SessionID, "sess-1")
	}
	if !ev.FromMicrophone() {
		t.Error("segment should be from microphone")
	}
}

func TestEventFromMicrophone(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"", true},
		{"microphone", true},
		{"systemAudio", false},
	}
	for _, tt := range tests {
		if got := (Event{Source: tt.source}).FromMicrophone(); got != tt.want {
			t.Errorf("FromMicrophone(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestEventError(t *testing.T) {
	j := `{"event":"error","message":"No speech detected","transient":true}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.Message != "No speech detected" {
		t.Errorf("message = %q", ev.Message)
	}
	if ev.Transient == nil || !*ev.Transient {
		t.Errorf("transient = %v, want true", ev.Transient)
	}
}

func TestEventStatus(t *testing.T) {
	j := `{"event":"status","recording":false}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.Recording == nil || *ev.Recording {
		t.Errorf("recording = %v, want false", ev.Recording)
	}
}
