package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{
			name: "command",
			env: Envelope{
				Destination: DomainBrowser,
				Source:      "8d3a8b3e-5b4c-4b9a-9d0b-1f1f2c3d4e5f",
				Type:        FrameCommand,
				ID:          1,
				Message: Message{
					Service: ServiceMedia,
					Data: Data{
						Name:   "play",
						Params: json.RawMessage(`{"position":12.5}`),
					},
				},
			},
		},
		{
			name: "reply with status",
			env: Envelope{
				Destination: "8d3a8b3e-5b4c-4b9a-9d0b-1f1f2c3d4e5f",
				Source:      DomainBrowser,
				Type:        FrameReply,
				ID:          42,
				Status:      "OK",
				Message: Message{
					Service: ServiceMedia,
					Data: Data{
						Name:   "playbackStatus",
						Params: json.RawMessage(`{"code":0,"state":2}`),
					},
				},
			},
		},
		{
			name: "event with options",
			env: Envelope{
				Destination: DestinationAll,
				Source:      DomainSettings,
				Type:        FrameEvent,
				ID:          7,
				Message: Message{
					Service: ServiceSettingsDevice,
					Data: Data{
						Name:    "updateStatus",
						Params:  json.RawMessage(`{"state":"downloading","progress":50}`),
						Options: json.RawMessage(`{"priority":"high"}`),
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(&tt.env)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Destination != tt.env.Destination {
				t.Errorf("dst: got %q, want %q", decoded.Destination, tt.env.Destination)
			}
			if decoded.Source != tt.env.Source {
				t.Errorf("src: got %q, want %q", decoded.Source, tt.env.Source)
			}
			if decoded.Type != tt.env.Type {
				t.Errorf("type: got %q, want %q", decoded.Type, tt.env.Type)
			}
			if decoded.ID != tt.env.ID {
				t.Errorf("id: got %d, want %d", decoded.ID, tt.env.ID)
			}
			if decoded.Status != tt.env.Status {
				t.Errorf("status: got %q, want %q", decoded.Status, tt.env.Status)
			}
			if decoded.Message.Service != tt.env.Message.Service {
				t.Errorf("service: got %q, want %q", decoded.Message.Service, tt.env.Message.Service)
			}
			if decoded.Message.Data.Name != tt.env.Message.Data.Name {
				t.Errorf("name: got %q, want %q", decoded.Message.Data.Name, tt.env.Message.Data.Name)
			}
			if !bytes.Equal(decoded.Message.Data.Params, tt.env.Message.Data.Params) {
				t.Errorf("params: got %s, want %s", decoded.Message.Data.Params, tt.env.Message.Data.Params)
			}
			if !bytes.Equal(decoded.Message.Data.Options, tt.env.Message.Data.Options) {
				t.Errorf("options: got %s, want %s", decoded.Message.Data.Options, tt.env.Message.Data.Options)
			}
		})
	}
}

func TestEncodeEmptyParamsAsObject(t *testing.T) {
	env := Envelope{
		Destination: DomainSettings,
		Source:      "me",
		Type:        FrameCommand,
		ID:          3,
		Message:     Message{Service: ServiceSettingsDevice, Data: Data{Name: "getDeviceID"}},
	}

	data, err := Encode(&env)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"params":{}`)) {
		t.Errorf("expected empty params object, got %s", data)
	}
	if env.Message.Data.Params != nil {
		t.Error("Encode must not modify the caller's envelope")
	}
}

func TestEncodeRejectsUnknownType(t *testing.T) {
	_, err := Encode(&Envelope{Type: "query"})
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		wantID  int
	}{
		{"reply", `{"dst":"a","src":"browser","type":"reply","id":5,"status":"OK","message":{"service":"s","data":{"name":"n","params":{}}}}`, false, 5},
		{"link fatal without type", `{"dst":"*","src":"browser","id":-1,"status":"json_format_error"}`, false, -1},
		{"unknown type", `{"dst":"a","src":"b","type":"query","id":2}`, true, 0},
		{"not json", `hello`, true, 0},
		{"truncated", `{"dst":"a","src":`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("expected ErrMalformedFrame, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if env.ID != tt.wantID {
				t.Errorf("id: got %d, want %d", env.ID, tt.wantID)
			}
		})
	}
}

func TestPeekID(t *testing.T) {
	id, ok := PeekID([]byte(`{"id":9,"type":"bogus","message":"not an object"}`))
	if !ok || id != 9 {
		t.Errorf("PeekID = (%d, %v), want (9, true)", id, ok)
	}

	if _, ok := PeekID([]byte(`{"type":"reply"}`)); ok {
		t.Error("PeekID should fail when id is absent")
	}
	if _, ok := PeekID([]byte(`garbage`)); ok {
		t.Error("PeekID should fail on invalid JSON")
	}
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(ServiceMedia, "seek", map[string]float64{"position": 30})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var params struct {
		Position float64 `json:"position"`
	}
	if err := msg.DecodeParams(&params); err != nil {
		t.Fatalf("DecodeParams failed: %v", err)
	}
	if params.Position != 30 {
		t.Errorf("position: got %v, want 30", params.Position)
	}

	empty, err := NewMessage(ServiceSettingsDevice, "getDeviceID", nil)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if string(empty.Data.Params) != "{}" {
		t.Errorf("nil params: got %s, want {}", empty.Data.Params)
	}

	withOpts, err := msg.WithOptions(map[string]bool{"autoplay": true})
	if err != nil {
		t.Fatalf("WithOptions failed: %v", err)
	}
	if string(withOpts.Data.Options) != `{"autoplay":true}` {
		t.Errorf("options: got %s", withOpts.Data.Options)
	}
	if msg.Data.Options != nil {
		t.Error("WithOptions must not modify the original message")
	}
}

func TestConnectedStatus(t *testing.T) {
	connected := Message{
		Service: ServiceWebApp,
		Data:    Data{Name: EventConnectedStatus, Params: json.RawMessage(`{"status":"connected"}`)},
	}
	status, ok := connected.ConnectedStatus()
	if !ok || status != ConnectedStatusConnected {
		t.Errorf("ConnectedStatus = (%q, %v), want (connected, true)", status, ok)
	}

	other := Message{Service: ServiceMedia, Data: Data{Name: "playbackStatus"}}
	if _, ok := other.ConnectedStatus(); ok {
		t.Error("media event should not be a connectedStatus event")
	}
}

func TestIsOK(t *testing.T) {
	for _, s := range []string{"ok", "OK", "Ok"} {
		if !IsOK(s) {
			t.Errorf("IsOK(%q) = false", s)
		}
	}
	for _, s := range []string{"", "error", "json_format_error"} {
		if IsOK(s) {
			t.Errorf("IsOK(%q) = true", s)
		}
	}
}
