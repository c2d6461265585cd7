package log

import "testing"

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerSocket.String(), "SOCKET"},
		{LayerLink.String(), "LINK"},
		{LayerSession.String(), "SESSION"},
		{CategoryControl.String(), "CONTROL"},
		{CategoryError.String(), "ERROR"},
		{StateEntityApplication.String(), "APPLICATION"},
		{ControlMsgPong.String(), "PONG"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseLayerAndCategory(t *testing.T) {
	if l, ok := ParseLayer("LINK"); !ok || l != LayerLink {
		t.Errorf("ParseLayer(LINK) = %v, %v", l, ok)
	}
	if _, ok := ParseLayer("link"); ok {
		t.Error("ParseLayer should be case-sensitive")
	}
	if c, ok := ParseCategory("STATE"); !ok || c != CategoryState {
		t.Errorf("ParseCategory(STATE) = %v, %v", c, ok)
	}
	if _, ok := ParseCategory("BOGUS"); ok {
		t.Error("ParseCategory accepted an unknown name")
	}
}
