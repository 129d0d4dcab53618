package discovery

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		msgType MessageType
		payload []byte
	}{
		{"empty payload", MsgListSessions, nil},
		{"json payload", MsgHeartbeat, []byte(`{"sessionId":"s1","currentPlayers":3}`)},
		{"raw string payload", MsgJoinSession, []byte("session-123")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := EncodeFrame(tc.msgType, tc.payload)

			gotType, gotPayload, err := ReadFrame(bytes.NewReader(frame))
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if gotType != tc.msgType {
				t.Fatalf("type = %v, want %v", gotType, tc.msgType)
			}
			if !bytes.Equal(gotPayload, tc.payload) {
				t.Fatalf("payload = %q, want %q", gotPayload, tc.payload)
			}
		})
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	frame := EncodeFrame(MsgHeartbeat, make([]byte, 16))
	frame[0] = 0xFF
	frame[1] = 0xFF
	frame[2] = 0xFF
	frame[3] = 0xFF

	if _, _, err := ReadFrame(bytes.NewReader(frame)); err == nil {
		t.Fatalf("expected error for oversized frame")
	}
}

func TestReadFrameRejectsTruncated(t *testing.T) {
	frame := EncodeFrame(MsgHeartbeat, []byte("hello"))
	truncated := frame[:len(frame)-2]

	if _, _, err := ReadFrame(bytes.NewReader(truncated)); err == nil {
		t.Fatalf("expected error for truncated frame")
	}
}

func TestWriteFrameThenReadFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, MsgSessionCreated, []byte("session-abc")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	gotType, gotPayload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if gotType != MsgSessionCreated {
		t.Fatalf("type = %v, want MsgSessionCreated", gotType)
	}
	if string(gotPayload) != "session-abc" {
		t.Fatalf("payload = %q", gotPayload)
	}
}
