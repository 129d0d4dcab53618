// Package discovery implements C11: a plain-TCP session-discovery
// protocol for match-server hosts that cannot (or choose not to) register
// over HTTP. Framing is grounded on klingdex's stream_handler.go
// length-prefixed bufio reader, adapted from libp2p streams to net.Conn
// and from a 4-byte big-endian length to the spec's little-endian u32
// plus a leading type byte.
package discovery

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's payload, mirroring klingdex's
// maxMessageSize guard against a hostile or corrupt length prefix.
const MaxFrameSize = 1 << 20 // 1 MiB

// MessageType identifies a frame's payload shape (spec §6.2).
type MessageType uint8

const (
	MsgRegisterHost   MessageType = 1
	MsgUnregisterHost MessageType = 2
	MsgListSessions   MessageType = 3
	MsgJoinSession    MessageType = 4
	MsgHeartbeat      MessageType = 5

	MsgSessionCreated MessageType = 101
	MsgSessionList    MessageType = 102
	MsgJoinInfo       MessageType = 103
	MsgError          MessageType = 104
	MsgHeartbeatAck   MessageType = 105
)

// EncodeFrame serializes type+payload as [u32 LE length][u8 type][payload],
// length = 1 + len(payload).
func EncodeFrame(msgType MessageType, payload []byte) []byte {
	buf := make([]byte, 4+1+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(1+len(payload)))
	buf[4] = byte(msgType)
	copy(buf[5:], payload)
	return buf
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, msgType MessageType, payload []byte) error {
	_, err := w.Write(EncodeFrame(msgType, payload))
	return err
}

// ReadFrame reads one frame from r, enforcing MaxFrameSize.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length == 0 {
		return 0, nil, fmt.Errorf("discovery: frame missing type byte")
	}
	if length > MaxFrameSize {
		return 0, nil, fmt.Errorf("discovery: frame too large: %d > %d", length, MaxFrameSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return MessageType(body[0]), body[1:], nil
}
