package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// maxFrameBytes guards against a corrupt or malicious length prefix driving
// an unbounded allocation.
const maxFrameBytes = 16 << 20

// writeFrame gob-encodes msg and writes it as a 4-byte little-endian length
// prefix followed by the payload.
func writeFrame(w io.Writer, msg IpcMessage) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("ipc: encode message: %w", err)
	}
	if buf.Len() > maxFrameBytes {
		return fmt.Errorf("ipc: message too large (%d bytes)", buf.Len())
	}
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("ipc: write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("ipc: write payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed gob-encoded IpcMessage.
func readFrame(r io.Reader) (IpcMessage, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return IpcMessage{}, err
	}
	n := binary.LittleEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return IpcMessage{}, fmt.Errorf("ipc: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return IpcMessage{}, fmt.Errorf("ipc: read payload: %w", err)
	}
	var msg IpcMessage
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return IpcMessage{}, fmt.Errorf("ipc: decode message: %w", err)
	}
	return msg, nil
}
