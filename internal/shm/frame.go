package shm

import (
	"encoding/binary"
)

// Frame layout (little-endian):
//
//	offset 0: uint32 length L
//	offset 4: L payload bytes
//
// Bytes past 4+L are stale and never interpreted. L == 0 means empty.
const FrameHeaderSize = 4

// MaxPayloadSize returns the payload space available in a segment of the given capacity.
func MaxPayloadSize(capacity int) int {
	if capacity < FrameHeaderSize {
		return 0
	}
	return capacity - FrameHeaderSize
}

// EncodeFrame builds the length-prefixed frame for payload. It fails with
// *TooLargeError when payload exceeds capacity - 4.
func EncodeFrame(payload []byte, capacity int) ([]byte, error) {
	limit := MaxPayloadSize(capacity)
	if len(payload) > limit {
		return nil, &TooLargeError{Size: len(payload), Limit: limit}
	}

	frame := make([]byte, FrameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[:FrameHeaderSize], uint32(len(payload)))
	copy(frame[FrameHeaderSize:], payload)
	return frame, nil
}

// DecodeFrame returns the payload held in raw. The returned slice aliases raw.
// A zero length yields ErrEmpty; a length beyond len(raw)-4 yields *CorruptError.
func DecodeFrame(raw []byte) ([]byte, error) {
	if len(raw) < FrameHeaderSize {
		return nil, &CorruptError{Limit: 0}
	}

	n, err := FrameLength(raw[:FrameHeaderSize], len(raw))
	if err != nil {
		return nil, err
	}
	return raw[FrameHeaderSize : FrameHeaderSize+n], nil
}

// FrameLength validates the header against the segment capacity and returns
// the payload length it declares.
func FrameLength(header []byte, capacity int) (int, error) {
	limit := MaxPayloadSize(capacity)
	if len(header) < FrameHeaderSize {
		return 0, &CorruptError{Limit: limit}
	}

	length := binary.LittleEndian.Uint32(header[:FrameHeaderSize])
	if length == 0 {
		return 0, ErrEmpty
	}
	if uint64(length) > uint64(limit) {
		return 0, &CorruptError{Length: length, Limit: limit}
	}
	return int(length), nil
}

// EmptyHeader is the header written by a clear.
func EmptyHeader() []byte {
	return make([]byte, FrameHeaderSize)
}
