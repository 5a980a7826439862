package node

import (
	"encoding/binary"
	"math"
)

// HeaderLen is the size of the big-endian length prefix in front of every frame.
const HeaderLen = 8

const (
	// DefaultMaxFrameSize bounds frame payloads unless configured otherwise.
	DefaultMaxFrameSize = 16 << 20

	// MaxFrameLimit caps every payload, also when no MaxFrameSize is set.
	// A larger header is a framing error on that connection alone.
	MaxFrameLimit = 1 << 30
)

// EncodeHeader writes n as the frame header into dst[:HeaderLen].
func EncodeHeader(dst []byte, n int) {
	binary.BigEndian.PutUint64(dst[:HeaderLen], uint64(n))
}

// DecodeHeader returns the payload length carried by b. A length that does
// not fit a positive int comes back as -1 so callers can treat it like any
// other non-positive length.
func DecodeHeader(b []byte) (int, error) {
	if len(b) < HeaderLen {
		return 0, ErrInvalidMessageLength
	}
	n := binary.BigEndian.Uint64(b[:HeaderLen])
	if n > math.MaxInt {
		return -1, nil
	}
	return int(n), nil
}

// AppendFrame appends the header and payload of one frame to dst.
func AppendFrame(dst, payload []byte) []byte {
	var hdr [HeaderLen]byte
	EncodeHeader(hdr[:], len(payload))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}
