package handler

import (
	"fmt"
	"sync"

	"github.com/fzft/go-frame-reactor/node"
	"github.com/klauspost/compress/zstd"
)

var (
	encoderPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return enc
	}}
	decoderPool = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	}}
)

// Compress returns payload as a zstd frame.
func Compress(payload []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)
	return enc.EncodeAll(payload, nil)
}

func Decompress(payload []byte) ([]byte, error) {
	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)
	out, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// Zstd wraps next so that it sees decompressed messages and everything it
// sends is compressed. A message that is not valid zstd closes the
// connection.
type Zstd struct {
	next node.MessageHandler
}

func NewZstd(next node.MessageHandler) *Zstd {
	return &Zstd{next: next}
}

func (z *Zstd) OnMessageReceived(c node.Conn, msg []byte) error {
	plain, err := Decompress(msg)
	if err != nil {
		return err
	}
	return z.next.OnMessageReceived(zstdConn{c}, plain)
}

type zstdConn struct {
	node.Conn
}

func (c zstdConn) SendMessage(msg []byte) {
	c.Conn.SendMessage(Compress(msg))
}
