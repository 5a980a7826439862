// Package client is a blocking client for the length-prefixed frame protocol.
package client

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/valyala/bytebufferpool"
)

const headerLen = 8

// DefaultMaxFrameSize is the reply bound a new Client starts with.
const DefaultMaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame too large")

// Client owns one TCP connection to a frame server. It is not safe for
// concurrent use.
type Client struct {
	conn net.Conn
	r    *bufio.Reader

	// MaxFrameSize bounds the replies Recv accepts. It must be positive; a
	// header above it is an error and nothing is allocated for it.
	MaxFrameSize int
}

func Dial(addr string) (*Client, error) {
	return DialTimeout(addr, 0)
}

func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn), MaxFrameSize: DefaultMaxFrameSize}
}

// Send writes payload as one frame with a single write call.
func (c *Client) Send(payload []byte) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var hdr [headerLen]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)

	_, err := c.conn.Write(buf.B)
	return err
}

// Recv reads one whole frame and returns its payload.
func (c *Client) Recv() ([]byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(hdr[:])
	limit := c.MaxFrameSize
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	if n > uint64(limit) {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, n, limit)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Roundtrip sends payload and waits for one reply frame.
func (c *Client) Roundtrip(payload []byte) ([]byte, error) {
	if err := c.Send(payload); err != nil {
		return nil, err
	}
	return c.Recv()
}

func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
