//go:build linux
// +build linux

package node

import (
	"fmt"
	"sync"

	"github.com/fzft/go-frame-reactor/log"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// fdStream is a Stream over a non-blocking socket fd.
type fdStream struct {
	fd int
}

func newFdStream(fd int) *fdStream {
	return &fdStream{fd: fd}
}

func (s *fdStream) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (s *fdStream) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (s *fdStream) Fd() int {
	return s.fd
}

func (s *fdStream) Close() error {
	return CloseFd(s.fd)
}

// Connection is one accepted stream plus the state needed to resume a frame
// across several readiness events. At most one frame per direction is in
// flight: readNext caches a decoded body length whose read would block, and
// headerSent marks that inflight's header already went out.
type Connection struct {
	token  Token
	id     string
	addr   string
	stream Stream

	maxFrame int

	// io serializes OnRead/OnWrite for one dispatch.
	io         sync.Mutex
	readNext   int
	headerSent bool
	inflight   []byte
	sent       uint64 // frames fully written

	mu    sync.Mutex
	queue outbound
	// arm re-registers the socket for writability with the owning poller.
	// Nil until the socket is registered, and again once closed.
	arm    func() error
	closed bool
}

func newConnection(token Token, s Stream, addr string, order QueueOrder, maxFrame int) *Connection {
	return &Connection{
		token:    token,
		id:       uuid.NewString(),
		addr:     addr,
		stream:   s,
		maxFrame: maxFrame,
		queue:    newOutbound(order),
	}
}

func (c *Connection) Token() Token {
	return c.token
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.addr
}

func (c *Connection) Fd() int {
	return c.stream.Fd()
}

// OnRead tries to decode one frame. It returns (nil, nil) when no complete
// frame is available yet, the payload when one was read, or an error when
// the connection must be torn down.
//
// Header bytes are not buffered across calls, and a body read that returns
// fewer bytes than declared is fatal rather than accumulated.
func (c *Connection) OnRead() ([]byte, error) {
	n, err := c.readMessageLen()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	limit := c.maxFrame
	if limit <= 0 || limit > MaxFrameLimit {
		limit = MaxFrameLimit
	}
	if n > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limit)
	}

	buf := make([]byte, n)
	got, err := c.stream.Read(buf)
	if err != nil {
		if IsTemporaryError(err) {
			// the header is gone from the socket, keep its length for the next round
			c.readNext = n
			return nil, nil
		}
		log.Logger.Debug("read error", zap.Uint32("token", uint32(c.token)), zap.Error(err))
		return nil, err
	}
	if got < n {
		log.Logger.Debug("short frame body",
			zap.Uint32("token", uint32(c.token)), zap.Int("want", n), zap.Int("got", got))
		return nil, ErrMessageNumber
	}

	c.readNext = 0
	return buf, nil
}

// readMessageLen returns the length of the frame being read, 0 when the
// header read would block.
func (c *Connection) readMessageLen() (int, error) {
	if c.readNext > 0 {
		return c.readNext, nil
	}

	var hdr [HeaderLen]byte
	n, err := c.stream.Read(hdr[:])
	if err != nil {
		if IsTemporaryError(err) {
			return 0, nil
		}
		return 0, err
	}
	if n < HeaderLen {
		return 0, ErrInvalidMessageLength
	}
	return DecodeHeader(hdr[:])
}

// OnWrite writes at most one queued message. Would-block on the header puts
// the message back; would-block on the body keeps it as inflight so that only
// the body is retried. Both return nil; any other failure is returned and the connection
// must be closed. A successful write is taken as complete even if it was
// short.
func (c *Connection) OnWrite() error {
	var msg []byte
	if c.headerSent {
		msg = c.inflight
	} else {
		var ok bool
		c.mu.Lock()
		msg, ok = c.queue.pop()
		c.mu.Unlock()
		if !ok {
			return nil
		}

		var hdr [HeaderLen]byte
		EncodeHeader(hdr[:], len(msg))
		if _, err := c.stream.Write(hdr[:]); err != nil {
			if IsTemporaryError(err) {
				c.putBack(msg)
				return nil
			}
			log.Logger.Debug("write len failed", zap.Uint32("token", uint32(c.token)), zap.Error(err))
			return err
		}
	}

	if _, err := c.stream.Write(msg); err != nil {
		if IsTemporaryError(err) {
			// only the body is left for the next round
			c.headerSent = true
			c.inflight = msg
			return nil
		}
		log.Logger.Debug("write body failed", zap.Uint32("token", uint32(c.token)), zap.Error(err))
		return err
	}

	c.headerSent = false
	c.inflight = nil
	c.sent++
	return nil
}

func (c *Connection) putBack(msg []byte) {
	c.mu.Lock()
	c.queue.putBack(msg)
	c.mu.Unlock()
}

// SendMessage queues msg and asks the owning poller for a fresh writable
// edge, so an idle socket is flushed too. Safe from any goroutine.
func (c *Connection) SendMessage(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.push(msg)
	c.rearmLocked()
}

// watch installs the re-arm hook once the socket is registered.
func (c *Connection) watch(arm func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.arm = arm
	}
}

func (c *Connection) rearm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rearmLocked()
}

// rearmLocked runs under c.mu, which Close also takes before releasing the
// fd, so a re-arm never reaches a closed or reused descriptor.
func (c *Connection) rearmLocked() {
	if c.arm == nil || c.closed {
		return
	}
	if err := c.arm(); err != nil {
		log.Logger.Debug("rearm failed", zap.Uint32("token", uint32(c.token)), zap.Error(err))
	}
}

// pending returns the number of outbound messages not yet fully written.
// The caller holds c.io.
func (c *Connection) pending() int {
	c.mu.Lock()
	n := c.queue.len()
	c.mu.Unlock()
	if c.headerSent {
		n++
	}
	return n
}

func (c *Connection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.arm = nil
	c.mu.Unlock()
	return c.stream.Close()
}
