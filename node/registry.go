//go:build linux
// +build linux

package node

import (
	"sync"

	"github.com/fzft/go-frame-reactor/log"
	"go.uber.org/zap"
)

// ConnectionRegistry is a fixed capacity slot table of live connections
// keyed by Token. It is shared by every reactor. The RWMutex only guards the
// slots; a connection's I/O state is guarded by its own lock, taken through
// WithConn, and its send queue by another.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	slots []*Connection
	free  []Token // stack, most recently freed on top
	live  int

	order    QueueOrder
	maxFrame int
}

func NewConnectionRegistry(capacity int, order QueueOrder, maxFrame int) (*ConnectionRegistry, error) {
	if capacity < 0 || capacity >= int(ListenerToken) {
		return nil, ErrTooManyClients
	}
	r := &ConnectionRegistry{
		slots:    make([]*Connection, capacity),
		free:     make([]Token, 0, capacity),
		order:    order,
		maxFrame: maxFrame,
	}
	for i := capacity - 1; i >= 0; i-- {
		r.free = append(r.free, Token(i))
	}
	return r, nil
}

// Allocate binds s to a free slot and returns its token. Registering the
// token with a Poller is up to the caller.
func (r *ConnectionRegistry) Allocate(s Stream, addr string) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.free)
	if n == 0 {
		return 0, ErrRegistryFull
	}
	token := r.free[n-1]
	r.free = r.free[:n-1]
	r.slots[token] = newConnection(token, s, addr, r.order, r.maxFrame)
	r.live++
	return token, nil
}

// Remove frees token's slot and returns the connection that held it, or nil
// when the slot was already free. The returned connection is neither
// deregistered nor closed.
func (r *ConnectionRegistry) Remove(token Token) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(token) >= len(r.slots) {
		return nil
	}
	c := r.slots[token]
	if c == nil {
		return nil
	}
	r.slots[token] = nil
	r.free = append(r.free, token)
	r.live--
	return c
}

func (r *ConnectionRegistry) Get(token Token) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(token) >= len(r.slots) || r.slots[token] == nil {
		return nil, ErrInvalidToken
	}
	return r.slots[token], nil
}

// WithConn runs fn with exclusive access to token's I/O state. No two
// callers drive the same connection's reads or writes at once.
func (r *ConnectionRegistry) WithConn(token Token, fn func(c *Connection) error) error {
	c, err := r.Get(token)
	if err != nil {
		return err
	}
	c.io.Lock()
	defer c.io.Unlock()
	return fn(c)
}

// SendTo queues msg on the connection behind token.
func (r *ConnectionRegistry) SendTo(token Token, msg []byte) error {
	c, err := r.Get(token)
	if err != nil {
		log.Logger.Debug("no client got", zap.Uint32("token", uint32(token)))
		return err
	}
	c.SendMessage(msg)
	return nil
}

// Broadcast queues msg on every live connection and returns how many got it.
func (r *ConnectionRegistry) Broadcast(msg []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.slots {
		if c != nil {
			c.SendMessage(msg)
			n++
		}
	}
	return n
}

// tokens returns the tokens of all live connections.
func (r *ConnectionRegistry) tokens() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]Token, 0, r.live)
	for i, c := range r.slots {
		if c != nil {
			tokens = append(tokens, Token(i))
		}
	}
	return tokens
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

func (r *ConnectionRegistry) Cap() int {
	return len(r.slots)
}
