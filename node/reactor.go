//go:build linux
// +build linux

package node

import (
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/fzft/go-frame-reactor/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Reactor runs one poll-and-dispatch loop. Every reactor owns its Poller
// and a private dup of the listening socket; the ConnectionRegistry is
// shared. A connection is only ever registered with the reactor that
// accepted it, so all of its readiness events land on that reactor.
type Reactor struct {
	id       int
	poll     *Poller
	listenFD int
	registry *ConnectionRegistry
	handler  MessageHandler
	stats    *counters
	events   []unix.EpollEvent

	// tokens this reactor registered, released on shutdown
	owned map[Token]struct{}

	// closed guards Stop against waking a poller whose fds are gone.
	mu     sync.Mutex
	closed bool
}

func NewReactor(id int, listenFD int, registry *ConnectionRegistry, handler MessageHandler, eventsPerPoll int, stats *counters) (*Reactor, error) {
	poll, err := NewPoller()
	if err != nil {
		return nil, err
	}
	if eventsPerPoll <= 0 {
		eventsPerPoll = DefaultEventsPerPoll
	}
	if stats == nil {
		stats = &counters{}
	}
	if handler == nil {
		handler = DefaultHandler{}
	}
	return &Reactor{
		id:       id,
		poll:     poll,
		listenFD: listenFD,
		registry: registry,
		handler:  handler,
		stats:    stats,
		events:   make([]unix.EpollEvent, eventsPerPoll),
		owned:    make(map[Token]struct{}),
	}, nil
}

// Run registers the listener and loops until Stop is called or polling fails.
// A poll failure is returned; Stop makes Run return nil.
func (r *Reactor) Run() error {
	logger := log.Logger.With(zap.Int("reactor", r.id))

	defer func() {
		if cerr := r.closeGracefully(); cerr != nil {
			logger.Debug("reactor close", zap.Error(cerr))
		}
		logger.Info("reactor closed")
	}()

	if err := r.poll.Register(r.listenFD, ListenerToken, InterestRead); err != nil {
		logger.Error("Failed to add listener to epoll", zap.Error(err))
		return err
	}

	teardown := make([]Token, 0, 16)
	for {
		n, err := r.poll.PollOnce(r.events)
		if err != nil {
			logger.Error("epoll wait error", zap.Error(err))
			return err
		}

		stopped := false
		teardown = teardown[:0]
		for i := 0; i < n; i++ {
			ev := &r.events[i]
			token := eventToken(ev)
			if token == wakeToken {
				sig, err := r.poll.readSignal()
				if err != nil {
					logger.Error("Failed to read from event fd", zap.Error(err))
				}
				if sig == SignalStop {
					stopped = true
				}
				continue
			}
			teardown = r.onEvent(ev, token, teardown)
		}

		for _, token := range teardown {
			r.retire(token)
		}

		if stopped {
			logger.Info("Received stop signal. Exiting event loop.")
			return nil
		}
	}
}

// Stop asks Run to return after the batch it is processing. Stopping a
// reactor that already exited is a no-op.
func (r *Reactor) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.poll.Wake(SignalStop)
}

func (r *Reactor) onEvent(ev *unix.EpollEvent, token Token, teardown []Token) []Token {
	if eventIsError(ev) {
		if token == ListenerToken {
			log.Logger.Error("epoll error event on listener", zap.Int("reactor", r.id))
			return teardown
		}
		log.Logger.Debug("error event recv", zap.Uint32("token", uint32(token)))
		r.retire(token)
		return teardown
	}

	if eventIsReadable(ev) {
		if token == ListenerToken {
			r.accept()
		} else if err := r.forwardReadable(token); err != nil {
			log.Logger.Debug("forward read failed", zap.Uint32("token", uint32(token)), zap.Error(err))
			teardown = append(teardown, token)
		}
	}

	if eventIsWritable(ev) && token != ListenerToken {
		err := r.registry.WithConn(token, func(c *Connection) error {
			before := c.sent
			if err := c.OnWrite(); err != nil {
				return err
			}
			if c.sent > before {
				r.stats.messagesOut.Add(1)
			}
			// one message per event; ask for another edge while more are queued
			if c.pending() > 0 {
				c.rearm()
			}
			return nil
		})
		if err != nil && !errors.Is(err, ErrInvalidToken) {
			log.Logger.Debug("write failed", zap.Uint32("token", uint32(token)), zap.Error(err))
			teardown = append(teardown, token)
		}
	}
	return teardown
}

// accept drains the listener until it would block.
func (r *Reactor) accept() {
	for {
		connFd, sa, err := unix.Accept4(r.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if !IsTemporaryError(err) {
				log.Logger.Error("accept error", zap.Int("reactor", r.id), zap.Error(err))
			}
			return
		}

		r.admit(connFd, sockaddrString(sa))
	}
}

// admit gives an accepted fd a token and registers it with this reactor's
// poller. On failure the fd is closed and no slot is kept.
func (r *Reactor) admit(connFd int, addr string) (Token, error) {
	token, err := r.registry.Allocate(newFdStream(connFd), addr)
	if err != nil {
		log.Logger.Warn("no available token found", zap.String("addr", addr), zap.Error(err))
		r.stats.rejected.Add(1)
		CloseFd(connFd)
		return 0, err
	}

	if err := r.poll.Register(connFd, token, InterestReadWrite); err != nil {
		log.Logger.Error("register client failed", zap.Uint32("token", uint32(token)), zap.Error(err))
		if c := r.registry.Remove(token); c != nil {
			c.Close()
		}
		return 0, err
	}

	if c, err := r.registry.Get(token); err == nil {
		poll := r.poll
		c.watch(func() error { return poll.Rearm(connFd, token) })
	}
	r.owned[token] = struct{}{}
	r.stats.accepted.Add(1)
	log.Logger.Debug("client added",
		zap.Int("reactor", r.id), zap.Uint32("token", uint32(token)), zap.String("addr", addr))
	return token, nil
}

// forwardReadable decodes frames from token until none is left and hands each
// one to the handler.
func (r *Reactor) forwardReadable(token Token) error {
	return r.registry.WithConn(token, func(c *Connection) error {
		for {
			msg, err := c.OnRead()
			if err != nil {
				return err
			}
			if msg == nil {
				return nil
			}
			r.stats.messagesIn.Add(1)
			if err := r.handler.OnMessageReceived(c, msg); err != nil {
				return err
			}
		}
	})
}

// retire deregisters, frees and closes token. Already freed tokens are ignored.
func (r *Reactor) retire(token Token) {
	c := r.registry.Remove(token)
	if c == nil {
		return
	}
	delete(r.owned, token)
	if err := r.poll.Deregister(c.Fd()); err != nil {
		log.Logger.Debug("deregister failed", zap.Uint32("token", uint32(token)), zap.Error(err))
	}
	if err := c.Close(); err != nil {
		log.Logger.Debug("close failed", zap.Uint32("token", uint32(token)), zap.Error(err))
	}
	r.stats.closed.Add(1)
	log.Logger.Debug("client removed", zap.Uint32("token", uint32(token)), zap.String("id", c.ID()))
}

// closeGracefully order: listener, connections, poller.
func (r *Reactor) closeGracefully() error {
	var err error
	err = multierr.Append(err, r.poll.Deregister(r.listenFD))
	err = multierr.Append(err, CloseFd(r.listenFD))
	for token := range r.owned {
		r.retire(token)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return err
	}
	r.closed = true
	return multierr.Append(err, r.poll.Close())
}

func sockaddrString(sa unix.Sockaddr) string {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port))
	default:
		return ""
	}
}
