//go:build linux
// +build linux

package node

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/fzft/go-frame-reactor/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultAddr          = "127.0.0.1:7777"
	DefaultMaxClients    = 127
	DefaultReactors      = 3
	DefaultEventsPerPoll = 1024
)

type Config struct {
	// Addr is the listen address in ip:port form.
	Addr string

	// MaxClients bounds the live connections and must stay below ListenerToken.
	MaxClients int

	// Reactors is the number of event loops, each on its own OS thread.
	Reactors int

	QueueOrder QueueOrder

	// MaxFrameSize rejects frames whose declared length is larger. 0 leaves
	// only MaxFrameLimit in force.
	MaxFrameSize int

	// EventsPerPoll sizes each reactor's event buffer.
	EventsPerPoll int
}

func DefaultConfig() Config {
	return Config{
		Addr:          DefaultAddr,
		MaxClients:    DefaultMaxClients,
		Reactors:      DefaultReactors,
		QueueOrder:    LIFO,
		MaxFrameSize:  DefaultMaxFrameSize,
		EventsPerPoll: DefaultEventsPerPoll,
	}
}

func (c Config) Validate() error {
	if err := validateAddr(c.Addr); err != nil {
		return err
	}
	if c.MaxClients < 0 || c.MaxClients >= int(ListenerToken) {
		return fmt.Errorf("%w: got %d, limit %d", ErrTooManyClients, c.MaxClients, ListenerToken)
	}
	if c.Reactors <= 0 {
		return fmt.Errorf("reactors must be positive, got %d", c.Reactors)
	}
	if c.MaxFrameSize < 0 || c.MaxFrameSize > MaxFrameLimit {
		return fmt.Errorf("%w: max frame size %d outside [0, %d]", ErrFrameTooLarge, c.MaxFrameSize, MaxFrameLimit)
	}
	return nil
}

// validateAddr accepts a literal ip and a numeric port.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	if net.ParseIP(host) == nil {
		return fmt.Errorf("%w: %q is not an ip", ErrInvalidAddr, host)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%w: bad port %q", ErrInvalidAddr, port)
	}
	return nil
}

type counters struct {
	accepted    atomic.Int64
	rejected    atomic.Int64
	closed      atomic.Int64
	messagesIn  atomic.Int64
	messagesOut atomic.Int64
}

// Stats is a snapshot of the server counters.
type Stats struct {
	Addr        string `json:"addr"`
	Reactors    int    `json:"reactors"`
	Live        int    `json:"live"`
	Capacity    int    `json:"capacity"`
	Accepted    int64  `json:"accepted"`
	Rejected    int64  `json:"rejected"`
	Closed      int64  `json:"closed"`
	MessagesIn  int64  `json:"messages_in"`
	MessagesOut int64  `json:"messages_out"`
}

type Server struct {
	cfg      Config
	handler  MessageHandler
	registry *ConnectionRegistry
	stats    counters

	mu       sync.Mutex
	ln       net.Listener
	reactors []*Reactor
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.EventsPerPoll <= 0 {
		cfg.EventsPerPoll = DefaultEventsPerPoll
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := NewConnectionRegistry(cfg.MaxClients, cfg.QueueOrder, cfg.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
	}, nil
}

func (s *Server) SetHandler(handler MessageHandler) {
	s.handler = handler
}

// Listen binds the listening socket. Run calls it when it has not been called yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := listen(s.cfg.Addr)
	if err != nil {
		log.Logger.Error("listen error", zap.String("addr", s.cfg.Addr), zap.Error(err))
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run starts the reactors and blocks until ctx is done or a reactor fails.
// Either way every reactor is stopped and the listener closed before Run
// returns.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	if s.handler == nil {
		s.handler = DefaultHandler{}
	}

	reactors, err := s.newReactors()
	if err != nil {
		s.closeListener()
		return fmt.Errorf("%w: %v", ErrCouldNotStart, err)
	}

	errCh := make(chan error, len(reactors))
	var wg sync.WaitGroup
	for _, r := range reactors {
		wg.Add(1)
		go func(r *Reactor) {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			errCh <- r.Run()
		}(r)
	}

	log.Logger.Info("listening on", zap.Stringer("addr", s.Addr()), zap.Int("reactors", len(reactors)),
		zap.Int("max_clients", s.cfg.MaxClients), zap.Stringer("queue", s.cfg.QueueOrder))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		// a reactor only returns on its own after a poll failure
		if runErr != nil {
			log.Logger.Error("reactor failed", zap.Error(runErr))
		}
	}

	log.Logger.Info("shutting down server")
	for _, r := range reactors {
		if err := r.Stop(); err != nil {
			log.Logger.Debug("stop reactor", zap.Int("reactor", r.id), zap.Error(err))
		}
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		runErr = multierr.Append(runErr, err)
	}
	return multierr.Append(runErr, s.closeListener())
}

func (s *Server) newReactors() ([]*Reactor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reactors := make([]*Reactor, 0, s.cfg.Reactors)
	for i := 0; i < s.cfg.Reactors; i++ {
		fd, err := dupListener(s.ln)
		if err == nil {
			var r *Reactor
			r, err = NewReactor(i, fd, s.registry, s.handler, s.cfg.EventsPerPoll, &s.stats)
			if err == nil {
				reactors = append(reactors, r)
				continue
			}
			CloseFd(fd)
		}
		for _, r := range reactors {
			err = multierr.Append(err, r.closeGracefully())
		}
		return nil, err
	}
	s.reactors = reactors
	return reactors, nil
}

func (s *Server) closeListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	s.reactors = nil
	return err
}

func (s *Server) Registry() *ConnectionRegistry {
	return s.registry
}

// SendTo queues msg on one connection.
func (s *Server) SendTo(token Token, msg []byte) error {
	return s.registry.SendTo(token, msg)
}

// Broadcast queues msg on every live connection. Each one is re-armed for
// writing, so idle connections receive it as well.
func (s *Server) Broadcast(msg []byte) int {
	return s.registry.Broadcast(msg)
}

func (s *Server) Stats() Stats {
	st := Stats{
		Reactors:    s.cfg.Reactors,
		Live:        s.registry.Len(),
		Capacity:    s.registry.Cap(),
		Accepted:    s.stats.accepted.Load(),
		Rejected:    s.stats.rejected.Load(),
		Closed:      s.stats.closed.Load(),
		MessagesIn:  s.stats.messagesIn.Load(),
		MessagesOut: s.stats.messagesOut.Load(),
	}
	if addr := s.Addr(); addr != nil {
		st.Addr = addr.String()
	} else {
		st.Addr = s.cfg.Addr
	}
	return st
}
