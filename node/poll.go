package node

// Interest is the readiness a socket is registered for. Registrations are
// always edge-triggered, so a handler must drain a socket until would-block
// on every event it receives.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite

	InterestReadWrite = InterestRead | InterestWrite
)

type pipeSignal uint64

const (
	SignalStop pipeSignal = 1
)

// Poller wraps one epoll instance. It is owned by a single reactor and is not
// safe for concurrent Register/Deregister calls.
type Poller struct {
	epollFd int
	efd     int // eventfd, registered under wakeToken

	// fd -> token of every registered socket
	fds map[int]Token
}

// Len returns the number of registered sockets, not counting the wake handle.
func (p *Poller) Len() int {
	return len(p.fds)
}
