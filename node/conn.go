package node

import "strconv"

// Token identifies one connection slot in a ConnectionRegistry. It is also
// the key the Poller reports readiness events under.
type Token uint32

const (
	// ListenerToken is reserved for the listening socket and is never handed to a client.
	ListenerToken Token = 1000

	// wakeToken is reserved for the poller's shutdown eventfd.
	wakeToken Token = ListenerToken + 1
)

func (t Token) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// Conn is the view of a connection handed to a MessageHandler.
type Conn interface {
	Token() Token

	// ID is the session id used to correlate log lines for this connection.
	ID() string

	RemoteAddr() string

	// SendMessage queues msg for writing. It is safe to call from any
	// goroutine. msg is shared, not copied, and must not be modified
	// afterwards.
	SendMessage(msg []byte)
}

// Stream is the raw byte stream behind a Connection. Read and Write must not
// block; when no data or buffer space is available they return an error
// matching unix.EAGAIN.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Fd() int
	Close() error
}
