package node

import (
	"fmt"
	"strings"

	"github.com/eapache/queue"
)

// QueueOrder selects which queued message OnWrite sends next.
type QueueOrder uint8

const (
	// LIFO sends the most recently queued message first.
	LIFO QueueOrder = iota
	// FIFO sends messages in the order they were queued.
	FIFO
)

func (o QueueOrder) String() string {
	switch o {
	case LIFO:
		return "lifo"
	case FIFO:
		return "fifo"
	default:
		return fmt.Sprintf("QueueOrder(%d)", uint8(o))
	}
}

func ParseQueueOrder(s string) (QueueOrder, error) {
	switch strings.ToLower(s) {
	case "lifo", "":
		return LIFO, nil
	case "fifo":
		return FIFO, nil
	}
	return LIFO, fmt.Errorf("unknown queue order %q", s)
}

// outbound holds the messages waiting to be written to one connection.
// pop takes the message at the removal end; putBack returns a message that
// could not be written so that the next pop yields it again.
type outbound interface {
	push(msg []byte)
	pop() ([]byte, bool)
	putBack(msg []byte)
	len() int
}

func newOutbound(order QueueOrder) outbound {
	if order == FIFO {
		return &fifoQueue{q: queue.New()}
	}
	return &lifoQueue{}
}

type lifoQueue struct {
	msgs [][]byte
}

func (l *lifoQueue) push(msg []byte) {
	l.msgs = append(l.msgs, msg)
}

func (l *lifoQueue) pop() ([]byte, bool) {
	n := len(l.msgs)
	if n == 0 {
		return nil, false
	}
	msg := l.msgs[n-1]
	l.msgs[n-1] = nil
	l.msgs = l.msgs[:n-1]
	return msg, true
}

func (l *lifoQueue) putBack(msg []byte) {
	l.msgs = append(l.msgs, msg)
}

func (l *lifoQueue) len() int {
	return len(l.msgs)
}

// fifoQueue keeps a put back message aside in held, since queue.Queue can
// only add at the tail.
type fifoQueue struct {
	q    *queue.Queue
	held []byte
	has  bool
}

func (f *fifoQueue) push(msg []byte) {
	f.q.Add(msg)
}

func (f *fifoQueue) pop() ([]byte, bool) {
	if f.has {
		msg := f.held
		f.held, f.has = nil, false
		return msg, true
	}
	if f.q.Length() == 0 {
		return nil, false
	}
	return f.q.Remove().([]byte), true
}

func (f *fifoQueue) putBack(msg []byte) {
	f.held, f.has = msg, true
}

func (f *fifoQueue) len() int {
	if f.has {
		return f.q.Length() + 1
	}
	return f.q.Length()
}
