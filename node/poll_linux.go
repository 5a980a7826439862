//go:build linux
// +build linux

package node

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/fzft/go-frame-reactor/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// https://copyconstruct.medium.com/the-method-to-epolls-madness-d9d2d6378642

func epollEvents(interest Interest) uint32 {
	events := uint32(unix.EPOLLET)
	if interest&InterestRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLPRI | unix.EPOLLRDHUP
	}
	if interest&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create epoll", zap.Error(err))
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		log.Logger.Error("Failed to create eventfd", zap.Error(err))
		unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}

	p := &Poller{
		epollFd: epfd,
		efd:     efd,
		fds:     make(map[int]Token),
	}
	if err := p.ctl(unix.EPOLL_CTL_ADD, efd, wakeToken, unix.EPOLLIN); err != nil {
		log.Logger.Error("Failed to add eventfd to epoll", zap.Error(err))
		unix.Close(efd)
		unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

func (p *Poller) ctl(op int, fd int, token Token, events uint32) error {
	ev := &unix.EpollEvent{Events: events}
	setEventToken(ev, token)
	return os.NewSyscallError("epoll_ctl", unix.EpollCtl(p.epollFd, op, fd, ev))
}

// Register subscribes fd under token, edge-triggered. Registering an fd that
// is already known modifies its token and interest instead.
func (p *Poller) Register(fd int, token Token, interest Interest) error {
	op := unix.EPOLL_CTL_ADD
	if _, ok := p.fds[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}
	if err := p.ctl(op, fd, token, epollEvents(interest)); err != nil {
		return fmt.Errorf("register fd %d token %d: %w", fd, token, err)
	}
	p.fds[fd] = token
	return nil
}

// Rearm re-subscribes an already registered fd for read and write, which
// makes epoll report the current readiness as a new edge. It only issues
// epoll_ctl and may be called from any goroutine.
func (p *Poller) Rearm(fd int, token Token) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, token, epollEvents(InterestReadWrite))
}

// Deregister removes fd. It must run before fd is closed. Unknown fds are
// ignored.
func (p *Poller) Deregister(fd int) error {
	if _, ok := p.fds[fd]; !ok {
		return nil
	}
	delete(p.fds, fd)
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.epollFd, unix.EPOLL_CTL_DEL, fd, nil))
}

// PollOnce blocks until at least one event is ready and returns how many
// were stored in events. Interrupted waits are retried.
func (p *Poller) PollOnce(events []unix.EpollEvent) (int, error) {
	for {
		n, err := unix.EpollWait(p.epollFd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, os.NewSyscallError("epoll_wait", err)
		}
		return n, nil
	}
}

// Wake sends sig to whoever is blocked in PollOnce. Safe from any goroutine.
func (p *Poller) Wake(sig pipeSignal) error {
	_, err := unix.Write(p.efd, (*(*[8]byte)(unsafe.Pointer(&sig)))[:])
	if err != nil {
		log.Logger.Error("Failed to write to event fd", zap.Error(err))
		return os.NewSyscallError("write eventfd", err)
	}
	return nil
}

// readSignal drains the wake handle.
func (p *Poller) readSignal() (pipeSignal, error) {
	var buf uint64
	_, err := unix.Read(p.efd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
	if err != nil {
		if IsTemporaryError(err) {
			return 0, nil
		}
		return 0, os.NewSyscallError("read eventfd", err)
	}
	return pipeSignal(buf), nil
}

// Close releases the eventfd and the epoll instance. Registered sockets are
// left to their owners.
func (p *Poller) Close() error {
	var err error
	if e := unix.EpollCtl(p.epollFd, unix.EPOLL_CTL_DEL, p.efd, nil); e != nil {
		log.Logger.Debug("Failed to delete eventfd from epoll", zap.Error(e))
	}
	err = multierr.Append(err, CloseFd(p.efd))
	err = multierr.Append(err, CloseFd(p.epollFd))
	p.fds = map[int]Token{}
	return err
}

// The epoll data word carries the token. x/sys exposes it as Fd plus Pad.
func setEventToken(ev *unix.EpollEvent, token Token) {
	ev.Fd = int32(token)
	ev.Pad = 0
}

func eventToken(ev *unix.EpollEvent) Token {
	return Token(uint32(ev.Fd))
}

func eventIsError(ev *unix.EpollEvent) bool {
	return ev.Events&unix.EPOLLERR != 0
}

// A hang-up counts as readable: the read that follows finds EOF and fails
// the connection, after any data still buffered has been consumed.
func eventIsReadable(ev *unix.EpollEvent) bool {
	return ev.Events&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0
}

func eventIsWritable(ev *unix.EpollEvent) bool {
	return ev.Events&unix.EPOLLOUT != 0
}
