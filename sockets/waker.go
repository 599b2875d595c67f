package sockets

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Waker is a self-pipe used to interrupt Poller.Wait from another goroutine.
// Add ReadFd to the poll set; Wake makes it readable, Drain resets it.
type Waker struct {
	r, w   int
	closed bool
}

// NewWaker opens the pipe. Both ends are non-blocking.
func NewWaker() (*Waker, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, errors.Wrap(err, "pipe")
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, errors.Wrap(err, "set nonblock")
		}
	}
	return &Waker{r: p[0], w: p[1]}, nil
}

// ReadFd is the descriptor to poll for readability.
func (w *Waker) ReadFd() int {
	return w.r
}

// Wake makes ReadFd readable. It is safe to call from any goroutine while the
// Waker is open. A full pipe already means a wake-up is pending.
func (w *Waker) Wake() {
	unix.Write(w.w, []byte{1})
}

// Drain consumes pending wake-ups.
func (w *Waker) Drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close closes both ends of the pipe.
func (w *Waker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	unix.Close(w.w)
	return unix.Close(w.r)
}
