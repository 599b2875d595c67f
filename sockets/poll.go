package sockets

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Readiness is the set of conditions poll reported for one descriptor.
type Readiness uint8

const (
	// Readable means a read will not block (data, EOF, or a pending accept).
	Readable Readiness = 1 << iota
	// Writable means a write will not block.
	Writable
	// Errored means the descriptor has a pending error or is invalid.
	Errored
	// HungUp means both directions of the stream are shut down.
	HungUp
)

// Poller builds a poll(2) set and reports readiness per entry. Entries are
// addressed by the index Add returned. A Poller is reused across iterations
// with Reset.
type Poller struct {
	fds []unix.PollFd
}

// Reset empties the set, keeping its storage.
func (p *Poller) Reset() {
	p.fds = p.fds[:0]
}

// Len is the number of entries in the set.
func (p *Poller) Len() int {
	return len(p.fds)
}

// Add registers fd and returns its index. Error and hang-up conditions are
// always reported by the kernel, so a descriptor added with neither read nor
// write interest is watched for errors only.
func (p *Poller) Add(fd int, read, write bool) int {
	var events int16
	if read {
		events |= unix.POLLIN
	}
	if write {
		events |= unix.POLLOUT
	}
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: events})
	return len(p.fds) - 1
}

// Wait blocks until at least one entry is ready or the timeout elapses. The
// timeout is rounded up to whole milliseconds so that a deadline is never
// reported as not yet reached after waking. A negative timeout waits forever.
// An interrupted wait returns 0 ready entries and no error.
func (p *Poller) Wait(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.Poll(p.fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, errors.Wrap(err, "poll")
	}
	return n, nil
}

// Ready returns what the last Wait reported for entry i.
func (p *Poller) Ready(i int) Readiness {
	re := p.fds[i].Revents
	var r Readiness
	if re&unix.POLLIN != 0 {
		r |= Readable
	}
	if re&unix.POLLOUT != 0 {
		r |= Writable
	}
	if re&(unix.POLLERR|unix.POLLNVAL) != 0 {
		r |= Errored
	}
	if re&unix.POLLHUP != 0 {
		r |= HungUp
	}
	return r
}

// Has reports whether all of the conditions in want are set.
func (r Readiness) Has(want Readiness) bool {
	return r&want == want
}

// Any reports whether any of the conditions in want are set.
func (r Readiness) Any(want Readiness) bool {
	return r&want != 0
}

// String implements fmt.Stringer.
func (r Readiness) String() string {
	s := ""
	for _, c := range []struct {
		bit  Readiness
		name string
	}{{Readable, "r"}, {Writable, "w"}, {Errored, "x"}, {HungUp, "h"}} {
		if r&c.bit != 0 {
			s += c.name
		} else {
			s += "-"
		}
	}
	return s
}
