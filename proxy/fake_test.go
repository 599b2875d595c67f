package proxy

import (
	"io"

	"github.com/pkg/errors"

	"stammer.computer/stammer/sockets"
)

// fakeEndpoint is an in-memory Endpoint. Reads drain in, then report EOF if
// eof is set and would-block otherwise. Writes accept at most limit bytes
// when limit is non-negative.
type fakeEndpoint struct {
	name string
	fd   int

	in      []byte
	eof     bool
	readErr error

	out      []byte
	limit    int
	writeErr error

	halfClosed int
	closed     int
	sockErr    error
}

var _ Endpoint = &fakeEndpoint{}

func newFakeEndpoint(name string) *fakeEndpoint {
	return &fakeEndpoint{name: name, limit: -1}
}

func (e *fakeEndpoint) Read(p []byte) (int, error) {
	if e.readErr != nil {
		return 0, e.readErr
	}
	if len(e.in) == 0 {
		if e.eof {
			return 0, io.EOF
		}
		return 0, sockets.ErrWouldBlock
	}
	n := copy(p, e.in)
	e.in = e.in[n:]
	return n, nil
}

func (e *fakeEndpoint) Write(p []byte) (int, error) {
	if e.writeErr != nil {
		return 0, e.writeErr
	}
	n := len(p)
	if e.limit >= 0 && n > e.limit {
		n = e.limit
	}
	if n == 0 {
		return 0, sockets.ErrWouldBlock
	}
	e.out = append(e.out, p[:n]...)
	return n, nil
}

func (e *fakeEndpoint) CloseWrite() error {
	e.halfClosed++
	return nil
}

func (e *fakeEndpoint) Close() error {
	e.closed++
	return nil
}

func (e *fakeEndpoint) Err() error   { return e.sockErr }
func (e *fakeEndpoint) Fd() int      { return e.fd }
func (e *fakeEndpoint) Name() string { return e.name }

type fakeOwner struct {
	id     uint64
	closed bool
	failed []error
	done   []*Forwarder
}

var _ owner = &fakeOwner{}

func (o *fakeOwner) ID() uint64   { return o.id }
func (o *fakeOwner) Closed() bool { return o.closed }

func (o *fakeOwner) fail(err error) {
	o.failed = append(o.failed, err)
	o.closed = true
}

func (o *fakeOwner) forwarderDone(f *Forwarder) {
	o.done = append(o.done, f)
}

var errBroken = errors.New("broken pipe")
