package proxy

import (
	"net/netip"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stammer.computer/stammer/sockets"
)

// ErrListenerFailed is returned by Scheduler.Run when the listening socket
// reports an error. The proxy cannot serve new clients after that.
var ErrListenerFailed = errors.New("listener socket failed")

// Listener accepts clients. It is always interested in reading.
type Listener struct {
	sock   *sockets.Socket
	addr   netip.AddrPort
	accept func(client *sockets.Socket, from netip.AddrPort)
	err    error
}

var _ Pollable = &Listener{}
var _ errorHandler = &Listener{}

// Listen opens a non-blocking listening socket with address reuse enabled.
// Accepted sockets are passed to accept.
func Listen(addr netip.AddrPort, backlog int, accept func(*sockets.Socket, netip.AddrPort)) (*Listener, error) {
	sock, err := sockets.Listen(addr, backlog)
	if err != nil {
		return nil, err
	}
	bound, err := sock.LocalAddr()
	if err != nil {
		sock.Close()
		return nil, err
	}
	return &Listener{
		sock:   sock,
		addr:   bound,
		accept: accept,
	}, nil
}

// Addr is the address the listener is bound to, with the real port when
// listening on port 0.
func (l *Listener) Addr() netip.AddrPort {
	return l.addr
}

// Err returns the fatal error reported on the listening socket, if any.
func (l *Listener) Err() error {
	return l.err
}

// ReadInterest implements Pollable.
func (l *Listener) ReadInterest() Endpoint {
	if l.err != nil {
		return nil
	}
	return l.sock
}

// WriteInterest implements Pollable. Listeners never write.
func (l *Listener) WriteInterest(time.Time) Endpoint {
	return nil
}

// HandleReadable accepts one pending client. Accept failures are logged and
// otherwise ignored; the listener keeps running.
func (l *Listener) HandleReadable(now time.Time) {
	client, from, err := l.sock.Accept()
	if errors.Is(err, sockets.ErrWouldBlock) {
		return
	}
	if err != nil {
		acceptErrors.Inc()
		logrus.Errorf("weird. listener readable but can't accept: %s", err)
		return
	}
	l.accept(client, from)
}

// HandleWritable implements Pollable.
func (l *Listener) HandleWritable(time.Time) {}

// HandleError records a fatal listener failure.
func (l *Listener) HandleError(Endpoint) {
	cause := l.sock.Err()
	logrus.Errorf("listener socket failed!!!!! (%v)", cause)
	l.err = errors.Wrapf(ErrListenerFailed, "%v", cause)
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return l.sock.Close()
}
