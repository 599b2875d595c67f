package sockets

import (
	"io"
	"net"
	"net/netip"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned when a non-blocking operation cannot make progress
// right now. It is never a reason to tear a connection down.
var ErrWouldBlock = errors.New("operation would block")

// Socket is a non-blocking stream socket identified by a file descriptor. The
// name is only used for diagnostics.
type Socket struct {
	fd     int
	name   string
	closed bool
}

func newSocket(fd int, name string) *Socket {
	return &Socket{fd: fd, name: name}
}

// Fd returns the underlying file descriptor.
func (s *Socket) Fd() int {
	return s.fd
}

// Name returns the diagnostic name of the socket.
func (s *Socket) Name() string {
	return s.name
}

// SetName replaces the diagnostic name.
func (s *Socket) SetName(name string) {
	s.name = name
}

// String implements fmt.Stringer.
func (s *Socket) String() string {
	return s.name
}

// Closed reports whether Close has been called.
func (s *Socket) Closed() bool {
	return s.closed
}

func isTransient(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

// Read performs one non-blocking read. A zero-length read of a non-empty
// buffer is reported as io.EOF.
func (s *Socket) Read(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	n, err := unix.Read(s.fd, p)
	if err != nil {
		if isTransient(err) {
			return 0, ErrWouldBlock
		}
		return 0, errors.Wrapf(err, "recv on %s", s.name)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write performs one non-blocking write. The kernel may accept fewer bytes
// than offered.
func (s *Socket) Write(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	n, err := unix.Write(s.fd, p)
	if err != nil {
		if isTransient(err) {
			return 0, ErrWouldBlock
		}
		return 0, errors.Wrapf(err, "send on %s", s.name)
	}
	return n, nil
}

// CloseWrite shuts down the write side of the socket. The peer reads EOF once
// it has consumed everything sent before.
func (s *Socket) CloseWrite() error {
	if s.closed {
		return net.ErrClosed
	}
	if err := unix.Shutdown(s.fd, unix.SHUT_WR); err != nil {
		return errors.Wrapf(err, "shutdown on %s", s.name)
	}
	return nil
}

// Close releases the descriptor. Closing twice is a no-op.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

// Err returns the pending socket error (SO_ERROR), or nil. Reading it clears
// it in the kernel.
func (s *Socket) Err() error {
	if s.closed {
		return net.ErrClosed
	}
	v, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.Wrapf(err, "getsockopt on %s", s.name)
	}
	if v != 0 {
		return syscall.Errno(v)
	}
	return nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() (netip.AddrPort, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(err, "getsockname on %s", s.name)
	}
	return fromSockaddr(sa), nil
}

// Listen opens a non-blocking listening socket on addr with SO_REUSEADDR set.
func Listen(addr netip.AddrPort, backlog int) (*Socket, error) {
	fd, err := openStream(addr)
	if err != nil {
		return nil, err
	}
	if err := listen(fd, addr, backlog); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return newSocket(fd, "listener"), nil
}

func listen(fd int, addr netip.AddrPort, backlog int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return errors.Wrap(err, "setsockopt SO_REUSEADDR")
	}
	if err := unix.Bind(fd, toSockaddr(addr)); err != nil {
		return errors.Wrapf(err, "bind %s", addr)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	return nil
}

// Accept takes one pending connection off a listening socket. The returned
// socket is non-blocking.
func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	if s.closed {
		return nil, netip.AddrPort{}, net.ErrClosed
	}
	nfd, sa, err := unix.Accept(s.fd)
	if err != nil {
		if isTransient(err) || err == unix.ECONNABORTED {
			return nil, netip.AddrPort{}, ErrWouldBlock
		}
		return nil, netip.AddrPort{}, errors.Wrap(err, "accept")
	}
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, netip.AddrPort{}, errors.Wrap(err, "set nonblock")
	}
	peer := fromSockaddr(sa)
	return newSocket(nfd, peer.String()), peer, nil
}

// Dial opens a non-blocking socket and starts connecting it to addr. The
// connect usually completes later: the socket becomes writable on success and
// reports an error through poll on failure. Errors returned here are failures
// the kernel reported immediately.
func Dial(addr netip.AddrPort) (*Socket, error) {
	fd, err := openStream(addr)
	if err != nil {
		return nil, err
	}
	err = unix.Connect(fd, toSockaddr(addr))
	if err != nil && err != unix.EINPROGRESS && err != unix.EINTR {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "connect %s", addr)
	}
	return newSocket(fd, addr.String()), nil
}

func openStream(addr netip.AddrPort) (int, error) {
	domain := unix.AF_INET
	if !addr.Addr().Unmap().Is4() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "socket")
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "set nonblock")
	}
	return fd, nil
}

func toSockaddr(addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr().Unmap()
	if ip.Is4() {
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	}
	return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}

// Resolve turns a host:port string into a single address, preferring what the
// system resolver returns first.
func Resolve(hostport string) (netip.AddrPort, error) {
	a, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(err, "resolve %q", hostport)
	}
	ap := a.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}
