package proxy

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle stage of a Connection.
type State int

// Connection states. Closed is terminal.
const (
	StateOpening State = iota
	StateForwarding
	StateHalfDone
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateForwarding:
		return "forwarding"
	case StateHalfDone:
		return "half-done"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connection pairs a client socket with the backend socket opened for it and
// owns one Forwarder per direction.
type Connection struct {
	id         uint64
	clientAddr netip.AddrPort
	client     Endpoint
	backend    Endpoint

	toServer   *Forwarder
	toClient   *Forwarder
	forwarders map[*Forwarder]struct{}

	established bool
	closed      bool

	reg *registry
}

var _ owner = &Connection{}
var _ errorHandler = &Connection{}

// newConnection wires up both directions and registers the connection. The
// backend connect may still be in progress.
func newConnection(id uint64, client Endpoint, clientAddr netip.AddrPort, backend Endpoint, opts forwarderOptions, reg *registry) *Connection {
	c := &Connection{
		id:         id,
		clientAddr: clientAddr,
		client:     client,
		backend:    backend,
		forwarders: make(map[*Forwarder]struct{}, 2),
		reg:        reg,
	}
	c.toServer = newForwarder(c, client, backend, directionToServer, opts)
	c.toClient = newForwarder(c, backend, client, directionToClient, opts)
	c.forwarders[c.toServer] = struct{}{}
	c.forwarders[c.toClient] = struct{}{}
	reg.add(c)
	return c
}

// ID is the process-unique sequence number of the connection.
func (c *Connection) ID() uint64 {
	return c.id
}

// ClientAddr is the address the client connected from.
func (c *Connection) ClientAddr() netip.AddrPort {
	return c.clientAddr
}

// Closed reports whether the connection has been torn down.
func (c *Connection) Closed() bool {
	return c.closed
}

// State derives the lifecycle stage from the forwarders and the backend.
func (c *Connection) State() State {
	switch {
	case c.closed:
		return StateClosed
	case len(c.forwarders) < 2:
		return StateHalfDone
	case c.established:
		return StateForwarding
	default:
		return StateOpening
	}
}

// Forwarders returns the forwarders that have not completed yet.
func (c *Connection) Forwarders() []*Forwarder {
	out := make([]*Forwarder, 0, len(c.forwarders))
	for _, f := range []*Forwarder{c.toServer, c.toClient} {
		if _, ok := c.forwarders[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// markEstablished records that the backend socket has become ready, which
// means the connect finished.
func (c *Connection) markEstablished() {
	c.established = true
}

func (c *Connection) forwarderDone(f *Forwarder) {
	if _, ok := c.forwarders[f]; !ok {
		return
	}
	delete(c.forwarders, f)
	logrus.Infof("forwarder %s from connection %d shutting down", f, c.id)
	if len(c.forwarders) == 0 {
		c.Die()
	}
}

func (c *Connection) fail(err error) {
	if c.closed {
		return
	}
	connectionFailures.Inc()
	c.Die()
}

// HandleError is called when either socket reports error readiness.
func (c *Connection) HandleError(e Endpoint) {
	if c.closed {
		return
	}
	name := "unknown socket"
	var cause error
	if e != nil {
		name = e.Name()
		cause = e.Err()
	}
	logrus.Errorf("connection %d from %s failing due to error on %s: %v", c.id, c.clientAddr, name, cause)
	c.fail(cause)
}

// Die tears the connection down: both sockets are closed and the connection
// leaves the registry. Calling it again does nothing.
func (c *Connection) Die() {
	if c.closed {
		return
	}
	c.closed = true
	logrus.Infof("connection %d shutting down", c.id)
	for _, e := range []Endpoint{c.backend, c.client} {
		if err := e.Close(); err != nil {
			logrus.Debugf("connection %d: closing %s: %s", c.id, e.Name(), err)
		}
	}
	c.reg.remove(c)
}
