package proxy

import (
	"io"
	"time"
)

// Endpoint is one end of a forwarded byte stream. All operations must be
// non-blocking; sockets.Socket is the production implementation.
type Endpoint interface {
	io.ReadWriteCloser

	// CloseWrite shuts down the write side only.
	CloseWrite() error

	// Err returns the pending socket error, if any.
	Err() error

	Fd() int
	Name() string
}

// Pollable is implemented by everything the Scheduler polls on behalf of.
// Interest methods return nil when there is no interest.
type Pollable interface {
	ReadInterest() Endpoint
	WriteInterest(now time.Time) Endpoint
	HandleReadable(now time.Time)
	HandleWritable(now time.Time)
}

// errorHandler receives error readiness for the sockets it owns.
type errorHandler interface {
	HandleError(e Endpoint)
}

// owner is the view a Forwarder has of its Connection.
type owner interface {
	ID() uint64
	Closed() bool
	fail(err error)
	forwarderDone(f *Forwarder)
}
