package proxy

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stammer.computer/stammer/chaos"
	"stammer.computer/stammer/common"
	"stammer.computer/stammer/sockets"
)

// Forwarder relays bytes from source to destination through a bounded buffer.
// Reads take as much as fits. Writes offer only a chosen prefix of the buffer
// and, when anything is left over, hold further writes back for pauseDelay.
type Forwarder struct {
	owner       owner
	source      Endpoint
	destination Endpoint
	direction   string

	buf     *common.RingBuffer
	scratch []byte

	sourceClosed bool
	resumeAt     time.Time
	done         bool

	pauseDelay time.Duration
	chooser    chaos.Chooser
}

var _ Pollable = &Forwarder{}

type forwarderOptions struct {
	capacity   int
	pauseDelay time.Duration
	chooser    chaos.Chooser
}

func newForwarder(o owner, source, destination Endpoint, direction string, opts forwarderOptions) *Forwarder {
	return &Forwarder{
		owner:       o,
		source:      source,
		destination: destination,
		direction:   direction,
		buf:         common.NewRingBuffer(opts.capacity),
		scratch:     make([]byte, opts.capacity),
		pauseDelay:  opts.pauseDelay,
		chooser:     opts.chooser,
	}
}

// Buffered is the number of bytes waiting for the destination.
func (f *Forwarder) Buffered() int {
	return f.buf.Len()
}

// ResumeAt is the earliest time the next write may be attempted.
func (f *Forwarder) ResumeAt() time.Time {
	return f.resumeAt
}

// Done reports whether the forwarder has half-closed its destination.
func (f *Forwarder) Done() bool {
	return f.done
}

func (f *Forwarder) inactive() bool {
	return f.done || f.owner.Closed()
}

// ReadInterest implements Pollable. Reading stops while the buffer is full and
// for good once the source has reached end of stream.
func (f *Forwarder) ReadInterest() Endpoint {
	if f.inactive() || f.sourceClosed || f.buf.Available() == 0 {
		return nil
	}
	return f.source
}

// WriteInterest implements Pollable. A forwarder with bytes to send is still
// not interested until its pause has run out.
func (f *Forwarder) WriteInterest(now time.Time) Endpoint {
	if f.inactive() || f.buf.Len() == 0 || now.Before(f.resumeAt) {
		return nil
	}
	return f.destination
}

// HandleReadable implements Pollable. It performs a single read of at most the
// free buffer space.
func (f *Forwarder) HandleReadable(now time.Time) {
	if f.inactive() || f.sourceClosed {
		return
	}
	free := f.buf.Available()
	if free == 0 {
		return
	}

	n, err := f.source.Read(f.scratch[:free])
	switch {
	case errors.Is(err, io.EOF):
		f.sourceClosed = true
	case errors.Is(err, sockets.ErrWouldBlock):
		return
	case err != nil:
		logrus.Errorf("connection %d: receive from %s failed: %s", f.owner.ID(), f.source.Name(), err)
		f.owner.fail(err)
		return
	default:
		f.buf.Write(f.scratch[:n])
		bytesRead.WithLabelValues(f.direction).Add(float64(n))
	}
	f.checkDone()
}

// HandleWritable implements Pollable. It offers the destination a random
// prefix of the buffer and keeps whatever was not accepted. The pause runs
// from now, the loop's sample for this iteration, not from the moment the
// write completed.
func (f *Forwarder) HandleWritable(now time.Time) {
	if f.inactive() || f.buf.Len() == 0 || now.Before(f.resumeAt) {
		return
	}

	buffered := f.buf.Len()
	k := f.chooser.ChunkSize(buffered)
	logrus.Debugf("attempting to send %d of %d", k, buffered)
	chunk := f.scratch[:f.buf.Peek(f.scratch[:k])]
	chunkSizes.WithLabelValues(f.direction).Observe(float64(len(chunk)))

	n, err := f.destination.Write(chunk)
	if err != nil && !errors.Is(err, sockets.ErrWouldBlock) {
		logrus.Errorf("connection %d: send to %s failed: %s", f.owner.ID(), f.destination.Name(), err)
		f.owner.fail(err)
		return
	}
	f.buf.Discard(n)
	bytesWritten.WithLabelValues(f.direction).Add(float64(n))

	if f.buf.Len() > 0 {
		f.resumeAt = now.Add(f.pauseDelay)
		chaosDelays.WithLabelValues(f.direction).Inc()
	}
	f.checkDone()
}

// checkDone half-closes the destination and tells the owner, once, after the
// source is exhausted and everything read from it has been delivered.
func (f *Forwarder) checkDone() {
	if f.done || !f.sourceClosed || f.buf.Len() > 0 {
		return
	}
	f.done = true
	if err := f.destination.CloseWrite(); err != nil {
		logrus.Errorf("connection %d: half-close of %s failed: %s", f.owner.ID(), f.destination.Name(), err)
		f.owner.fail(err)
		return
	}
	f.owner.forwarderDone(f)
}

func (f *Forwarder) String() string {
	return f.source.Name() + " ==> " + f.destination.Name()
}
