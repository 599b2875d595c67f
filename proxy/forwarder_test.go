package proxy

import (
	"testing"
	"time"

	"gotest.tools/assert"

	"stammer.computer/stammer/chaos"
)

var epoch = time.Date(1992, 12, 31, 1, 2, 3, 4, time.UTC)

func testForwarder(capacity int, pause time.Duration, c chaos.Chooser) (*Forwarder, *fakeEndpoint, *fakeEndpoint, *fakeOwner) {
	src := newFakeEndpoint("C0:ToClient")
	dst := newFakeEndpoint("C0:ToServer")
	o := &fakeOwner{}
	f := newForwarder(o, src, dst, directionToServer, forwarderOptions{
		capacity:   capacity,
		pauseDelay: pause,
		chooser:    c,
	})
	return f, src, dst, o
}

func TestForwarderChunkAndPause(t *testing.T) {
	f, src, dst, _ := testForwarder(1000, 500*time.Millisecond, chaos.Fixed(3))
	src.in = []byte("hello world")

	assert.Equal(t, f.ReadInterest(), Endpoint(src))
	assert.Assert(t, f.WriteInterest(epoch) == nil)

	f.HandleReadable(epoch)
	assert.Equal(t, f.Buffered(), 11)
	assert.Equal(t, f.WriteInterest(epoch), Endpoint(dst))

	f.HandleWritable(epoch)
	assert.Equal(t, string(dst.out), "hel")
	assert.Equal(t, f.Buffered(), 8)
	assert.Equal(t, f.ResumeAt(), epoch.Add(500*time.Millisecond))

	assert.Assert(t, f.WriteInterest(epoch) == nil)
	assert.Assert(t, f.WriteInterest(epoch.Add(499*time.Millisecond)) == nil)
	assert.Equal(t, f.WriteInterest(epoch.Add(500*time.Millisecond)), Endpoint(dst))

	// Writes before the resume time are ignored.
	f.HandleWritable(epoch.Add(time.Millisecond))
	assert.Equal(t, string(dst.out), "hel")

	now := epoch.Add(500 * time.Millisecond)
	for f.Buffered() > 0 {
		f.HandleWritable(now)
		now = f.ResumeAt()
	}
	assert.Equal(t, string(dst.out), "hello world")
}

func TestForwarderResumeAtMonotonic(t *testing.T) {
	f, src, _, _ := testForwarder(1000, 10*time.Millisecond, chaos.NewUniform(7))
	src.in = make([]byte, 600)
	f.HandleReadable(epoch)

	now := epoch
	prev := f.ResumeAt()
	for f.Buffered() > 0 {
		f.HandleWritable(now)
		if f.Buffered() > 0 {
			assert.Assert(t, f.ResumeAt().After(prev))
			assert.Equal(t, f.ResumeAt(), now.Add(10*time.Millisecond))
		}
		prev = f.ResumeAt()
		now = now.Add(10 * time.Millisecond)
	}
}

func TestForwarderWholeChunkNoPause(t *testing.T) {
	f, src, dst, _ := testForwarder(1000, time.Second, chaos.Whole{})
	src.in = []byte("ping")
	f.HandleReadable(epoch)
	f.HandleWritable(epoch)
	assert.Equal(t, string(dst.out), "ping")
	assert.Assert(t, f.ResumeAt().IsZero())
}

func TestForwarderBackpressure(t *testing.T) {
	f, src, dst, _ := testForwarder(4, 0, chaos.Whole{})
	src.in = []byte("abcdefgh")

	f.HandleReadable(epoch)
	assert.Equal(t, f.Buffered(), 4)
	assert.Assert(t, f.ReadInterest() == nil)
	assert.Equal(t, string(src.in), "efgh")

	f.HandleWritable(epoch)
	assert.Equal(t, string(dst.out), "abcd")
	assert.Equal(t, f.ReadInterest(), Endpoint(src))
}

func TestForwarderWouldBlockWrite(t *testing.T) {
	f, src, dst, o := testForwarder(1000, 20*time.Millisecond, chaos.Whole{})
	src.in = []byte("stuck")
	dst.limit = 0

	f.HandleReadable(epoch)
	f.HandleWritable(epoch)
	assert.Equal(t, f.Buffered(), 5)
	assert.Equal(t, len(o.failed), 0)
	assert.Equal(t, f.ResumeAt(), epoch.Add(20*time.Millisecond))
}

func TestForwarderHalfCloseOnce(t *testing.T) {
	f, src, dst, o := testForwarder(1000, 0, chaos.Whole{})
	src.in = []byte("ab")
	src.eof = true

	f.HandleReadable(epoch)
	assert.Assert(t, !f.Done())
	f.HandleReadable(epoch)
	assert.Assert(t, !f.Done(), "buffered bytes must be delivered first")
	assert.Assert(t, f.ReadInterest() == nil)

	f.HandleWritable(epoch)
	assert.Assert(t, f.Done())
	assert.Equal(t, string(dst.out), "ab")
	assert.Equal(t, dst.halfClosed, 1)
	assert.Equal(t, len(o.done), 1)

	f.HandleReadable(epoch)
	f.HandleWritable(epoch)
	assert.Equal(t, dst.halfClosed, 1)
	assert.Equal(t, len(o.done), 1)
	assert.Assert(t, f.ReadInterest() == nil)
	assert.Assert(t, f.WriteInterest(epoch) == nil)
}

func TestForwarderEOFWithEmptyBuffer(t *testing.T) {
	f, src, dst, o := testForwarder(1000, 0, chaos.Whole{})
	src.eof = true
	f.HandleReadable(epoch)
	assert.Assert(t, f.Done())
	assert.Equal(t, dst.halfClosed, 1)
	assert.Equal(t, len(o.done), 1)
}

func TestForwarderErrors(t *testing.T) {
	t.Run("read", func(t *testing.T) {
		f, src, _, o := testForwarder(1000, 0, chaos.Whole{})
		src.readErr = errBroken
		f.HandleReadable(epoch)
		assert.Equal(t, len(o.failed), 1)
		assert.Assert(t, f.ReadInterest() == nil)
	})
	t.Run("write", func(t *testing.T) {
		f, src, dst, o := testForwarder(1000, 0, chaos.Whole{})
		src.in = []byte("x")
		dst.writeErr = errBroken
		f.HandleReadable(epoch)
		f.HandleWritable(epoch)
		assert.Equal(t, len(o.failed), 1)
		assert.Equal(t, dst.halfClosed, 0)
	})
}

func TestForwarderOwnerClosed(t *testing.T) {
	f, src, _, o := testForwarder(1000, 0, chaos.Whole{})
	src.in = []byte("late")
	o.closed = true
	assert.Assert(t, f.ReadInterest() == nil)
	f.HandleReadable(epoch)
	assert.Equal(t, f.Buffered(), 0)
}

func TestForwarderString(t *testing.T) {
	f, _, _, _ := testForwarder(10, 0, chaos.Whole{})
	assert.Equal(t, f.String(), "C0:ToClient ==> C0:ToServer")
}
