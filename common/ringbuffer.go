package common

import "io"

// RingBuffer is an in memory circular byte queue with a hard capacity. It
// implements io.Writer and io.Reader, and additionally supports looking at the
// front of the queue without consuming it (Peek) and consuming bytes without
// copying them (Discard). Storage is allocated lazily and grows by doubling
// until it reaches the capacity.
//
// RingBuffer is not safe for concurrent use.
type RingBuffer struct {
	buf      []byte
	start    int
	length   int
	capacity int
}

var _ io.Reader = &RingBuffer{}
var _ io.Writer = &RingBuffer{}

// NewRingBuffer returns an empty buffer that never holds more than capacity
// bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{capacity: capacity}
}

// Len is the number of buffered bytes.
func (r *RingBuffer) Len() int {
	return r.length
}

// Cap is the maximum number of bytes the buffer will hold.
func (r *RingBuffer) Cap() int {
	return r.capacity
}

// Available is the number of bytes that can be written before the buffer is
// full.
func (r *RingBuffer) Available() int {
	return r.capacity - r.length
}

func (r *RingBuffer) reallocate(size int) {
	if size <= len(r.buf) {
		return
	}

	newSize := 16
	for newSize < size {
		newSize = newSize << 1
	}
	if newSize > r.capacity {
		newSize = r.capacity
	}

	newBuf := make([]byte, newSize)
	n := r.Peek(newBuf)

	r.buf = newBuf
	r.start = 0
	r.length = n
}

// Write implements io.Writer. Bytes beyond Available are not stored, and
// io.ErrShortWrite is returned alongside the count of bytes that were.
func (r *RingBuffer) Write(b []byte) (n int, err error) {
	if len(b) == 0 {
		return 0, nil
	}

	toWrite := len(b)
	if toWrite > r.Available() {
		toWrite = r.Available()
		err = io.ErrShortWrite
	}
	if toWrite == 0 {
		return 0, err
	}
	r.reallocate(r.length + toWrite)

	// ----S++++++E------ copy into the tail, wrapping to the front if needed
	end := (r.start + r.length) % len(r.buf)
	n = copy(r.buf[end:], b[:toWrite])
	if n < toWrite {
		n += copy(r.buf, b[n:toWrite])
	}
	r.length += n
	return n, err
}

// Peek copies up to len(b) bytes from the front of the buffer into b without
// consuming them.
func (r *RingBuffer) Peek(b []byte) int {
	if len(b) == 0 || r.length == 0 {
		return 0
	}
	want := len(b)
	if want > r.length {
		want = r.length
	}

	n := copy(b[:want], r.buf[r.start:])
	if n < want {
		n += copy(b[n:want], r.buf)
	}
	return n
}

// Discard drops up to n bytes from the front of the buffer and returns how
// many were dropped.
func (r *RingBuffer) Discard(n int) int {
	if n > r.length {
		n = r.length
	}
	if n <= 0 {
		return 0
	}
	r.start = (r.start + n) % len(r.buf)
	r.length -= n
	if r.length == 0 {
		r.start = 0
	}
	return n
}

// Read implements io.Reader. An empty buffer returns 0, nil.
func (r *RingBuffer) Read(b []byte) (n int, err error) {
	n = r.Peek(b)
	r.Discard(n)
	return n, nil
}
