// Package chaos decides how a Forwarder segments its writes. Every write a
// Forwarder performs is capped at a chunk size picked by a Chooser, so the
// receiving peer sees arbitrary message boundaries.
package chaos

import (
	"encoding/binary"
	"io"
	"math"

	"stammer.computer/stammer/pkg"
	"stammer.computer/stammer/pkg/must"
	"stammer.computer/stammer/pkg/readers"
)

// Chooser picks the number of buffered bytes to offer in a single write.
type Chooser interface {
	// ChunkSize returns a value in [1, n]. Callers never pass n < 1.
	ChunkSize(n int) int
}

// Uniform picks chunk sizes uniformly from [1, n] using a seeded,
// reproducible stream.
type Uniform struct {
	seed uint64
	r    io.Reader
}

var _ Chooser = &Uniform{}

// NewUniform returns a Uniform chooser. Two choosers built from the same seed
// return the same sequence of chunk sizes for the same sequence of inputs.
func NewUniform(seed uint64) *Uniform {
	return &Uniform{
		seed: seed,
		r:    readers.DeterministicRandomReader(seed),
	}
}

// NewRandomUniform returns a Uniform chooser with a seed drawn from
// crypto/rand. Log Seed() to be able to replay a run.
func NewRandomUniform() *Uniform {
	var b [8]byte
	must.ReadRandom(b[:])
	return NewUniform(binary.LittleEndian.Uint64(b[:]))
}

// Seed returns the seed the chooser was built from.
func (u *Uniform) Seed() uint64 {
	return u.seed
}

func (u *Uniform) uint64() uint64 {
	var b [8]byte
	_ = must.Do(u.r.Read(b[:]))
	return binary.LittleEndian.Uint64(b[:])
}

// ChunkSize implements Chooser. It uses rejection sampling so every size in
// [1, n] is equally likely.
func (u *Uniform) ChunkSize(n int) int {
	if n < 1 {
		pkg.Panicf("chunk size requested for %d bytes", n)
	}
	if n == 1 {
		return 1
	}
	bound := uint64(n)
	limit := math.MaxUint64 - math.MaxUint64%bound
	for {
		v := u.uint64()
		if v < limit {
			return int(v%bound) + 1
		}
	}
}

// Fixed always offers at most a fixed number of bytes.
type Fixed int

// ChunkSize implements Chooser.
func (f Fixed) ChunkSize(n int) int {
	if int(f) < 1 {
		return 1
	}
	return min(n, int(f))
}

// Whole offers the entire buffer every time, which disables segmentation
// chaos but keeps delays after short writes.
type Whole struct{}

// ChunkSize implements Chooser.
func (Whole) ChunkSize(n int) int {
	return n
}
