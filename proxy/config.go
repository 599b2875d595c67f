package proxy

import (
	"net/netip"
	"time"

	"stammer.computer/stammer/chaos"
	"stammer.computer/stammer/common"
)

// Config holds everything the Scheduler needs. Zero values of Backlog,
// BufferCapacity and PollInterval are replaced by the package defaults; a nil
// Chooser is replaced by a randomly seeded chaos.Uniform.
type Config struct {
	ListenAddress netip.AddrPort
	Backend       netip.AddrPort

	Backlog        int
	BufferCapacity int
	PauseDelay     time.Duration
	PollInterval   time.Duration

	Chooser chaos.Chooser

	// Debug logs every poll: the sleep ceiling and which sockets were ready.
	Debug bool
}

func (c *Config) setDefaults() {
	if c.Backlog <= 0 {
		c.Backlog = common.DefaultBacklog
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = common.DefaultBufferCapacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = common.DefaultPollInterval
	}
	if c.Chooser == nil {
		c.Chooser = chaos.NewRandomUniform()
	}
}
