package common

import "time"

const (
	// DefaultListenPort is the TCP port the proxy accepts clients on.
	DefaultListenPort = 50000

	// DefaultServer is the backend every accepted connection is forwarded to.
	DefaultServer = "127.0.0.1:50001"

	// DefaultEchoPort is the port the echo server listens on. It matches the
	// port in DefaultServer so the two binaries work together out of the box.
	DefaultEchoPort = 50001

	// DefaultPauseDelay is how long a Forwarder waits after a partial write.
	DefaultPauseDelay = 500 * time.Millisecond

	// DefaultBufferCapacity is the maximum number of bytes a single Forwarder
	// holds in flight.
	DefaultBufferCapacity = 1000

	// DefaultPollInterval bounds the readiness wait when no chaos delay is
	// pending.
	DefaultPollInterval = 10 * time.Second

	// DefaultBacklog is the listen(2) backlog for the proxy socket.
	DefaultBacklog = 2

	// EchoReadSize is the largest single read performed by the echo server.
	EchoReadSize = 1024
)

// ProgramName is used in the startup banner.
const ProgramName = "stammerProxy"
