// Package config contains the proxy configuration: defaults, TOML files, and
// the merge of command-line overrides on top of both.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"stammer.computer/stammer/common"
	"stammer.computer/stammer/sockets"
)

// ErrBadServerAddress is returned when the backend is not a usable host:port.
var ErrBadServerAddress = errors.New("bad server address")

// ErrBadListenPort is returned for listen ports outside 1-65535.
var ErrBadListenPort = errors.New("bad listen port")

// Config is a fully resolved proxy configuration. Durations are in seconds, as
// they are on the command line.
type Config struct {
	ListenPort int
	Server     string
	PauseDelay float64
	Debug      bool
	Usage      bool

	BufferCapacity int
	Seed           uint64
	PollInterval   float64
	Backlog        int
	StatusAddress  string
}

// Optional holds settings from a single source. Nil fields were not set and
// leave the lower-precedence value alone.
type Optional struct {
	ListenPort *int
	Server     *string
	PauseDelay *float64
	Debug      *bool
	Usage      *bool `toml:"-"`

	BufferCapacity *int
	Seed           *uint64
	PollInterval   *float64
	Backlog        *int
	StatusAddress  *string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenPort:     common.DefaultListenPort,
		Server:         common.DefaultServer,
		PauseDelay:     common.DefaultPauseDelay.Seconds(),
		BufferCapacity: common.DefaultBufferCapacity,
		PollInterval:   common.DefaultPollInterval.Seconds(),
		Backlog:        common.DefaultBacklog,
	}
}

// Apply copies every set field of o into c.
func (c *Config) Apply(o *Optional) {
	if o == nil {
		return
	}
	if o.ListenPort != nil {
		c.ListenPort = *o.ListenPort
	}
	if o.Server != nil {
		c.Server = *o.Server
	}
	if o.PauseDelay != nil {
		c.PauseDelay = *o.PauseDelay
	}
	if o.Debug != nil {
		c.Debug = *o.Debug
	}
	if o.Usage != nil {
		c.Usage = *o.Usage
	}
	if o.BufferCapacity != nil {
		c.BufferCapacity = *o.BufferCapacity
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.PollInterval != nil {
		c.PollInterval = *o.PollInterval
	}
	if o.Backlog != nil {
		c.Backlog = *o.Backlog
	}
	if o.StatusAddress != nil {
		c.StatusAddress = *o.StatusAddress
	}
}

// Load returns the defaults, overridden by the file at path (if path is
// non-empty), overridden by flags.
func Load(path string, flags *Optional) (*Config, error) {
	c := Default()
	if path != "" {
		o, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		c.Apply(o)
	}
	c.Apply(flags)
	if c.Usage {
		return &c, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile parses a TOML configuration file. Unknown keys are an error.
func LoadFile(path string) (*Optional, error) {
	f, err := fileSystem.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open config file")
	}
	defer f.Close()

	var o Optional
	md, err := toml.NewDecoder(f).Decode(&o)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%s: unknown settings: %s", path, strings.Join(keys, ", "))
	}
	return &o, nil
}

// Validate checks ranges and that the server address parses.
func (c *Config) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return errors.Wrapf(ErrBadListenPort, "%d", c.ListenPort)
	}
	if _, _, err := splitServerAddress(c.Server); err != nil {
		return err
	}
	if c.PauseDelay < 0 {
		return fmt.Errorf("pause delay must not be negative, got %g", c.PauseDelay)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %g", c.PollInterval)
	}
	if c.BufferCapacity < 1 {
		return fmt.Errorf("buffer capacity must be at least 1, got %d", c.BufferCapacity)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("backlog must be at least 1, got %d", c.Backlog)
	}
	return nil
}

// ListenAddress is the wildcard IPv4 address on ListenPort.
func (c *Config) ListenAddress() netip.AddrPort {
	return netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(c.ListenPort))
}

// PauseDuration is PauseDelay as a time.Duration.
func (c *Config) PauseDuration() time.Duration {
	return seconds(c.PauseDelay)
}

// PollDuration is PollInterval as a time.Duration.
func (c *Config) PollDuration() time.Duration {
	return seconds(c.PollInterval)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseServerAddress resolves a host:port backend address once. The host may
// be a name, an IPv4 address, or a bracketed IPv6 address.
func ParseServerAddress(s string) (netip.AddrPort, error) {
	host, port, err := splitServerAddress(s)
	if err != nil {
		return netip.AddrPort{}, err
	}
	addr, err := sockets.Resolve(net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return netip.AddrPort{}, errors.Wrapf(ErrBadServerAddress, "%q: %s", s, err)
	}
	return addr, nil
}

func splitServerAddress(s string) (string, int, error) {
	host, portString, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, errors.Wrapf(ErrBadServerAddress, "%q: %s", s, err)
	}
	if host == "" {
		return "", 0, errors.Wrapf(ErrBadServerAddress, "%q: missing host", s)
	}
	port, err := strconv.Atoi(portString)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, errors.Wrapf(ErrBadServerAddress, "%q: bad port %q", s, portString)
	}
	return host, port, nil
}
