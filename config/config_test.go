package config

import (
	"net/netip"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

const proxyToml = `ListenPort = 6000
Server = "localhost:7000"
PauseDelay = 0.25
BufferCapacity = 32
Seed = 99
StatusAddress = "127.0.0.1:9100"`

func withFiles(t *testing.T, files fstest.MapFS) {
	old := fileSystem
	fileSystem = files
	t.Cleanup(func() { fileSystem = old })
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, c.ListenPort, 50000)
	assert.Equal(t, c.Server, "127.0.0.1:50001")
	assert.Equal(t, c.PauseDuration(), 500*time.Millisecond)
	assert.Equal(t, c.PollDuration(), 10*time.Second)
	assert.Equal(t, c.BufferCapacity, 1000)
	assert.Equal(t, c.Backlog, 2)
	assert.Equal(t, c.Seed, uint64(0))
	assert.Equal(t, c.StatusAddress, "")
	assert.NilError(t, c.Validate())
	assert.Equal(t, c.ListenAddress(), netip.MustParseAddrPort("0.0.0.0:50000"))
}

func TestLoadFile(t *testing.T) {
	withFiles(t, fstest.MapFS{
		"stammer.toml": &fstest.MapFile{Data: []byte(proxyToml)},
	})
	o, err := LoadFile("stammer.toml")
	assert.NilError(t, err)
	assert.Equal(t, *o.ListenPort, 6000)
	assert.Equal(t, *o.Server, "localhost:7000")
	assert.Equal(t, *o.Seed, uint64(99))
	assert.Assert(t, o.Debug == nil)
	assert.Assert(t, o.Backlog == nil)
}

func TestLoadFileErrors(t *testing.T) {
	withFiles(t, fstest.MapFS{
		"bad.toml":     &fstest.MapFile{Data: []byte(`ListenPort = "six"`)},
		"unknown.toml": &fstest.MapFile{Data: []byte(`Colour = "blue"`)},
	})
	_, err := LoadFile("missing.toml")
	assert.ErrorContains(t, err, "unable to open config file")
	_, err = LoadFile("bad.toml")
	assert.ErrorContains(t, err, "unable to parse bad.toml")
	_, err = LoadFile("unknown.toml")
	assert.ErrorContains(t, err, "Colour")
}

func TestLoadPrecedence(t *testing.T) {
	withFiles(t, fstest.MapFS{
		"stammer.toml": &fstest.MapFile{Data: []byte(proxyToml)},
	})
	port := 6500
	debug := true
	c, err := Load("stammer.toml", &Optional{ListenPort: &port, Debug: &debug})
	assert.NilError(t, err)
	assert.Equal(t, c.ListenPort, 6500)
	assert.Equal(t, c.Debug, true)
	assert.Equal(t, c.Server, "localhost:7000")
	assert.Equal(t, c.PauseDuration(), 250*time.Millisecond)
	assert.Equal(t, c.BufferCapacity, 32)
	assert.Equal(t, c.Backlog, 2)
}

func TestLoadWithoutFile(t *testing.T) {
	c, err := Load("", nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, *c, Default())
}

func TestLoadUsageSkipsValidation(t *testing.T) {
	usage := true
	server := "garbage"
	c, err := Load("", &Optional{Usage: &usage, Server: &server})
	assert.NilError(t, err)
	assert.Assert(t, c.Usage)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		target error
		msg    string
	}{
		{name: "port zero", mutate: func(c *Config) { c.ListenPort = 0 }, target: ErrBadListenPort},
		{name: "port too big", mutate: func(c *Config) { c.ListenPort = 70000 }, target: ErrBadListenPort},
		{name: "no port", mutate: func(c *Config) { c.Server = "localhost" }, target: ErrBadServerAddress},
		{name: "no host", mutate: func(c *Config) { c.Server = ":50001" }, target: ErrBadServerAddress},
		{name: "bad port", mutate: func(c *Config) { c.Server = "localhost:http2" }, target: ErrBadServerAddress},
		{name: "negative delay", mutate: func(c *Config) { c.PauseDelay = -1 }, msg: "pause delay"},
		{name: "zero poll", mutate: func(c *Config) { c.PollInterval = 0 }, msg: "poll interval"},
		{name: "zero capacity", mutate: func(c *Config) { c.BufferCapacity = 0 }, msg: "buffer capacity"},
		{name: "zero backlog", mutate: func(c *Config) { c.Backlog = 0 }, msg: "backlog"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if tc.target != nil {
				assert.Assert(t, errors.Is(err, tc.target), "got %v", err)
			} else {
				assert.ErrorContains(t, err, tc.msg)
			}
		})
	}
}

func TestParseServerAddress(t *testing.T) {
	a, err := ParseServerAddress("127.0.0.1:50001")
	assert.NilError(t, err)
	assert.Equal(t, a, netip.MustParseAddrPort("127.0.0.1:50001"))

	a, err = ParseServerAddress("[::1]:8080")
	assert.NilError(t, err)
	assert.Equal(t, a, netip.MustParseAddrPort("[::1]:8080"))

	_, err = ParseServerAddress("127.0.0.1")
	assert.Assert(t, errors.Is(err, ErrBadServerAddress))
	_, err = ParseServerAddress("no such host.invalid:80")
	assert.Assert(t, errors.Is(err, ErrBadServerAddress))
}
