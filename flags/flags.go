// Package flags parses the command lines of the proxy and the echo server and
// prints their usage banners.
package flags

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"stammer.computer/stammer/common"
	"stammer.computer/stammer/config"
)

// ErrExcessArgs is returned when unparsed arguments remain.
var ErrExcessArgs = errors.New("excess arguments provided")

// ErrUsage is returned when -h or --help is given.
var ErrUsage = errors.New("usage requested")

// Switch describes one option for the usage banner. Options with an empty
// Default are booleans that are set by being present.
type Switch struct {
	Names   []string
	Param   string
	Default string
}

// ProxySwitches lists the proxy's options in banner order.
var ProxySwitches = []Switch{
	{Names: []string{"-l", "--listenPort"}, Param: "listenPort", Default: strconv.Itoa(common.DefaultListenPort)},
	{Names: []string{"-s", "--server"}, Param: "server", Default: common.DefaultServer},
	{Names: []string{"-d", "--debug"}, Param: "debug"},
	{Names: []string{"-?", "--usage"}, Param: "usage"},
	{Names: []string{"-p", "--pausedelay"}, Param: "pauseDelay", Default: fmt.Sprint(common.DefaultPauseDelay.Seconds())},
	{Names: []string{"-b", "--bufcap"}, Param: "bufferCapacity", Default: strconv.Itoa(common.DefaultBufferCapacity)},
	{Names: []string{"--seed"}, Param: "seed", Default: "random"},
	{Names: []string{"-C", "--config"}, Param: "configPath", Default: "none"},
	{Names: []string{"--status"}, Param: "statusAddress", Default: "disabled"},
}

// EchoSwitches lists the echo server's options in banner order.
var EchoSwitches = []Switch{
	{Names: []string{"-l", "--listenPort"}, Param: "listenPort", Default: strconv.Itoa(common.DefaultEchoPort)},
	{Names: []string{"-?", "--usage"}, Param: "usage"},
}

// Usage writes a banner listing every switch and its default.
func Usage(w io.Writer, prog string, switches []Switch) {
	fmt.Fprintf(w, "%s usage:\n", prog)
	for _, s := range switches {
		for _, name := range s.Names {
			if s.Default != "" {
				fmt.Fprintf(w, " [%s %s]   (default = %s)\n", name, s.Param, s.Default)
			} else {
				fmt.Fprintf(w, " [%s]   (%s if present)\n", name, s.Param)
			}
		}
	}
}

// ProxyFlags holds the proxy's command line. Only flags that were given are
// set in Overrides.
type ProxyFlags struct {
	ConfigPath string
	Overrides  config.Optional
}

// ParseProxyArgs parses args, not including the program name.
func ParseProxyArgs(args []string) (*ProxyFlags, error) {
	var (
		f          ProxyFlags
		listenPort int
		server     string
		debug      bool
		usage      bool
		pauseDelay float64
		bufcap     int
		seed       uint64
		status     string
	)
	fs := newFlagSet("stammerProxy")
	intVar(fs, &listenPort, common.DefaultListenPort, "port to listen on", "l", "listenPort")
	stringVar(fs, &server, common.DefaultServer, "backend host:port", "s", "server")
	boolVar(fs, &debug, "log every loop iteration", "d", "debug")
	boolVar(fs, &usage, "print usage and exit", "?", "usage")
	float64Var(fs, &pauseDelay, common.DefaultPauseDelay.Seconds(), "seconds to pause after a partial write", "p", "pausedelay")
	intVar(fs, &bufcap, common.DefaultBufferCapacity, "bytes buffered per direction", "b", "bufcap")
	fs.Uint64Var(&seed, "seed", 0, "seed for chunk sizes, 0 picks one at random")
	stringVar(fs, &f.ConfigPath, "", "path to a TOML config file", "C", "config")
	fs.StringVar(&status, "status", "", "address for the status HTTP endpoint")

	if err := parse(fs, args); err != nil {
		return nil, err
	}

	o := &f.Overrides
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "l", "listenPort":
			o.ListenPort = &listenPort
		case "s", "server":
			o.Server = &server
		case "d", "debug":
			o.Debug = &debug
		case "?", "usage":
			o.Usage = &usage
		case "p", "pausedelay":
			o.PauseDelay = &pauseDelay
		case "b", "bufcap":
			o.BufferCapacity = &bufcap
		case "seed":
			o.Seed = &seed
		case "status":
			o.StatusAddress = &status
		}
	})
	return &f, nil
}

// EchoFlags holds the echo server's command line.
type EchoFlags struct {
	ListenPort int
	Usage      bool
}

// ParseEchoArgs parses args, not including the program name.
func ParseEchoArgs(args []string) (*EchoFlags, error) {
	var f EchoFlags
	fs := newFlagSet("echoserver")
	intVar(fs, &f.ListenPort, common.DefaultEchoPort, "port to listen on", "l", "listenPort")
	boolVar(fs, &f.Usage, "print usage and exit", "?", "usage")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	return &f, nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		return ErrUsage
	}
	if err != nil {
		return err
	}
	if fs.NArg() > 0 { // there were unparsed args
		return errors.Wrapf(ErrExcessArgs, "%q", fs.Args())
	}
	return nil
}

func intVar(fs *flag.FlagSet, p *int, value int, usage string, names ...string) {
	for _, n := range names {
		fs.IntVar(p, n, value, usage)
	}
}

func stringVar(fs *flag.FlagSet, p *string, value string, usage string, names ...string) {
	for _, n := range names {
		fs.StringVar(p, n, value, usage)
	}
}

func boolVar(fs *flag.FlagSet, p *bool, usage string, names ...string) {
	for _, n := range names {
		fs.BoolVar(p, n, false, usage)
	}
}

func float64Var(fs *flag.FlagSet, p *float64, value float64, usage string, names ...string) {
	for _, n := range names {
		fs.Float64Var(p, n, value, usage)
	}
}
