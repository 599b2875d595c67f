package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stammer.computer/stammer/chaos"
	"stammer.computer/stammer/common"
	"stammer.computer/stammer/config"
	"stammer.computer/stammer/flags"
	"stammer.computer/stammer/proxy"
	"stammer.computer/stammer/status"
)

const (
	exitConfig   = 1
	exitListener = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func setUpLogging(debug bool) {
	tty := isatty.IsTerminal(os.Stderr.Fd())
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:   tty,
		DisableColors: !tty,
		FullTimestamp: true,
	})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func run(ctx context.Context, args []string) int {
	setUpLogging(false)

	f, err := flags.ParseProxyArgs(args)
	if err != nil {
		if !errors.Is(err, flags.ErrUsage) {
			logrus.Error(err)
		}
		flags.Usage(os.Stdout, common.ProgramName, flags.ProxySwitches)
		return exitConfig
	}
	c, err := config.Load(f.ConfigPath, &f.Overrides)
	if err != nil {
		logrus.Errorf("error loading config: %s", err)
		return exitConfig
	}
	if c.Usage {
		flags.Usage(os.Stdout, common.ProgramName, flags.ProxySwitches)
		return exitConfig
	}
	setUpLogging(c.Debug)

	backend, err := config.ParseServerAddress(c.Server)
	if err != nil {
		logrus.Errorf("can't parse server %s: %s", c.Server, err)
		return exitConfig
	}

	var chooser *chaos.Uniform
	if c.Seed != 0 {
		chooser = chaos.NewUniform(c.Seed)
	} else {
		chooser = chaos.NewRandomUniform()
	}
	logrus.Infof("chunk size seed %d (rerun with --seed %d to replay)", chooser.Seed(), chooser.Seed())

	s, err := proxy.NewScheduler(proxy.Config{
		ListenAddress:  c.ListenAddress(),
		Backend:        backend,
		Backlog:        c.Backlog,
		BufferCapacity: c.BufferCapacity,
		PauseDelay:     c.PauseDuration(),
		PollInterval:   c.PollDuration(),
		Chooser:        chooser,
		Debug:          c.Debug,
	})
	if err != nil {
		logrus.Errorf("unable to listen on port %d: %s", c.ListenPort, err)
		return exitListener
	}
	fmt.Printf("%s: listening on %d, will forward to %s\n", common.ProgramName, c.ListenPort, c.Server)

	if c.StatusAddress != "" {
		srv, err := startStatus(c.StatusAddress, s)
		if err != nil {
			logrus.Errorf("unable to start status endpoint: %s", err)
			return exitConfig
		}
		defer srv.Shutdown(context.Background())
	}

	err = s.Run(ctx)
	switch {
	case errors.Is(err, proxy.ErrListenerFailed):
		logrus.Error(err)
		return exitListener
	case errors.Is(err, context.Canceled):
		logrus.Info("shutting down")
		return 0
	case err != nil:
		logrus.Error(err)
		return exitListener
	}
	return 0
}

func startStatus(address string, s *proxy.Scheduler) (*http.Server, error) {
	sock, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open tcp socket %s", address)
	}
	logrus.Infof("status listening on %s", sock.Addr())
	srv := &http.Server{Handler: status.New(s)}
	go func() {
		if err := srv.Serve(sock); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("status endpoint: %s", err)
		}
	}()
	return srv, nil
}
