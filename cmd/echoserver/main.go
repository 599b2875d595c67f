package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stammer.computer/stammer/echo"
	"stammer.computer/stammer/flags"
)

func main() {
	logrus.SetLevel(logrus.InfoLevel)
	f, err := flags.ParseEchoArgs(os.Args[1:])
	if err != nil || f.Usage {
		if err != nil && !errors.Is(err, flags.ErrUsage) {
			logrus.Error(err)
		}
		flags.Usage(os.Stdout, "echoserver", flags.EchoSwitches)
		os.Exit(1)
	}

	address := net.JoinHostPort("", strconv.Itoa(f.ListenPort))
	sock, err := net.Listen("tcp4", address)
	if err != nil {
		logrus.Fatalf("unable to open tcp socket %s: %s", address, err)
	}
	logrus.Infof("listening on %s", sock.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := echo.Serve(ctx, sock); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatal(err)
	}
}
