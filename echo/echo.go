// Package echo implements a one-shot echo server used as a backend when
// exercising the proxy by hand. It serves a single client, prefixes every
// chunk it reads with "Echoing ", and half-closes once the client has.
package echo

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stammer.computer/stammer/common"
)

// Prefix is prepended to every echoed chunk.
const Prefix = "Echoing "

// Serve accepts one client from ln, echoes it until end of stream, and
// returns. The listener is closed when Serve returns. Cancelling ctx
// interrupts both the accept and the session.
func Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "accept")
	}
	defer conn.Close()
	ln.Close()

	stopConn := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopConn()

	logrus.Infof("Connected by %s", conn.RemoteAddr())
	err = Echo(conn)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Echo runs one session on conn. Each read of at most common.EchoReadSize
// bytes is answered with Prefix followed by the bytes read.
func Echo(conn io.ReadWriter) error {
	buf := make([]byte, common.EchoReadSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			msg := append([]byte(Prefix), buf[:n]...)
			logrus.Infof("Received '%s', sending '%s'", buf[:n], msg)
			if _, werr := conn.Write(msg); werr != nil {
				return errors.Wrap(werr, "send")
			}
		}
		if errors.Is(err, io.EOF) {
			logrus.Info("Zero length read, nothing to send, terminating")
			break
		}
		if err != nil {
			return errors.Wrap(err, "recv")
		}
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return errors.Wrap(cw.CloseWrite(), "shutdown")
	}
	return nil
}
