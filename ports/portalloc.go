// Package ports finds free local ports for tests that cannot listen on port 0.
package ports

import (
	"net"
	"strconv"
)

// free reports whether port can be listened on right now.
func free(port int) bool {
	sock, err := net.Listen("tcp4", net.JoinHostPort("", strconv.Itoa(port)))
	if sock != nil {
		sock.Close()
	}
	return err == nil
}

// Next returns the first port at or above start that is free.
func Next(start int) int {
	for !free(start) {
		start++
	}
	return start
}
