// Package sockets wraps raw, non-blocking TCP sockets and poll(2).
//
// The proxy core drives every socket from one readiness loop, so nothing here
// blocks: reads and writes that cannot make progress return ErrWouldBlock,
// connects return while still in progress, and the only call that sleeps is
// Poller.Wait.
package sockets
