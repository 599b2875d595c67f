// Package proxy implements the stammering TCP proxy: a single-threaded,
// readiness-driven loop that forwards bytes between clients and one backend
// while splitting every flush into a random partial write followed by a pause.
//
// The Scheduler owns everything. Listener and Forwarder report interest
// through the Pollable interface and are dispatched when poll(2) reports the
// socket ready; Connection aggregates the two Forwarders of a client/backend
// pair and owns teardown. No type in this package is safe for concurrent use
// except the read-only status accessors on Scheduler.
package proxy
