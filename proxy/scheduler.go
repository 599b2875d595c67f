package proxy

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"stammer.computer/stammer/pkg/thunks"
	"stammer.computer/stammer/sockets"
)

// Scheduler is the event loop. It is the only place socket I/O happens: each
// iteration it collects interest from the listener and every live forwarder,
// waits for readiness no longer than the nearest pending pause, and
// dispatches one action per ready socket and interest.
type Scheduler struct {
	cfg      Config
	fwdOpts  forwarderOptions
	listener *Listener
	reg      *registry
	waker    *sockets.Waker

	poller  sockets.Poller
	entries []entry
	index   map[Endpoint]int

	clock func() time.Time
	dial  func(netip.AddrPort) (*sockets.Socket, error)

	status atomic.Pointer[[]ConnectionInfo]
}

// entry merges every interest in one socket for one iteration.
type entry struct {
	ep      Endpoint
	reader  Pollable
	writer  Pollable
	onError errorHandler
	conn    *Connection
	slot    int
}

// ConnectionInfo describes a live connection for the status endpoint.
type ConnectionInfo struct {
	ID               uint64 `json:"id"`
	Client           string `json:"client"`
	State            string `json:"state"`
	ToServerBuffered int    `json:"to_server_buffered"`
	ToClientBuffered int    `json:"to_client_buffered"`
}

// NewScheduler opens the listening socket. Nothing is accepted until Run.
func NewScheduler(cfg Config) (*Scheduler, error) {
	cfg.setDefaults()
	s := &Scheduler{
		cfg: cfg,
		fwdOpts: forwarderOptions{
			capacity:   cfg.BufferCapacity,
			pauseDelay: cfg.PauseDelay,
			chooser:    cfg.Chooser,
		},
		reg:   newRegistry(),
		index: make(map[Endpoint]int),
		clock: thunks.TimeNow,
		dial:  sockets.Dial,
	}
	l, err := Listen(cfg.ListenAddress, cfg.Backlog, s.accept)
	if err != nil {
		return nil, err
	}
	s.listener = l
	w, err := sockets.NewWaker()
	if err != nil {
		l.Close()
		return nil, err
	}
	s.waker = w
	s.publish()
	return s, nil
}

// Addr is the address clients connect to.
func (s *Scheduler) Addr() netip.AddrPort {
	return s.listener.Addr()
}

// Connections returns the live connections as of the end of the last loop
// iteration. It is safe to call from any goroutine.
func (s *Scheduler) Connections() []ConnectionInfo {
	p := s.status.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Run drives the loop until ctx is cancelled or the listener fails. On return
// every connection has been torn down and the listener is closed; a Scheduler
// cannot be run twice. Cancellation returns ctx.Err(); a listener failure
// returns an error wrapping ErrListenerFailed.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	stop := make(chan struct{})
	defer s.shutdown()
	defer wg.Wait()
	defer close(stop)

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			s.waker.Wake()
		case <-stop:
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.iterate()
		s.publish()
		if err != nil {
			return err
		}
	}
}

func (s *Scheduler) accept(client *sockets.Socket, from netip.AddrPort) {
	id := s.reg.allocateID()
	connectionsTotal.Inc()
	logrus.Infof("New connection #%d from %s", id, from)
	client.SetName(fmt.Sprintf("C%d:ToClient", id))

	backend, err := s.dial(s.cfg.Backend)
	if err != nil {
		connectionFailures.Inc()
		logrus.Errorf("connection %d: connect to %s failed: %s", id, s.cfg.Backend, err)
		client.Close()
		logrus.Infof("connection %d shutting down", id)
		return
	}
	backend.SetName(fmt.Sprintf("C%d:ToServer", id))
	newConnection(id, client, from, backend, s.fwdOpts, s.reg)
}

func (s *Scheduler) watch(ep Endpoint, h errorHandler, c *Connection) {
	if _, ok := s.index[ep]; ok {
		return
	}
	s.entries = append(s.entries, entry{ep: ep, onError: h, conn: c, slot: -1})
	s.index[ep] = len(s.entries) - 1
}

func (s *Scheduler) iterate() error {
	if err := s.listener.Err(); err != nil {
		return err
	}

	now := s.clock()
	wake := now.Add(s.cfg.PollInterval)

	s.entries = s.entries[:0]
	clear(s.index)
	s.poller.Reset()
	s.poller.Add(s.waker.ReadFd(), true, false)

	s.watch(s.listener.sock, s.listener, nil)
	if ep := s.listener.ReadInterest(); ep != nil {
		s.entries[s.index[ep]].reader = s.listener
	}
	for _, c := range s.reg.ordered() {
		s.watch(c.client, c, c)
		s.watch(c.backend, c, c)
		for _, f := range c.Forwarders() {
			if ep := f.ReadInterest(); ep != nil {
				s.entries[s.index[ep]].reader = f
			}
			if ep := f.WriteInterest(now); ep != nil {
				s.entries[s.index[ep]].writer = f
			}
			if at := f.ResumeAt(); at.After(now) && at.Before(wake) {
				wake = at
			}
		}
	}

	for i := range s.entries {
		e := &s.entries[i]
		if e.reader == nil && e.writer == nil {
			if _, hup := s.reg.hungUp[e.ep]; hup {
				continue
			}
		}
		e.slot = s.poller.Add(e.ep.Fd(), e.reader != nil, e.writer != nil)
	}

	timeout := wake.Sub(now)
	if s.cfg.Debug {
		logrus.Debugf("select max sleep=%s", timeout)
	}
	n, err := s.poller.Wait(timeout)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if s.poller.Ready(0) != 0 {
		s.waker.Drain()
	}
	if s.cfg.Debug {
		s.trace()
	}

	for i := range s.entries {
		if s.entries[i].slot >= 0 {
			s.dispatch(&s.entries[i], now)
		}
	}
	return s.listener.Err()
}

func (s *Scheduler) dispatch(e *entry, now time.Time) {
	r := s.poller.Ready(e.slot)
	if r == 0 {
		return
	}
	if r.Any(sockets.Errored) {
		e.onError.HandleError(e.ep)
		return
	}
	if e.conn != nil && e.ep == e.conn.backend && r.Any(sockets.Readable|sockets.Writable) {
		e.conn.markEstablished()
	}

	handled := false
	if e.reader != nil && r.Any(sockets.Readable|sockets.HungUp) {
		e.reader.HandleReadable(now)
		handled = true
	}
	if e.writer != nil && r.Any(sockets.Writable) {
		e.writer.HandleWritable(now)
		handled = true
	}
	if !handled && r.Has(sockets.HungUp) && e.conn != nil && !e.conn.Closed() {
		s.reg.hungUp[e.ep] = struct{}{}
	}
}

func (s *Scheduler) trace() {
	var rs, ws, xs []string
	for _, e := range s.entries {
		if e.slot < 0 {
			continue
		}
		r := s.poller.Ready(e.slot)
		if r.Any(sockets.Readable | sockets.HungUp) {
			rs = append(rs, e.ep.Name())
		}
		if r.Any(sockets.Writable) {
			ws = append(ws, e.ep.Name())
		}
		if r.Any(sockets.Errored) {
			xs = append(xs, e.ep.Name())
		}
	}
	logrus.Debugf("ready r=[%s] w=[%s] x=[%s]", strings.Join(rs, " "), strings.Join(ws, " "), strings.Join(xs, " "))
}

func (s *Scheduler) publish() {
	conns := s.reg.ordered()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnectionInfo{
			ID:               c.id,
			Client:           c.clientAddr.String(),
			State:            c.State().String(),
			ToServerBuffered: c.toServer.Buffered(),
			ToClientBuffered: c.toClient.Buffered(),
		})
	}
	s.status.Store(&out)
}

func (s *Scheduler) shutdown() {
	for _, c := range s.reg.ordered() {
		c.Die()
	}
	s.listener.Close()
	s.waker.Close()
	s.publish()
}
