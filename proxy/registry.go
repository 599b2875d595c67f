package proxy

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// registry is the set of live connections. Only the loop goroutine touches it.
type registry struct {
	conns  map[uint64]*Connection
	nextID uint64

	// hungUp holds sockets that reported a hang-up while nothing wanted to
	// read or write them. Hang-up is sticky, so polling them again with no
	// interest would spin.
	hungUp map[Endpoint]struct{}
}

func newRegistry() *registry {
	return &registry{
		conns:  make(map[uint64]*Connection),
		hungUp: make(map[Endpoint]struct{}),
	}
}

func (r *registry) allocateID() uint64 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *registry) add(c *Connection) {
	r.conns[c.id] = c
	connectionsActive.Set(float64(len(r.conns)))
}

func (r *registry) remove(c *Connection) {
	if _, ok := r.conns[c.id]; !ok {
		return
	}
	delete(r.conns, c.id)
	delete(r.hungUp, c.client)
	delete(r.hungUp, c.backend)
	connectionsActive.Set(float64(len(r.conns)))
}

func (r *registry) len() int {
	return len(r.conns)
}

// ordered returns live connections sorted by id.
func (r *registry) ordered() []*Connection {
	ids := maps.Keys(r.conns)
	slices.Sort(ids)
	out := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.conns[id])
	}
	return out
}
