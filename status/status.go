// Package status defines the HTTP endpoints that expose the proxy's live
// connections and its Prometheus metrics.
package status

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"goji.io"
	"goji.io/pat"

	"stammer.computer/stammer/proxy"
)

// Source returns the current connection snapshot. *proxy.Scheduler implements
// it.
type Source interface {
	Connections() []proxy.ConnectionInfo
}

// Server is an http.Handler that serves the status endpoints.
type Server struct {
	*goji.Mux
	src Source
}

// New creates a Server.
func New(src Source) Server {
	s := Server{
		Mux: goji.NewMux(),
		src: src,
	}
	s.Handle(pat.Get("/connections"), http.HandlerFunc(s.listConnections))
	s.Handle(pat.Get("/connections/:id"), http.HandlerFunc(s.getConnection))
	s.Handle(pat.Get("/metrics"), promhttp.Handler())
	return s
}

// ConnectionListResponse is the JSON structure returned by GET /connections.
type ConnectionListResponse struct {
	Connections []proxy.ConnectionInfo `json:"connections"`
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	out := ConnectionListResponse{
		Connections: []proxy.ConnectionInfo{}, // non-null empty list
	}
	out.Connections = append(out.Connections, s.src.Connections()...)
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(&out)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
	}
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pat.Param(r, "id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, c := range s.src.Connections() {
		if c.ID != id {
			continue
		}
		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(&c)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
		}
		return
	}
	w.WriteHeader(http.StatusNotFound)
}
