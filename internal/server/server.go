// Package server exposes the scheduling service over HTTP/JSON, streams
// events over SSE, and serves the standard gRPC health service.
package server

import (
	"net/http"
	"strings"

	"github.com/alfredjeanlab/planline/internal/scheduler"
)

const (
	// DefaultOrgID is used when a request carries no X-Org-ID header.
	DefaultOrgID = "default"

	headerOrgID = "X-Org-ID"
	headerActor = "X-Actor"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	svc   *scheduler.Service
	queue *scheduler.Queue
	hub   *EventHub
}

// New returns a Server. queue may be nil, in which case asynchronous
// recompute requests run inline. hub may be nil to disable the event stream.
func New(svc *scheduler.Service, queue *scheduler.Queue, hub *EventHub) *Server {
	if hub == nil {
		hub = NewEventHub()
	}
	return &Server{svc: svc, queue: queue, hub: hub}
}

// orgID returns the organization a request is scoped to.
func orgID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(headerOrgID)); v != "" {
		return v
	}
	return DefaultOrgID
}

// actor returns the caller named in X-Actor, falling back to fallback.
func actor(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get(headerActor)); v != "" {
		return v
	}
	return fallback
}
