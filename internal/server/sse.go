package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/planline/internal/metrics"
	"github.com/alfredjeanlab/planline/internal/model"
)

const (
	// replayCapacity bounds how many past events a reconnecting client can
	// catch up on via Last-Event-ID.
	replayCapacity = 1000

	clientBuffer      = 64
	keepaliveInterval = 15 * time.Second
	reconnectDelayMS  = 3000
)

type sseEvent struct {
	ID        uint64
	OrgID     string
	ProjectID string
	Topic     string
	Data      []byte
}

func (e *sseEvent) writeTo(w io.Writer) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", e.ID, e.Topic, e.Data)
}

// replayLog is a fixed-capacity FIFO of the most recent events.
type replayLog struct {
	events []sseEvent
	head   int // index of the oldest event once the log is full
}

func (l *replayLog) add(e sseEvent) {
	if len(l.events) < replayCapacity {
		l.events = append(l.events, e)
		return
	}
	l.events[l.head] = e
	l.head = (l.head + 1) % replayCapacity
}

// after returns logged events with ID > id, oldest first.
func (l *replayLog) after(id uint64) []*sseEvent {
	var out []*sseEvent
	for i := range l.events {
		e := l.events[(l.head+i)%len(l.events)]
		if e.ID > id {
			out = append(out, &e)
		}
	}
	return out
}

// EventHub fans recorded scheduler events out to SSE clients and keeps a
// replay log for reconnects.
type EventHub struct {
	mu      sync.RWMutex
	seq     uint64
	log     replayLog
	clients map[*sseClient]struct{}
}

// sseClient receives events of one organization, optionally narrowed to a
// project and a set of topic patterns.
type sseClient struct {
	orgID     string
	projectID string
	topics    []string
	ch        chan *sseEvent
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*sseClient]struct{})}
}

// Observe is a scheduler.WithEventObserver callback.
func (h *EventHub) Observe(e *model.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("dropping unencodable event", "topic", e.Topic, "error", err)
		return
	}
	h.broadcast(e.OrgID, e.ProjectID, e.Topic, data)
}

func (h *EventHub) broadcast(orgID, projectID, topic string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt := &sseEvent{ID: h.seq, OrgID: orgID, ProjectID: projectID, Topic: topic, Data: data}
	h.log.add(*evt)

	for c := range h.clients {
		if !c.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			metrics.IncrementEventsDropped(topic)
		}
	}
}

func (h *EventHub) subscribe(orgID, projectID string, topics []string) *sseClient {
	c := &sseClient{
		orgID:     orgID,
		projectID: projectID,
		topics:    topics,
		ch:        make(chan *sseEvent, clientBuffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *EventHub) eventsSince(id uint64) []*sseEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.log.after(id)
}

func (c *sseClient) matches(evt *sseEvent) bool {
	if evt.OrgID != c.orgID || (c.projectID != "" && evt.ProjectID != c.projectID) {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, p := range c.topics {
		if topicMatches(p, evt.Topic) {
			return true
		}
	}
	return false
}

// topicMatches matches a dot-separated topic with NATS wildcards: "*" is one
// token and a trailing ">" is one or more tokens.
func topicMatches(pattern, topic string) bool {
	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		t, tRest, tMore := strings.Cut(topic, ".")
		switch {
		case p == ">" && !pMore:
			return t != ""
		case p != "*" && p != t:
			return false
		case !pMore || !tMore:
			return pMore == tMore
		}
		pattern, topic = pRest, tRest
	}
}

// lastEventID reads the resume point from the Last-Event-ID header, or from
// the last_event_id query parameter for clients that cannot set headers.
func lastEventID(r *http.Request) (uint64, bool) {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("last_event_id")
	}
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	return id, err == nil
}

// handleEventStream serves GET /v1/events/stream.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	var topics []string
	for t := range strings.SplitSeq(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	client := s.hub.subscribe(orgID(r), q.Get("project_id"), topics)
	defer s.hub.unsubscribe(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry:%d\n\n", reconnectDelayMS)

	if id, ok := lastEventID(r); ok {
		for _, evt := range s.hub.eventsSince(id) {
			if client.matches(evt) {
				evt.writeTo(w)
			}
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			evt.writeTo(w)
		case <-keepalive.C:
			io.WriteString(w, ": keepalive\n\n")
		}
		flusher.Flush()
	}
}
