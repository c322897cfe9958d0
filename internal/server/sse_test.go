package server

import (
	"bufio"
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/planline/internal/scheduler"
)

func recv(t *testing.T, c *sseClient) *sseEvent {
	t.Helper()
	select {
	case evt := <-c.ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func requireQuiet(t *testing.T, c *sseClient) {
	t.Helper()
	select {
	case evt := <-c.ch:
		t.Fatalf("unexpected event: topic=%q", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_BroadcastAndReceive(t *testing.T) {
	hub := NewEventHub()

	client := hub.subscribe("acme", "", nil)
	defer hub.unsubscribe(client)

	hub.broadcast("acme", "prj-1", "planline.task.created", []byte(`{"id":"tsk-1"}`))

	evt := recv(t, client)
	if evt.Topic != "planline.task.created" || string(evt.Data) != `{"id":"tsk-1"}` || evt.ID != 1 {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestSSEHub_Filtering(t *testing.T) {
	for _, tc := range []struct {
		name      string
		project   string
		topics    []string
		orgID     string
		projectID string
		topic     string
		want      bool
	}{
		{"OtherOrg", "", nil, "globex", "prj-1", "planline.task.created", false},
		{"SameOrg", "", nil, "acme", "prj-1", "planline.task.created", true},
		{"ProjectMatch", "prj-1", nil, "acme", "prj-1", "planline.task.created", true},
		{"ProjectMismatch", "prj-1", nil, "acme", "prj-2", "planline.task.created", false},
		{"TopicMatch", "", []string{"planline.milestone.*"}, "acme", "prj-1", "planline.milestone.missed", true},
		{"TopicMismatch", "", []string{"planline.milestone.*"}, "acme", "prj-1", "planline.task.created", false},
		{"SecondTopic", "", []string{"planline.milestone.*", "planline.schedule.>"}, "acme", "prj-1", "planline.schedule.recomputed", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hub := NewEventHub()
			client := hub.subscribe("acme", tc.project, tc.topics)
			defer hub.unsubscribe(client)

			hub.broadcast(tc.orgID, tc.projectID, tc.topic, []byte(`{}`))
			if tc.want {
				recv(t, client)
			} else {
				requireQuiet(t, client)
			}
		})
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := NewEventHub()

	client := hub.subscribe("acme", "", nil)
	hub.unsubscribe(client)

	hub.broadcast("acme", "prj-1", "planline.task.created", []byte(`{}`))
	requireQuiet(t, client)
}

func TestSSEHub_EventsSince(t *testing.T) {
	hub := NewEventHub()

	for range 5 {
		hub.broadcast("acme", "prj-1", "planline.task.updated", []byte(`{}`))
	}

	evts := hub.eventsSince(2)
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
	if evts[0].ID != 3 || evts[1].ID != 4 || evts[2].ID != 5 {
		t.Fatalf("expected IDs [3,4,5], got [%d,%d,%d]", evts[0].ID, evts[1].ID, evts[2].ID)
	}
	if got := NewEventHub().eventsSince(0); len(got) != 0 {
		t.Fatalf("expected 0 events from an empty hub, got %d", len(got))
	}
}

func TestSSEHub_ReplayWrap(t *testing.T) {
	hub := NewEventHub()

	for range replayCapacity + 100 {
		hub.broadcast("acme", "prj-1", "planline.task.updated", []byte(`{}`))
	}

	evts := hub.eventsSince(0)
	if len(evts) != replayCapacity {
		t.Fatalf("expected %d events, got %d", replayCapacity, len(evts))
	}
	if evts[0].ID != 101 {
		t.Fatalf("expected oldest event ID=101, got %d", evts[0].ID)
	}
}

func TestMatchTopicPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"planline.task.created", "planline.task.created", true},
		{"planline.task.created", "planline.task.updated", false},
		{"planline.task.*", "planline.task.deleted", true},
		{"planline.task.*", "planline.milestone.achieved", false},
		{"planline.>", "planline.schedule.recomputed", true},
		{"planline.>", "other.topic", false},
		{"*.*.*", "planline.project.progress", true},
		{"*.*.*", "planline.project", false},
		{"planline.task", "planline.task.created", false},
		{"planline.task.>", "planline.task", false},
		{">", "planline", true},
	} {
		t.Run(tc.pattern+"_"+tc.topic, func(t *testing.T) {
			if got := topicMatches(tc.pattern, tc.topic); got != tc.want {
				t.Fatalf("topicMatches(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
			}
		})
	}
}

// streamRecorder runs the SSE endpoint in the background until stop is called.
type streamRecorder struct {
	rec    *httptest.ResponseRecorder
	cancel context.CancelFunc
	done   chan struct{}
}

func openStream(t *testing.T, s *Server, path string, headers ...string) *streamRecorder {
	t.Helper()
	handler := s.NewHTTPHandler("")
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	sr := &streamRecorder{rec: httptest.NewRecorder(), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sr.done)
		handler.ServeHTTP(sr.rec, req)
	}()
	// Give the handler time to register the subscription.
	time.Sleep(50 * time.Millisecond)
	return sr
}

func (sr *streamRecorder) stop() string {
	time.Sleep(50 * time.Millisecond)
	sr.cancel()
	<-sr.done
	return sr.rec.Body.String()
}

func TestHandleEventStream_SSE(t *testing.T) {
	srv, _, _ := newTestServer()
	stream := openStream(t, srv, "/v1/events/stream")

	srv.hub.broadcast(DefaultOrgID, "prj-1", "planline.task.created", []byte(`{"id":"tsk-sse1"}`))
	body := stream.stop()

	if ct := stream.rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected Content-Type=text/event-stream, got %q", ct)
	}
	if !strings.Contains(body, "event:planline.task.created") {
		t.Fatalf("expected event:planline.task.created in body, got:\n%s", body)
	}
	if !strings.Contains(body, `data:{"id":"tsk-sse1"}`) {
		t.Fatalf("expected data with tsk-sse1 in body, got:\n%s", body)
	}
}

func TestHandleEventStream_TopicAndOrgFilter(t *testing.T) {
	srv, _, _ := newTestServer()
	stream := openStream(t, srv, "/v1/events/stream?topics=planline.milestone.*", headerOrgID, "acme")

	srv.hub.broadcast("acme", "prj-1", "planline.task.created", []byte(`{}`))
	srv.hub.broadcast("globex", "prj-9", "planline.milestone.missed", []byte(`{"org":"globex"}`))
	srv.hub.broadcast("acme", "prj-1", "planline.milestone.missed", []byte(`{"org":"acme"}`))
	body := stream.stop()

	if strings.Contains(body, "planline.task.created") {
		t.Fatalf("expected task event to be filtered out, got:\n%s", body)
	}
	if strings.Contains(body, "globex") {
		t.Fatalf("expected other organization's event to be filtered out, got:\n%s", body)
	}
	if !strings.Contains(body, `data:{"org":"acme"}`) {
		t.Fatalf("expected milestone event in body, got:\n%s", body)
	}
}

func TestHandleEventStream_LastEventID(t *testing.T) {
	srv, _, _ := newTestServer()

	srv.hub.broadcast(DefaultOrgID, "prj-1", "planline.task.created", []byte(`{"n":1}`))
	srv.hub.broadcast(DefaultOrgID, "prj-1", "planline.task.updated", []byte(`{"n":2}`))
	srv.hub.broadcast(DefaultOrgID, "prj-1", "planline.task.deleted", []byte(`{"n":3}`))

	body := openStream(t, srv, "/v1/events/stream", "Last-Event-ID", "1").stop()

	if strings.Contains(body, `data:{"n":1}`) {
		t.Fatalf("expected event 1 to be skipped, got:\n%s", body)
	}
	if !strings.Contains(body, `data:{"n":2}`) || !strings.Contains(body, `data:{"n":3}`) {
		t.Fatalf("expected events 2 and 3 in body, got:\n%s", body)
	}
}

// Mutations made through the service reach the stream via the event observer.
func TestHandleEventStream_ServiceEvents(t *testing.T) {
	srv, svc, _ := newTestServer()
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, DefaultOrgID, scheduler.ProjectInput{
		Name:      "Bridge",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	stream := openStream(t, srv, "/v1/events/stream?project_id="+p.ID)
	if _, err := svc.CreateTask(ctx, DefaultOrgID, p.ID, scheduler.TaskInput{Title: "Survey"}); err != nil {
		t.Fatal(err)
	}
	body := stream.stop()

	for _, topic := range []string{"planline.task.created", "planline.schedule.recomputed"} {
		if !strings.Contains(body, "event:"+topic) {
			t.Fatalf("expected %s on the stream, got:\n%s", topic, body)
		}
	}
}

func TestHandleEventStream_MultipleClients(t *testing.T) {
	srv, _, _ := newTestServer()
	first := openStream(t, srv, "/v1/events/stream")
	second := openStream(t, srv, "/v1/events/stream")

	srv.hub.broadcast(DefaultOrgID, "prj-1", "planline.task.created", []byte(`{"id":"tsk-multi"}`))

	for i, body := range []string{first.stop(), second.stop()} {
		if !strings.Contains(body, "planline.task.created") {
			t.Fatalf("client %d: expected task event, got:\n%s", i+1, body)
		}
	}
}

func TestSSEEventFormat(t *testing.T) {
	srv, _, _ := newTestServer()
	stream := openStream(t, srv, "/v1/events/stream")
	srv.hub.broadcast(DefaultOrgID, "prj-1", "planline.task.created", []byte(`{"id":"tsk-fmt"}`))
	body := stream.stop()

	scanner := bufio.NewScanner(strings.NewReader(body))
	var id, event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
	if id != "1" || event != "planline.task.created" || data != `{"id":"tsk-fmt"}` {
		t.Fatalf("unexpected SSE fields: id=%q event=%q data=%q", id, event, data)
	}
}

func TestHandleEventStream_LastEventIDQuery(t *testing.T) {
	srv, _, _ := newTestServer()
	for n := 1; n <= 3; n++ {
		srv.hub.broadcast(DefaultOrgID, "prj-1", "planline.task.updated", []byte(`{"n":`+strconv.Itoa(n)+`}`))
	}

	body := openStream(t, srv, "/v1/events/stream?last_event_id=2").stop()
	if strings.Contains(body, `data:{"n":2}`) || !strings.Contains(body, `data:{"n":3}`) {
		t.Fatalf("expected only event 3 replayed, got:\n%s", body)
	}
	if !strings.HasPrefix(body, "retry:") {
		t.Fatalf("expected stream to open with a retry hint, got:\n%s", body)
	}
}
