package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alfredjeanlab/planline/internal/metrics"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func newTestSubscriber(t *testing.T, url string, opts ...nats.Option) *NATSSubscriber {
	t.Helper()
	sub, err := NewNATSSubscriber(url, opts...)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return sub
}

func newTestPublisher(t *testing.T, url string) *NATSPublisher {
	t.Helper()
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })
	return pub
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestNATSSubscriber_Patterns(t *testing.T) {
	url := startTestNATS(t)
	pub := newTestPublisher(t, url)
	sub := newTestSubscriber(t, url)

	tests := []struct {
		pattern string
		publish []string
		want    int
	}{
		{"planline.>", []string{TopicTaskCreated, TopicMilestoneAtRisk, TopicScheduleRecomputed}, 3},
		{"planline.milestone.*", []string{TopicTaskCreated, TopicMilestoneAtRisk, TopicMilestoneMissed}, 2},
		{TopicProjectProgress, []string{TopicTaskUpdated, TopicProjectProgress}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			ch, cancel, err := sub.Subscribe(tt.pattern)
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			defer cancel()

			for _, topic := range tt.publish {
				if err := pub.Publish(context.Background(), topic, map[string]string{"topic": topic}); err != nil {
					t.Fatal(err)
				}
			}
			for range tt.want {
				receive(t, ch)
			}
			select {
			case msg := <-ch:
				t.Errorf("unexpected extra message %s", msg)
			case <-time.After(100 * time.Millisecond):
			}
		})
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)
	pub := newTestPublisher(t, url)
	sub := newTestSubscriber(t, url)

	ch, cancel, err := sub.Subscribe("planline.>")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			_ = pub.Publish(context.Background(), TopicTaskCreated, map[string]string{"id": "x"})
		}
	}()

	cancel()
	cancel() // idempotent
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_QueueGroup(t *testing.T) {
	url := startTestNATS(t)
	pub := newTestPublisher(t, url)

	var chans []<-chan []byte
	for range 2 {
		sub, err := NewNATSQueueSubscriber(url, "recompute")
		if err != nil {
			t.Fatalf("creating queue subscriber: %v", err)
		}
		t.Cleanup(func() { sub.Close() })
		ch, cancel, err := sub.Subscribe(TopicRecomputeRequested)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		t.Cleanup(cancel)
		chans = append(chans, ch)
	}

	const n = 10
	for i := range n {
		req := RecomputeRequested{OrgID: "acme", ProjectID: "prj-" + string(rune('a'+i))}
		if err := pub.Publish(context.Background(), TopicRecomputeRequested, req); err != nil {
			t.Fatal(err)
		}
	}

	got := 0
	deadline := time.After(2 * time.Second)
	for got < n {
		select {
		case <-chans[0]:
			got++
		case <-chans[1]:
			got++
		case <-deadline:
			t.Fatalf("received %d of %d requests", got, n)
		}
	}
	select {
	case <-chans[0]:
		t.Error("a request was delivered twice")
	case <-chans[1]:
		t.Error("a request was delivered twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNATSSubscriber_DropsWhenFull(t *testing.T) {
	url := startTestNATS(t)
	pub := newTestPublisher(t, url)
	sub := newTestSubscriber(t, url)

	const subject = "planline.test.flood"
	before := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(subject))

	_, cancel, err := sub.Subscribe(subject)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	for range subscriberBuffer + 5 {
		if err := pub.Publish(context.Background(), subject, 1); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(subject))-before == 5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("dropped = %v, want 5", testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(subject))-before)
}

func TestNATSSubscriber_RecomputeRequested(t *testing.T) {
	url := startTestNATS(t)
	pub := newTestPublisher(t, url)
	sub := newTestSubscriber(t, url, nats.ReconnectHandler(func(*nats.Conn) {}))

	ch, cancel, err := sub.Subscribe(TopicRecomputeRequested)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	req := RecomputeRequested{OrgID: "acme", ProjectID: "prj-1"}
	if err := pub.Publish(context.Background(), TopicRecomputeRequested, req); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var got RecomputeRequested
	if err := json.Unmarshal(receive(t, ch), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != req {
		t.Errorf("got %+v, want %+v", got, req)
	}
}
