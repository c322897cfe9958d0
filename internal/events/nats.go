package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/planline/internal/metrics"
)

const (
	subscriberBuffer = 64
	closeFlushWait   = 2 * time.Second
)

func connect(url, name string, extra []nats.Option) (*nats.Conn, error) {
	opts := append([]nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, extra...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events on NATS subjects named after
// their topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "planline-publisher", opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}
	msg := nats.NewMsg(topic)
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered events before closing the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.FlushTimeout(closeFlushWait)
	p.conn.Close()
	if err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("flushing NATS publisher: %w", err)
	}
	return nil
}

// NATSSubscriber delivers NATS messages as raw payloads. When group is set
// every subscription joins that queue group, so each message reaches only
// one replica.
type NATSSubscriber struct {
	conn  *nats.Conn
	group string
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "planline-subscriber", opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// NewNATSQueueSubscriber is NewNATSSubscriber with a queue group. serve
// consumes recompute requests this way.
func NewNATSQueueSubscriber(url, group string, opts ...nats.Option) (*NATSSubscriber, error) {
	s, err := NewNATSSubscriber(url, opts...)
	if err != nil {
		return nil, err
	}
	s.group = group
	return s, nil
}

// Subscribe accepts NATS wildcards such as "planline.milestone.>". A full
// channel drops the message rather than stalling the NATS client.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriberBuffer)

	var (
		mu     sync.Mutex
		closed bool
	)
	handler := func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg.Data:
		default:
			metrics.IncrementEventsDropped(msg.Subject)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if s.group != "" {
		sub, err = s.conn.QueueSubscribe(topic, s.group, handler)
	} else {
		sub, err = s.conn.Subscribe(topic, handler)
	}
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before messages published on
	// other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", topic, err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			defer mu.Unlock()
			closed = true
			// Unread payloads are discarded.
			for len(ch) > 0 {
				<-ch
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
