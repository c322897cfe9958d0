package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/planline/internal/model"
)

// maxStreamLine bounds a single SSE line; event records are well below it.
const maxStreamLine = 1 << 20

// StreamEvent is one event received from the server's event stream.
type StreamEvent struct {
	ID    uint64
	Topic string
	Event *model.Event
}

// StreamEvents follows the server-sent event stream and calls fn for every
// event. projectID and topics narrow the stream when non-empty. It returns
// when ctx is cancelled, the server closes the stream, or fn fails.
func (c *HTTPClient) StreamEvents(ctx context.Context, projectID string, topics []string, fn func(StreamEvent) error) error {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	path := "/v1/events/stream"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	var cur StreamEvent
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data == "" {
				continue
			}
			var evt model.Event
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				return fmt.Errorf("decoding event %d: %w", cur.ID, err)
			}
			cur.Event = &evt
			if err := fn(cur); err != nil {
				return err
			}
			cur, data = StreamEvent{}, ""
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "id:"):
			cur.ID, _ = strconv.ParseUint(strings.TrimPrefix(line, "id:"), 10, 64)
		case strings.HasPrefix(line, "event:"):
			cur.Topic = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimPrefix(line, "data:")
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
