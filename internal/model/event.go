package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted event record, mirroring what is published to NATS.
type Event struct {
	ID        int64           `json:"id"`
	OrgID     string          `json:"org_id"`
	Topic     string          `json:"topic"`
	ProjectID string          `json:"project_id"`
	EntityID  string          `json:"entity_id,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
