package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event wrapper published to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ProductOpEvent is the payload for product replace/upsert events.
type ProductOpEvent struct {
	Operation string `json:"operation"` // "replace" or "upsert"
	Accepted  int    `json:"accepted,omitempty"`
	Added     int    `json:"added,omitempty"`
	Updated   int    `json:"updated,omitempty"`
	Entries   int    `json:"entries"` // registry size after the operation
}
