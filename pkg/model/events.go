package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event envelope.
// All messages published to NATS follow this format.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	SessionID     string          `json:"session_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// TokenRefreshedEvent is emitted after a successful refresh cycle.
type TokenRefreshedEvent struct {
	SessionID    string    `json:"session_id"`
	Rotated      bool      `json:"rotated"`
	AccessExpiry time.Time `json:"access_expiry"`
	Timestamp    time.Time `json:"timestamp"`
}

// SessionExpiredEvent is emitted once per failed refresh cycle.
type SessionExpiredEvent struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
