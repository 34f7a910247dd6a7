// Package audit provides an append-only audit log for token operations.
//
// Entries are JSON lines chained with SHA-256 hashes so truncation or
// in-place edits are detectable. Two principles apply: audit failure
// means operation failure, and secrets (PINs, private key material)
// are never logged.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType categorizes an audited token operation.
type EventType string

const (
	EventKeyPairCreated  EventType = "KEYPAIR_CREATED"
	EventKeyPairImported EventType = "KEYPAIR_IMPORTED"
	EventKeyPairDeleted  EventType = "KEYPAIR_DELETED"
	EventDataSigned      EventType = "DATA_SIGNED"
	EventCertImported    EventType = "CERT_IMPORTED"
	EventCertDeleted     EventType = "CERT_DELETED"
	EventSessionReopened EventType = "SESSION_REOPENED"
)

// Result is the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor identifies who triggered the operation.
type Actor struct {
	Type string `json:"type"` // "user", "service"
	ID   string `json:"id"`
	Host string `json:"host,omitempty"`
}

// Object identifies the token object acted upon.
type Object struct {
	Type    string `json:"type"` // "key", "certificate", "session"
	Label   string `json:"label,omitempty"`
	KeyType string `json:"key_type,omitempty"`
}

// Event is a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Reason    string    `json:"reason,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
	Hash      string    `json:"hash"`
}

// NewEvent builds an event with the current UTC timestamp and the local
// user as actor.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows
	}
	if username == "" {
		username = "unknown"
	}

	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   username,
			Host: hostname,
		},
		Result: result,
	}
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithReason records a failure or context detail.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("actor type and id are required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as canonical JSON for hashing.
// Excludes the Hash field to allow hash calculation.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Reason    string    `json:"reason,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}
	return json.Marshal(eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Reason:    e.Reason,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
