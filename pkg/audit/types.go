package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	EventTypeSharingGrant  EventType = "sharing.grant"
	EventTypeSharingRevoke EventType = "sharing.revoke"

	EventTypeEntityCreate EventType = "entity.create"
	EventTypeEntityUpdate EventType = "entity.update"
	EventTypeEntityDelete EventType = "entity.delete"

	EventTypeTypeCreate EventType = "type.create"
	EventTypeTypeUpdate EventType = "type.update"
	EventTypeTypeDelete EventType = "type.delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event represents a single audit log entry
type Event struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	Type       EventType   `json:"type"`
	Status     EventStatus `json:"status"`
	Actor      string      `json:"actor,omitempty"`
	EntityID   string      `json:"entity_id,omitempty"`
	Permission string      `json:"permission,omitempty"`
	Principals string      `json:"principals,omitempty"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
