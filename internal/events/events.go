package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// GenerationRequested asks for a processing generation task to be run.
	GenerationRequested = "generation.requested"
)

// ErrNoHandler is returned when an event is emitted with no handler
// registered for its type.
var ErrNoHandler = errors.New("no handler registered for event type")

// TaskRequestEvent represents a request to run background work.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type selects the handlers the event is dispatched to
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskRequestEvent creates a new TaskRequestEvent with the specified type and payload.
func NewTaskRequestEvent(eventType string, payload interface{}) (*TaskRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// GenerationRequest is the payload of a GenerationRequested event.
type GenerationRequest struct {
	TaskID  uuid.UUID `json:"task_id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Kind    string    `json:"kind"`
}

// NewGenerationRequestedEvent builds the event announcing a new task.
func NewGenerationRequestedEvent(req GenerationRequest) (*TaskRequestEvent, error) {
	return NewTaskRequestEvent(GenerationRequested, req)
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent dispatches the event to the handlers for its type and
	// returns once they have accepted it.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
