// Package events records user actions (query saved, forked, archived,
// visualization deleted) onto a Redis queue; a worker drains the queue
// into the events table. Recording is fire-and-forget for callers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const QueueKey = "events:queue"

type Event struct {
	ID                   string                 `json:"id"`
	UserID               string                 `json:"user_id"`
	Action               string                 `json:"action"`
	ObjectType           string                 `json:"object_type"`
	ObjectID             string                 `json:"object_id"`
	AdditionalProperties map[string]interface{} `json:"additional_properties,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
}

// New fills in the id and timestamp for a freshly recorded event.
func New(userID, action, objectType, objectID string) Event {
	return Event{
		ID:         uuid.New().String(),
		UserID:     userID,
		Action:     action,
		ObjectType: objectType,
		ObjectID:   objectID,
		CreatedAt:  time.Now().UTC(),
	}
}

type Recorder interface {
	Record(ctx context.Context, e Event) error
}
