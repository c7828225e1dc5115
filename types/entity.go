package types

import "time"

// Entity carries creation and last-change timestamps.
// Embed it in transient domain types that move through states.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity stamped with t (UTC).
func NewEntity(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch moves UpdatedAt to t (UTC).
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC()
}

// Age returns how long the entity has existed as of now.
func (e Entity) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
