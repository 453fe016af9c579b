package audit

import "time"

// Entry is one persisted audit record. OldData and NewData carry the entity
// snapshot before and after the change.
type Entry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	OldData    map[string]any `json:"old_data,omitempty"`
	NewData    map[string]any `json:"new_data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Filters narrows the audit trail listing.
type Filters struct {
	Entity   string
	EntityID string
	Action   string
	ActorID  int64
	From     time.Time
	To       time.Time
	Page     int
	PerPage  int
}
