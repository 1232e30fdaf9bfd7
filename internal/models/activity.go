package models

// Activity is one entry of the append-only activity log. Timestamp is unix
// milliseconds.
type Activity struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// SystemActor is recorded when no user triggered the change.
const SystemActor = "(system)"
