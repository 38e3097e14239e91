package timeline

import "time"

// Kind distinguishes timeline entry sources.
type Kind string

// Entry kinds.
const (
	KindNote     Kind = "note"
	KindActivity Kind = "activity"
)

// Note is a free-text note an admin left on a lead.
type Note struct {
	ID        string
	LeadID    string
	Body      string
	Author    string
	CreatedAt time.Time
}

// Activity is a system or admin event recorded against a lead.
type Activity struct {
	ID          string
	LeadID      string
	Type        string
	Description string
	Actor       string
	CreatedAt   time.Time
}

// Entry is one line of the merged lead timeline.
type Entry struct {
	Kind  Kind      `json:"kind"`
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor,omitempty"`
	Type  string    `json:"type,omitempty"`
	Text  string    `json:"text"`
}
