package types

import (
	"time"
)

// Ticket is a snapshot of one Trac ticket row. Field values are the
// current ones; values at creation time are recovered from Changes.
type Ticket struct {
	ID          int
	Summary     string
	Description string
	Type        string
	Component   string
	Priority    string
	Resolution  string
	Severity    string
	Milestone   string
	Version     string
	Status      string
	Reporter    string
	Time        time.Time
}

// CategoryValue returns the ticket field backing a label category. The
// platform lives in ticket_custom and is not part of the row, so it and
// the milestone category return "".
func (t Ticket) CategoryValue(c Category) string {
	switch c {
	case CategoryType:
		return t.Type
	case CategoryComponent:
		return t.Component
	case CategoryPriority:
		return t.Priority
	case CategoryResolution:
		return t.Resolution
	case CategorySeverity:
		return t.Severity
	}
	return ""
}

// Change is one ticket_change row
type Change struct {
	TicketID int
	Field    string
	OldValue string
	NewValue string
	Author   string
	Time     time.Time
}

// IsComment reports whether the row is a comment event
func (c Change) IsComment() bool {
	return c.Field == "comment"
}

// Attachment is a ticket attachment; its payload is fetched over HTTP
type Attachment struct {
	TicketID    int
	Filename    string
	Description string
	Author      string
	Size        int64
	Time        time.Time
}

// Milestone is a Trac milestone. Due is zero when the milestone has no
// due date.
type Milestone struct {
	Name      string
	Due       time.Time
	Completed bool
}

// FromMicros converts a Trac microsecond epoch to UTC time.
func FromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}
