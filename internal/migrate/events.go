package migrate

import (
	"sort"

	"github.com/clintrovert/trac2github/pkg/types"
)

// Event is a ticket_change row classified by what it does to the issue.
// The set of implementations is closed: CommentEvent, CategoryEvent,
// StatusEvent, SummaryEvent, MilestoneEvent and UnsupportedEvent.
type Event interface {
	Row() types.Change
	event()
}

// CommentEvent posts a comment
type CommentEvent struct{ types.Change }

// CategoryEvent swaps the label of one category
type CategoryEvent struct {
	types.Change
	Category types.Category
}

// StatusEvent opens or closes the issue
type StatusEvent struct{ types.Change }

// SummaryEvent retitles the issue
type SummaryEvent struct{ types.Change }

// MilestoneEvent moves the issue to another milestone
type MilestoneEvent struct{ types.Change }

// UnsupportedEvent changes a field GitHub has no equivalent for
type UnsupportedEvent struct{ types.Change }

func (e CommentEvent) Row() types.Change     { return e.Change }
func (e CategoryEvent) Row() types.Change    { return e.Change }
func (e StatusEvent) Row() types.Change      { return e.Change }
func (e SummaryEvent) Row() types.Change     { return e.Change }
func (e MilestoneEvent) Row() types.Change   { return e.Change }
func (e UnsupportedEvent) Row() types.Change { return e.Change }

func (CommentEvent) event()     {}
func (CategoryEvent) event()    {}
func (StatusEvent) event()      {}
func (SummaryEvent) event()     {}
func (MilestoneEvent) event()   {}
func (UnsupportedEvent) event() {}

// Classify decides the event kind of a change row
func Classify(c types.Change) Event {
	if cat, ok := types.CategoryForField(c.Field); ok {
		return CategoryEvent{Change: c, Category: cat}
	}
	switch c.Field {
	case "comment":
		return CommentEvent{c}
	case "status":
		return StatusEvent{c}
	case "summary":
		return SummaryEvent{c}
	case "milestone":
		return MilestoneEvent{c}
	}
	return UnsupportedEvent{c}
}

// sortChanges orders changes by time; at the same instant field changes
// come before the comment so label and state updates land next to it.
func sortChanges(changes []types.Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return !a.IsComment() && b.IsComment()
	})
}

// originalFields are restored to their value at ticket creation before
// the history is replayed.
var originalFields = []string{
	"priority", "resolution", "severity", "milestone",
	"type", "component", "description", "summary",
}

// originalTicket rewinds t to its state at creation: each field takes the
// old value of its earliest recorded change. changes must be sorted.
func originalTicket(t types.Ticket, changes []types.Change) types.Ticket {
	first := make(map[string]string, len(originalFields))
	for _, c := range changes {
		if _, seen := first[c.Field]; !seen {
			first[c.Field] = c.OldValue
		}
	}

	for _, f := range originalFields {
		old, ok := first[f]
		if !ok {
			continue
		}
		switch f {
		case "priority":
			t.Priority = old
		case "resolution":
			t.Resolution = old
		case "severity":
			t.Severity = old
		case "milestone":
			t.Milestone = old
		case "type":
			t.Type = old
		case "component":
			t.Component = old
		case "description":
			t.Description = old
		case "summary":
			t.Summary = old
		}
	}

	return t
}
