package migrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clintrovert/trac2github/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		field string
		want  Event
	}{
		{"comment", CommentEvent{types.Change{Field: "comment"}}},
		{"component", CategoryEvent{Change: types.Change{Field: "component"}, Category: types.CategoryComponent}},
		{"priority", CategoryEvent{Change: types.Change{Field: "priority"}, Category: types.CategoryPriority}},
		{"type", CategoryEvent{Change: types.Change{Field: "type"}, Category: types.CategoryType}},
		{"resolution", CategoryEvent{Change: types.Change{Field: "resolution"}, Category: types.CategoryResolution}},
		{"severity", CategoryEvent{Change: types.Change{Field: "severity"}, Category: types.CategorySeverity}},
		{"status", StatusEvent{types.Change{Field: "status"}}},
		{"summary", SummaryEvent{types.Change{Field: "summary"}}},
		{"milestone", MilestoneEvent{types.Change{Field: "milestone"}}},
		{"keywords", UnsupportedEvent{types.Change{Field: "keywords"}}},
		{"cc", UnsupportedEvent{types.Change{Field: "cc"}}},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got := Classify(types.Change{Field: tt.field})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.field, got.Row().Field)
		})
	}
}

func TestSortChanges(t *testing.T) {
	t0 := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	changes := []types.Change{
		{Field: "comment", NewValue: "late", Time: t0.Add(time.Second)},
		{Field: "comment", NewValue: "now", Time: t0},
		{Field: "priority", NewValue: "high", Time: t0},
		{Field: "status", NewValue: "closed", Time: t0},
		{Field: "owner", NewValue: "x", Time: t0.Add(-time.Second)},
	}

	sortChanges(changes)

	var got []string
	for _, c := range changes {
		got = append(got, c.Field+"="+c.NewValue)
	}
	assert.Equal(t, []string{"owner=x", "priority=high", "status=closed", "comment=now", "comment=late"}, got)
}

func TestOriginalTicket(t *testing.T) {
	current := types.Ticket{
		ID:          1,
		Summary:     "Third title",
		Description: "edited",
		Priority:    "high",
		Component:   "gui",
		Milestone:   "7.8.0",
		Type:        "enhancement",
	}
	t0 := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	changes := []types.Change{
		{Field: "summary", OldValue: "First title", NewValue: "Second title", Time: t0},
		{Field: "priority", OldValue: "normal", NewValue: "high", Time: t0.Add(time.Minute)},
		{Field: "summary", OldValue: "Second title", NewValue: "Third title", Time: t0.Add(2 * time.Minute)},
		{Field: "description", OldValue: "original", NewValue: "edited", Time: t0.Add(3 * time.Minute)},
		{Field: "milestone", OldValue: "", NewValue: "7.8.0", Time: t0.Add(4 * time.Minute)},
	}

	got := originalTicket(current, changes)

	assert.Equal(t, "First title", got.Summary)
	assert.Equal(t, "original", got.Description)
	assert.Equal(t, "normal", got.Priority)
	assert.Equal(t, "", got.Milestone)
	// Fields without history keep their current value.
	assert.Equal(t, "gui", got.Component)
	assert.Equal(t, "enhancement", got.Type)
	assert.Equal(t, "Third title", current.Summary)
}
