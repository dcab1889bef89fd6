package labels

import "github.com/clintrovert/trac2github/pkg/types"

// Key identifies a source category value
type Key struct {
	Category types.Category
	Value    string
}

// Table maps source category values to GitHub label names. A key stored
// with an empty name is suppressed: nothing is ever attached for it.
type Table struct {
	names map[Key]string
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{names: make(map[Key]string)}
}

// Lookup returns the label for value, or false when the value is
// unmapped or suppressed.
func (t *Table) Lookup(category types.Category, value string) (string, bool) {
	name, ok := t.names[Key{Category: category, Value: value}]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Known reports whether the key was resolved, suppressed or not
func (t *Table) Known(category types.Category, value string) bool {
	_, ok := t.names[Key{Category: category, Value: value}]
	return ok
}

// Set maps a key to a label name
func (t *Table) Set(category types.Category, value, name string) {
	t.names[Key{Category: category, Value: value}] = name
}

// Suppress marks a key as never labelled
func (t *Table) Suppress(category types.Category, value string) {
	t.names[Key{Category: category, Value: value}] = ""
}

// Len returns the number of resolved keys
func (t *Table) Len() int {
	return len(t.names)
}
