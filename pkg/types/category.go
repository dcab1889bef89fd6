package types

import "strings"

// Category is a ticket field that is materialized as a GitHub label
type Category int

const (
	CategoryType Category = iota
	CategoryComponent
	CategoryPriority
	CategoryResolution
	CategorySeverity
	CategoryMilestone
	CategoryPlatform
)

// Categories lists the label categories in the order their labels are
// attached to a new issue. Milestone labels are defined but not emitted.
var Categories = []Category{
	CategoryType,
	CategoryComponent,
	CategoryPriority,
	CategoryResolution,
	CategorySeverity,
	CategoryPlatform,
}

// Tag returns the label name prefix for the category
func (c Category) Tag() string {
	switch c {
	case CategoryType:
		return "T"
	case CategoryComponent:
		return "C"
	case CategoryPriority:
		return "P"
	case CategoryResolution:
		return "R"
	case CategorySeverity:
		return "S"
	case CategoryMilestone:
		return "M"
	case CategoryPlatform:
		return "OS"
	}
	return "?"
}

func (c Category) String() string {
	switch c {
	case CategoryType:
		return "type"
	case CategoryComponent:
		return "component"
	case CategoryPriority:
		return "priority"
	case CategoryResolution:
		return "resolution"
	case CategorySeverity:
		return "severity"
	case CategoryMilestone:
		return "milestone"
	case CategoryPlatform:
		return "platform"
	}
	return "unknown"
}

// CategoryForField maps a ticket_change field name to the label category
// it drives. Only the five ticket columns replayed as label swaps match.
func CategoryForField(field string) (Category, bool) {
	switch field {
	case "type":
		return CategoryType, true
	case "component":
		return CategoryComponent, true
	case "priority":
		return CategoryPriority, true
	case "resolution":
		return CategoryResolution, true
	case "severity":
		return CategorySeverity, true
	}
	return 0, false
}

// Color returns the label color used when creating a label for value
func (c Category) Color(value string) string {
	switch c {
	case CategoryType:
		return "cccccc"
	case CategoryComponent:
		return "bfd4f2"
	case CategoryPriority:
		return priorityColor(value)
	case CategoryResolution:
		return "55ff55"
	case CategorySeverity:
		return "ff55ff"
	}
	return "880000"
}

func priorityColor(value string) string {
	switch strings.ToLower(value) {
	case "urgent":
		return "ff0000"
	case "high":
		return "ff6666"
	case "medium":
		return "ffaaaa"
	case "low":
		return "ffdddd"
	case "blocker":
		return "ffc7f8"
	case "critical":
		return "ffffb8"
	case "major":
		return "f6f6f6"
	case "minor":
		return "dcffff"
	}
	return "aa8888"
}

// LabelValue is a distinct (category, value) pair found in the source
type LabelValue struct {
	Category Category
	Value    string
}

// LabelName returns the default GitHub label name, e.g. "T: defect"
func (l LabelValue) LabelName() string {
	return l.Category.Tag() + ": " + strings.ReplaceAll(l.Value, ",", "")
}

// WindowsPlatform is the single bucket for every MS* platform value
const WindowsPlatform = "MS Windows"

// CanonicalPlatform coarsens platform values so every MS* flavour shares
// one bucket.
func CanonicalPlatform(platform string) string {
	if strings.HasPrefix(platform, "MS") {
		return WindowsPlatform
	}
	return platform
}

// MeaningfulPlatform reports whether a platform value carries information
func MeaningfulPlatform(platform string) bool {
	return platform != "" && platform != "All" && platform != "Unspecified"
}
