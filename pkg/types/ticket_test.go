package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryValue(t *testing.T) {
	tk := Ticket{
		Type:       "defect",
		Component:  "Raster",
		Priority:   "normal",
		Resolution: "fixed",
		Severity:   "major",
		Milestone:  "7.8.0",
	}

	var got []string
	for _, c := range Categories {
		got = append(got, tk.CategoryValue(c))
	}
	assert.Equal(t, []string{"defect", "Raster", "normal", "fixed", "major", ""}, got)
	assert.Equal(t, "", tk.CategoryValue(CategoryMilestone))
}
