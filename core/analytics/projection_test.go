package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
)

func TestProject(t *testing.T) {
	users := []user.User{{ID: "a1", Role: user.RoleAdmin}, {ID: "u1", Role: user.RoleStudent}}
	all := []cases.Case{
		{ID: "c1", Title: "Contract Review", Status: cases.StatusClosed, ProgressPercentage: 100, DocumentStatus: cases.DocumentReviewed},
		{ID: "c2", Title: "Lease Draft", Status: cases.StatusOpen, ProgressPercentage: 50, DocumentStatus: cases.DocumentNotUploaded},
	}

	rep := Project(users, all)
	assert.Equal(t, 2, rep.TotalUsers)
	assert.Equal(t, 2, rep.TotalCases)
	assert.Equal(t, 1, rep.ActiveCases)
	assert.Equal(t, 1, rep.CompletedCases)
	assert.Equal(t, 75.0, rep.AvgProgress)
	assert.Equal(t, map[string]int{cases.StatusOpen: 1, cases.StatusAssigned: 0, cases.StatusClosed: 1}, rep.StatusCounts)
	assert.Equal(t, 1, rep.DocumentCounts[cases.DocumentReviewed])
	assert.Equal(t, 0, rep.DocumentCounts[cases.DocumentUploaded])

	if assert.Len(t, rep.Slices, 2) {
		assert.Equal(t, Slice{ID: "c1", Label: "Contract Review", Value: 100, Percent: 50, Color: "#3b82f6"}, rep.Slices[0])
		assert.Equal(t, Slice{ID: "c2", Label: "Lease Draft", Value: 50, Percent: 25, Color: "#8b5cf6"}, rep.Slices[1])
	}
	assert.Equal(t, 75.0, rep.OverallPercent)
}

func TestProject_empty(t *testing.T) {
	rep := Project(nil, nil)
	assert.Equal(t, 0, rep.TotalCases)
	assert.Equal(t, 0.0, rep.AvgProgress)
	assert.Equal(t, 0.0, rep.OverallPercent)
	assert.Empty(t, rep.Slices)
}

func TestProject_deterministic(t *testing.T) {
	all := make([]cases.Case, 0, 12)
	for i := 0; i < 12; i++ {
		all = append(all, cases.Case{ID: string(rune('a' + i)), ProgressPercentage: i * 7, Status: cases.StatusAssigned})
	}

	first, second := Project(nil, all), Project(nil, all)
	assert.Equal(t, first, second)
	assert.Equal(t, Palette[0], first.Slices[9].Color)
	assert.LessOrEqual(t, first.OverallPercent, 100.0)
}
