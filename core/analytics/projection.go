// Package analytics derives the admin dashboard aggregates from users and cases.
package analytics

import (
	"github.com/trezcool/clinic/core/cases"
	"github.com/trezcool/clinic/core/user"
)

// Palette colours the progress slices, cycling when there are more cases than colours.
var Palette = []string{
	"#3b82f6", "#8b5cf6", "#06b6d4", "#10b981", "#f59e0b", "#ef4444", "#0ea5e9", "#22c55e", "#a855f7",
}

type Slice struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Value   int     `json:"value"`
	Percent float64 `json:"percent"`
	Color   string  `json:"color"`
}

type Report struct {
	TotalUsers     int            `json:"totalUsers"`
	TotalCases     int            `json:"totalCases"`
	ActiveCases    int            `json:"activeCases"`
	CompletedCases int            `json:"completedCases"`
	AvgProgress    float64        `json:"avgProgress"`
	StatusCounts   map[string]int `json:"statusCounts"`
	DocumentCounts map[string]int `json:"documentCounts"`
	Slices         []Slice        `json:"slices"`
	// OverallPercent is the sum of every slice percent, at most 100.
	OverallPercent float64 `json:"overallPercent"`
}

// Project computes the Report of the given collections. It does no I/O and its output only depends on its input.
func Project(users []user.User, all []cases.Case) Report {
	rep := Report{
		TotalUsers:     len(users),
		TotalCases:     len(all),
		StatusCounts:   make(map[string]int, len(cases.Statuses)),
		DocumentCounts: make(map[string]int, len(cases.DocumentStatuses)),
		Slices:         make([]Slice, 0, len(all)),
	}
	for _, status := range cases.Statuses {
		rep.StatusCounts[status] = 0
	}
	for _, status := range cases.DocumentStatuses {
		rep.DocumentCounts[status] = 0
	}

	denominator := float64(len(all) * 100)
	if denominator < 1 {
		denominator = 1
	}

	var sum int
	for i, c := range all {
		switch c.Status {
		case cases.StatusOpen, cases.StatusAssigned:
			rep.ActiveCases++
		case cases.StatusClosed:
			rep.CompletedCases++
		}
		rep.StatusCounts[c.Status]++
		rep.DocumentCounts[c.DocumentStatus]++
		sum += c.ProgressPercentage

		slice := Slice{
			ID:      c.ID,
			Label:   c.Title,
			Value:   c.ProgressPercentage,
			Percent: float64(c.ProgressPercentage) / denominator * 100,
			Color:   Palette[i%len(Palette)],
		}
		rep.OverallPercent += slice.Percent
		rep.Slices = append(rep.Slices, slice)
	}

	if len(all) > 0 {
		rep.AvgProgress = float64(sum) / float64(len(all))
	}
	return rep
}
