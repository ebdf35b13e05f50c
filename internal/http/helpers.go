package http

import (
	"strings"

	"expenses/internal/core"
)

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type expenseView struct {
	Offset   int    `json:"offset"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

func toView(offset int, r core.Record) expenseView {
	return expenseView{
		Offset:   offset,
		ID:       r.ID.String(),
		Name:     r.Name,
		Category: r.Category.String(),
		Amount:   core.FormatAmount(r.Amount),
	}
}

type listResponse struct {
	Items []expenseView `json:"items"`
	Count int           `json:"count"`
	Total string        `json:"total"`
}

func toList(recs []core.Record) listResponse {
	views := make([]expenseView, len(recs))
	for i, r := range recs {
		views[i] = toView(i, r)
	}
	return listResponse{
		Items: views,
		Count: len(recs),
		Total: core.FormatAmount(core.Total(recs)),
	}
}
