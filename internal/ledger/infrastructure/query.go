package infrastructure

import (
	"fmt"
	"strings"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

// whereBuilder collects numbered Postgres placeholders.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) addRaw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) applyFilter(filter domain.ListFilter, createdAt, status string) {
	if filter.From != nil {
		w.add(createdAt+" >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add(createdAt+" <= $%d", *filter.To)
	}
	if filter.Status != "" {
		w.add(status+" = $%d", filter.Status)
	}
}

// orderBy maps the sort key to a column. Ties fall back to id so pages are stable.
func orderBy(filter domain.ListFilter, createdAt, amount, id string) string {
	filter = filter.WithDefaults()
	column := createdAt
	if filter.SortBy == domain.SortByAmount {
		column = amount
	}
	direction := "DESC"
	if filter.Order == domain.SortAsc {
		direction = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s %s", column, direction, id, direction)
}

func pageWindow(page, limit int) (int, int, int) {
	if limit <= 0 {
		limit = 10
	}
	if page < 1 {
		page = 1
	}
	return page, limit, (page - 1) * limit
}

func totalPages(count, limit int) int {
	return (count + limit - 1) / limit
}
