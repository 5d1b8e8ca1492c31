package db

import (
	"fmt"
	"strings"
)

// SearchQuery accumulates WHERE fragments and positional arguments for a
// filtered, paginated list query.
type SearchQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery creates a SearchQuery selecting cols from table. table may
// carry an alias, e.g. "events e".
func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{table: table, cols: cols, idx: 1}
}

// Idx returns the next available parameter index.
func (q *SearchQuery) Idx() int { return q.idx }

// Arg registers a value and returns its placeholder, e.g. "$3".
func (q *SearchQuery) Arg(v interface{}) string {
	q.args = append(q.args, v)
	p := fmt.Sprintf("$%d", q.idx)
	q.idx++
	return p
}

// Add appends a WHERE fragment (without leading "AND"). Each "?" in clause
// is replaced, in order, by the placeholder of the matching argument.
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	var b strings.Builder
	i := 0
	for _, r := range clause {
		if r == '?' && i < len(args) {
			b.WriteString(q.Arg(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	q.where += " AND " + b.String()
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

func (q *SearchQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query with ORDER BY and, when limit is
// positive, LIMIT/OFFSET.
func (q *SearchQuery) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	}
	return sql
}

func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	if limit <= 0 {
		return q.args
	}
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
