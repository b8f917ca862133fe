// This file parses query parameters shared by the transaction, budget and
// chart endpoints.

package http

import (
	"net/url"
	"strconv"
	"strings"

	"finboard/internal/analytics"
	"finboard/internal/core"
	"finboard/internal/statements"
)

// QueryParams holds the parsed common query parameters.
type QueryParams struct {
	Filter core.DateFilter
	All    bool
	Scope  string
	Scheme analytics.Scheme
	// Hidden is set only when the request names a hidden list explicitly,
	// which then replaces the stored visibility set.
	Hidden    analytics.HiddenSet
	HasHidden bool
}

// Query returns the transaction query for these params.
func (p QueryParams) Query() core.TransactionQuery {
	return core.TransactionQuery{Filter: p.Filter, All: p.All}
}

// ChartQuery is the query behind chart renders. Aggregations always see
// every row in the filter range; the cap applies only to raw listings.
func (p QueryParams) ChartQuery() core.TransactionQuery {
	return core.TransactionQuery{Filter: p.Filter, All: true}
}

// ParseQueryParams reads filter, all, scope, scheme and hidden. Only an
// invalid filter is an error; the other parameters fall back to defaults.
func ParseQueryParams(query url.Values) (QueryParams, error) {
	f, err := core.ParseDateFilter(query.Get("filter"))
	if err != nil {
		return QueryParams{}, err
	}
	p := QueryParams{
		Filter: f,
		All:    parseBool(query.Get("all")),
		Scope:  sanitizeInput(query.Get("scope")),
		Scheme: analytics.ParseScheme(strings.ToLower(strings.TrimSpace(query.Get("scheme")))),
	}
	if p.Scope == "" {
		p.Scope = analytics.DefaultScope
	}
	if values, ok := query["hidden"]; ok {
		p.HasHidden = true
		p.Hidden = analytics.NewHiddenSet(splitList(values)...)
	}
	return p, nil
}

// parseBool accepts the usual spellings of true. Anything else is false.
func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// splitList flattens repeated and comma-separated values, dropping blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = sanitizeInput(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseDateOrder maps the dateOrder form value of the parse endpoint.
// "mdy" and "month" select month-first; everything else is day-first.
func parseDateOrder(s string) statements.DateOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mdy", "month", "month-first":
		return statements.MonthFirst
	}
	return statements.DayFirst
}
