package http

import (
	"errors"
	"net/url"
	"slices"
	"testing"

	"finboard/internal/analytics"
	"finboard/internal/core"
	"finboard/internal/statements"
)

func TestParseQueryParams(t *testing.T) {
	tests := []struct {
		name       string
		query      url.Values
		wantFilter core.DateFilter
		wantAll    bool
		wantScope  string
		wantScheme analytics.Scheme
		wantHidden []string
		hasHidden  bool
	}{
		{
			name:       "empty query uses defaults",
			query:      url.Values{},
			wantFilter: core.FilterAllTime,
			wantScope:  analytics.DefaultScope,
			wantScheme: analytics.SchemeLight,
		},
		{
			name:       "all values provided",
			query:      url.Values{"filter": {"last30days"}, "all": {"true"}, "scope": {"mobile"}, "scheme": {"DARK"}},
			wantFilter: core.FilterLast30Days,
			wantAll:    true,
			wantScope:  "mobile",
			wantScheme: analytics.SchemeDark,
		},
		{
			name:       "year filter",
			query:      url.Values{"filter": {"2024"}},
			wantFilter: core.DateFilter("2024"),
			wantScope:  analytics.DefaultScope,
			wantScheme: analytics.SchemeLight,
		},
		{
			name:       "invalid all is false",
			query:      url.Values{"all": {"yes please"}},
			wantScope:  analytics.DefaultScope,
			wantScheme: analytics.SchemeLight,
		},
		{
			name:       "hidden comma separated and repeated",
			query:      url.Values{"hidden": {"Food, rent", "Travel"}},
			wantScope:  analytics.DefaultScope,
			wantScheme: analytics.SchemeLight,
			wantHidden: analytics.NewHiddenSet("Food", "rent", "Travel").Sorted(),
			hasHidden:  true,
		},
		{
			name:       "empty hidden still overrides",
			query:      url.Values{"hidden": {""}},
			wantScope:  analytics.DefaultScope,
			wantScheme: analytics.SchemeLight,
			wantHidden: []string{},
			hasHidden:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseQueryParams(tt.query)
			if err != nil {
				t.Fatalf("ParseQueryParams: %v", err)
			}
			if p.Filter != tt.wantFilter {
				t.Errorf("Filter = %q, want %q", p.Filter, tt.wantFilter)
			}
			if p.All != tt.wantAll {
				t.Errorf("All = %v, want %v", p.All, tt.wantAll)
			}
			if p.Scope != tt.wantScope {
				t.Errorf("Scope = %q, want %q", p.Scope, tt.wantScope)
			}
			if p.Scheme != tt.wantScheme {
				t.Errorf("Scheme = %q, want %q", p.Scheme, tt.wantScheme)
			}
			if p.HasHidden != tt.hasHidden {
				t.Errorf("HasHidden = %v, want %v", p.HasHidden, tt.hasHidden)
			}
			if tt.hasHidden {
				got := p.Hidden.Sorted()
				if !slices.Equal(got, tt.wantHidden) {
					t.Errorf("Hidden = %v, want %v", got, tt.wantHidden)
				}
			}
		})
	}
}

func TestParseQueryParams_InvalidFilter(t *testing.T) {
	_, err := ParseQueryParams(url.Values{"filter": {"lastcentury"}})
	if !errors.Is(err, core.ErrInvalidFilter) {
		t.Fatalf("err = %v, want ErrInvalidFilter", err)
	}
}

func TestQueryParams_Query(t *testing.T) {
	p := QueryParams{Filter: core.FilterLastYear, All: true}
	q := p.Query()
	if q.Filter != core.FilterLastYear || !q.All {
		t.Errorf("Query() = %+v", q)
	}
	if q.Limit() != 0 {
		t.Errorf("Limit() = %d, want uncapped", q.Limit())
	}

	capped := QueryParams{Filter: core.FilterLastYear}
	if capped.Query().Limit() == 0 {
		t.Errorf("listing query without all should be capped")
	}
	if cq := capped.ChartQuery(); cq.Limit() != 0 || cq.Filter != core.FilterLastYear {
		t.Errorf("ChartQuery() = %+v, want uncapped with the same filter", cq)
	}
}

func TestParseDateOrder(t *testing.T) {
	tests := []struct {
		in   string
		want statements.DateOrder
	}{
		{"", statements.DayFirst},
		{"dmy", statements.DayFirst},
		{"MDY", statements.MonthFirst},
		{" month ", statements.MonthFirst},
		{"month-first", statements.MonthFirst},
		{"garbage", statements.DayFirst},
	}
	for _, tt := range tests {
		if got := parseDateOrder(tt.in); got != tt.want {
			t.Errorf("parseDateOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{"a, b", "", " c ", "d,\x00"})
	want := []string{"a", "b", "c", "d"}
	if !slices.Equal(got, want) {
		t.Errorf("splitList = %v, want %v", got, want)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain  ", "plain"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07gone", "bellgone"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
