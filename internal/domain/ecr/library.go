package ecr

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ecr/ecrviewer/pkg/pagination"
)

// Library query parameter names. Each can also be remembered in a cookie
// of the same name.
const (
	ParamItemsPerPage = "itemsPerPage"
	ParamPage         = "page"
	ParamColumnID     = "columnId"
	ParamDirection    = "direction"
	ParamCondition    = "condition"
	ParamDates        = "dates"
	ParamDateRange    = "dateRange"
	ParamSearch       = "search"
)

// LibraryConfig is the fully resolved library view: every parameter taken
// from the query, else a same-named cookie, else its default.
type LibraryConfig struct {
	ItemsPerPage int     `json:"itemsPerPage"`
	Page         int     `json:"page"`
	ColumnID     string  `json:"columnId"`
	Direction    string  `json:"direction"`
	Condition    *string `json:"condition,omitempty"`
	Dates        string  `json:"dates"`
	DateRange    string  `json:"dateRange"`
	Search       string  `json:"search"`
}

// CookieLookup returns a cookie value by name.
type CookieLookup func(name string) (string, bool)

func firstValue(q url.Values, key string) (string, bool) {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// resolveString prefers an explicitly sent query value, even an empty one,
// then a non-empty cookie, then def.
func resolveString(q url.Values, cookies CookieLookup, key, def string) string {
	if v, ok := firstValue(q, key); ok {
		return v
	}
	if cookies != nil {
		if v, ok := cookies(key); ok && v != "" {
			return v
		}
	}
	return def
}

func positiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func resolveInt(q url.Values, cookies CookieLookup, key string, def int) int {
	if v, ok := firstValue(q, key); ok {
		if n, ok := positiveInt(v); ok {
			return n
		}
	}
	if cookies != nil {
		if v, ok := cookies(key); ok {
			if n, ok := positiveInt(v); ok {
				return n
			}
		}
	}
	return def
}

// LibraryConfigFrom resolves the library view from query parameters and
// cookies.
func LibraryConfigFrom(q url.Values, cookies CookieLookup) LibraryConfig {
	cfg := LibraryConfig{
		ItemsPerPage: resolveInt(q, cookies, ParamItemsPerPage, pagination.DefaultItemsPerPage),
		Page:         resolveInt(q, cookies, ParamPage, 1),
		ColumnID:     resolveString(q, cookies, ParamColumnID, DefaultSortColumn),
		Direction:    resolveString(q, cookies, ParamDirection, DefaultSortDirection),
		Dates:        resolveString(q, cookies, ParamDates, ""),
		DateRange:    resolveString(q, cookies, ParamDateRange, DefaultDateRange),
		Search:       resolveString(q, cookies, ParamSearch, ""),
	}

	if v, ok := firstValue(q, ParamCondition); ok {
		cfg.Condition = &v
	} else if cookies != nil {
		if v, ok := cookies(ParamCondition); ok && v != "" {
			cfg.Condition = &v
		}
	}
	return cfg
}

// Conditions splits the condition parameter on "|". An absent parameter
// means no condition filter; an empty one is the "no condition" sentinel.
func (c LibraryConfig) Conditions() []string {
	if c.Condition == nil {
		return nil
	}
	return strings.Split(*c.Condition, "|")
}

// Pagination returns the page parameters.
func (c LibraryConfig) Pagination() pagination.Params {
	return pagination.Params{Page: c.Page, ItemsPerPage: c.ItemsPerPage}
}

// Filter returns the predicate input, resolving the date range against now.
func (c LibraryConfig) Filter(now time.Time) Filter {
	return Filter{
		Dates:      ResolveDateRange(c.DateRange, c.Dates, now),
		Search:     c.Search,
		Conditions: c.Conditions(),
	}
}

// ListQuery returns the page request for this view.
func (c LibraryConfig) ListQuery(now time.Time) ListQuery {
	p := c.Pagination()
	return ListQuery{
		Filter:        c.Filter(now),
		Offset:        p.Offset(),
		Limit:         p.Limit(),
		SortColumn:    c.ColumnID,
		SortDirection: c.Direction,
	}
}
