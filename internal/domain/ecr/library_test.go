package ecr

import (
	"net/url"
	"testing"
	"time"

	"github.com/ecr/ecrviewer/pkg/pagination"
)

func cookieJar(kv map[string]string) CookieLookup {
	return func(name string) (string, bool) {
		v, ok := kv[name]
		return v, ok
	}
}

func TestLibraryConfigFrom_Defaults(t *testing.T) {
	cfg := LibraryConfigFrom(url.Values{}, nil)
	if cfg.ItemsPerPage != pagination.DefaultItemsPerPage || cfg.Page != 1 {
		t.Errorf("unexpected paging defaults %+v", cfg)
	}
	if cfg.ColumnID != DefaultSortColumn || cfg.Direction != DefaultSortDirection {
		t.Errorf("unexpected sort defaults %+v", cfg)
	}
	if cfg.DateRange != DefaultDateRange || cfg.Dates != "" || cfg.Search != "" {
		t.Errorf("unexpected filter defaults %+v", cfg)
	}
	if cfg.Condition != nil {
		t.Errorf("expected no condition filter, got %q", *cfg.Condition)
	}
}

func TestLibraryConfigFrom_QueryBeatsCookie(t *testing.T) {
	q := url.Values{
		ParamItemsPerPage: {"50"},
		ParamColumnID:     {ColumnPatient},
		ParamSearch:       {"ann"},
	}
	cookies := cookieJar(map[string]string{
		ParamItemsPerPage: "100",
		ParamPage:         "3",
		ParamColumnID:     ColumnReportDate,
		ParamDirection:    DirectionAsc,
	})
	cfg := LibraryConfigFrom(q, cookies)

	if cfg.ItemsPerPage != 50 {
		t.Errorf("expected query itemsPerPage, got %d", cfg.ItemsPerPage)
	}
	if cfg.Page != 3 {
		t.Errorf("expected cookie page, got %d", cfg.Page)
	}
	if cfg.ColumnID != ColumnPatient {
		t.Errorf("expected query columnId, got %q", cfg.ColumnID)
	}
	if cfg.Direction != DirectionAsc {
		t.Errorf("expected cookie direction, got %q", cfg.Direction)
	}
	if cfg.Search != "ann" {
		t.Errorf("unexpected search %q", cfg.Search)
	}
}

func TestLibraryConfigFrom_InvalidNumbersFallThrough(t *testing.T) {
	q := url.Values{ParamItemsPerPage: {"-5"}, ParamPage: {"two"}}
	cfg := LibraryConfigFrom(q, cookieJar(map[string]string{ParamItemsPerPage: "10"}))
	if cfg.ItemsPerPage != 10 {
		t.Errorf("expected cookie fallback, got %d", cfg.ItemsPerPage)
	}
	if cfg.Page != 1 {
		t.Errorf("expected default page, got %d", cfg.Page)
	}
}

func TestLibraryConfig_Conditions(t *testing.T) {
	tests := []struct {
		name    string
		q       url.Values
		cookies map[string]string
		want    []string
	}{
		{"absent", url.Values{}, nil, nil},
		{"explicit empty is the sentinel", url.Values{ParamCondition: {""}}, nil, []string{""}},
		{"single", url.Values{ParamCondition: {"COVID-19"}}, nil, []string{"COVID-19"}},
		{"pipe separated", url.Values{ParamCondition: {"COVID-19|Influenza"}}, nil, []string{"COVID-19", "Influenza"}},
		{"from cookie", url.Values{}, map[string]string{ParamCondition: "Mumps"}, []string{"Mumps"}},
		{"empty cookie ignored", url.Values{}, map[string]string{ParamCondition: ""}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LibraryConfigFrom(tt.q, cookieJar(tt.cookies)).Conditions()
			if (got == nil) != (tt.want == nil) || !equalStrings(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestLibraryConfig_ListQuery(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	q := url.Values{
		ParamItemsPerPage: {"10"},
		ParamPage:         {"3"},
		ParamDateRange:    {RangeCustom},
		ParamDates:        {"2024-01-01|2024-01-31"},
		ParamDirection:    {DirectionAsc},
	}
	lq := LibraryConfigFrom(q, nil).ListQuery(now)

	if lq.Offset != 20 || lq.Limit != 10 {
		t.Errorf("expected offset 20 limit 10, got %d %d", lq.Offset, lq.Limit)
	}
	if lq.SortColumn != DefaultSortColumn || lq.SortDirection != DirectionAsc {
		t.Errorf("unexpected sort %q %q", lq.SortColumn, lq.SortDirection)
	}
	if !lq.Dates.Start.Equal(day(2024, 1, 1, 0)) {
		t.Errorf("unexpected start %v", lq.Dates.Start)
	}
	if lq.Conditions != nil {
		t.Errorf("expected no condition filter, got %v", lq.Conditions)
	}
}
