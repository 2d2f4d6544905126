package ecr

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

func TestSearchPredicate(t *testing.T) {
	tests := []struct {
		name    string
		dialect db.Dialect
		variant Variant
		term    string
		start   int
		wantSQL string
	}{
		{
			"postgres core", db.Postgres, Core, "o'brien", 1,
			"ecr_data.patient_name_first ILIKE $1 OR ecr_data.patient_name_last ILIKE $2",
		},
		{
			"sqlite extended", db.SQLite, Extended, "o'brien", 3,
			"casefold(ecr_data.first_name) LIKE casefold(?3) OR casefold(ecr_data.last_name) LIKE casefold(?4)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SearchPredicate(tt.dialect, tt.variant, tt.term, tt.start)
			if p.SQL != tt.wantSQL {
				t.Errorf("expected SQL %q, got %q", tt.wantSQL, p.SQL)
			}
			want := []any{"%o'brien%", "%o'brien%"}
			if !reflect.DeepEqual(p.Args, want) {
				t.Errorf("expected args %v, got %v", want, p.Args)
			}
			if strings.Contains(p.SQL, "'") {
				t.Errorf("search term leaked into SQL text: %q", p.SQL)
			}
		})
	}
}

func TestSearchPredicate_EmptyTermMatchesAll(t *testing.T) {
	p := SearchPredicate(db.Postgres, Core, "", 1)
	if p.SQL != "1 = 1" || len(p.Args) != 0 {
		t.Errorf("expected tautology without args, got %q %v", p.SQL, p.Args)
	}
}

func TestDatePredicate(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	r := DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, loc),
	}
	p := DatePredicate(db.Postgres, r, 2)

	if want := "ecr_data.date_created >= $2 AND ecr_data.date_created <= $3"; p.SQL != want {
		t.Errorf("expected %q, got %q", want, p.SQL)
	}
	if len(p.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(p.Args))
	}
	start := p.Args[0].(time.Time)
	if start.Location() != time.UTC || !start.Equal(r.Start) {
		t.Errorf("expected start bound converted to UTC, got %v", start)
	}

	p = DatePredicate(db.SQLite, r, 1)
	col := "strftime('%Y-%m-%d %H:%M:%f', ecr_data.date_created)"
	if want := col + " >= ?1 AND " + col + " <= ?2"; p.SQL != want {
		t.Errorf("expected %q, got %q", want, p.SQL)
	}
	if p.Args[0] != "2024-01-01 05:00:00.000" || p.Args[1] != "2024-01-31 05:00:00.000" {
		t.Errorf("expected canonical UTC text bounds, got %v", p.Args)
	}
}

func TestConditionPredicate(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		for _, conds := range [][]string{nil, {}} {
			p := ConditionPredicate(db.Postgres, conds, 1)
			if p.SQL != "1 = 1" || len(p.Args) != 0 {
				t.Errorf("expected tautology for %#v, got %q", conds, p.SQL)
			}
		}
	})

	t.Run("no condition sentinel", func(t *testing.T) {
		p := ConditionPredicate(db.SQLite, []string{""}, 5)
		if !strings.HasPrefix(p.SQL, "ecr_data.eicr_id NOT IN (") {
			t.Errorf("expected NOT IN form, got %q", p.SQL)
		}
		if !strings.Contains(p.SQL, "condition IS NOT NULL") {
			t.Errorf("expected NULL conditions to be ignored, got %q", p.SQL)
		}
		if len(p.Args) != 0 {
			t.Errorf("expected no args, got %v", p.Args)
		}
	})

	t.Run("names", func(t *testing.T) {
		p := ConditionPredicate(db.Postgres, []string{"covid", "flu"}, 4)
		want := "EXISTS (SELECT erc_sub.eicr_id FROM ecr_rr_conditions erc_sub" +
			" WHERE erc_sub.eicr_id = ecr_data.eicr_id" +
			" AND erc_sub.condition IS NOT NULL" +
			" AND (erc_sub.condition ILIKE $4 OR erc_sub.condition ILIKE $5))"
		if p.SQL != want {
			t.Errorf("expected\n%s\ngot\n%s", want, p.SQL)
		}
		if !reflect.DeepEqual(p.Args, []any{"%covid%", "%flu%"}) {
			t.Errorf("unexpected args %v", p.Args)
		}
	})

	t.Run("names mixed with empty", func(t *testing.T) {
		p := ConditionPredicate(db.SQLite, []string{"covid", ""}, 1)
		if !strings.HasPrefix(p.SQL, "EXISTS") {
			t.Errorf("expected name-match form, got %q", p.SQL)
		}
		if len(p.Args) != 2 {
			t.Errorf("expected 2 args, got %v", p.Args)
		}
	})
}

func TestBuildWhere_NumbersPlaceholdersAcrossParts(t *testing.T) {
	f := Filter{
		Dates:      DateRange{Start: day(2024, 1, 1, 0), End: day(2024, 2, 1, 0)},
		Search:     "ann",
		Conditions: []string{"covid", "measles"},
	}
	p := BuildWhere(db.Postgres, Core, f, 1)

	for i := 1; i <= 6; i++ {
		mark := db.Postgres.Placeholder(i)
		if strings.Count(p.SQL, mark+" ")+strings.Count(p.SQL, mark+")") != 1 {
			t.Errorf("expected %s exactly once in %q", mark, p.SQL)
		}
	}
	if strings.Contains(p.SQL, "$7") {
		t.Errorf("unexpected extra placeholder in %q", p.SQL)
	}
	if len(p.Args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(p.Args))
	}
	if p.Args[0] != "%ann%" || p.Args[4] != "%covid%" || p.Args[5] != "%measles%" {
		t.Errorf("args out of order: %v", p.Args)
	}
}

func TestBuildWhere_NoFilters(t *testing.T) {
	p := BuildWhere(db.SQLite, Extended, Filter{Dates: everything}, 1)
	col := "strftime('%Y-%m-%d %H:%M:%f', ecr_data.date_created)"
	want := "(1 = 1) AND (" + col + " >= ?1 AND " + col + " <= ?2) AND (1 = 1)"
	if p.SQL != want {
		t.Errorf("expected %q, got %q", want, p.SQL)
	}
	if len(p.Args) != 2 {
		t.Errorf("expected only the date args, got %v", p.Args)
	}
}
