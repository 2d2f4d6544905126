package ecr

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

// seedReport is one ecr_data row plus its condition rows. A nil entry in
// conditions inserts a condition row with a NULL condition.
type seedReport struct {
	id         string
	setID      string
	version    string
	link       string
	created    time.Time
	first      string
	last       string
	birth      time.Time
	reportDate time.Time
	conditions []*string
	summaries  map[string][]string // condition -> rule summaries
}

func strp(s string) *string { return &s }

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

// everything is a date window wide enough to include every seeded row.
var everything = DateRange{Start: day(2000, 1, 1, 0), End: day(2100, 1, 1, 0)}

// librarySeed is shared by the repository and service tests.
//
//	id  set  created     patient          conditions
//	1   123  2024-01-01  Alice Smith      COVID-19 (summary), Influenza
//	2   123  2024-01-02  Bob O'Brien      Hepatitis A
//	3   -    2024-01-03  Carol Jones      none
//	4   -    2024-01-04  dave Brown       one NULL row
//	5   -    2023-01-01  Eve Adams        COVID-19
var librarySeed = []seedReport{
	{
		id: "1", setID: "123", version: "1", link: "gs://ecr-bundles/1.json",
		created: day(2024, 1, 1, 10), first: "Alice", last: "Smith",
		birth: day(1990, 5, 6, 0), reportDate: day(2024, 1, 1, 0),
		conditions: []*string{strp("COVID-19"), strp("Influenza")},
		summaries:  map[string][]string{"COVID-19": {"Positive test", "Positive test"}},
	},
	{
		id: "2", setID: "123", version: "2", created: day(2024, 1, 2, 10),
		first: "Bob", last: "O'Brien", birth: day(1985, 2, 3, 0), reportDate: day(2024, 1, 2, 0),
		conditions: []*string{strp("Hepatitis A")},
	},
	{
		id: "3", created: day(2024, 1, 3, 10), first: "Carol", last: "Jones",
		birth: day(1970, 1, 1, 0), reportDate: day(2024, 1, 3, 0),
	},
	{
		id: "4", created: day(2024, 1, 4, 10), first: "dave", last: "Brown",
		birth: day(2001, 12, 31, 0), reportDate: day(2024, 1, 4, 0),
		conditions: []*string{nil},
	},
	{
		id: "5", created: day(2023, 1, 1, 10), first: "Eve", last: "Adams",
		birth: day(1999, 9, 9, 0), reportDate: day(2023, 1, 1, 0),
		conditions: []*string{strp("COVID-19")},
	},
}

// openVariantDB returns a fresh in-memory database migrated for v.
func openVariantDB(t *testing.T, v Variant) *db.DB {
	t.Helper()
	ctx := context.Background()
	d, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	builtin, err := db.BuiltinMigrations(d.Dialect, string(v))
	if err != nil {
		t.Fatalf("builtin migrations: %v", err)
	}
	if _, err := db.NewMigrator(d, builtin, "").Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func seed(t *testing.T, d *db.DB, v Variant, reports []seedReport) {
	t.Helper()
	ctx := context.Background()
	for _, r := range reports {
		var err error
		switch v {
		case Core:
			_, err = d.ExecContext(ctx,
				`INSERT INTO ecr_data (eicr_id, set_id, eicr_version_number, fhir_reference_link, date_created,
					data_source, patient_name_first, patient_name_last, patient_birth_date, report_date)
				 VALUES (?1, ?2, ?3, ?4, ?5, 'DB', ?6, ?7, ?8, ?9)`,
				r.id, nullable(r.setID), nullable(r.version), nullable(r.link), r.created,
				r.first, r.last, r.birth, r.reportDate)
		case Extended:
			_, err = d.ExecContext(ctx,
				`INSERT INTO ecr_data (eicr_id, set_id, eicr_version_number, fhir_reference_link, date_created,
					first_name, last_name, birth_date, encounter_start_date)
				 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`,
				r.id, nullable(r.setID), nullable(r.version), nullable(r.link), r.created,
				r.first, r.last, r.birth, r.reportDate)
		}
		if err != nil {
			t.Fatalf("insert ecr_data %s: %v", r.id, err)
		}

		for i, c := range r.conditions {
			condID := fmt.Sprintf("%s-c%d", r.id, i)
			var cond any
			if c != nil {
				cond = *c
			}
			if _, err := d.ExecContext(ctx,
				"INSERT INTO ecr_rr_conditions (uuid, eicr_id, condition) VALUES (?1, ?2, ?3)",
				condID, r.id, cond); err != nil {
				t.Fatalf("insert condition: %v", err)
			}
			if c == nil {
				continue
			}
			for j, s := range r.summaries[*c] {
				if _, err := d.ExecContext(ctx,
					"INSERT INTO ecr_rr_rule_summaries (uuid, ecr_rr_conditions_id, rule_summary) VALUES (?1, ?2, ?3)",
					fmt.Sprintf("%s-s%d", condID, j), condID, s); err != nil {
					t.Fatalf("insert rule summary: %v", err)
				}
			}
		}
	}
}

func newSeededRepo(t *testing.T, v Variant) Repository {
	t.Helper()
	d := openVariantDB(t, v)
	seed(t, d, v, librarySeed)
	repo, err := NewRepository(d, v, NewTimeFormatter(time.UTC))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo
}

func ids(ds []Display) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.EcrID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
