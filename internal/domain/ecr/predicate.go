package ecr

import (
	"fmt"
	"strings"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

// Predicate is a boolean SQL fragment with its bound arguments. Placeholders
// are numbered consecutively from the start index the fragment was built
// with.
type Predicate struct {
	SQL  string
	Args []any
}

// TruePredicate always matches. It lets the WHERE clause be composed with
// AND without special-casing absent filters.
func TruePredicate() Predicate {
	return Predicate{SQL: "1 = 1"}
}

// And joins predicates. Each part must have been built with a start index
// following the previous part's arguments.
func And(parts ...Predicate) Predicate {
	clauses := make([]string, 0, len(parts))
	var args []any
	for _, p := range parts {
		clauses = append(clauses, "("+p.SQL+")")
		args = append(args, p.Args...)
	}
	return Predicate{SQL: strings.Join(clauses, " AND "), Args: args}
}

func likePattern(term string) string {
	return "%" + term + "%"
}

// SearchPredicate matches the search term as a case-insensitive substring of
// either patient name. An empty term matches everything.
func SearchPredicate(d db.Dialect, v Variant, term string, start int) Predicate {
	if term == "" {
		return TruePredicate()
	}
	cols := v.Columns()
	pattern := likePattern(term)
	return Predicate{
		SQL: d.Match("ecr_data."+cols.FirstName, d.Placeholder(start)) + " OR " +
			d.Match("ecr_data."+cols.LastName, d.Placeholder(start+1)),
		Args: []any{pattern, pattern},
	}
}

// DatePredicate bounds ecr_data.date_created inclusively on both ends.
func DatePredicate(d db.Dialect, r DateRange, start int) Predicate {
	col := d.Timestamp("ecr_data.date_created")
	return Predicate{
		SQL:  fmt.Sprintf("%s >= %s AND %s <= %s", col, d.Placeholder(start), col, d.Placeholder(start+1)),
		Args: []any{d.TimeArg(r.Start), d.TimeArg(r.End)},
	}
}

// ConditionPredicate filters on reportable conditions.
//
//   - nil or empty: matches everything.
//   - only empty strings: reports without any non-null condition row,
//     including reports with no condition rows at all.
//   - names: reports with a non-null condition matching any name as a
//     case-insensitive substring.
func ConditionPredicate(d db.Dialect, conditions []string, start int) Predicate {
	if len(conditions) == 0 {
		return TruePredicate()
	}

	allEmpty := true
	for _, c := range conditions {
		if c != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return Predicate{
			SQL: "ecr_data.eicr_id NOT IN (SELECT erc_sub.eicr_id FROM ecr_rr_conditions erc_sub WHERE erc_sub.condition IS NOT NULL)",
		}
	}

	matches := make([]string, len(conditions))
	args := make([]any, len(conditions))
	for i, c := range conditions {
		matches[i] = d.Match("erc_sub.condition", d.Placeholder(start+i))
		args[i] = likePattern(c)
	}
	return Predicate{
		SQL: "EXISTS (SELECT erc_sub.eicr_id FROM ecr_rr_conditions erc_sub" +
			" WHERE erc_sub.eicr_id = ecr_data.eicr_id" +
			" AND erc_sub.condition IS NOT NULL" +
			" AND (" + strings.Join(matches, " OR ") + "))",
		Args: args,
	}
}

// BuildWhere composes search, date and condition predicates for the given
// dialect and variant. The list and count executors both use it.
func BuildWhere(d db.Dialect, v Variant, f Filter, start int) Predicate {
	search := SearchPredicate(d, v, f.Search, start)
	start += len(search.Args)
	dates := DatePredicate(d, f.Dates, start)
	start += len(dates.Args)
	conditions := ConditionPredicate(d, f.Conditions, start)
	return And(search, dates, conditions)
}
