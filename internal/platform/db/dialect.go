package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedDialect is returned when METADATA_DATABASE_TYPE names an
// engine this service has no dialect table for.
var ErrUnsupportedDialect = errors.New("unsupported database dialect")

// Dialect collects the SQL fragments that differ between the supported
// metadata database engines. Everything else in the query layer is written
// once against this table.
type Dialect struct {
	Name   string
	Driver string // database/sql driver name

	// LikeOp is the case-insensitive substring match operator.
	LikeOp string
	// Now is the "current timestamp" expression used for column defaults.
	Now            string
	DatetimeType   string
	DatetimeTzType string
	// MaxVarchar is the unbounded text column type.
	MaxVarchar string
	// UnboundedLimit is the LIMIT value meaning "no limit" when an OFFSET is
	// still required.
	UnboundedLimit string

	SupportsSchemas bool

	placeholderPrefix string
	// foldFunc names a SQL function applied to both sides of a match when
	// LikeOp alone does not fold non-ASCII case.
	foldFunc string
	// textTime is set when DATETIME values are stored as text whose layout
	// depends on the writer.
	textTime bool
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	return d.placeholderPrefix + strconv.Itoa(n)
}

// Placeholders returns count comma-separated bind markers starting at start.
func (d Dialect) Placeholders(start, count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.Placeholder(start + i)
	}
	return strings.Join(marks, ", ")
}

// Match returns a case-insensitive match of expr against the pattern bound
// at placeholder.
func (d Dialect) Match(expr, placeholder string) string {
	if d.foldFunc == "" {
		return expr + " " + d.LikeOp + " " + placeholder
	}
	return fmt.Sprintf("%s(%s) %s %s(%s)", d.foldFunc, expr, d.LikeOp, d.foldFunc, placeholder)
}

// sqliteTimeLayout is the strftime layout Timestamp normalizes to, and
// sqliteTimeArgLayout the matching Go layout for bound arguments.
const (
	sqliteTimeLayout    = "%Y-%m-%d %H:%M:%f"
	sqliteTimeArgLayout = "2006-01-02 15:04:05.000"
)

// Timestamp wraps a datetime column so that comparisons against TimeArg
// values order chronologically.
func (d Dialect) Timestamp(expr string) string {
	if !d.textTime {
		return expr
	}
	return "strftime('" + sqliteTimeLayout + "', " + expr + ")"
}

// TimeArg converts t to the bound value compared against Timestamp.
func (d Dialect) TimeArg(t time.Time) any {
	t = t.UTC()
	if d.textTime {
		return t.Format(sqliteTimeArgLayout)
	}
	return t
}

var (
	Postgres = Dialect{
		Name:              "postgres",
		Driver:            "pgx",
		LikeOp:            "ILIKE",
		Now:               "NOW()",
		DatetimeType:      "timestamp",
		DatetimeTzType:    "timestamptz",
		MaxVarchar:        "varchar",
		UnboundedLimit:    "ALL",
		SupportsSchemas:   true,
		placeholderPrefix: "$",
	}

	// SQLite LIKE folds ASCII only, so matches go through the casefold
	// function registered on every connection by the sqlite driver.
	SQLite = Dialect{
		Name:              "sqlite",
		Driver:            sqliteDriver,
		LikeOp:            "LIKE",
		Now:               "CURRENT_TIMESTAMP",
		DatetimeType:      "DATETIME",
		DatetimeTzType:    "DATETIME",
		MaxVarchar:        "TEXT",
		UnboundedLimit:    "-1",
		placeholderPrefix: "?",
		foldFunc:          "casefold",
		textTime:          true,
	}
)

// DialectFor resolves a configured engine name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
	}
}
