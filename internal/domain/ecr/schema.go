package ecr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

// ErrUnsupportedSchema is returned for a METADATA_DATABASE_SCHEMA value other
// than core or extended.
var ErrUnsupportedSchema = errors.New("unsupported metadata schema")

// Variant identifies which report-header table layout is deployed. The two
// layouts are permanently divergent; the query layer supports both.
type Variant string

const (
	Core     Variant = db.VariantCore
	Extended Variant = db.VariantExtended
)

// ParseVariant resolves a configured schema name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case Core, Extended:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSchema, s)
	}
}

// ColumnMap names the physical ecr_data columns behind each logical field.
type ColumnMap struct {
	FirstName  string
	LastName   string
	BirthDate  string
	ReportDate string
}

var variantColumns = map[Variant]ColumnMap{
	Core: {
		FirstName:  "patient_name_first",
		LastName:   "patient_name_last",
		BirthDate:  "patient_birth_date",
		ReportDate: "report_date",
	},
	Extended: {
		FirstName:  "first_name",
		LastName:   "last_name",
		BirthDate:  "birth_date",
		ReportDate: "encounter_start_date",
	},
}

// Columns returns the physical column map; unknown variants fall back to core.
func (v Variant) Columns() ColumnMap {
	if cols, ok := variantColumns[v]; ok {
		return cols
	}
	return variantColumns[Core]
}
