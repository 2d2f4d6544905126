package ecr

import (
	"strings"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

// Sortable column ids and directions accepted by the library.
const (
	ColumnPatient     = "patient"
	ColumnDateCreated = "date_created"
	ColumnReportDate  = "report_date"

	DirectionAsc  = "ASC"
	DirectionDesc = "DESC"

	DefaultSortColumn    = ColumnDateCreated
	DefaultSortDirection = DirectionDesc
)

// OrderTerm is one ORDER BY key.
type OrderTerm struct {
	Column    string
	Direction string
}

func (o OrderTerm) String() string {
	return "ecr_data." + o.Column + " " + o.Direction
}

// IsSortableColumn reports whether id is a column the library can sort by.
func IsSortableColumn(id string) bool {
	switch id {
	case ColumnPatient, ColumnDateCreated, ColumnReportDate:
		return true
	}
	return false
}

// IsSortDirection reports whether dir is ASC or DESC.
func IsSortDirection(dir string) bool {
	return dir == DirectionAsc || dir == DirectionDesc
}

// BuildSort maps a logical column id and direction to physical ORDER BY
// terms. Unknown columns sort by creation date, unknown directions sort
// descending. The report id is always appended as a final key in the same
// direction so pages are stable and reversing the direction reverses the
// row order exactly.
func BuildSort(v Variant, columnID, direction string) []OrderTerm {
	if !IsSortDirection(direction) {
		direction = DefaultSortDirection
	}
	if !IsSortableColumn(columnID) {
		columnID = DefaultSortColumn
	}

	cols := v.Columns()
	var terms []OrderTerm
	switch columnID {
	case ColumnPatient:
		terms = []OrderTerm{{cols.FirstName, direction}, {cols.LastName, direction}}
	case ColumnReportDate:
		terms = []OrderTerm{{cols.ReportDate, direction}}
	default:
		terms = []OrderTerm{{ColumnDateCreated, direction}}
	}
	return append(terms, OrderTerm{"eicr_id", direction})
}

// OrderBy renders terms as an ORDER BY clause body. The creation date is
// wrapped so that it orders chronologically on every dialect.
func OrderBy(d db.Dialect, terms []OrderTerm) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		if t.Column == ColumnDateCreated {
			parts[i] = d.Timestamp("ecr_data."+t.Column) + " " + t.Direction
			continue
		}
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
