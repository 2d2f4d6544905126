package ecr

import "time"

const (
	dateLayout     = "01/02/2006"
	dateTimeLayout = "01/02/2006 3:04 PM MST"
)

// Formatter renders dates for display. Birth dates are calendar dates and
// must not shift across time zones; timestamps are shown in the display
// zone.
type Formatter interface {
	FormatDate(t time.Time) string
	FormatDateTime(t time.Time) string
}

// TimeFormatter is the default Formatter.
type TimeFormatter struct {
	loc *time.Location
}

// NewTimeFormatter returns a formatter showing timestamps in loc. A nil loc
// means UTC.
func NewTimeFormatter(loc *time.Location) *TimeFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &TimeFormatter{loc: loc}
}

func (f *TimeFormatter) FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func (f *TimeFormatter) FormatDateTime(t time.Time) string {
	return t.In(f.loc).Format(dateTimeLayout)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func listOrEmpty[T any](l []T) []T {
	if l == nil {
		return []T{}
	}
	return l
}

func formatOptional(t *time.Time, fn func(time.Time) string) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return fn(*t)
}

func processCommon(m Metadata, f Formatter) Display {
	d := Display{
		EcrID:                m.EicrID,
		ReportableConditions: listOrEmpty(m.Conditions),
		RuleSummaries:        listOrEmpty(m.RuleSummaries),
		SetID:                stringOrEmpty(m.SetID),
		VersionNumber:        stringOrEmpty(m.VersionNumber),
		DataLink:             stringOrEmpty(m.DataLink),
		RelatedEcrs:          listOrEmpty(m.Related),
	}
	if !m.DateCreated.IsZero() {
		d.DateCreated = f.FormatDateTime(m.DateCreated)
	}
	return d
}

// ToDisplay maps a core row to the canonical display record.
func (m CoreMetadata) ToDisplay(f Formatter) Display {
	d := processCommon(m.Metadata, f)
	d.PatientFirstName = stringOrEmpty(m.PatientNameFirst)
	d.PatientLastName = stringOrEmpty(m.PatientNameLast)
	d.PatientDateOfBirth = formatOptional(m.PatientBirthDate, f.FormatDate)
	d.PatientReportDate = formatOptional(m.ReportDate, f.FormatDateTime)
	return d
}

// ToDisplay maps an extended row to the canonical display record.
func (m ExtendedMetadata) ToDisplay(f Formatter) Display {
	d := processCommon(m.Metadata, f)
	d.PatientFirstName = stringOrEmpty(m.FirstName)
	d.PatientLastName = stringOrEmpty(m.LastName)
	d.PatientDateOfBirth = formatOptional(m.BirthDate, f.FormatDate)
	d.PatientReportDate = formatOptional(m.EncounterStartDate, f.FormatDateTime)
	return d
}

// ProcessCoreMetadata maps core rows to display records, preserving order.
func ProcessCoreMetadata(rows []CoreMetadata, f Formatter) []Display {
	out := make([]Display, len(rows))
	for i, r := range rows {
		out[i] = r.ToDisplay(f)
	}
	return out
}

// ProcessExtendedMetadata maps extended rows to display records, preserving
// order.
func ProcessExtendedMetadata(rows []ExtendedMetadata, f Formatter) []Display {
	out := make([]Display, len(rows))
	for i, r := range rows {
		out[i] = r.ToDisplay(f)
	}
	return out
}
