package ecr

import (
	"time"
)

// Metadata holds the report-header fields shared by both schema variants,
// plus the child lists stitched in after the primary page query.
type Metadata struct {
	EicrID        string
	SetID         *string
	VersionNumber *string
	DataLink      *string
	DateCreated   time.Time

	Conditions    []string
	RuleSummaries []string
	Related       []RelatedEcr
}

// CoreMetadata is one ecr_data row of the core schema.
type CoreMetadata struct {
	Metadata
	DataSource       string
	PatientNameFirst *string
	PatientNameLast  *string
	PatientBirthDate *time.Time
	ReportDate       *time.Time
}

// ExtendedMetadata is one ecr_data row of the extended schema.
type ExtendedMetadata struct {
	Metadata
	FirstName          *string
	LastName           *string
	BirthDate          *time.Time
	EncounterStartDate *time.Time
}

// RelatedEcr is another version of a report sharing its set id.
type RelatedEcr struct {
	EicrID        string    `json:"eicr_id"`
	VersionNumber string    `json:"eicr_version_number"`
	SetID         string    `json:"set_id"`
	DateCreated   time.Time `json:"date_created"`
}

// Display is the canonical, display-ready report record returned by the
// library for either schema.
type Display struct {
	EcrID                string       `json:"ecrId"`
	PatientFirstName     string       `json:"patient_first_name"`
	PatientLastName      string       `json:"patient_last_name"`
	PatientDateOfBirth   string       `json:"patient_date_of_birth"`
	ReportableConditions []string     `json:"reportable_conditions"`
	RuleSummaries        []string     `json:"rule_summaries"`
	PatientReportDate    string       `json:"patient_report_date"`
	DateCreated          string       `json:"date_created"`
	SetID                string       `json:"eicr_set_id,omitempty"`
	VersionNumber        string       `json:"eicr_version_number,omitempty"`
	DataLink             string       `json:"-"`
	RelatedEcrs          []RelatedEcr `json:"related_ecrs"`
}

// Filter is the predicate input shared by the list and count executors.
type Filter struct {
	Dates  DateRange
	Search string
	// Conditions nil or empty means no condition filter. [""] selects
	// reports with no non-null condition.
	Conditions []string
}

// ListQuery is one page request.
type ListQuery struct {
	Filter
	Offset int
	// Limit <= 0 returns every matching row.
	Limit         int
	SortColumn    string
	SortDirection string
}
