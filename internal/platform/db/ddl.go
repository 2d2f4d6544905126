package db

import (
	"fmt"
	"strings"
)

// Variant names accepted by BuiltinMigrations. They match the
// METADATA_DATABASE_SCHEMA values.
const (
	VariantCore     = "core"
	VariantExtended = "extended"
)

type column struct {
	name string
	typ  string
	mods string
}

func createTable(name string, cols []column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		def := c.name + " " + c.typ
		if c.mods != "" {
			def += " " + c.mods
		}
		defs[i] = "    " + def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", name, strings.Join(defs, ",\n"))
}

func ecrDataColumns(d Dialect, variant string) []column {
	cols := []column{
		{"eicr_id", "varchar(200)", "PRIMARY KEY"},
		{"set_id", "varchar(255)", ""},
		{"eicr_version_number", "varchar(50)", ""},
		{"fhir_reference_link", "varchar(255)", ""},
		{"date_created", d.DatetimeTzType, "NOT NULL DEFAULT " + d.Now},
	}

	switch variant {
	case VariantCore:
		cols = append(cols,
			column{"data_source", "varchar(2)", "NOT NULL"},
			column{"patient_name_first", "varchar(100)", ""},
			column{"patient_name_last", "varchar(100)", ""},
			column{"patient_birth_date", "date", ""},
			column{"report_date", "date", "NOT NULL"},
		)
	case VariantExtended:
		cols = append(cols,
			column{"last_name", "varchar(255)", "NOT NULL"},
			column{"first_name", "varchar(255)", "NOT NULL"},
			column{"birth_date", "date", "NOT NULL"},
			column{"gender", "varchar(100)", ""},
		)
		for _, name := range []string{
			"birth_sex", "gender_identity", "race", "ethnicity",
		} {
			cols = append(cols, column{name, "varchar(255)", ""})
		}
		cols = append(cols,
			column{"latitude", "numeric", ""},
			column{"longitude", "numeric", ""},
		)
		for _, name := range []string{
			"homelessness_status", "disabilities", "tribal_affiliation",
			"tribal_enrollment_status", "current_job_title", "current_job_industry",
			"usual_occupation", "usual_industry", "preferred_language",
			"pregnancy_status", "rr_id", "processing_status",
		} {
			cols = append(cols, column{name, "varchar(255)", ""})
		}
		cols = append(cols,
			column{"authoring_date", d.DatetimeType, ""},
			column{"authoring_provider", "varchar(255)", ""},
			column{"provider_id", "varchar(255)", ""},
			column{"facility_id", "varchar(255)", ""},
			column{"facility_name", "varchar(255)", ""},
			column{"encounter_type", "varchar(255)", ""},
			column{"encounter_start_date", d.DatetimeType, ""},
			column{"encounter_end_date", d.DatetimeType, ""},
			column{"reason_for_visit", d.MaxVarchar, ""},
			column{"active_problems", d.MaxVarchar, ""},
		)
	}
	return cols
}

func extendedTables(d Dialect) []string {
	address := createTable("patient_address", []column{
		{"uuid", "varchar(200)", "PRIMARY KEY"},
		{"use", "varchar(50)", ""},
		{"type", "varchar(50)", ""},
		{"text", "varchar(255)", ""},
		{"line", "varchar(255)", ""},
		{"city", "varchar(100)", ""},
		{"district", "varchar(100)", ""},
		{"state", "varchar(100)", ""},
		{"postal_code", "varchar(20)", ""},
		{"country", "varchar(100)", ""},
		{"period_start", d.DatetimeTzType, ""},
		{"period_end", d.DatetimeTzType, ""},
		{"eicr_id", "varchar(200)", ""},
	})

	labs := []column{
		{"uuid", "varchar(200)", "PRIMARY KEY"},
		{"eicr_id", "varchar(200)", ""},
	}
	for _, name := range []string{"test_type", "test_type_code", "test_type_system", "test_result_qualitative"} {
		labs = append(labs, column{name, "varchar(255)", ""})
	}
	labs = append(labs,
		column{"test_result_quantitative", "numeric", ""},
		column{"test_result_units", "varchar(50)", ""},
	)
	for _, name := range []string{
		"test_result_code", "test_result_code_display", "test_result_code_system",
		"test_result_interpretation", "test_result_interpretation_code",
		"test_result_interpretation_system",
	} {
		labs = append(labs, column{name, "varchar(255)", ""})
	}
	labs = append(labs,
		column{"test_result_reference_range_low_value", "numeric", ""},
		column{"test_result_reference_range_low_units", "varchar(50)", ""},
		column{"test_result_reference_range_high_value", "numeric", ""},
		column{"test_result_reference_range_high_units", "varchar(50)", ""},
		column{"specimen_type", "varchar(255)", ""},
		column{"specimen_collection_date", "date", ""},
		column{"performing_lab", "varchar(255)", ""},
	)

	return []string{address, createTable("ecr_labs", labs)}
}

// BuiltinMigrations returns the versioned DDL for one (dialect, variant)
// pair. Version 1 creates the report tables shared by both variants with the
// variant's header columns; version 2 adds the extended-only tables and is
// a no-op for core.
func BuiltinMigrations(d Dialect, variant string) ([]Migration, error) {
	if variant != VariantCore && variant != VariantExtended {
		return nil, fmt.Errorf("unsupported metadata schema %q", variant)
	}

	common := []string{
		createTable("ecr_data", ecrDataColumns(d, variant)),
		createTable("ecr_rr_conditions", []column{
			{"uuid", "varchar(200)", "PRIMARY KEY"},
			{"eicr_id", "varchar(255)", "NOT NULL"},
			{"condition", d.MaxVarchar, ""},
		}),
		createTable("ecr_rr_rule_summaries", []column{
			{"uuid", "varchar(200)", "PRIMARY KEY"},
			{"ecr_rr_conditions_id", "varchar(200)", ""},
			{"rule_summary", d.MaxVarchar, ""},
		}),
		"CREATE INDEX IF NOT EXISTS idx_ecr_data_set_id ON ecr_data (set_id)",
		"CREATE INDEX IF NOT EXISTS idx_ecr_rr_conditions_eicr_id ON ecr_rr_conditions (eicr_id)",
		"CREATE INDEX IF NOT EXISTS idx_ecr_rr_rule_summaries_condition ON ecr_rr_rule_summaries (ecr_rr_conditions_id)",
	}

	migrations := []Migration{{
		Version:    1,
		Name:       "001_" + variant + "_reports",
		Statements: common,
	}}
	if variant == VariantExtended {
		migrations = append(migrations, Migration{
			Version:    2,
			Name:       "002_extended_patient_details",
			Statements: extendedTables(d),
		})
	}
	return migrations, nil
}
