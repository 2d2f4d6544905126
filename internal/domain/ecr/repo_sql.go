package ecr

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

const headerColumns = "ecr_data.eicr_id, ecr_data.set_id, ecr_data.eicr_version_number, ecr_data.fhir_reference_link, ecr_data.date_created"

const conditionJoin = " LEFT JOIN ecr_rr_conditions ON ecr_data.eicr_id = ecr_rr_conditions.eicr_id"

const ruleSummaryJoin = " LEFT JOIN ecr_rr_rule_summaries ON ecr_rr_conditions.uuid = ecr_rr_rule_summaries.ecr_rr_conditions_id"

// rowShape describes how one variant's header row is selected and scanned.
type rowShape[T any] struct {
	columns []string
	scan    func(rows *sql.Rows) (T, error)
	meta    func(*T) *Metadata
}

func (s rowShape[T]) selectList() string {
	cols := make([]string, 0, len(s.columns)+1)
	cols = append(cols, headerColumns)
	for _, c := range s.columns {
		cols = append(cols, "ecr_data."+c)
	}
	return strings.Join(cols, ", ")
}

// scanHeader scans the shared header columns followed by extra variant
// columns.
func scanHeader(rows *sql.Rows, m *Metadata, extra ...any) error {
	var created db.NullTime
	dest := append([]any{&m.EicrID, &m.SetID, &m.VersionNumber, &m.DataLink, &created}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	m.DateCreated = created.Time
	return nil
}

// sqlStore holds the query logic shared by both variants.
type sqlStore struct {
	db        *db.DB
	variant   Variant
	formatter Formatter
}

func newSQLStore(d *db.DB, v Variant, f Formatter) *sqlStore {
	if f == nil {
		f = NewTimeFormatter(nil)
	}
	return &sqlStore{db: d, variant: v, formatter: f}
}

func (s *sqlStore) paginate(query string, args []any, offset, limit int) (string, []any) {
	d := s.db.Dialect
	if offset < 0 {
		offset = 0
	}
	n := len(args) + 1
	switch {
	case limit > 0:
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", d.Placeholder(n), d.Placeholder(n+1))
		args = append(args, limit, offset)
	case offset > 0:
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", d.UnboundedLimit, d.Placeholder(n))
		args = append(args, offset)
	}
	return query, args
}

func listPage[T any](ctx context.Context, s *sqlStore, shape rowShape[T], q ListQuery) ([]T, error) {
	where := BuildWhere(s.db.Dialect, s.variant, q.Filter, 1)
	query := "SELECT DISTINCT " + shape.selectList() +
		" FROM ecr_data" + conditionJoin + ruleSummaryJoin +
		" WHERE " + where.SQL +
		" ORDER BY " + OrderBy(s.db.Dialect, BuildSort(s.variant, q.SortColumn, q.SortDirection))
	query, args := s.paginate(query, where.Args, q.Offset, q.Limit)

	var out []T
	err := s.db.ReadTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := queryRows(ctx, tx, shape, query, args...)
		if err != nil {
			return fmt.Errorf("list ecr data: %w", err)
		}
		out = rows
		return s.attachChildren(ctx, tx, metas(out, shape))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getOne[T any](ctx context.Context, s *sqlStore, shape rowShape[T], id string) (*T, error) {
	query := "SELECT " + shape.selectList() +
		" FROM ecr_data WHERE ecr_data.eicr_id = " + s.db.Dialect.Placeholder(1)

	var out []T
	err := s.db.ReadTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := queryRows(ctx, tx, shape, query, id)
		if err != nil {
			return fmt.Errorf("get ecr %s: %w", id, err)
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		out = rows
		return s.attachChildren(ctx, tx, metas(out, shape))
	})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

func queryRows[T any](ctx context.Context, tx *sql.Tx, shape rowShape[T], query string, args ...any) ([]T, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		r, err := shape.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ecr row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func metas[T any](rows []T, shape rowShape[T]) []*Metadata {
	out := make([]*Metadata, len(rows))
	for i := range rows {
		out[i] = shape.meta(&rows[i])
	}
	return out
}

// attachChildren fills conditions, rule summaries and related versions for
// the page rows. Child lookups are scoped to the page's report ids; the
// related lookup is scoped to the page's set ids and ignores the page
// filters.
func (s *sqlStore) attachChildren(ctx context.Context, tx *sql.Tx, page []*Metadata) error {
	if len(page) == 0 {
		return nil
	}

	byID := make(map[string]*Metadata, len(page))
	ids := make([]any, 0, len(page))
	bySet := make(map[string][]*Metadata)
	var setIDs []any
	for _, m := range page {
		byID[m.EicrID] = m
		ids = append(ids, m.EicrID)
		if m.SetID != nil && *m.SetID != "" {
			if _, seen := bySet[*m.SetID]; !seen {
				setIDs = append(setIDs, *m.SetID)
			}
			bySet[*m.SetID] = append(bySet[*m.SetID], m)
		}
	}

	d := s.db.Dialect
	in := d.Placeholders(1, len(ids))

	conditions := "SELECT DISTINCT c.eicr_id, c.condition FROM ecr_rr_conditions c" +
		" WHERE c.eicr_id IN (" + in + ") AND c.condition IS NOT NULL" +
		" ORDER BY c.eicr_id, c.condition"
	if err := eachPair(ctx, tx, conditions, ids, func(id, v string) {
		if m := byID[id]; m != nil {
			m.Conditions = append(m.Conditions, v)
		}
	}); err != nil {
		return fmt.Errorf("list conditions: %w", err)
	}

	summaries := "SELECT DISTINCT c.eicr_id, rs.rule_summary FROM ecr_rr_conditions c" +
		" JOIN ecr_rr_rule_summaries rs ON c.uuid = rs.ecr_rr_conditions_id" +
		" WHERE c.eicr_id IN (" + in + ") AND rs.rule_summary IS NOT NULL" +
		" ORDER BY c.eicr_id, rs.rule_summary"
	if err := eachPair(ctx, tx, summaries, ids, func(id, v string) {
		if m := byID[id]; m != nil {
			m.RuleSummaries = append(m.RuleSummaries, v)
		}
	}); err != nil {
		return fmt.Errorf("list rule summaries: %w", err)
	}

	if len(setIDs) == 0 {
		return nil
	}
	return s.attachRelated(ctx, tx, bySet, setIDs)
}

func (s *sqlStore) attachRelated(ctx context.Context, tx *sql.Tx, bySet map[string][]*Metadata, setIDs []any) error {
	query := "SELECT ecr_data.eicr_id, ecr_data.set_id, ecr_data.eicr_version_number, ecr_data.date_created" +
		" FROM ecr_data WHERE ecr_data.set_id IN (" + s.db.Dialect.Placeholders(1, len(setIDs)) + ")" +
		" ORDER BY " + s.db.Dialect.Timestamp("ecr_data.date_created") + " DESC, ecr_data.eicr_id DESC"

	rows, err := tx.QueryContext(ctx, query, setIDs...)
	if err != nil {
		return fmt.Errorf("list related ecrs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rel     RelatedEcr
			version sql.NullString
			created db.NullTime
		)
		if err := rows.Scan(&rel.EicrID, &rel.SetID, &version, &created); err != nil {
			return fmt.Errorf("scan related ecr: %w", err)
		}
		rel.VersionNumber = version.String
		rel.DateCreated = created.Time
		for _, m := range bySet[rel.SetID] {
			if m.EicrID != rel.EicrID {
				m.Related = append(m.Related, rel)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate related ecrs: %w", err)
	}
	return nil
}

func eachPair(ctx context.Context, tx *sql.Tx, query string, args []any, fn func(id, v string)) error {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, v string
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		fn(id, v)
	}
	return rows.Err()
}

// Count implements the count half of Repository for both variants.
func (s *sqlStore) Count(ctx context.Context, f Filter) (int, error) {
	where := BuildWhere(s.db.Dialect, s.variant, f, 1)
	query := "SELECT COUNT(DISTINCT ecr_data.eicr_id) FROM ecr_data" + conditionJoin +
		" WHERE " + where.SQL

	var n int64
	if err := s.db.Querier(ctx).QueryRowContext(ctx, query, where.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ecr data: %w", err)
	}
	return int(n), nil
}

func (s *sqlStore) ListConditions(ctx context.Context) ([]string, error) {
	rows, err := s.db.Querier(ctx).QueryContext(ctx,
		"SELECT DISTINCT condition FROM ecr_rr_conditions WHERE condition IS NOT NULL ORDER BY condition")
	if err != nil {
		return nil, fmt.Errorf("list conditions: %w", err)
	}
	defer rows.Close()

	conditions := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		conditions = append(conditions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conditions: %w", err)
	}
	return conditions, nil
}

var coreShape = rowShape[CoreMetadata]{
	columns: []string{"data_source", "patient_name_first", "patient_name_last", "patient_birth_date", "report_date"},
	scan: func(rows *sql.Rows) (CoreMetadata, error) {
		var (
			m               CoreMetadata
			birth, reported db.NullTime
		)
		err := scanHeader(rows, &m.Metadata, &m.DataSource, &m.PatientNameFirst, &m.PatientNameLast, &birth, &reported)
		m.PatientBirthDate = birth.Ptr()
		m.ReportDate = reported.Ptr()
		return m, err
	},
	meta: func(m *CoreMetadata) *Metadata { return &m.Metadata },
}

var extendedShape = rowShape[ExtendedMetadata]{
	columns: []string{"first_name", "last_name", "birth_date", "encounter_start_date"},
	scan: func(rows *sql.Rows) (ExtendedMetadata, error) {
		var (
			m                ExtendedMetadata
			birth, encounter db.NullTime
		)
		err := scanHeader(rows, &m.Metadata, &m.FirstName, &m.LastName, &birth, &encounter)
		m.BirthDate = birth.Ptr()
		m.EncounterStartDate = encounter.Ptr()
		return m, err
	},
	meta: func(m *ExtendedMetadata) *Metadata { return &m.Metadata },
}

type coreRepo struct {
	*sqlStore
}

// NewCoreRepo returns the Repository over the core schema.
func NewCoreRepo(d *db.DB, f Formatter) Repository {
	return &coreRepo{sqlStore: newSQLStore(d, Core, f)}
}

func (r *coreRepo) List(ctx context.Context, q ListQuery) ([]Display, error) {
	rows, err := listPage(ctx, r.sqlStore, coreShape, q)
	if err != nil {
		return nil, err
	}
	return ProcessCoreMetadata(rows, r.formatter), nil
}

func (r *coreRepo) Get(ctx context.Context, id string) (*Display, error) {
	row, err := getOne(ctx, r.sqlStore, coreShape, id)
	if err != nil {
		return nil, err
	}
	d := row.ToDisplay(r.formatter)
	return &d, nil
}

type extendedRepo struct {
	*sqlStore
}

// NewExtendedRepo returns the Repository over the extended schema.
func NewExtendedRepo(d *db.DB, f Formatter) Repository {
	return &extendedRepo{sqlStore: newSQLStore(d, Extended, f)}
}

func (r *extendedRepo) List(ctx context.Context, q ListQuery) ([]Display, error) {
	rows, err := listPage(ctx, r.sqlStore, extendedShape, q)
	if err != nil {
		return nil, err
	}
	return ProcessExtendedMetadata(rows, r.formatter), nil
}

func (r *extendedRepo) Get(ctx context.Context, id string) (*Display, error) {
	row, err := getOne(ctx, r.sqlStore, extendedShape, id)
	if err != nil {
		return nil, err
	}
	d := row.ToDisplay(r.formatter)
	return &d, nil
}
