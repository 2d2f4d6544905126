package ecr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecr/ecrviewer/internal/platform/blobstore"
	"github.com/ecr/ecrviewer/internal/platform/cache"
)

// fakeRepo is an in-memory Repository recording the calls it receives.
type fakeRepo struct {
	mu         sync.Mutex
	rows       map[string]*Display
	page       []Display
	total      int
	conditions []string
	err        error

	conditionCalls atomic.Int32
	lastQuery      ListQuery
}

func (r *fakeRepo) List(_ context.Context, q ListQuery) ([]Display, error) {
	r.mu.Lock()
	r.lastQuery = q
	r.mu.Unlock()
	return r.page, r.err
}

func (r *fakeRepo) Count(context.Context, Filter) (int, error) {
	return r.total, r.err
}

func (r *fakeRepo) Get(_ context.Context, id string) (*Display, error) {
	if r.err != nil {
		return nil, r.err
	}
	d, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (r *fakeRepo) ListConditions(context.Context) ([]string, error) {
	r.conditionCalls.Add(1)
	return r.conditions, r.err
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]string, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, []string, time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) Ping(context.Context) error { return errors.New("cache down") }

func TestService_Library(t *testing.T) {
	repo := &fakeRepo{
		page:       []Display{{EcrID: "a"}, {EcrID: "b"}},
		total:      51,
		conditions: []string{"COVID-19"},
	}
	svc := NewService(repo, zerolog.Nop())
	svc.now = func() time.Time { return day(2024, 6, 1, 0) }

	cond := "COVID-19"
	page, err := svc.Library(context.Background(), LibraryConfig{
		ItemsPerPage: 25, Page: 2, ColumnID: ColumnPatient, Direction: DirectionAsc,
		DateRange: RangeLast7Days, Condition: &cond,
	})
	if err != nil {
		t.Fatalf("library: %v", err)
	}

	if !page.HasNext || !page.HasPrevious {
		t.Errorf("expected page 2 of 3 to have both neighbours, got next=%v previous=%v", page.HasNext, page.HasPrevious)
	}
	if page.TotalCount != 51 || page.TotalPages != 3 || page.Page != 2 || page.ItemsPerPage != 25 {
		t.Errorf("unexpected paging %+v", page)
	}
	if !equalStrings(ids(page.Ecrs), []string{"a", "b"}) {
		t.Errorf("unexpected ecrs %v", ids(page.Ecrs))
	}
	if !equalStrings(page.Conditions, []string{"COVID-19"}) {
		t.Errorf("unexpected conditions %v", page.Conditions)
	}

	q := repo.lastQuery
	if q.Offset != 25 || q.Limit != 25 {
		t.Errorf("unexpected offset/limit %d/%d", q.Offset, q.Limit)
	}
	if q.SortColumn != ColumnPatient || q.SortDirection != DirectionAsc {
		t.Errorf("unexpected sort %q %q", q.SortColumn, q.SortDirection)
	}
	if !q.Dates.Start.Equal(day(2024, 5, 25, 0)) {
		t.Errorf("unexpected start %v", q.Dates.Start)
	}
	if !equalStrings(q.Conditions, []string{"COVID-19"}) {
		t.Errorf("unexpected conditions filter %v", q.Conditions)
	}
}

func TestService_CustomDatesUseDisplayZone(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, zerolog.Nop())
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}
	svc.SetLocation(ny)

	if _, err := svc.Library(context.Background(), LibraryConfig{
		ItemsPerPage: 25, Page: 1, DateRange: RangeCustom, Dates: "2024-03-01|2024-03-01",
	}); err != nil {
		t.Fatalf("library: %v", err)
	}

	got := repo.lastQuery.Dates
	wantStart := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	if !got.Start.Equal(wantStart) {
		t.Errorf("expected start at New York midnight %v, got %v", wantStart, got.Start.UTC())
	}
	if !got.End.Equal(wantStart.AddDate(0, 0, 1).Add(-time.Nanosecond)) {
		t.Errorf("expected end at the last instant of the New York day, got %v", got.End.UTC())
	}
}

func TestService_LibraryEmpty(t *testing.T) {
	svc := NewService(&fakeRepo{}, zerolog.Nop())
	page, err := svc.Library(context.Background(), LibraryConfig{ItemsPerPage: 25, Page: 1})
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	if page.Ecrs == nil || page.Conditions == nil {
		t.Error("expected empty lists rather than nil")
	}
	if page.TotalPages != 1 {
		t.Errorf("expected one empty page, got %d", page.TotalPages)
	}
}

func TestService_LibraryFailure(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&fakeRepo{err: boom}, zerolog.Nop())
	if _, err := svc.Library(context.Background(), LibraryConfig{}); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestService_ListConditionsCached(t *testing.T) {
	repo := &fakeRepo{conditions: []string{"Influenza", "Mumps"}}
	svc := NewService(repo, zerolog.Nop())
	svc.SetConditionsCache(cache.NewMemoryCache(), time.Minute)

	for i := 0; i < 3; i++ {
		got, err := svc.ListConditions(context.Background())
		if err != nil {
			t.Fatalf("list conditions: %v", err)
		}
		if !equalStrings(got, []string{"Influenza", "Mumps"}) {
			t.Errorf("unexpected conditions %v", got)
		}
	}
	if n := repo.conditionCalls.Load(); n != 1 {
		t.Errorf("expected one repository call, got %d", n)
	}
}

func TestService_ListConditionsCacheFailureFallsThrough(t *testing.T) {
	repo := &fakeRepo{conditions: []string{"Mumps"}}
	svc := NewService(repo, zerolog.Nop())
	svc.SetConditionsCache(failingCache{}, time.Minute)

	got, err := svc.ListConditions(context.Background())
	if err != nil {
		t.Fatalf("expected cache errors to be swallowed, got %v", err)
	}
	if !equalStrings(got, []string{"Mumps"}) {
		t.Errorf("unexpected conditions %v", got)
	}
}

func TestService_ViewData(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	if err := store.Put(ctx, "bundles/1.json", []byte(`{"resourceType":"Bundle"}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "bundles/bad.json", []byte(`not json`)); err != nil {
		t.Fatal(err)
	}

	repo := &fakeRepo{rows: map[string]*Display{
		"1":       {EcrID: "1", DataLink: "gs://ecr-bundles/bundles/1.json"},
		"2":       {EcrID: "2", DataLink: "gs://ecr-bundles/bundles/2.json"},
		"3":       {EcrID: "3"},
		"bad":     {EcrID: "bad", DataLink: "bundles/bad.json"},
		"foreign": {EcrID: "foreign", DataLink: "gs://elsewhere/bundles/1.json"},
	}}
	svc := NewService(repo, zerolog.Nop())
	svc.SetBundleStore(store, "ecr-bundles")

	report, err := svc.ViewData(ctx, "1")
	if err != nil {
		t.Fatalf("view data: %v", err)
	}
	if string(report.Bundle) != `{"resourceType":"Bundle"}` || report.Metadata.EcrID != "1" {
		t.Errorf("unexpected report %+v", report)
	}

	report, err = svc.ViewData(ctx, "3")
	if err != nil {
		t.Fatalf("view data without link: %v", err)
	}
	if report.Bundle != nil {
		t.Errorf("expected no bundle, got %s", report.Bundle)
	}

	if _, err := svc.ViewData(ctx, "2"); !errors.Is(err, ErrBundleNotFound) {
		t.Errorf("expected ErrBundleNotFound, got %v", err)
	}
	if _, err := svc.ViewData(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ViewData(ctx, "foreign"); !errors.Is(err, blobstore.ErrForeignBucket) {
		t.Errorf("expected ErrForeignBucket, got %v", err)
	}
	if _, err := svc.ViewData(ctx, "bad"); err == nil {
		t.Error("expected an error for an invalid bundle")
	}
}

func TestService_ViewDataWithoutStore(t *testing.T) {
	repo := &fakeRepo{rows: map[string]*Display{"1": {EcrID: "1", DataLink: "gs://b/1.json"}}}
	report, err := NewService(repo, zerolog.Nop()).ViewData(context.Background(), "1")
	if err != nil {
		t.Fatalf("view data: %v", err)
	}
	if report.Bundle != nil {
		t.Errorf("expected metadata only, got bundle %s", report.Bundle)
	}
}

func TestService_AgainstSQLite(t *testing.T) {
	svc := NewService(newSeededRepo(t, Extended), zerolog.Nop())
	svc.now = func() time.Time { return day(2024, 6, 1, 0) }
	svc.SetConditionsCache(cache.NewMemoryCache(), time.Minute)

	page, err := svc.Library(context.Background(), LibraryConfig{
		ItemsPerPage: 2, Page: 1, ColumnID: ColumnDateCreated, Direction: DirectionDesc,
		DateRange: RangeLastYear,
	})
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	if page.TotalCount != 4 || page.TotalPages != 2 {
		t.Errorf("expected 4 reports over 2 pages, got %d over %d", page.TotalCount, page.TotalPages)
	}
	if !equalStrings(ids(page.Ecrs), []string{"4", "3"}) {
		t.Errorf("unexpected first page %v", ids(page.Ecrs))
	}
	if !equalStrings(page.Conditions, []string{"COVID-19", "Hepatitis A", "Influenza"}) {
		t.Errorf("unexpected conditions %v", page.Conditions)
	}
}
