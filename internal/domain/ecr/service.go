package ecr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ecr/ecrviewer/internal/platform/blobstore"
	"github.com/ecr/ecrviewer/internal/platform/cache"
)

// ErrBundleNotFound is returned when a report's bundle is missing from the
// bundle store.
var ErrBundleNotFound = errors.New("ecr bundle not found")

const conditionsCacheKey = "conditions"

// LibraryPage is one rendered page of the report library.
type LibraryPage struct {
	Ecrs         []Display     `json:"ecrs"`
	TotalCount   int           `json:"total_count"`
	Page         int           `json:"page"`
	ItemsPerPage int           `json:"items_per_page"`
	TotalPages   int           `json:"total_pages"`
	HasNext      bool          `json:"has_next"`
	HasPrevious  bool          `json:"has_previous"`
	Conditions   []string      `json:"conditions"`
	Config       LibraryConfig `json:"config"`
}

// Report is a single report with its raw bundle, when one is available.
type Report struct {
	Metadata *Display       `json:"metadata"`
	Bundle   json.RawMessage `json:"fhirBundle,omitempty"`
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time

	conditions   cache.StringListCache
	conditionTTL time.Duration

	bundles blobstore.BundleStore
	bucket  string
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// SetLocation makes date presets and custom dates resolve in loc.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.now = func() time.Time { return time.Now().In(loc) }
}

// SetConditionsCache caches the condition list in c for ttl.
func (s *Service) SetConditionsCache(c cache.StringListCache, ttl time.Duration) {
	s.conditions = c
	s.conditionTTL = ttl
}

// SetBundleStore attaches the store raw bundles are read from. bucket, when
// set, is the only bucket gs:// links may name.
func (s *Service) SetBundleStore(store blobstore.BundleStore, bucket string) {
	s.bundles = store
	s.bucket = bucket
}

// Library runs the page query, the count and the condition list
// concurrently. A failure in any of them fails the page.
func (s *Service) Library(ctx context.Context, cfg LibraryConfig) (*LibraryPage, error) {
	q := cfg.ListQuery(s.now())
	p := cfg.Pagination()

	var (
		ecrs       []Display
		total      int
		conditions []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ecrs, err = s.repo.List(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, q.Filter)
		return err
	})
	g.Go(func() error {
		var err error
		conditions, err = s.ListConditions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &LibraryPage{
		Ecrs:         listOrEmpty(ecrs),
		TotalCount:   total,
		Page:         p.Page,
		ItemsPerPage: p.ItemsPerPage,
		TotalPages:   p.TotalPages(total),
		HasNext:      p.HasNext(total),
		HasPrevious:  p.HasPrevious(),
		Conditions:   listOrEmpty(conditions),
		Config:       cfg,
	}, nil
}

// ListConditions returns every condition name, from the cache when one is
// attached. Cache errors fall through to the database.
func (s *Service) ListConditions(ctx context.Context) ([]string, error) {
	if s.conditions != nil {
		vals, ok, err := s.conditions.Get(ctx, conditionsCacheKey)
		if err != nil {
			s.logger.Warn().Err(err).Msg("conditions cache read failed")
		} else if ok {
			return vals, nil
		}
	}

	vals, err := s.repo.ListConditions(ctx)
	if err != nil {
		return nil, err
	}

	if s.conditions != nil {
		if err := s.conditions.Set(ctx, conditionsCacheKey, vals, s.conditionTTL); err != nil {
			s.logger.Warn().Err(err).Msg("conditions cache write failed")
		}
	}
	return vals, nil
}

// ViewData returns the report and, when a bundle store is attached and the
// report links one, its raw bundle.
func (s *Service) ViewData(ctx context.Context, id string) (*Report, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report := &Report{Metadata: d}
	if s.bundles == nil || d.DataLink == "" {
		return report, nil
	}

	key, err := blobstore.KeyFromLink(d.DataLink, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("resolving bundle link for %s: %w", id, err)
	}
	data, err := s.bundles.Get(ctx, key)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching bundle for %s: %w", id, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("bundle for %s is not valid JSON", id)
	}
	report.Bundle = data
	return report, nil
}
