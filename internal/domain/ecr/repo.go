package ecr

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecr/ecrviewer/internal/platform/db"
)

// ErrNotFound is returned when a single report lookup matches no row.
var ErrNotFound = errors.New("ecr not found")

// Repository reads report metadata for one schema variant. Implementations
// only read; ingestion happens elsewhere.
type Repository interface {
	// List returns one page of display records. The primary query, the
	// child-row lookups and the related-version lookup share one read
	// transaction; any failure fails the whole page.
	List(ctx context.Context, q ListQuery) ([]Display, error)
	// Count returns the number of distinct reports matching f.
	Count(ctx context.Context, f Filter) (int, error)
	// Get returns one report by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Display, error)
	// ListConditions returns every distinct non-null condition name, sorted.
	ListConditions(ctx context.Context) ([]string, error)
}

// NewRepository returns the Repository for the deployed variant.
func NewRepository(d *db.DB, v Variant, f Formatter) (Repository, error) {
	switch v {
	case Core:
		return NewCoreRepo(d, f), nil
	case Extended:
		return NewExtendedRepo(d, f), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSchema, v)
	}
}
