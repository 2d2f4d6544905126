// Package blobstore fetches raw FHIR bundles referenced by report metadata.
// It defines the BundleStore interface, an in-memory implementation for
// tests and development, and a Google Cloud Storage implementation.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var (
	ErrBlobNotFound  = errors.New("blob not found")
	ErrFileTooLarge  = errors.New("bundle exceeds maximum allowed size")
	ErrMissingKey    = errors.New("bundle key is required")
	ErrForeignBucket = errors.New("bundle link points at another bucket")
)

// MaxBundleSize is the largest bundle a store will return (100 MB).
const MaxBundleSize = 100 * 1024 * 1024

// BundleStore reads and writes raw bundles by object key.
type BundleStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Ping(ctx context.Context) error
}

// KeyFromLink turns a fhir_reference_link into an object key. Links may be
// bare keys or gs://<bucket>/<key> URLs; a URL naming a different bucket
// than bucket is rejected.
func KeyFromLink(link, bucket string) (string, error) {
	link = strings.TrimSpace(link)
	if rest, ok := strings.CutPrefix(link, "gs://"); ok {
		b, key, _ := strings.Cut(rest, "/")
		if bucket != "" && b != bucket {
			return "", fmt.Errorf("%w: %s", ErrForeignBucket, b)
		}
		link = key
	}
	link = strings.TrimPrefix(link, "/")
	if link == "" {
		return "", ErrMissingKey
	}
	return link, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBundleSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	if len(data) > MaxBundleSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// MemoryStore is a thread-safe, in-memory BundleStore.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[string][]byte
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	s.mu.RLock()
	data, ok := s.bundles[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return bytes.Clone(data), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrMissingKey
	}
	stored, err := readLimited(bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bundles[key] = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
