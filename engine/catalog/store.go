package catalog

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Store holds the live catalog. Readers never block; Reload swaps the whole
// structure at once so a request sees either the old or the new catalog.
type Store struct {
	cur    atomic.Pointer[Catalog]
	load   Loader
	logger *slog.Logger
}

// NewStore performs the initial load. A failure here is fatal to the caller.
func NewStore(load Loader, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{load: load, logger: logger}
	c, err := load()
	if err != nil {
		return nil, fmt.Errorf("catalog: initial load: %w", err)
	}
	s.cur.Store(c)
	logger.Info("catalog loaded", "profiles", c.Len(), "warnings", len(c.warnings))
	return s, nil
}

// NewStaticStore wraps an already built catalog. Reload keeps it in place.
func NewStaticStore(c *Catalog) *Store {
	s := &Store{load: func() (*Catalog, error) { return c, nil }, logger: slog.Default()}
	s.cur.Store(c)
	return s
}

// Current returns the catalog in effect.
func (s *Store) Current() *Catalog { return s.cur.Load() }

// Reload re-reads the source. On failure the current catalog stays.
func (s *Store) Reload() (*Catalog, error) {
	c, err := s.load()
	if err != nil {
		s.logger.Error("catalog reload failed, keeping current", "err", err)
		return nil, fmt.Errorf("catalog: reload: %w", err)
	}
	s.cur.Store(c)
	s.logger.Info("catalog reloaded", "profiles", c.Len(), "warnings", len(c.warnings))
	return c, nil
}
