package catalog

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/openveil/pii-gateway/internal/logger"
	"go.uber.org/zap"
)

// Source supplies pattern and dictionary definitions for the catalog.
// The Postgres Store implements it; BuiltinSource serves the embedded set.
type Source interface {
	LoadPatterns(ctx context.Context) ([]PatternDefinition, error)
	LoadDictionary(ctx context.Context) ([]DictionaryEntry, error)
}

// BuiltinSource serves the compiled-in default pattern set with an optional
// static dictionary. Used when no backing store is configured.
type BuiltinSource struct {
	Dictionary []DictionaryEntry
}

// LoadPatterns returns the builtin pattern definitions.
func (b *BuiltinSource) LoadPatterns(ctx context.Context) ([]PatternDefinition, error) {
	return DefaultPatterns(), nil
}

// LoadDictionary returns the builtin dictionary entries.
func (b *BuiltinSource) LoadDictionary(ctx context.Context) ([]DictionaryEntry, error) {
	return b.Dictionary, nil
}

// Catalog is the shared, read-mostly cache of sensitive-data definitions.
// Refresh builds a complete new Snapshot and swaps it atomically, so in-flight
// classifications always see a consistent catalog.
type Catalog struct {
	source   Source
	logger   *logger.Logger
	interval time.Duration

	snapshot atomic.Pointer[Snapshot]
	stop     chan struct{}
}

// New creates a catalog backed by the given source and performs the initial
// load. A failed initial load is returned as an error so callers can decide
// to fail closed.
func New(ctx context.Context, source Source, interval time.Duration, log *logger.Logger) (*Catalog, error) {
	c := &Catalog{
		source:   source,
		logger:   log,
		interval: interval,
		stop:     make(chan struct{}),
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial catalog load failed: %w", err)
	}

	return c, nil
}

// Refresh reloads definitions from the source, compiles them, and publishes
// the result with a copy-and-swap. A malformed regex is logged and skipped;
// it never aborts the rest of the catalog.
func (c *Catalog) Refresh(ctx context.Context) error {
	defs, err := c.source.LoadPatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}

	dict, err := c.source.LoadDictionary(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dictionary: %w", err)
	}

	snap := c.compile(defs, dict)
	c.snapshot.Store(snap)

	c.logger.Info("Catalog refreshed",
		zap.Int("patterns", len(snap.Patterns)),
		zap.Int("patterns_skipped", snap.Skipped),
		zap.Int("dictionary_entries", len(snap.Dictionary)),
	)

	return nil
}

// compile turns raw definitions into a snapshot, dropping any definition
// whose regex fails to compile or whose severity is unknown.
func (c *Catalog) compile(defs []PatternDefinition, dict []DictionaryEntry) *Snapshot {
	snap := &Snapshot{
		Patterns:   make([]CompiledPattern, 0, len(defs)),
		Dictionary: dict,
		LoadedAt:   time.Now(),
	}

	for _, def := range defs {
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			snap.Skipped++
			c.logger.Warn("Skipping pattern with malformed regex",
				zap.String("pattern_id", def.ID),
				zap.Error(err),
			)
			continue
		}

		sev, err := ParseSeverity(def.Severity)
		if err != nil {
			snap.Skipped++
			c.logger.Warn("Skipping pattern with unknown severity",
				zap.String("pattern_id", def.ID),
				zap.String("severity", def.Severity),
			)
			continue
		}

		snap.Patterns = append(snap.Patterns, CompiledPattern{
			Definition: def,
			Pattern:    re,
			Severity:   sev,
		})
	}

	return snap
}

// Current returns the active snapshot. The boolean reports whether a snapshot
// has ever loaded successfully; callers must fail closed when it is false.
func (c *Catalog) Current() (*Snapshot, bool) {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil, false
	}
	return snap, true
}

// StartRefresher runs periodic refreshes until Stop is called. Refresh errors
// keep the previous snapshot in place.
func (c *Catalog) StartRefresher() {
	if c.interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := c.Refresh(ctx); err != nil {
					c.logger.Error("Scheduled catalog refresh failed, keeping previous snapshot", zap.Error(err))
				}
				cancel()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the background refresher.
func (c *Catalog) Stop() {
	close(c.stop)
}
