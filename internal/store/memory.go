package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/strata-labs/strata/internal/table"
)

func init() {
	Register("memory", func(logger *slog.Logger) Store { return NewMemStore(logger) })
}

// MemStore is an in-memory table store. Reads and writes exchange deep
// copies, so a caller can never mutate a committed table in place. Writes
// replace the stored table only after the copy fully succeeds, which keeps
// the atomic-overwrite contract.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]*table.Table
	logger *slog.Logger

	// failWrites maps qualified names to injected errors, for tests that
	// need a failing write without a real backend.
	failWrites map[string]error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(logger *slog.Logger) *MemStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemStore{
		tables:     make(map[string]*table.Table),
		failWrites: make(map[string]error),
		logger:     logger,
	}
}

// FailNextWrite injects an error for every subsequent write to the
// qualified name. The previously committed table stays readable.
func (s *MemStore) FailNextWrite(qualified string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites[qualified] = err
}

// Read returns a deep copy of the named table.
func (s *MemStore) Read(_ context.Context, qualified string) (*table.Table, error) {
	if _, _, err := SplitQualified(qualified); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[qualified]
	if !ok {
		return nil, &NotFoundError{Table: qualified}
	}
	return t.Clone(), nil
}

// Write stores a deep copy of t under the qualified name.
func (s *MemStore) Write(_ context.Context, qualified string, t *table.Table, mode WriteMode) error {
	if _, _, err := SplitQualified(qualified); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failWrites[qualified]; ok {
		return &WriteError{Table: qualified, Err: err}
	}

	switch mode {
	case WriteOverwrite:
		s.tables[qualified] = t.Clone()
	case WriteAppend:
		existing, ok := s.tables[qualified]
		if !ok {
			s.tables[qualified] = t.Clone()
			return nil
		}
		if !existing.SameSchema(t) {
			return &WriteError{Table: qualified, Err: fmt.Errorf("append schema mismatch")}
		}
		merged := existing.Clone()
		incoming := t.Clone()
		merged.Rows = append(merged.Rows, incoming.Rows...)
		s.tables[qualified] = merged
	default:
		return &WriteError{Table: qualified, Err: fmt.Errorf("unknown write mode %q", mode)}
	}
	s.logger.Debug("table written", "table", qualified, "mode", string(mode), "rows", t.NumRows())
	return nil
}

// Close releases nothing; it exists to satisfy Store.
func (s *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
