// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/bpsweep/services/sweep/job"
	"github.com/AleutianAI/bpsweep/services/sweep/report"
)

const keyPrefix = "record/"

var (
	// ErrNotFound indicates no record is stored for a key.
	ErrNotFound = errors.New("record not found")

	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context must not be nil")
)

// Entry is one stored record.
type Entry struct {
	Key job.Key `json:"key"`

	// Command is the command line that produced the record. A resumed
	// sweep only reuses an entry whose command matches exactly.
	Command string `json:"command"`

	// RunID is the sweep run that stored the entry.
	RunID string `json:"run_id"`

	StoredAt time.Time     `json:"stored_at"`
	Record   report.Record `json:"record"`
}

// ResultStore persists parsed records keyed by cell.
//
// Thread Safety: Safe for concurrent use.
type ResultStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens a result store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*ResultStore - The opened store. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*ResultStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultStore{db: db, logger: logger}, nil
}

// OpenInMemory opens an in-memory store. Data is lost when closed.
func OpenInMemory() (*ResultStore, error) {
	return Open(InMemoryConfig())
}

// Close closes the underlying database.
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// storeKey renders the badger key for a cell.
func storeKey(k job.Key) []byte {
	return []byte(keyPrefix + k.String())
}

// Put stores the record for a cell, replacing any earlier entry.
//
// Inputs:
//
//	ctx - Context for cancellation
//	entry - The entry to store; StoredAt is set when zero
//
// Outputs:
//
//	error - Non-nil if encoding or the write fails
//
// Thread Safety: Safe for concurrent use.
func (s *ResultStore) Put(ctx context.Context, entry Entry) error {
	if ctx == nil {
		return ErrNilContext
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.Key, err)
	}

	err = withTxn(ctx, s.db, func(txn *badger.Txn) error {
		return txn.Set(storeKey(entry.Key), data)
	})
	if err != nil {
		return fmt.Errorf("store entry %s: %w", entry.Key, err)
	}

	s.logger.Debug("Stored record",
		slog.String("key", entry.Key.String()),
		slog.String("run_id", entry.RunID),
	)
	return nil
}

// Get returns the entry for a cell.
//
// Outputs:
//
//	Entry - The stored entry
//	error - ErrNotFound when nothing is stored for key
//
// Thread Safety: Safe for concurrent use.
func (s *ResultStore) Get(ctx context.Context, key job.Key) (Entry, error) {
	if ctx == nil {
		return Entry{}, ErrNilContext
	}

	var entry Entry
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Lookup returns the stored record for a descriptor if it was produced
// by the same command line.
//
// Outputs:
//
//	report.Record - The stored record, nil when not reusable
//	bool - True if the record can be reused
//	error - Non-nil on read or decode failure (never for a miss)
func (s *ResultStore) Lookup(ctx context.Context, d job.Descriptor) (report.Record, bool, error) {
	entry, err := s.Get(ctx, d.Key())
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.Command != d.CommandLine() {
		s.logger.Debug("Stored record is stale",
			slog.String("key", d.Key().String()),
			slog.String("stored_command", entry.Command),
		)
		return nil, false, nil
	}
	return entry.Record, true, nil
}

// Delete removes the entry for a cell. Deleting a missing key is not an
// error.
func (s *ResultStore) Delete(ctx context.Context, key job.Key) error {
	if ctx == nil {
		return ErrNilContext
	}
	return withTxn(ctx, s.db, func(txn *badger.Txn) error {
		return txn.Delete(storeKey(key))
	})
}

// All returns every stored entry ordered by key.
//
// Thread Safety: Safe for concurrent use.
func (s *ResultStore) All(ctx context.Context) ([]Entry, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var out []Entry
	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}
