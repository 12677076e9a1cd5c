// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package revision is the append-only, versioned document store underneath
// the catalog. Every mutation of an entity appends a new immutable revision
// and moves the entity's head record forward in the same BadgerDB
// transaction. Nothing is ever rewritten or removed.
//
// Concurrency control is optimistic. An append names the version it was
// derived from; if the head has moved, or if another transaction commits a
// write to the same head while this one is in flight, the append fails with
// *models.ConflictError. Appends to different entities share no keys and
// never block one another.
package revision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/metrics"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/validation"
)

var (
	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("revision store closed")

	// ErrEmptyBatch is returned by AppendBatch without requests.
	ErrEmptyBatch = errors.New("append batch is empty")
)

// GuardError reports an append touching a frozen field.
type GuardError struct {
	Kind  models.Kind
	ID    string
	Field string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s %q: field %s is frozen", e.Kind, e.ID, e.Field)
}

// AppendRequest describes one new revision.
type AppendRequest struct {
	Kind     models.Kind
	EntityID string

	// ExpectedVersion is the version the payload was derived from. Zero
	// means the entity must not exist yet.
	ExpectedVersion int64

	Payload *models.Document
	Author  string

	// Guards names fields this revision changes. The append fails with
	// *GuardError if any of them has been frozen.
	Guards []string
}

// Stats is a snapshot of store counters.
type Stats struct {
	Appends   int64
	Conflicts int64
}

// Store is the BadgerDB-backed revision store.
type Store struct {
	db     *badger.DB
	config Config
	clock  clockwork.Clock

	appends   atomic.Int64
	conflicts atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Option customises a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp revisions.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (or creates) the store described by cfg.
func Open(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(cfg.Path)
		bopts.SyncWrites = cfg.SyncWrites
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Store{db: db, config: cfg, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Revision store opened")
	return s, nil
}

// OpenInMemory opens an in-memory store with default settings.
func OpenInMemory(opts ...Option) (*Store, error) {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.Path = ""
	return Open(cfg, opts...)
}

// DB exposes the underlying database so the job ledger can share it.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Ping reports whether the store accepts operations.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.checkOpen()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Append writes one revision. See AppendBatch.
func (s *Store) Append(ctx context.Context, req AppendRequest) (*models.Revision, error) {
	revs, err := s.AppendBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return revs[0], nil
}

// AppendBatch writes one revision per request in a single transaction.
// Either every revision is committed or none is. Requests must name
// distinct entities.
func (s *Store) AppendBatch(ctx context.Context, reqs ...AppendRequest) ([]*models.Revision, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(reqs))
	for i := range reqs {
		if err := checkRequest(&reqs[i]); err != nil {
			return nil, err
		}
		k := string(headKey(reqs[i].Kind, reqs[i].EntityID))
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("append batch names %s %q twice", reqs[i].Kind, reqs[i].EntityID)
		}
		seen[k] = struct{}{}
	}

	start := s.clock.Now()
	now := start.UTC()
	revs := make([]*models.Revision, len(reqs))

	err := s.db.Update(func(txn *badger.Txn) error {
		for i := range reqs {
			rev, err := appendInTxn(txn, &reqs[i], now)
			if err != nil {
				return err
			}
			revs[i] = rev
		}
		return nil
	})

	elapsed := s.clock.Since(start)
	if errors.Is(err, badger.ErrConflict) {
		// Another transaction committed to one of our heads after we read it.
		err = s.conflictAfterCommit(reqs)
	}

	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		s.conflicts.Add(1)
		metrics.RecordAppend(string(conflict.Kind), elapsed, true)
		logging.Debug().
			Str("kind", string(conflict.Kind)).
			Str("id", conflict.ID).
			Int64("expected", conflict.Expected).
			Int64("actual", conflict.Actual).
			Msg("Append conflict")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	for _, rev := range revs {
		s.appends.Add(1)
		metrics.RecordAppend(string(rev.Kind), elapsed, false)
	}
	return revs, nil
}

func checkRequest(req *AppendRequest) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", req.Kind)
	}
	if !validation.IsEntityID(req.EntityID) {
		return &models.ValidationError{Kind: req.Kind, ID: req.EntityID, Err: errors.New("invalid entity id")}
	}
	if req.Payload == nil {
		return &models.ValidationError{Kind: req.Kind, ID: req.EntityID, Err: errors.New("payload is required")}
	}
	if req.ExpectedVersion < 0 {
		return fmt.Errorf("expected version %d is negative", req.ExpectedVersion)
	}
	return nil
}

func appendInTxn(txn *badger.Txn, req *AppendRequest, now time.Time) (*models.Revision, error) {
	head, err := readHead(txn, req.Kind, req.EntityID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	var current int64
	if head != nil {
		current = head.Version
	}
	if current != req.ExpectedVersion {
		return nil, &models.ConflictError{
			Kind:     req.Kind,
			ID:       req.EntityID,
			Expected: req.ExpectedVersion,
			Actual:   current,
		}
	}

	for _, field := range req.Guards {
		frozen, err := keyExists(txn, guardKey(req.Kind, req.EntityID, field))
		if err != nil {
			return nil, err
		}
		if frozen {
			return nil, &GuardError{Kind: req.Kind, ID: req.EntityID, Field: field}
		}
	}

	rev := &models.Revision{
		Kind:      req.Kind,
		EntityID:  req.EntityID,
		Version:   current + 1,
		Payload:   req.Payload,
		Timestamp: now,
		Author:    req.Author,
	}
	if head == nil {
		head = &models.Head{Kind: req.Kind, EntityID: req.EntityID, CreatedAt: now}
	}
	head.Version = rev.Version
	head.UpdatedAt = now
	head.Author = req.Author

	revData, err := json.Marshal(rev)
	if err != nil {
		return nil, fmt.Errorf("marshal revision: %w", err)
	}
	headData, err := json.Marshal(head)
	if err != nil {
		return nil, fmt.Errorf("marshal head: %w", err)
	}
	if err := txn.Set(revisionKey(rev.Kind, rev.EntityID, rev.Version), revData); err != nil {
		return nil, fmt.Errorf("write revision: %w", err)
	}
	if err := txn.Set(headKey(rev.Kind, rev.EntityID), headData); err != nil {
		return nil, fmt.Errorf("write head: %w", err)
	}
	return rev, nil
}

// conflictAfterCommit builds a ConflictError for the first request whose
// head moved underneath a transaction that failed with badger.ErrConflict.
func (s *Store) conflictAfterCommit(reqs []AppendRequest) error {
	for i := range reqs {
		var actual int64
		err := s.db.View(func(txn *badger.Txn) error {
			head, err := readHead(txn, reqs[i].Kind, reqs[i].EntityID)
			if err != nil {
				return err
			}
			actual = head.Version
			return nil
		})
		if err != nil && !isNotFound(err) {
			return err
		}
		if actual != reqs[i].ExpectedVersion {
			return &models.ConflictError{
				Kind:     reqs[i].Kind,
				ID:       reqs[i].EntityID,
				Expected: reqs[i].ExpectedVersion,
				Actual:   actual,
			}
		}
	}
	// Only a guard key moved; report against the first entity.
	return &models.ConflictError{
		Kind:     reqs[0].Kind,
		ID:       reqs[0].EntityID,
		Expected: reqs[0].ExpectedVersion,
		Actual:   reqs[0].ExpectedVersion,
	}
}

// Head returns the current-version index record of an entity.
func (s *Store) Head(ctx context.Context, kind models.Kind, id string) (*models.Head, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var head *models.Head
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		head, err = readHead(txn, kind, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return head, nil
}

// Get returns an entity at version, or at its latest version when version
// is zero.
func (s *Store) Get(ctx context.Context, kind models.Kind, id string, version int64) (*models.Entity, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if version < 0 {
		return nil, &models.NotFoundError{Kind: kind, ID: id, Version: version}
	}

	var entity *models.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		head, err := readHead(txn, kind, id)
		if err != nil {
			return err
		}
		want := version
		if want == 0 {
			want = head.Version
		}
		if want > head.Version {
			return &models.NotFoundError{Kind: kind, ID: id, Version: version}
		}
		rev, err := readRevision(txn, kind, id, want)
		if err != nil {
			return err
		}
		entity = models.NewEntity(head, rev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// Freeze marks field of an entity as immutable. The freeze only succeeds
// while the entity is still at atVersion, so a caller that decided to freeze
// based on what it read at that version cannot race a concurrent change.
// Freezing an already frozen field is a no-op regardless of version.
func (s *Store) Freeze(ctx context.Context, kind models.Kind, id, field string, atVersion int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := guardKey(kind, id, field)

	err := s.db.Update(func(txn *badger.Txn) error {
		frozen, err := keyExists(txn, key)
		if err != nil || frozen {
			return err
		}
		head, err := readHead(txn, kind, id)
		if err != nil {
			return err
		}
		if head.Version != atVersion {
			return &models.ConflictError{Kind: kind, ID: id, Expected: atVersion, Actual: head.Version}
		}
		return txn.Set(key, fmt.Appendf(nil, "%d", atVersion))
	})
	if errors.Is(err, badger.ErrConflict) {
		if frozen, ferr := s.Frozen(ctx, kind, id, field); ferr == nil && frozen {
			return nil
		}
		head, herr := s.Head(ctx, kind, id)
		if herr != nil {
			return herr
		}
		return &models.ConflictError{Kind: kind, ID: id, Expected: atVersion, Actual: head.Version}
	}
	return err
}

// Frozen reports whether field has been frozen.
func (s *Store) Frozen(ctx context.Context, kind models.Kind, id, field string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var frozen bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		frozen, err = keyExists(txn, guardKey(kind, id, field))
		return err
	})
	return frozen, err
}

// RunGC rewrites value-log files whose discardable share exceeds ratio
// until none qualifies, and returns how many were rewritten. In-memory
// stores have no value log and report zero.
func (s *Store) RunGC(ratio float64) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if s.config.InMemory {
		return 0, nil
	}
	rewritten := 0
	for {
		err := s.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return rewritten, nil
		}
		if err != nil {
			return rewritten, fmt.Errorf("run value log GC: %w", err)
		}
		rewritten++
	}
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	return Stats{Appends: s.appends.Load(), Conflicts: s.conflicts.Load()}
}

// Close closes the database, giving up after the configured timeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.db.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Revision store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

func readHead(txn *badger.Txn, kind models.Kind, id string) (*models.Head, error) {
	item, err := txn.Get(headKey(kind, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &models.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	var head models.Head
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &head) }); err != nil {
		return nil, fmt.Errorf("decode head %s/%s: %w", kind, id, err)
	}
	return &head, nil
}

func readRevision(txn *badger.Txn, kind models.Kind, id string, version int64) (*models.Revision, error) {
	item, err := txn.Get(revisionKey(kind, id, version))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &models.NotFoundError{Kind: kind, ID: id, Version: version}
	}
	if err != nil {
		return nil, fmt.Errorf("read revision: %w", err)
	}
	return decodeRevision(item)
}

func decodeRevision(item *badger.Item) (*models.Revision, error) {
	var rev models.Revision
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rev) }); err != nil {
		return nil, fmt.Errorf("decode revision %s: %w", item.Key(), err)
	}
	return &rev, nil
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isNotFound(err error) bool {
	var nf *models.NotFoundError
	return errors.As(err, &nf)
}
