// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package catalog is the typed front door to the revision store. It
// validates documents, resolves their references, applies kind-specific
// rules (station/feature pairing, the sensor data type freeze) and retries
// updates that lose an optimistic-concurrency race.
//
// The catalog keeps no state of its own: the current-version index is the
// store's head record, maintained inside the same transaction as each append.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/metrics"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/revision"
	"github.com/tomtom215/tidemark/internal/validation"
)

// FieldDataType is the sensor field frozen once observations are routed.
const FieldDataType = "dataType"

// RevisionStore is the subset of *revision.Store the catalog uses.
type RevisionStore interface {
	Append(ctx context.Context, req revision.AppendRequest) (*models.Revision, error)
	AppendBatch(ctx context.Context, reqs ...revision.AppendRequest) ([]*models.Revision, error)
	Get(ctx context.Context, kind models.Kind, id string, version int64) (*models.Entity, error)
	Head(ctx context.Context, kind models.Kind, id string) (*models.Head, error)
	History(ctx context.Context, kind models.Kind, id string, after int64) iter.Seq2[*models.Revision, error]
	List(ctx context.Context, kind models.Kind) iter.Seq2[*models.Head, error]
	Freeze(ctx context.Context, kind models.Kind, id, field string, atVersion int64) error
	Frozen(ctx context.Context, kind models.Kind, id, field string) (bool, error)
}

// Config tunes catalog behaviour.
type Config struct {
	// MaxUpdateAttempts bounds how often Update re-reads and re-applies a
	// mutator after a version conflict.
	MaxUpdateAttempts int

	// RetryInitialInterval and RetryMaxInterval shape the backoff between
	// update attempts.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// DefaultAuthor is recorded when a caller supplies no author.
	DefaultAuthor string
}

// DefaultConfig returns the catalog defaults.
func DefaultConfig() Config {
	return Config{
		MaxUpdateAttempts:    5,
		RetryInitialInterval: 5 * time.Millisecond,
		RetryMaxInterval:     100 * time.Millisecond,
		DefaultAuthor:        "tidemark",
	}
}

// Mutator edits a copy of the current document. Returning an error aborts
// the update without retrying.
type Mutator func(doc *models.Document) error

// Catalog manages entities on top of a RevisionStore.
type Catalog struct {
	store RevisionStore
	cfg   Config
}

// New creates a Catalog.
func New(store RevisionStore, cfg Config) *Catalog {
	def := DefaultConfig()
	if cfg.MaxUpdateAttempts < 1 {
		cfg.MaxUpdateAttempts = 1
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		cfg.RetryMaxInterval = max(def.RetryMaxInterval, cfg.RetryInitialInterval)
	}
	return &Catalog{store: store, cfg: cfg}
}

func (c *Catalog) author(a string) string {
	if a == "" {
		return c.cfg.DefaultAuthor
	}
	return a
}

// Create stores the first version of an entity. Creating a Station also
// creates its FeatureOfInterest under the same id, atomically.
func (c *Catalog) Create(ctx context.Context, kind models.Kind, id string, doc *models.Document, author string) (ent *models.Entity, err error) {
	defer func() { metrics.RecordCatalogOperation("create", string(kind), err) }()

	if kind == models.KindFeatureOfInterest {
		return nil, &models.ValidationError{Kind: kind, ID: id,
			Err: errors.New("features of interest are created with their station")}
	}
	if err := validateDocument(kind, id, doc); err != nil {
		return nil, err
	}
	if err := c.ResolveReferences(ctx, kind, id, doc); err != nil {
		return nil, err
	}

	author = c.author(author)
	reqs := []revision.AppendRequest{{Kind: kind, EntityID: id, Payload: doc, Author: author}}
	if kind == models.KindStation {
		reqs = append(reqs, revision.AppendRequest{
			Kind:     models.KindFeatureOfInterest,
			EntityID: id,
			Payload:  featureFor(id, doc),
			Author:   author,
		})
	}

	revs, err := c.store.AppendBatch(ctx, reqs...)
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			return nil, &models.DuplicateError{Kind: conflict.Kind, ID: conflict.ID}
		}
		return nil, fmt.Errorf("create %s %q: %w", kind, id, err)
	}

	logging.Info().
		Str("kind", string(kind)).
		Str("id", id).
		Str("author", author).
		Msg("Entity created")

	rev := revs[0]
	return &models.Entity{
		ID:             id,
		Kind:           kind,
		CurrentVersion: rev.Version,
		Payload:        rev.Payload,
		CreatedAt:      rev.Timestamp,
		UpdatedAt:      rev.Timestamp,
		Author:         rev.Author,
	}, nil
}

// Update applies mutate to the latest version of an entity and appends the
// result. Version conflicts are retried with a fresh read up to
// MaxUpdateAttempts times; the last *models.ConflictError is returned when
// the budget runs out.
func (c *Catalog) Update(ctx context.Context, kind models.Kind, id string, mutate Mutator, author string) (ent *models.Entity, err error) {
	defer func() { metrics.RecordCatalogOperation("update", string(kind), err) }()

	if kind == models.KindFeatureOfInterest {
		return nil, &models.ValidationError{Kind: kind, ID: id,
			Err: errors.New("features of interest are updated through their station")}
	}
	author = c.author(author)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryInitialInterval
	eb.MaxInterval = c.cfg.RetryMaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (*models.Entity, error) {
		attempt++
		if attempt > 1 {
			metrics.CatalogUpdateRetries.WithLabelValues(string(kind)).Inc()
		}

		ent, err := c.updateOnce(ctx, kind, id, mutate, author)
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			logging.Warn().
				Str("kind", string(kind)).
				Str("id", id).
				Int("attempt", attempt).
				Int64("expected", conflict.Expected).
				Int64("actual", conflict.Actual).
				Msg("Update lost a version race")
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return ent, nil
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(c.cfg.MaxUpdateAttempts)),
	)
}

func (c *Catalog) updateOnce(ctx context.Context, kind models.Kind, id string, mutate Mutator, author string) (*models.Entity, error) {
	cur, err := c.store.Get(ctx, kind, id, 0)
	if err != nil {
		return nil, err
	}

	next, err := cur.Payload.Clone()
	if err != nil {
		return nil, err
	}
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := validateDocument(kind, id, next); err != nil {
		return nil, err
	}
	if next.Equal(cur.Payload) {
		return nil, &models.UnchangedError{Kind: kind, ID: id}
	}
	if err := c.ResolveReferences(ctx, kind, id, next); err != nil {
		return nil, err
	}

	req := revision.AppendRequest{
		Kind:            kind,
		EntityID:        id,
		ExpectedVersion: cur.CurrentVersion,
		Payload:         next,
		Author:          author,
	}
	if kind == models.KindSensor && cur.Payload.Sensor.DataType != next.Sensor.DataType {
		req.Guards = []string{FieldDataType}
	}
	reqs := []revision.AppendRequest{req}

	if kind == models.KindStation {
		foiReq, err := c.pairedFeatureUpdate(ctx, id, next, author)
		if err != nil {
			return nil, err
		}
		if foiReq != nil {
			reqs = append(reqs, *foiReq)
		}
	}

	revs, err := c.store.AppendBatch(ctx, reqs...)
	if err != nil {
		var guard *revision.GuardError
		if errors.As(err, &guard) {
			return nil, &models.ImmutableFieldError{Kind: guard.Kind, ID: guard.ID, Field: guard.Field}
		}
		return nil, err
	}

	rev := revs[0]
	logging.Debug().
		Str("kind", string(kind)).
		Str("id", id).
		Int64("version", rev.Version).
		Msg("Entity updated")

	return &models.Entity{
		ID:             id,
		Kind:           kind,
		CurrentVersion: rev.Version,
		Payload:        rev.Payload,
		CreatedAt:      cur.CreatedAt,
		UpdatedAt:      rev.Timestamp,
		Author:         rev.Author,
	}, nil
}

// pairedFeatureUpdate returns the append that keeps a station's feature of
// interest in step with the station, or nil when nothing changed.
func (c *Catalog) pairedFeatureUpdate(ctx context.Context, id string, station *models.Document, author string) (*revision.AppendRequest, error) {
	foi, err := c.store.Get(ctx, models.KindFeatureOfInterest, id, 0)
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		// Recreate a missing pair rather than failing the station update.
		return &revision.AppendRequest{
			Kind: models.KindFeatureOfInterest, EntityID: id, Payload: featureFor(id, station), Author: author,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	next := featureFor(id, station)
	next.Properties = foi.Payload.Properties
	if next.Equal(foi.Payload) {
		return nil, nil
	}
	return &revision.AppendRequest{
		Kind:            models.KindFeatureOfInterest,
		EntityID:        id,
		ExpectedVersion: foi.CurrentVersion,
		Payload:         next,
		Author:          author,
	}, nil
}

// Replace swaps the whole document, with Update's retry semantics.
func (c *Catalog) Replace(ctx context.Context, kind models.Kind, id string, doc *models.Document, author string) (*models.Entity, error) {
	return c.Update(ctx, kind, id, func(cur *models.Document) error {
		*cur = *doc
		return nil
	}, author)
}

// Get returns an entity at version, or the latest when version is zero.
func (c *Catalog) Get(ctx context.Context, kind models.Kind, id string, version int64) (*models.Entity, error) {
	return c.store.Get(ctx, kind, id, version)
}

// History yields every revision of an entity, oldest first.
func (c *Catalog) History(ctx context.Context, kind models.Kind, id string) iter.Seq2[*models.Revision, error] {
	return c.store.History(ctx, kind, id, 0)
}

// HistoryAfter resumes a history walk after version.
func (c *Catalog) HistoryAfter(ctx context.Context, kind models.Kind, id string, after int64) iter.Seq2[*models.Revision, error] {
	return c.store.History(ctx, kind, id, after)
}

// List yields the latest version of every entity of kind.
func (c *Catalog) List(ctx context.Context, kind models.Kind) iter.Seq2[*models.Entity, error] {
	return func(yield func(*models.Entity, error) bool) {
		for head, err := range c.store.List(ctx, kind) {
			if err != nil {
				yield(nil, err)
				return
			}
			ent, err := c.store.Get(ctx, kind, head.EntityID, head.Version)
			if !yield(ent, err) || err != nil {
				return
			}
		}
	}
}

// ResolveReferences checks that every reference in doc names an existing
// entity. A document may reference the entity it describes.
func (c *Catalog) ResolveReferences(ctx context.Context, kind models.Kind, id string, doc *models.Document) error {
	var missing []models.Ref
	seen := make(map[models.Ref]struct{})

	for _, ref := range doc.References() {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		if ref.Kind == kind && ref.ID == id {
			continue
		}

		_, err := c.store.Head(ctx, ref.Kind, ref.ID)
		var nf *models.NotFoundError
		switch {
		case errors.As(err, &nf):
			missing = append(missing, ref)
		case err != nil:
			return fmt.Errorf("resolve %s: %w", ref, err)
		}
	}

	if len(missing) > 0 {
		return &models.IntegrityError{Kind: kind, ID: id, Missing: missing}
	}
	return nil
}

// Sensor returns the latest version of a sensor.
func (c *Catalog) Sensor(ctx context.Context, id string) (*models.Entity, error) {
	return c.store.Get(ctx, models.KindSensor, id, 0)
}

// Process returns the latest version of a process.
func (c *Catalog) Process(ctx context.Context, id string) (*models.Entity, error) {
	return c.store.Get(ctx, models.KindProcess, id, 0)
}

// MarkRouted freezes a sensor's data type. version is the sensor version the
// caller classified against; a newer version yields *models.ConflictError so
// the caller can classify again.
func (c *Catalog) MarkRouted(ctx context.Context, sensorID string, version int64) error {
	return c.store.Freeze(ctx, models.KindSensor, sensorID, FieldDataType, version)
}

// DataTypeFrozen reports whether observations have been routed to a sensor.
func (c *Catalog) DataTypeFrozen(ctx context.Context, sensorID string) (bool, error) {
	return c.store.Frozen(ctx, models.KindSensor, sensorID, FieldDataType)
}

func validateDocument(kind models.Kind, id string, doc *models.Document) error {
	if !kind.Valid() {
		return &models.ValidationError{Kind: kind, ID: id, Err: fmt.Errorf("unknown kind %q", kind)}
	}
	if !validation.IsEntityID(id) {
		return &models.ValidationError{Kind: kind, ID: id, Err: errors.New("invalid identifier")}
	}
	if doc == nil {
		return &models.ValidationError{Kind: kind, ID: id, Err: errors.New("document is required")}
	}
	if err := doc.CheckKind(kind); err != nil {
		return &models.ValidationError{Kind: kind, ID: id, Err: err}
	}
	if verr := validation.ValidateStruct(doc); verr != nil {
		return &models.ValidationError{Kind: kind, ID: id, Err: verr}
	}
	return nil
}

func featureFor(stationID string, station *models.Document) *models.Document {
	return &models.Document{
		Description: station.Description,
		FeatureOfInterest: &models.FeatureOfInterestSpec{
			Station:      stationID,
			Coordinates:  station.Station.Coordinates,
			EncodingType: "application/geo+json",
		},
	}
}
