// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/revision"
)

func newTestCatalog(t *testing.T) (*Catalog, *revision.Store) {
	t.Helper()
	store, err := revision.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 2 * time.Millisecond
	return New(store, cfg), store
}

func mustCreate(t *testing.T, c *Catalog, kind models.Kind, id string, doc *models.Document) *models.Entity {
	t.Helper()
	ent, err := c.Create(context.Background(), kind, id, doc, "tester")
	if err != nil {
		t.Fatalf("Create %s/%s: %v", kind, id, err)
	}
	return ent
}

func stationDoc(lat, lon float64) *models.Document {
	return &models.Document{Station: &models.StationSpec{
		Platform:    "seafloor observatory",
		Coordinates: models.Coordinates{Latitude: lat, Longitude: lon},
	}}
}

func sensorDoc(dt models.DataType, processes ...string) *models.Document {
	return &models.Document{Sensor: &models.SensorSpec{
		DataType:       dt,
		Variables:      []models.Variable{{Name: "TEMP", Units: "degC"}, {Name: "PSAL", Units: "psu"}},
		Processes:      processes,
		InstrumentType: "CTD",
		Model:          "SBE37",
	}}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	ent := mustCreate(t, c, models.KindPerson, "ana", &models.Document{Person: &models.PersonSpec{Name: "Ana"}})
	if ent.CurrentVersion != 1 || ent.Author != "tester" {
		t.Errorf("created entity = %+v", ent)
	}

	got, err := c.Get(ctx, models.KindPerson, "ana", 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Payload.Person.Name != "Ana" {
		t.Errorf("name = %q, want Ana", got.Payload.Person.Name)
	}

	_, err = c.Create(ctx, models.KindPerson, "ana", &models.Document{Person: &models.PersonSpec{Name: "Other"}}, "")
	var dup *models.DuplicateError
	if !errors.As(err, &dup) || dup.ID != "ana" || dup.Kind != models.KindPerson {
		t.Errorf("expected DuplicateError for Person/ana, got %v", err)
	}
}

func TestCreateDefaultsAuthor(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)

	ent, err := c.Create(context.Background(), models.KindProject, "emso", &models.Document{
		Project: &models.ProjectSpec{Type: "european", Acronym: "EMSO"},
	}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ent.Author != DefaultConfig().DefaultAuthor {
		t.Errorf("author = %q, want default", ent.Author)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	tests := []struct {
		name string
		kind models.Kind
		id   string
		doc  *models.Document
	}{
		{"nil document", models.KindPerson, "p", nil},
		{"wrong section", models.KindPerson, "p", stationDoc(1, 1)},
		{"bad id", models.KindPerson, "a b", &models.Document{Person: &models.PersonSpec{Name: "A"}}},
		{"unknown data type", models.KindSensor, "s", sensorDoc("spectra")},
		{"averaging without period", models.KindProcess, "p", &models.Document{
			Process: &models.ProcessSpec{Kind: models.ProcessAveraging},
		}},
		{"bad period", models.KindProcess, "p", &models.Document{
			Process: &models.ProcessSpec{Kind: models.ProcessAveraging, Period: "fortnightly"},
		}},
		{"latitude out of range", models.KindStation, "st", stationDoc(123, 0)},
		{"direct feature of interest", models.KindFeatureOfInterest, "f", &models.Document{
			FeatureOfInterest: &models.FeatureOfInterestSpec{Station: "st"},
		}},
		{"dataset without sensors", models.KindDataset, "d", &models.Document{
			Dataset: &models.DatasetSpec{DatasetType: "timeseries"},
		}},
	}

	for _, tt := range tests {
		_, err := c.Create(ctx, tt.kind, tt.id, tt.doc, "")
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", tt.name, err)
		}
	}
}

func TestCreateRejectsDanglingReferences(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	mustCreate(t, c, models.KindProcess, "avg-30m", &models.Document{
		Process: &models.ProcessSpec{Kind: models.ProcessAveraging, Period: "30m"},
	})

	doc := sensorDoc(models.DataTypeTimeseries, "avg-30m", "avg-1h")
	doc.Sensor.Contacts = []models.Contact{{Role: "owner", Person: "nobody"}}

	_, err := c.Create(ctx, models.KindSensor, "ctd", doc, "")
	var integrity *models.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	want := map[models.Ref]bool{
		{Kind: models.KindProcess, ID: "avg-1h"}: true,
		{Kind: models.KindPerson, ID: "nobody"}:  true,
	}
	if len(integrity.Missing) != len(want) {
		t.Fatalf("missing = %v, want %d refs", integrity.Missing, len(want))
	}
	for _, m := range integrity.Missing {
		if !want[m] {
			t.Errorf("unexpected missing ref %v", m)
		}
	}

	if _, err := c.Get(ctx, models.KindSensor, "ctd", 0); err == nil {
		t.Error("sensor must not be stored after an integrity failure")
	}
}

func TestStationCreatesFeatureOfInterest(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	mustCreate(t, c, models.KindStation, "obsea", stationDoc(41.18, 1.75))

	foi, err := c.Get(ctx, models.KindFeatureOfInterest, "obsea", 0)
	if err != nil {
		t.Fatalf("feature of interest not created: %v", err)
	}
	if foi.Payload.FeatureOfInterest.Station != "obsea" {
		t.Errorf("foi station = %q", foi.Payload.FeatureOfInterest.Station)
	}
	if foi.Payload.FeatureOfInterest.Coordinates.Latitude != 41.18 {
		t.Errorf("foi latitude = %v", foi.Payload.FeatureOfInterest.Coordinates.Latitude)
	}
}

func TestStationCreationIsAtomic(t *testing.T) {
	t.Parallel()
	c, store := newTestCatalog(t)
	ctx := context.Background()

	// A stray feature of interest already holds the id.
	_, err := store.Append(ctx, revision.AppendRequest{
		Kind:     models.KindFeatureOfInterest,
		EntityID: "obsea",
		Payload:  &models.Document{FeatureOfInterest: &models.FeatureOfInterestSpec{Station: "obsea"}},
	})
	if err != nil {
		t.Fatalf("seed foi: %v", err)
	}

	_, err = c.Create(ctx, models.KindStation, "obsea", stationDoc(41, 1), "")
	var dup *models.DuplicateError
	if !errors.As(err, &dup) || dup.Kind != models.KindFeatureOfInterest {
		t.Fatalf("expected DuplicateError on FeatureOfInterest, got %v", err)
	}

	var nf *models.NotFoundError
	if _, err := c.Get(ctx, models.KindStation, "obsea", 0); !errors.As(err, &nf) {
		t.Errorf("station must not exist after failed creation, got %v", err)
	}
}

func TestStationUpdateMovesFeature(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	mustCreate(t, c, models.KindStation, "obsea", stationDoc(41.18, 1.75))

	_, err := c.Update(ctx, models.KindStation, "obsea", func(d *models.Document) error {
		d.Station.Coordinates.Latitude = 41.19
		return nil
	}, "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	foi, err := c.Get(ctx, models.KindFeatureOfInterest, "obsea", 0)
	if err != nil {
		t.Fatalf("Get foi: %v", err)
	}
	if foi.CurrentVersion != 2 || foi.Payload.FeatureOfInterest.Coordinates.Latitude != 41.19 {
		t.Errorf("foi = v%d lat %v, want v2 lat 41.19", foi.CurrentVersion, foi.Payload.FeatureOfInterest.Coordinates.Latitude)
	}

	// A properties-only change leaves the feature untouched.
	_, err = c.Update(ctx, models.KindStation, "obsea", func(d *models.Document) error {
		d.Properties = map[string]any{"owner": "upc"}
		return nil
	}, "")
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	foi, _ = c.Get(ctx, models.KindFeatureOfInterest, "obsea", 0)
	if foi.CurrentVersion != 2 {
		t.Errorf("foi should not change on a properties-only update, got v%d", foi.CurrentVersion)
	}
}

func TestUpdateHistory(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	mustCreate(t, c, models.KindPerson, "ana", &models.Document{Person: &models.PersonSpec{Name: "Ana"}})

	const updates = 4
	for i := 0; i < updates; i++ {
		_, err := c.Update(ctx, models.KindPerson, "ana", func(d *models.Document) error {
			d.Person.Organization = fmt.Sprintf("org-%d", i)
			return nil
		}, "")
		if err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}

	var versions []int64
	var last *models.Revision
	for rev, err := range c.History(ctx, models.KindPerson, "ana") {
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		versions = append(versions, rev.Version)
		last = rev
	}
	if len(versions) != updates+1 {
		t.Fatalf("history length = %d, want %d", len(versions), updates+1)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("versions not increasing: %v", versions)
		}
	}
	latest, _ := c.Get(ctx, models.KindPerson, "ana", 0)
	if !last.Payload.Equal(latest.Payload) {
		t.Error("last revision differs from latest entity")
	}
}

func TestUpdateErrors(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	mustCreate(t, c, models.KindPerson, "ana", &models.Document{Person: &models.PersonSpec{Name: "Ana"}})

	_, err := c.Update(ctx, models.KindPerson, "ana", func(*models.Document) error { return nil }, "")
	var unchanged *models.UnchangedError
	if !errors.As(err, &unchanged) {
		t.Errorf("no-op mutation: expected UnchangedError, got %v", err)
	}

	_, err = c.Update(ctx, models.KindPerson, "nobody", func(*models.Document) error { return nil }, "")
	var nf *models.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("missing entity: expected NotFoundError, got %v", err)
	}

	boom := errors.New("mutator refused")
	calls := 0
	_, err = c.Update(ctx, models.KindPerson, "ana", func(*models.Document) error { calls++; return boom }, "")
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("mutator error: got %v after %d calls, want boom after 1", err, calls)
	}

	_, err = c.Update(ctx, models.KindPerson, "ana", func(d *models.Document) error {
		d.Person.Email = "not-an-email"
		return nil
	}, "")
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("invalid mutation: expected ValidationError, got %v", err)
	}
}

func TestConcurrentUpdatesAllApplied(t *testing.T) {
	t.Parallel()
	store, err := revision.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	cfg := DefaultConfig()
	cfg.MaxUpdateAttempts = 100
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	c := New(store, cfg)
	ctx := context.Background()
	mustCreate(t, c, models.KindPerson, "ana", &models.Document{Person: &models.PersonSpec{Name: "Ana"}})

	const writers = 6
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Update(ctx, models.KindPerson, "ana", func(d *models.Document) error {
				if d.Properties == nil {
					d.Properties = map[string]any{}
				}
				d.Properties[fmt.Sprintf("writer-%d", i)] = true
				return nil
			}, fmt.Sprintf("w%d", i))
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	latest, err := c.Get(ctx, models.KindPerson, "ana", 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if latest.CurrentVersion != writers+1 {
		t.Errorf("version = %d, want %d", latest.CurrentVersion, writers+1)
	}
	if len(latest.Payload.Properties) != writers {
		t.Errorf("properties = %v, want %d writer keys", latest.Payload.Properties, writers)
	}
}

// conflictingStore loses every append race.
type conflictingStore struct {
	*revision.Store
	appends atomic.Int32
}

func (s *conflictingStore) AppendBatch(_ context.Context, reqs ...revision.AppendRequest) ([]*models.Revision, error) {
	s.appends.Add(1)
	return nil, &models.ConflictError{Kind: reqs[0].Kind, ID: reqs[0].EntityID, Expected: reqs[0].ExpectedVersion, Actual: reqs[0].ExpectedVersion + 1}
}

func TestUpdateRetryBudget(t *testing.T) {
	t.Parallel()
	store, err := revision.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	if _, err := New(store, DefaultConfig()).Create(ctx, models.KindPerson, "ana",
		&models.Document{Person: &models.PersonSpec{Name: "Ana"}}, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	cs := &conflictingStore{Store: store}
	cfg := DefaultConfig()
	cfg.MaxUpdateAttempts = 3
	cfg.RetryInitialInterval = time.Millisecond
	c := New(cs, cfg)

	_, err = c.Update(ctx, models.KindPerson, "ana", func(d *models.Document) error {
		d.Person.Name = "Ana B"
		return nil
	}, "")
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError after retries, got %v", err)
	}
	if got := cs.appends.Load(); got != 3 {
		t.Errorf("append attempts = %d, want 3", got)
	}
}

func TestDataTypeFreeze(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	ent := mustCreate(t, c, models.KindSensor, "ctd", sensorDoc(models.DataTypeTimeseries))

	// Before any observation is routed the data type may change.
	ent, err := c.Update(ctx, models.KindSensor, "ctd", func(d *models.Document) error {
		d.Sensor.DataType = models.DataTypeProfile
		return nil
	}, "")
	if err != nil {
		t.Fatalf("pre-routing data type change: %v", err)
	}

	if err := c.MarkRouted(ctx, "ctd", ent.CurrentVersion); err != nil {
		t.Fatalf("MarkRouted: %v", err)
	}
	frozen, err := c.DataTypeFrozen(ctx, "ctd")
	if err != nil || !frozen {
		t.Fatalf("DataTypeFrozen = %v, %v", frozen, err)
	}

	_, err = c.Update(ctx, models.KindSensor, "ctd", func(d *models.Document) error {
		d.Sensor.DataType = models.DataTypeTimeseries
		return nil
	}, "")
	var immutable *models.ImmutableFieldError
	if !errors.As(err, &immutable) || immutable.Field != FieldDataType {
		t.Fatalf("expected ImmutableFieldError on dataType, got %v", err)
	}

	// Other fields stay editable.
	_, err = c.Update(ctx, models.KindSensor, "ctd", func(d *models.Document) error {
		d.Sensor.Model = "SBE37-SMP"
		return nil
	}, "")
	if err != nil {
		t.Errorf("model change after freeze: %v", err)
	}
}

func TestMarkRoutedStaleVersion(t *testing.T) {
	t.Parallel()
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	mustCreate(t, c, models.KindSensor, "ctd", sensorDoc(models.DataTypeTimeseries))
	if _, err := c.Update(ctx, models.KindSensor, "ctd", func(d *models.Document) error {
		d.Sensor.Model = "v2"
		return nil
	}, ""); err != nil {
		t.Fatalf("Update: %v", err)
	}

	err := c.MarkRouted(ctx, "ctd", 1)
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) || conflict.Actual != 2 {
		t.Errorf("expected ConflictError at version 2, got %v", err)
	}
}

func TestListAndHealthcheck(t *testing.T) {
	t.Parallel()
	c, store := newTestCatalog(t)
	ctx := context.Background()
	mustCreate(t, c, models.KindStation, "obsea", stationDoc(41, 1))
	mustCreate(t, c, models.KindPerson, "ana", &models.Document{Person: &models.PersonSpec{Name: "Ana"}})

	report, err := c.Healthcheck(ctx)
	if err != nil {
		t.Fatalf("Healthcheck: %v", err)
	}
	if !report.Healthy() {
		t.Fatalf("clean catalog reported problems: %+v", report.Problems)
	}
	if report.Entities[models.KindFeatureOfInterest] != 1 {
		t.Errorf("entity counts = %v", report.Entities)
	}

	// Write a dangling reference underneath the catalog.
	_, err = store.Append(ctx, revision.AppendRequest{
		Kind:     models.KindSensor,
		EntityID: "orphan",
		Payload:  sensorDoc(models.DataTypeTimeseries, "missing-process"),
	})
	if err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	report, err = c.Healthcheck(ctx)
	if err != nil {
		t.Fatalf("Healthcheck: %v", err)
	}
	if len(report.Problems) != 1 || report.Problems[0].Ref.ID != "orphan" {
		t.Fatalf("problems = %+v, want one for orphan", report.Problems)
	}
	if report.Problems[0].Missing[0] != "Process/missing-process" {
		t.Errorf("missing = %v", report.Problems[0].Missing)
	}

	count := 0
	for ent, err := range c.List(ctx, models.KindSensor) {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if ent.ID != "orphan" {
			t.Errorf("unexpected sensor %q", ent.ID)
		}
		count++
	}
	if count != 1 {
		t.Errorf("List returned %d sensors, want 1", count)
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	s, err := Schema(models.KindPerson)
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if _, ok := s.Properties["name"]; !ok {
		t.Errorf("person schema lacks name property: %v", s.Properties)
	}
	if _, err := Schema("Widget"); err == nil {
		t.Error("unknown kind should fail")
	}
}
