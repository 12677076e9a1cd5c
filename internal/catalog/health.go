// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package catalog

import (
	"context"
	"errors"

	"github.com/tomtom215/tidemark/internal/models"
)

// Problem is one finding of a healthcheck.
type Problem struct {
	Ref     models.Ref `json:"entity"`
	Version int64      `json:"version"`
	Reason  string     `json:"reason"`
	Missing []string   `json:"missing,omitempty"`
}

// HealthReport summarises a full catalog walk.
type HealthReport struct {
	Entities map[models.Kind]int `json:"entities"`
	Problems []Problem           `json:"problems"`
}

// Healthy reports whether the walk found no problems.
func (r *HealthReport) Healthy() bool {
	return len(r.Problems) == 0
}

// Healthcheck re-validates the latest version of every entity and reports
// dangling references and stations that lost their feature of interest.
func (c *Catalog) Healthcheck(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Entities: make(map[models.Kind]int)}

	for _, kind := range models.AllKinds() {
		for ent, err := range c.List(ctx, kind) {
			if err != nil {
				return nil, err
			}
			report.Entities[kind]++
			report.Problems = append(report.Problems, c.checkEntity(ctx, ent)...)
		}
	}
	return report, nil
}

func (c *Catalog) checkEntity(ctx context.Context, ent *models.Entity) []Problem {
	var problems []Problem
	ref := ent.Ref()

	if err := validateDocument(ent.Kind, ent.ID, ent.Payload); err != nil {
		problems = append(problems, Problem{Ref: ref, Version: ent.CurrentVersion, Reason: err.Error()})
	}

	err := c.ResolveReferences(ctx, ent.Kind, ent.ID, ent.Payload)
	var integrity *models.IntegrityError
	switch {
	case errors.As(err, &integrity):
		missing := make([]string, len(integrity.Missing))
		for i, m := range integrity.Missing {
			missing[i] = m.String()
		}
		problems = append(problems, Problem{
			Ref: ref, Version: ent.CurrentVersion, Reason: "broken references", Missing: missing,
		})
	case err != nil:
		problems = append(problems, Problem{Ref: ref, Version: ent.CurrentVersion, Reason: err.Error()})
	}

	if ent.Kind == models.KindStation {
		_, err := c.store.Head(ctx, models.KindFeatureOfInterest, ent.ID)
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			problems = append(problems, Problem{
				Ref: ref, Version: ent.CurrentVersion, Reason: "station has no feature of interest",
			})
		}
	}
	return problems
}
