// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package catalog

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/tomtom215/tidemark/internal/models"
)

// Schema returns the JSON schema of the kind-specific section of a document.
func Schema(kind models.Kind) (*jsonschema.Schema, error) {
	var (
		s   *jsonschema.Schema
		err error
	)
	switch kind {
	case models.KindSensor:
		s, err = jsonschema.For[models.SensorSpec](nil)
	case models.KindStation:
		s, err = jsonschema.For[models.StationSpec](nil)
	case models.KindDataset:
		s, err = jsonschema.For[models.DatasetSpec](nil)
	case models.KindFeatureOfInterest:
		s, err = jsonschema.For[models.FeatureOfInterestSpec](nil)
	case models.KindProcess:
		s, err = jsonschema.For[models.ProcessSpec](nil)
	case models.KindPerson:
		s, err = jsonschema.For[models.PersonSpec](nil)
	case models.KindOperation:
		s, err = jsonschema.For[models.OperationSpec](nil)
	case models.KindDeployment:
		s, err = jsonschema.For[models.DeploymentSpec](nil)
	case models.KindProject:
		s, err = jsonschema.For[models.ProjectSpec](nil)
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", kind, err)
	}
	s.Title = string(kind)
	return s, nil
}
