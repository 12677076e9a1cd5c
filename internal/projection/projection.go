// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package projection renders catalog entities as OGC SensorThings resources.
//
// Every function here is pure: the same entity version always produces the
// same value, and Marshal of that value produces the same bytes. Entity ids
// become SensorThings names. Contacts are never projected.
package projection

import (
	"errors"
	"fmt"
	"maps"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/models"
)

const (
	encodingGeoJSON   = "application/geo+json"
	encodingSensorDoc = "application/json"
	observationType   = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_Measurement"
	countObservation  = "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_CountObservation"
)

// ErrNotProjectable is returned for kinds without a SensorThings counterpart.
var ErrNotProjectable = errors.New("entity kind has no SensorThings projection")

// Sensor is a SensorThings Sensor.
type Sensor struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	EncodingType string         `json:"encodingType"`
	Metadata     string         `json:"metadata"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Point is a GeoJSON point, longitude first.
type Point struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Location is a SensorThings Location.
type Location struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	EncodingType string `json:"encodingType"`
	Location     Point  `json:"location"`
}

// Thing is a SensorThings Thing; stations project to Things.
type Thing struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties,omitempty"`
	Locations   []Location     `json:"Locations"`
}

// FeatureOfInterest is a SensorThings FeatureOfInterest.
type FeatureOfInterest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	EncodingType string `json:"encodingType"`
	Feature      Point  `json:"feature"`
}

// Project renders a sensor, station or feature of interest.
func Project(e *models.Entity) (any, error) {
	if e == nil || e.Payload == nil {
		return nil, errors.New("nothing to project")
	}
	switch e.Kind {
	case models.KindSensor:
		return ProjectSensor(e)
	case models.KindStation:
		return ProjectThing(e)
	case models.KindFeatureOfInterest:
		return ProjectFeature(e)
	default:
		return nil, fmt.Errorf("%s %q: %w", e.Kind, e.ID, ErrNotProjectable)
	}
}

// ProjectSensor renders a sensor. Instrument details that SensorThings has
// no field for travel in properties.
func ProjectSensor(e *models.Entity) (*Sensor, error) {
	spec := e.Payload.Sensor
	if e.Kind != models.KindSensor || spec == nil {
		return nil, fmt.Errorf("%s %q is not a sensor", e.Kind, e.ID)
	}

	props := maps.Clone(e.Payload.Properties)
	if props == nil {
		props = make(map[string]any)
	}
	setIf(props, "instrumentType", spec.InstrumentType)
	setIf(props, "model", spec.Model)
	setIf(props, "manufacturer", spec.Manufacturer)
	setIf(props, "serialNumber", spec.SerialNumber)
	props["dataType"] = string(spec.DataType)

	return &Sensor{
		Name:         e.ID,
		Description:  describe(e),
		EncodingType: encodingSensorDoc,
		Metadata:     spec.Model,
		Properties:   props,
	}, nil
}

// ProjectThing renders a station.
func ProjectThing(e *models.Entity) (*Thing, error) {
	spec := e.Payload.Station
	if e.Kind != models.KindStation || spec == nil {
		return nil, fmt.Errorf("%s %q is not a station", e.Kind, e.ID)
	}

	props := maps.Clone(e.Payload.Properties)
	if spec.Platform != "" {
		if props == nil {
			props = make(map[string]any)
		}
		props["platform"] = spec.Platform
	}

	return &Thing{
		Name:        e.ID,
		Description: describe(e),
		Properties:  props,
		Locations: []Location{{
			Name:         e.ID,
			Description:  "Location of " + e.ID,
			EncodingType: encodingGeoJSON,
			Location:     point(spec.Coordinates),
		}},
	}, nil
}

// ProjectFeature renders a feature of interest.
func ProjectFeature(e *models.Entity) (*FeatureOfInterest, error) {
	spec := e.Payload.FeatureOfInterest
	if e.Kind != models.KindFeatureOfInterest || spec == nil {
		return nil, fmt.Errorf("%s %q is not a feature of interest", e.Kind, e.ID)
	}
	enc := spec.EncodingType
	if enc == "" {
		enc = encodingGeoJSON
	}
	return &FeatureOfInterest{
		Name:         e.ID,
		Description:  describe(e),
		EncodingType: enc,
		Feature:      point(spec.Coordinates),
	}, nil
}

// Marshal encodes a projection. Map keys are sorted, so the output for an
// unchanged entity is byte-identical across calls.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func describe(e *models.Entity) string {
	if e.Payload.Description != "" {
		return e.Payload.Description
	}
	return fmt.Sprintf("%s %s", e.Kind, e.ID)
}

func point(c models.Coordinates) Point {
	return Point{Type: "Point", Coordinates: []float64{c.Longitude, c.Latitude}}
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
