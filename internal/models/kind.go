// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package models defines the catalog domain: entity kinds, typed documents,
// revisions and the error taxonomy shared by the store, catalog, routing and
// dispatch layers.
//
// Documents never embed one another. Relationships are expressed as typed
// Ref values which the catalog resolves when a document is written.
package models

import "sort"

// Kind identifies an entity class. Identifiers are unique per kind.
type Kind string

const (
	KindSensor            Kind = "Sensor"
	KindStation           Kind = "Station"
	KindDataset           Kind = "Dataset"
	KindFeatureOfInterest Kind = "FeatureOfInterest"
	KindProcess           Kind = "Process"
	KindPerson            Kind = "Person"
	KindOperation         Kind = "Operation"
	KindDeployment        Kind = "Deployment"
	KindProject           Kind = "Project"
)

var kindCollections = map[Kind]string{
	KindSensor:            "sensors",
	KindStation:           "stations",
	KindDataset:           "datasets",
	KindFeatureOfInterest: "featuresOfInterest",
	KindProcess:           "processes",
	KindPerson:            "people",
	KindOperation:         "operations",
	KindDeployment:        "deployments",
	KindProject:           "projects",
}

var collectionKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindCollections))
	for k, c := range kindCollections {
		m[c] = k
	}
	return m
}()

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindCollections[k]
	return ok
}

// Collection returns the collection name used on the HTTP surface.
func (k Kind) Collection() string {
	return kindCollections[k]
}

// KindFromCollection maps a collection name back to its kind.
func KindFromCollection(collection string) (Kind, bool) {
	k, ok := collectionKinds[collection]
	return k, ok
}

// AllKinds returns every kind in a stable order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, len(kindCollections))
	for k := range kindCollections {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Ref is a typed reference from one document to another entity.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r Ref) String() string {
	return string(r.Kind) + "/" + r.ID
}
