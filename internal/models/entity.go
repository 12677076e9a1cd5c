// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package models

import "time"

// Revision is one immutable version of an entity. Revisions are never
// modified or removed once written.
type Revision struct {
	Kind      Kind      `json:"kind"`
	EntityID  string    `json:"entityId"`
	Version   int64     `json:"version"`
	Payload   *Document `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Author    string    `json:"author"`
}

// Head is the current-version index record of one entity.
type Head struct {
	Kind      Kind      `json:"kind"`
	EntityID  string    `json:"entityId"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Author    string    `json:"author"`
}

// Entity is the catalog's view of an entity at one version.
type Entity struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	CurrentVersion int64     `json:"version"`
	Payload        *Document `json:"payload"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Author         string    `json:"author"`
}

// Ref returns a reference to e.
func (e *Entity) Ref() Ref {
	return Ref{Kind: e.Kind, ID: e.ID}
}

// NewEntity combines a head record with one of its revisions. When rev is
// older than head, CurrentVersion reports the revision's version.
func NewEntity(head *Head, rev *Revision) *Entity {
	return &Entity{
		ID:             rev.EntityID,
		Kind:           rev.Kind,
		CurrentVersion: rev.Version,
		Payload:        rev.Payload,
		CreatedAt:      head.CreatedAt,
		UpdatedAt:      rev.Timestamp,
		Author:         rev.Author,
	}
}
