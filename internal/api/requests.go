// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// CreateRequest is the body of POST /api/v1/{collection}.
type CreateRequest struct {
	ID       string           `json:"id" validate:"required,entityid"`
	Author   string           `json:"author,omitempty"`
	Document *models.Document `json:"document" validate:"required"`
}

// ReplaceRequest is the body of PUT /api/v1/{collection}/{id}.
type ReplaceRequest struct {
	Author   string           `json:"author,omitempty"`
	Document *models.Document `json:"document" validate:"required"`
}

// TrajectoryRequest is one position fix of a mobile platform.
type TrajectoryRequest struct {
	SensorID  string    `json:"sensorId" validate:"required,entityid"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Latitude  float64   `json:"latitude" validate:"latitude"`
	Longitude float64   `json:"longitude" validate:"longitude"`
	Depth     *float64  `json:"depth,omitempty"`
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}
	return nil
}

// decodeValid decodes dst and checks its validate tags.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil {
		return err
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		return verr
	}
	return nil
}

// kindParam resolves the {collection} URL parameter.
func kindParam(r *http.Request) (models.Kind, error) {
	collection := chi.URLParam(r, "collection")
	kind, ok := models.KindFromCollection(collection)
	if !ok {
		return "", fmt.Errorf("unknown collection %q", collection)
	}
	return kind, nil
}

// pathParam returns an unescaped URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// int64Query parses an optional non-negative integer query parameter.
func int64Query(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// pageParams parses limit and offset, defaulting limit to 100 and capping
// it at 1000.
func pageParams(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = 100
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(limit, 1000)
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
