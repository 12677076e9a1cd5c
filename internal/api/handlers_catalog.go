// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tomtom215/tidemark/internal/catalog"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/validation"
)

func writeDecodeError(rw *ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		writeDomainError(rw, err)
		return
	}
	rw.BadRequest(err.Error())
}

// ListEntities returns one page of the latest versions of a collection.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, err := kindParam(r)
	if err != nil {
		rw.NotFound(err.Error())
		return
	}
	limit, offset, err := pageParams(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	page := make([]*models.Entity, 0, min(limit, 64))
	seen, hasMore := 0, false
	for ent, err := range h.catalog.List(r.Context(), kind) {
		if err != nil {
			writeDomainError(rw, err)
			return
		}
		seen++
		if seen <= offset {
			continue
		}
		if len(page) == limit {
			hasMore = true
			break
		}
		page = append(page, ent)
	}

	rw.SuccessWithPagination(page, &PaginationMeta{
		Count:   len(page),
		Offset:  offset,
		Limit:   limit,
		HasMore: hasMore,
	})
}

// CreateEntity stores the first version of an entity.
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, err := kindParam(r)
	if err != nil {
		rw.NotFound(err.Error())
		return
	}
	var req CreateRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeDecodeError(rw, err)
		return
	}

	ent, err := h.catalog.Create(r.Context(), kind, req.ID, req.Document, req.Author)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	w.Header().Set("Location", "/api/v1/"+kind.Collection()+"/"+ent.ID)
	rw.Created(ent)
}

// GetEntity returns the latest version of an entity.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	h.getEntity(w, r, 0)
}

// GetEntityVersion returns one version of an entity.
func (h *Handler) GetEntityVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseInt(pathParam(r, "version"), 10, 64)
	if err != nil || version < 1 {
		NewResponseWriter(w, r).BadRequest("version must be a positive integer")
		return
	}
	h.getEntity(w, r, version)
}

func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request, version int64) {
	rw := NewResponseWriter(w, r)
	kind, err := kindParam(r)
	if err != nil {
		rw.NotFound(err.Error())
		return
	}
	ent, err := h.catalog.Get(r.Context(), kind, pathParam(r, "id"), version)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	w.Header().Set("ETag", `"`+strconv.FormatInt(ent.CurrentVersion, 10)+`"`)
	rw.Success(ent)
}

// ReplaceEntity appends a new version holding the submitted document.
func (h *Handler) ReplaceEntity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, err := kindParam(r)
	if err != nil {
		rw.NotFound(err.Error())
		return
	}
	var req ReplaceRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeDecodeError(rw, err)
		return
	}

	ent, err := h.catalog.Replace(r.Context(), kind, pathParam(r, "id"), req.Document, req.Author)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(ent)
}

// EntityHistory returns the revisions of an entity oldest first. ?after=N
// resumes after version N.
func (h *Handler) EntityHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, err := kindParam(r)
	if err != nil {
		rw.NotFound(err.Error())
		return
	}
	after, err := int64Query(r, "after")
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	revs := make([]*models.Revision, 0)
	for rev, err := range h.catalog.HistoryAfter(r.Context(), kind, pathParam(r, "id"), after) {
		if err != nil {
			writeDomainError(rw, err)
			return
		}
		revs = append(revs, rev)
	}
	rw.SuccessWithPagination(revs, &PaginationMeta{Count: len(revs)})
}

// KindSchema returns the JSON schema of a collection's document section.
func (h *Handler) KindSchema(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, err := kindParam(r)
	if err != nil {
		rw.NotFound(err.Error())
		return
	}
	schema, err := catalog.Schema(kind)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(schema)
}

// CatalogHealthcheck walks the catalog and reports broken references.
func (h *Handler) CatalogHealthcheck(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	report, err := h.catalog.Healthcheck(r.Context())
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(map[string]any{
		"healthy":  report.Healthy(),
		"entities": report.Entities,
		"problems": report.Problems,
	})
}
