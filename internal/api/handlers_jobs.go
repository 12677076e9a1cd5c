// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/dispatch"
)

// JobResultRequest is the body of POST /api/v1/jobs/results.
type JobResultRequest struct {
	SensorID  string          `json:"sensorId" validate:"required,entityid"`
	ProcessID string          `json:"processId" validate:"required,entityid"`
	Window    string          `json:"window" validate:"required"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

func jobKeyParams(r *http.Request) dispatch.Key {
	return dispatch.Key{
		SensorID:  pathParam(r, "sensor"),
		ProcessID: pathParam(r, "process"),
		Window:    pathParam(r, "window"),
	}
}

// PendingJobs lists jobs that have not completed.
func (h *Handler) PendingJobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	jobs, err := h.jobs.Pending(r.Context())
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	if jobs == nil {
		jobs = []*dispatch.Job{}
	}
	rw.SuccessWithPagination(jobs, &PaginationMeta{Count: len(jobs)})
}

// GetJob returns one job by key.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	job, err := h.jobs.Job(r.Context(), jobKeyParams(r))
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(job)
}

// RequeueJob puts a failed job back to pending.
func (h *Handler) RequeueJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	job, err := h.jobs.Requeue(r.Context(), jobKeyParams(r))
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Accepted(job)
}

// CompleteJob records a worker result posted over HTTP.
func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req JobResultRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeDecodeError(rw, err)
		return
	}

	res := dispatch.JobResult{
		Key:     dispatch.Key{SensorID: req.SensorID, ProcessID: req.ProcessID, Window: req.Window},
		Success: req.Success,
		Error:   req.Error,
		Output:  req.Output,
	}

	job, err := h.jobs.Complete(r.Context(), res)
	if err != nil {
		writeDomainError(rw, err)
		return
	}
	rw.Success(job)
}
