// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"net/http"

	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/routing"
)

// RouteObservation classifies one observation and delivers it to its sink.
// Rejections carry the receipt in the error details.
func (h *Handler) RouteObservation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var obs routing.Observation
	if err := decodeJSON(w, r, &obs); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	receipt, err := h.router.Route(r.Context(), obs)
	if err != nil {
		writeRejection(rw, receipt, err)
		return
	}
	rw.Created(receipt)
}

// TrajectoryResponse lists the receipts of the observations a trajectory
// point was split into.
type TrajectoryResponse struct {
	Receipts []*routing.Receipt `json:"receipts"`
}

// RouteTrajectory splits a position fix into latitude, longitude and
// optional depth observations and routes each. Routing stops at the first
// rejection.
func (h *Handler) RouteTrajectory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req TrajectoryRequest
	if err := decodeValid(w, r, &req); err != nil {
		writeDecodeError(rw, err)
		return
	}

	obs := routing.SplitTrajectory(req.SensorID, req.Timestamp, req.Latitude, req.Longitude, req.Depth)
	resp := TrajectoryResponse{Receipts: make([]*routing.Receipt, 0, len(obs))}
	for _, o := range obs {
		receipt, err := h.router.Route(r.Context(), o)
		if err != nil {
			writeRejection(rw, receipt, err)
			return
		}
		resp.Receipts = append(resp.Receipts, receipt)
	}
	rw.Created(resp)
}

func writeRejection(rw *ResponseWriter, receipt *routing.Receipt, err error) {
	m, ok := mapDomainError(err)
	if !ok {
		rw.InternalError(err)
		return
	}
	if m.status == http.StatusBadGateway {
		logging.Ctx(rw.r.Context()).Warn().Err(err).Msg("Observation delivery failed")
	}
	details := map[string]any{"receipt": receipt}
	if m.details != nil {
		details["cause"] = m.details
	}
	rw.ErrorWithDetails(m.status, m.code, m.message, details)
}
