// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/projection"
)

const staContentType = "application/json; charset=utf-8"

// STASensor renders a sensor as a SensorThings Sensor.
func (h *Handler) STASensor(w http.ResponseWriter, r *http.Request) {
	h.staEntity(w, r, models.KindSensor)
}

// STAThing renders a station as a SensorThings Thing with its Location.
func (h *Handler) STAThing(w http.ResponseWriter, r *http.Request) {
	h.staEntity(w, r, models.KindStation)
}

// STAFeatureOfInterest renders a feature of interest.
func (h *Handler) STAFeatureOfInterest(w http.ResponseWriter, r *http.Request) {
	h.staEntity(w, r, models.KindFeatureOfInterest)
}

// staEntity projects one entity version, the latest unless ?version= is
// given. The body is raw SensorThings JSON without the envelope.
func (h *Handler) staEntity(w http.ResponseWriter, r *http.Request, kind models.Kind) {
	rw := NewResponseWriter(w, r)
	version, err := int64Query(r, "version")
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	ent, err := h.catalog.Get(r.Context(), kind, pathParam(r, "id"), version)
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	proj, err := projection.Project(ent)
	if err != nil {
		rw.InternalError(err)
		return
	}
	body, err := projection.Marshal(proj)
	if err != nil {
		rw.InternalError(err)
		return
	}
	writeRaw(w, http.StatusOK, staContentType, body)
}

// DatastreamList is a SensorThings collection response.
type DatastreamList struct {
	Count int                     `json:"@iot.count"`
	Value []projection.Datastream `json:"value"`
}

// STADatastreams lists the raw and derived datastreams of a sensor.
func (h *Handler) STADatastreams(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()
	sensor, err := h.catalog.Get(ctx, models.KindSensor, pathParam(r, "id"), 0)
	if err != nil {
		writeDomainError(rw, err)
		return
	}

	streams, err := projection.Datastreams(sensor)
	if err != nil {
		rw.InternalError(err)
		return
	}

	var processes []*models.Entity
	for _, id := range sensor.Payload.Sensor.Processes {
		proc, err := h.catalog.Get(ctx, models.KindProcess, id, 0)
		var notFound *models.NotFoundError
		switch {
		case errors.As(err, &notFound):
			logging.Ctx(ctx).Warn().Str("sensor_id", sensor.ID).Str("process_id", id).Msg("Sensor lists a missing process")
			continue
		case err != nil:
			writeDomainError(rw, err)
			return
		}
		processes = append(processes, proc)
	}
	derived, err := projection.ProcessDatastreams(sensor, processes)
	if err != nil {
		rw.InternalError(err)
		return
	}
	streams = append(streams, derived...)

	body, err := projection.Marshal(DatastreamList{Count: len(streams), Value: streams})
	if err != nil {
		rw.InternalError(err)
		return
	}
	writeRaw(w, http.StatusOK, staContentType, body)
}
