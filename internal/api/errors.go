// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/tidemark/internal/dispatch"
	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/routing"
	"github.com/tomtom215/tidemark/internal/validation"
)

// errorMapping is the HTTP rendering of a domain error.
type errorMapping struct {
	status  int
	code    string
	message string
	details any
}

// mapDomainError maps an error from the catalog, routing or dispatch layers
// to a status code. ok is false for unrecognised errors.
func mapDomainError(err error) (m errorMapping, ok bool) {
	var (
		notFound   *models.NotFoundError
		duplicate  *models.DuplicateError
		conflict   *models.ConflictError
		integrity  *models.IntegrityError
		immutable  *models.ImmutableFieldError
		unknown    *models.UnknownSensorError
		delivery   *models.DeliveryError
		invalid    *models.ValidationError
		unchanged  *models.UnchangedError
		reqInvalid *validation.RequestValidationError
	)

	m.message = err.Error()
	switch {
	case errors.As(err, &notFound):
		m.status, m.code = http.StatusNotFound, ErrCodeNotFound
	case errors.As(err, &duplicate):
		m.status, m.code = http.StatusConflict, ErrCodeConflict
	case errors.As(err, &conflict):
		m.status, m.code = http.StatusConflict, ErrCodeConflict
		m.details = map[string]int64{"expected": conflict.Expected, "actual": conflict.Actual}
	case errors.As(err, &integrity):
		missing := make([]string, len(integrity.Missing))
		for i, ref := range integrity.Missing {
			missing[i] = ref.String()
		}
		m.status, m.code = http.StatusUnprocessableEntity, ErrCodeIntegrity
		m.details = map[string][]string{"missing": missing}
	case errors.As(err, &immutable):
		m.status, m.code = http.StatusConflict, ErrCodeImmutableField
		m.details = map[string]string{"field": immutable.Field}
	case errors.As(err, &unknown):
		m.status, m.code = http.StatusUnprocessableEntity, ErrCodeUnknownSensor
	case errors.As(err, &delivery), errors.Is(err, routing.ErrNoSink):
		m.status, m.code = http.StatusBadGateway, ErrCodeDeliveryFailed
	case errors.As(err, &reqInvalid):
		apiErr := reqInvalid.ToAPIError()
		m.status, m.code = http.StatusBadRequest, ErrCodeValidationFailed
		m.message, m.details = apiErr.Message, apiErr.Details
	case errors.As(err, &invalid):
		m.status, m.code = http.StatusBadRequest, ErrCodeValidationFailed
	case errors.As(err, &unchanged):
		m.status, m.code = http.StatusConflict, ErrCodeUnchanged
	case errors.Is(err, dispatch.ErrJobAlreadyCompleted), errors.Is(err, dispatch.ErrJobNotFailed):
		m.status, m.code = http.StatusConflict, ErrCodeConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.status, m.code, m.message = http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "request cancelled"
	default:
		return errorMapping{}, false
	}
	return m, true
}

// writeDomainError writes the mapped error. Unrecognised errors are 500s.
func writeDomainError(rw *ResponseWriter, err error) {
	m, ok := mapDomainError(err)
	if !ok {
		rw.InternalError(err)
		return
	}
	if m.status == http.StatusBadGateway {
		logging.Ctx(rw.r.Context()).Warn().Err(err).Msg("Observation delivery failed")
	}
	rw.ErrorWithDetails(m.status, m.code, m.message, m.details)
}
