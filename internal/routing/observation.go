// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package routing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/sink"
	"github.com/tomtom215/tidemark/internal/validation"
)

// State is the lifecycle position of one observation.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateDelivered  State = "delivered"
	StateRejected   State = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateRejected
}

// SinkTarget is the storage destination chosen by classification.
type SinkTarget string

const (
	TargetTimeseries SinkTarget = "timeseries"
	TargetProfile    SinkTarget = "profile"
	TargetDetections SinkTarget = "detections"
	TargetGeneric    SinkTarget = "generic"
)

// TargetFor maps a sensor data type to its sink target.
func TargetFor(dt models.DataType) (SinkTarget, error) {
	switch dt {
	case models.DataTypeTimeseries:
		return TargetTimeseries, nil
	case models.DataTypeProfile:
		return TargetProfile, nil
	case models.DataTypeDetections:
		return TargetDetections, nil
	case models.DataTypeInference, models.DataTypeFiles:
		return TargetGeneric, nil
	default:
		return "", fmt.Errorf("no sink target for data type %q", dt)
	}
}

// Table returns the sink table that stores the target's observations.
func (t SinkTarget) Table() sink.Table {
	switch t {
	case TargetTimeseries:
		return sink.TableTimeseries
	case TargetProfile:
		return sink.TableProfiles
	case TargetDetections:
		return sink.TableDetections
	default:
		return sink.TableObservations
	}
}

// Observation is one data point submitted for routing.
type Observation struct {
	ID        string         `json:"id,omitempty"`
	SensorID  string         `json:"sensorId" validate:"required,entityid"`
	Timestamp time.Time      `json:"timestamp" validate:"required"`
	Value     float64        `json:"value"`
	Depth     *float64       `json:"depth,omitempty"`
	QCFlag    *int           `json:"qcFlag,omitempty" validate:"omitempty,min=0,max=9"`
	Params    map[string]any `json:"params,omitempty"`
}

// Record converts the observation into a sink record for target. Depth
// is kept for profiles only and Params for generic observations only.
func (o *Observation) Record(target SinkTarget) sink.Record {
	rec := sink.Record{
		SensorID:      o.SensorID,
		ObservationID: o.ID,
		Timestamp:     o.Timestamp.UTC(),
		Value:         o.Value,
		QCFlag:        o.QCFlag,
	}
	switch target {
	case TargetProfile:
		rec.Depth = o.Depth
	case TargetGeneric:
		rec.Params = o.Params
	}
	return rec
}

// Timestamps outside this range cannot be expressed in Unix nanoseconds.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// Validate checks the observation on its own and against the chosen target.
func (o *Observation) Validate(target SinkTarget) error {
	if verr := validation.ValidateStruct(o); verr != nil {
		return o.invalid(verr)
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return o.invalid(errors.New("value must be a finite number"))
	}
	if o.Timestamp.Before(minTimestamp) || o.Timestamp.After(maxTimestamp) {
		return o.invalid(fmt.Errorf("timestamp %s is out of range", o.Timestamp.Format(time.RFC3339)))
	}
	switch target {
	case TargetProfile:
		if o.Depth == nil {
			return o.invalid(errors.New("profile observations require a depth"))
		}
	case TargetDetections:
		if o.Value != math.Trunc(o.Value) || o.Value < 0 {
			return o.invalid(fmt.Errorf("detections must be a non-negative count, got %v", o.Value))
		}
	}
	return nil
}

func (o *Observation) invalid(err error) error {
	return &models.ValidationError{ID: "observation " + o.ID, Err: err}
}

// Trajectory variable names.
const (
	VariableLatitude  = "latitude"
	VariableLongitude = "longitude"
	VariableDepth     = "depth"
)

// SplitTrajectory turns one trajectory point into ordinary timeseries
// observations, one per coordinate, with the variable in Params. Depth is
// optional. Compiling points back into a trajectory happens downstream.
func SplitTrajectory(sensorID string, ts time.Time, lat, lon float64, depth *float64) []Observation {
	point := func(variable string, v float64) Observation {
		return Observation{
			SensorID:  sensorID,
			Timestamp: ts,
			Value:     v,
			Params:    map[string]any{"variable": variable},
		}
	}
	out := []Observation{point(VariableLatitude, lat), point(VariableLongitude, lon)}
	if depth != nil {
		out = append(out, point(VariableDepth, *depth))
	}
	return out
}
