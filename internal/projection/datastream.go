// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package projection

import (
	"fmt"
	"strings"

	"github.com/tomtom215/tidemark/internal/models"
)

// UnitOfMeasurement is the SensorThings unit triple.
type UnitOfMeasurement struct {
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	Definition string `json:"definition"`
}

// ObservedProperty is what a datastream measures.
type ObservedProperty struct {
	Name        string `json:"name"`
	Definition  string `json:"definition"`
	Description string `json:"description"`
}

// Datastream is a SensorThings Datastream.
type Datastream struct {
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	ObservationType   string            `json:"observationType"`
	UnitOfMeasurement UnitOfMeasurement `json:"unitOfMeasurement"`
	ObservedProperty  ObservedProperty  `json:"ObservedProperty"`
	Properties        map[string]any    `json:"properties"`
}

// Datastreams returns one raw datastream per sensor variable, in variable
// order. Names follow <station>:<sensor>:<variable>:full_data, dropping the
// station part for sensors that are not deployed.
func Datastreams(sensor *models.Entity) ([]Datastream, error) {
	spec := sensor.Payload.Sensor
	if sensor.Kind != models.KindSensor || spec == nil {
		return nil, fmt.Errorf("%s %q is not a sensor", sensor.Kind, sensor.ID)
	}

	prefix := streamPrefix(sensor)
	out := make([]Datastream, 0, len(spec.Variables))
	for _, v := range spec.Variables {
		out = append(out, Datastream{
			Name:              prefix + ":" + v.Name + ":full_data",
			Description:       fmt.Sprintf("%s measured by %s", v.Name, sensor.ID),
			ObservationType:   observationTypeFor(spec.DataType),
			UnitOfMeasurement: unitFor(v),
			ObservedProperty:  propertyFor(v),
			Properties: map[string]any{
				"fullData": true,
				"dataType": string(spec.DataType),
				"sensor":   sensor.ID,
			},
		})
	}
	return out, nil
}

// ProcessDatastreams returns the derived datastreams a sensor's processes
// produce. Averaging yields <prefix>:<variable>:<period>_average for every
// variable the process does not ignore, for timeseries and profile sensors
// only. Inference yields a single <prefix>:<model>:inference stream.
// Processes the sensor does not list are skipped.
func ProcessDatastreams(sensor *models.Entity, processes []*models.Entity) ([]Datastream, error) {
	spec := sensor.Payload.Sensor
	if sensor.Kind != models.KindSensor || spec == nil {
		return nil, fmt.Errorf("%s %q is not a sensor", sensor.Kind, sensor.ID)
	}

	subscribed := make(map[string]bool, len(spec.Processes))
	for _, id := range spec.Processes {
		subscribed[id] = true
	}
	prefix := streamPrefix(sensor)

	var out []Datastream
	for _, p := range processes {
		if p == nil || p.Payload.Process == nil || !subscribed[p.ID] {
			continue
		}
		proc := p.Payload.Process

		switch proc.Kind {
		case models.ProcessAveraging:
			if spec.DataType != models.DataTypeTimeseries && spec.DataType != models.DataTypeProfile {
				continue
			}
			for _, v := range spec.Variables {
				if proc.Ignores(v.Name) {
					continue
				}
				out = append(out, Datastream{
					Name:              fmt.Sprintf("%s:%s:%s_average", prefix, v.Name, proc.Period),
					Description:       fmt.Sprintf("%s %s average of %s", proc.Period, v.Name, sensor.ID),
					ObservationType:   observationType,
					UnitOfMeasurement: unitFor(v),
					ObservedProperty:  propertyFor(v),
					Properties: map[string]any{
						"fullData":      false,
						"averagePeriod": proc.Period,
						"process":       p.ID,
						"sensor":        sensor.ID,
					},
				})
			}
		case models.ProcessInference:
			out = append(out, Datastream{
				Name:            fmt.Sprintf("%s:%s:inference", prefix, proc.ModelName),
				Description:     fmt.Sprintf("%s inference on %s", proc.ModelName, sensor.ID),
				ObservationType: countObservation,
				UnitOfMeasurement: UnitOfMeasurement{
					Name: "count", Symbol: "", Definition: "",
				},
				ObservedProperty: ObservedProperty{
					Name:        proc.ModelName,
					Definition:  proc.Algorithm,
					Description: "Inference output of " + proc.ModelName,
				},
				Properties: map[string]any{
					"fullData": false,
					"process":  p.ID,
					"model":    proc.ModelName,
					"sensor":   sensor.ID,
				},
			})
		}
	}
	return out, nil
}

func streamPrefix(sensor *models.Entity) string {
	if d := sensor.Payload.Sensor.Deployment; d != nil && d.Station != "" {
		return d.Station + ":" + sensor.ID
	}
	return sensor.ID
}

func observationTypeFor(dt models.DataType) string {
	if dt == models.DataTypeDetections {
		return countObservation
	}
	return observationType
}

func unitFor(v models.Variable) UnitOfMeasurement {
	return UnitOfMeasurement{Name: v.Units, Symbol: v.Units, Definition: v.Definition}
}

func propertyFor(v models.Variable) ObservedProperty {
	return ObservedProperty{
		Name:        v.Name,
		Definition:  v.Definition,
		Description: strings.TrimSpace(v.Name + " " + v.Units),
	}
}
