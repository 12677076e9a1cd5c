// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// DataType selects the storage sink for a sensor's observations.
type DataType string

const (
	DataTypeTimeseries DataType = "timeseries"
	DataTypeProfile    DataType = "profile"
	DataTypeDetections DataType = "detections"
	DataTypeInference  DataType = "inference"
	DataTypeFiles      DataType = "files"
)

// ProcessKind is the family of a derived-data pipeline.
type ProcessKind string

const (
	ProcessAveraging ProcessKind = "averaging"
	ProcessInference ProcessKind = "inference"
)

// Document is the versioned payload of an entity. Exactly one kind section
// is set, and it must match the entity's kind.
type Document struct {
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`

	Sensor            *SensorSpec            `json:"sensor,omitempty" validate:"omitempty"`
	Station           *StationSpec           `json:"station,omitempty" validate:"omitempty"`
	Dataset           *DatasetSpec           `json:"dataset,omitempty" validate:"omitempty"`
	FeatureOfInterest *FeatureOfInterestSpec `json:"featureOfInterest,omitempty" validate:"omitempty"`
	Process           *ProcessSpec           `json:"process,omitempty" validate:"omitempty"`
	Person            *PersonSpec            `json:"person,omitempty" validate:"omitempty"`
	Operation         *OperationSpec         `json:"operation,omitempty" validate:"omitempty"`
	Deployment        *DeploymentSpec        `json:"deployment,omitempty" validate:"omitempty"`
	Project           *ProjectSpec           `json:"project,omitempty" validate:"omitempty"`
}

// Variable is one measured quantity of a sensor.
type Variable struct {
	Name       string `json:"name" validate:"required,entityid"`
	Units      string `json:"units,omitempty"`
	Definition string `json:"definition,omitempty"`
}

// Contact links a person to a sensor or station in a given role.
type Contact struct {
	Role   string `json:"role" validate:"required,oneof=owner operator principalInvestigator dataManager"`
	Person string `json:"person" validate:"required,entityid"`
}

// Coordinates is a WGS84 position; Depth is metres below the surface.
type Coordinates struct {
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Depth     *float64 `json:"depth,omitempty"`
}

// SensorDeployment is where a sensor currently sits.
type SensorDeployment struct {
	Station string     `json:"station" validate:"required,entityid"`
	Since   *time.Time `json:"since,omitempty"`
}

// SensorSpec describes an instrument and how its observations are handled.
type SensorSpec struct {
	DataType       DataType          `json:"dataType" validate:"required,oneof=timeseries profile detections inference files"`
	Variables      []Variable        `json:"variables,omitempty" validate:"unique=Name,dive"`
	Processes      []string          `json:"processes,omitempty" validate:"unique,dive,entityid"`
	InstrumentType string            `json:"instrumentType,omitempty"`
	Model          string            `json:"model,omitempty"`
	Manufacturer   string            `json:"manufacturer,omitempty"`
	SerialNumber   string            `json:"serialNumber,omitempty"`
	Contacts       []Contact         `json:"contacts,omitempty" validate:"dive"`
	Deployment     *SensorDeployment `json:"deployment,omitempty" validate:"omitempty"`
}

// StationSpec describes a fixed or mobile platform hosting sensors.
type StationSpec struct {
	Platform    string      `json:"platform,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
	Contacts    []Contact   `json:"contacts,omitempty" validate:"dive"`
}

// FeatureOfInterestSpec is the sampled feature paired with a station.
type FeatureOfInterestSpec struct {
	Station      string      `json:"station" validate:"required,entityid"`
	Coordinates  Coordinates `json:"coordinates"`
	EncodingType string      `json:"encodingType,omitempty"`
}

// TimeRange is a closed interval; End may be open.
type TimeRange struct {
	Start time.Time  `json:"start" validate:"required"`
	End   *time.Time `json:"end,omitempty" validate:"omitempty,gtfield=Start"`
}

// DatasetSpec groups the output of one or more sensors.
type DatasetSpec struct {
	DatasetType string     `json:"datasetType" validate:"required,oneof=timeseries files"`
	Sensors     []string   `json:"sensors" validate:"min=1,unique,dive,entityid"`
	Station     string     `json:"station,omitempty" validate:"omitempty,entityid"`
	TimeRange   *TimeRange `json:"timeRange,omitempty" validate:"omitempty"`
}

// ProcessSpec describes a derived-data pipeline a sensor can subscribe to.
type ProcessSpec struct {
	Kind   ProcessKind `json:"kind" validate:"required,oneof=averaging inference"`
	Period string      `json:"period,omitempty" validate:"required_if=Kind averaging,omitempty,duration"`
	Ignore []string    `json:"ignore,omitempty"`

	ModelName      string `json:"modelName,omitempty" validate:"required_if=Kind inference"`
	Algorithm      string `json:"algorithm,omitempty"`
	Weights        string `json:"weights,omitempty"`
	TrainingConfig string `json:"trainingConfig,omitempty"`
	TrainingData   string `json:"trainingData,omitempty"`
}

// PeriodDuration parses Period. Only averaging processes have one.
func (p *ProcessSpec) PeriodDuration() (time.Duration, error) {
	d, err := time.ParseDuration(p.Period)
	if err != nil {
		return 0, fmt.Errorf("process period %q: %w", p.Period, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("process period %q must be positive", p.Period)
	}
	return d, nil
}

// Ignores reports whether variable is excluded from this process.
func (p *ProcessSpec) Ignores(variable string) bool {
	for _, v := range p.Ignore {
		if v == variable {
			return true
		}
	}
	return false
}

// PersonSpec identifies a contact.
type PersonSpec struct {
	Name         string `json:"name" validate:"required"`
	GivenName    string `json:"givenName,omitempty"`
	FamilyName   string `json:"familyName,omitempty"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	ORCID        string `json:"orcid,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// OperationSpec records a field activity such as a cruise or intervention.
type OperationSpec struct {
	Type         string    `json:"type" validate:"required,oneof=intervention cruise test other"`
	Time         time.Time `json:"time" validate:"required"`
	Participants []string  `json:"participants,omitempty" validate:"unique,dive,entityid"`
	Projects     []string  `json:"projects,omitempty" validate:"unique,dive,entityid"`
	Sensors      []string  `json:"sensors,omitempty" validate:"unique,dive,entityid"`
	Stations     []string  `json:"stations,omitempty" validate:"unique,dive,entityid"`
}

// DeploymentSpec places a sensor at a station from a point in time.
type DeploymentSpec struct {
	Sensor      string       `json:"sensor" validate:"required,entityid"`
	Station     string       `json:"station" validate:"required,entityid"`
	Time        time.Time    `json:"time" validate:"required"`
	Coordinates *Coordinates `json:"coordinates,omitempty" validate:"omitempty"`
}

// ProjectSpec describes a funding project.
type ProjectSpec struct {
	Type    string `json:"type" validate:"required,oneof=european national contract"`
	Acronym string `json:"acronym" validate:"required"`
	Title   string `json:"title,omitempty"`
	Funding string `json:"funding,omitempty"`
}

// Sections lists the kind sections present in d.
func (d *Document) Sections() []Kind {
	var kinds []Kind
	add := func(set bool, k Kind) {
		if set {
			kinds = append(kinds, k)
		}
	}
	add(d.Sensor != nil, KindSensor)
	add(d.Station != nil, KindStation)
	add(d.Dataset != nil, KindDataset)
	add(d.FeatureOfInterest != nil, KindFeatureOfInterest)
	add(d.Process != nil, KindProcess)
	add(d.Person != nil, KindPerson)
	add(d.Operation != nil, KindOperation)
	add(d.Deployment != nil, KindDeployment)
	add(d.Project != nil, KindProject)
	return kinds
}

// CheckKind verifies that d carries exactly the section for kind.
func (d *Document) CheckKind(kind Kind) error {
	sections := d.Sections()
	switch {
	case len(sections) == 0:
		return fmt.Errorf("document has no %s section", kind)
	case len(sections) > 1:
		return fmt.Errorf("document has %d kind sections %v, want only %s", len(sections), sections, kind)
	case sections[0] != kind:
		return fmt.Errorf("document has a %s section, want %s", sections[0], kind)
	}
	return nil
}

// References returns every entity d points at, in document order.
func (d *Document) References() []Ref {
	var refs []Ref
	add := func(k Kind, ids ...string) {
		for _, id := range ids {
			if id != "" {
				refs = append(refs, Ref{Kind: k, ID: id})
			}
		}
	}
	addContacts := func(cs []Contact) {
		for _, c := range cs {
			add(KindPerson, c.Person)
		}
	}

	if s := d.Sensor; s != nil {
		add(KindProcess, s.Processes...)
		addContacts(s.Contacts)
		if s.Deployment != nil {
			add(KindStation, s.Deployment.Station)
		}
	}
	if s := d.Station; s != nil {
		addContacts(s.Contacts)
	}
	if s := d.FeatureOfInterest; s != nil {
		add(KindStation, s.Station)
	}
	if s := d.Dataset; s != nil {
		add(KindSensor, s.Sensors...)
		add(KindStation, s.Station)
	}
	if s := d.Operation; s != nil {
		add(KindPerson, s.Participants...)
		add(KindProject, s.Projects...)
		add(KindSensor, s.Sensors...)
		add(KindStation, s.Stations...)
	}
	if s := d.Deployment; s != nil {
		add(KindSensor, s.Sensor)
		add(KindStation, s.Station)
	}
	return refs
}

// Clone returns a deep copy of d.
func (d *Document) Clone() (*Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone document: %w", err)
	}
	return &out, nil
}

// Equal reports whether two documents serialize identically.
func (d *Document) Equal(other *Document) bool {
	a, errA := json.Marshal(d)
	b, errB := json.Marshal(other)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}
