// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package eventprocessor

import (
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/dispatch"
)

// Metadata keys set on job and result messages.
const (
	MetaJobKey      = "job_key"
	MetaProcessKind = "process_kind"
	MetaAttempt     = "attempt"
)

// EncodeJob builds the message handed to workers.
func EncodeJob(job *dispatch.Job) (*message.Message, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetaJobKey, job.Key.String())
	msg.Metadata.Set(MetaProcessKind, string(job.ProcessKind))
	msg.Metadata.Set(MetaAttempt, strconv.Itoa(job.Attempts))
	return msg, nil
}

// DecodeJob reads a job message.
func DecodeJob(msg *message.Message) (*dispatch.Job, error) {
	var job dispatch.Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// EncodeResult builds a worker's result message.
func EncodeResult(res dispatch.JobResult) (*message.Message, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal job result: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetaJobKey, res.Key.String())
	return msg, nil
}

// DecodeResult reads a result message. A result without a complete key is
// rejected.
func DecodeResult(msg *message.Message) (dispatch.JobResult, error) {
	var res dispatch.JobResult
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		return res, fmt.Errorf("unmarshal job result: %w", err)
	}
	if res.Key.SensorID == "" || res.Key.ProcessID == "" || res.Key.Window == "" {
		return res, fmt.Errorf("job result %s: incomplete key", msg.UUID)
	}
	return res, nil
}
