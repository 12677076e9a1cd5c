// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package dispatch

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/models"
)

// Key layout:
//
//	job/<sensor>/<process>/<window>      -> JSON Job
//	pending/<sensor>/<process>/<window>  -> empty, present while pending
const (
	jobPrefix     = "job/"
	pendingPrefix = "pending/"
)

func jobKey(k Key) []byte     { return []byte(jobPrefix + k.String()) }
func pendingKey(k Key) []byte { return []byte(pendingPrefix + k.String()) }

func readJob(txn *badger.Txn, k Key) (*Job, error) {
	item, err := txn.Get(jobKey(k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &models.NotFoundError{Kind: KindJob, ID: k.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", k, err)
	}
	var job Job
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	})
	if err != nil {
		return nil, fmt.Errorf("decode job %s: %w", k, err)
	}
	return &job, nil
}

func writeJob(txn *badger.Txn, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.Key, err)
	}
	if err := txn.Set(jobKey(job.Key), data); err != nil {
		return err
	}
	if job.State == JobPending {
		return txn.Set(pendingKey(job.Key), nil)
	}
	err = txn.Delete(pendingKey(job.Key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// pendingKeys lists the keys of every pending job, in key order.
func pendingKeys(txn *badger.Txn) ([]Key, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(pendingPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys []Key
	for it.Rewind(); it.Valid(); it.Next() {
		raw := string(it.Item().Key()[len(pendingPrefix):])
		k, err := ParseKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var nf *models.NotFoundError
	return errors.As(err, &nf)
}
