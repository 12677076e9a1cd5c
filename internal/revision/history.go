// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package revision

import (
	"bytes"
	"context"
	"fmt"
	"iter"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/models"
)

// History yields the revisions of an entity oldest first, starting after
// version after (zero for the full lineage). Revisions are loaded in pages of
// HistoryPageSize, one read transaction per page, so a consumer that stops
// early never loads the rest. To resume an interrupted walk, call History
// again with the last version seen.
//
// An entity that does not exist yields a single *models.NotFoundError.
func (s *Store) History(ctx context.Context, kind models.Kind, id string, after int64) iter.Seq2[*models.Revision, error] {
	return func(yield func(*models.Revision, error) bool) {
		if err := s.checkOpen(); err != nil {
			yield(nil, err)
			return
		}
		if _, err := s.Head(ctx, kind, id); err != nil {
			yield(nil, err)
			return
		}

		prefix := revisionPrefix(kind, id)
		seek := revisionKey(kind, id, after+1)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, next, err := scan(s, prefix, seek, decodeRevision)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rev := range page {
				if !yield(rev, nil) {
					return
				}
			}
			if next == nil {
				return
			}
			seek = next
		}
	}
}

// List yields the head records of every entity of kind in identifier order.
func (s *Store) List(ctx context.Context, kind models.Kind) iter.Seq2[*models.Head, error] {
	return func(yield func(*models.Head, error) bool) {
		if err := s.checkOpen(); err != nil {
			yield(nil, err)
			return
		}
		prefix := headPrefix(kind)
		seek := prefix
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, next, err := scan(s, prefix, seek, decodeHead)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, head := range page {
				if !yield(head, nil) {
					return
				}
			}
			if next == nil {
				return
			}
			seek = next
		}
	}
}

func decodeHead(item *badger.Item) (*models.Head, error) {
	var head models.Head
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &head) }); err != nil {
		return nil, fmt.Errorf("decode head %s: %w", item.Key(), err)
	}
	return &head, nil
}

// scan reads up to one page of prefix entries starting at seek. next is the
// key to resume from, or nil when the prefix is exhausted.
func scan[T any](s *Store, prefix, seek []byte, decode func(*badger.Item) (T, error)) ([]T, []byte, error) {
	pageSize := s.config.HistoryPageSize
	page := make([]T, 0, pageSize)
	var next []byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = pageSize
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if len(page) == pageSize {
				next = bytes.Clone(item.Key())
				return nil
			}
			v, err := decode(item)
			if err != nil {
				return err
			}
			page = append(page, v)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return page, next, nil
}
