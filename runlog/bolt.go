// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Bolt is a run log stored in a local bbolt file.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens, or creates, the run log file fname.
func OpenBolt(fname string) (*Bolt, error) {
	db, err := bbolt.Open(fname, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("runlog: could not open bolt db %q: %w", fname, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runlog: could not create runs bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *Bolt) Close() error {
	return s.db.Close()
}

func (s *Bolt) Put(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("runlog: could not put record: %w", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketRuns)
		if rec.ID == 0 {
			id, err := bkt.NextSequence()
			if err != nil {
				return err
			}
			rec.ID = id
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bkt.Put(itob(rec.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("runlog: could not put record %d: %w", rec.ID, err)
	}
	return nil
}

func (s *Bolt) List(ctx context.Context, n int) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(bucketRuns).Cursor()
		for k, v := cur.Last(); k != nil; k, v = cur.Prev() {
			if n > 0 && len(recs) == n {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			err := json.Unmarshal(v, &rec)
			if err != nil {
				return fmt.Errorf("could not decode record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runlog: could not list records: %w", err)
	}
	return recs, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
