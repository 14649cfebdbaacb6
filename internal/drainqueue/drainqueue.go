// Package drainqueue persists the set of chunks still awaiting migration
// off a draining node, so a restarted agent can resume where it left off
// instead of losing track of partial drain progress.
package drainqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var bucketDrain = []byte("drain_queue")

// Item is one chunk still waiting to be migrated off the local node.
// DrainID correlates every item enqueued during the same drain sequence,
// so progress logging and retry bookkeeping can be tied back to one
// shutdown/eject event across a restart.
type Item struct {
	Path      string `json:"path"`
	Index     uint64 `json:"index"`
	DriveID   string `json:"drive_id"`
	Attempts  int    `json:"attempts"`
	EnqueueAt int64  `json:"enqueue_at"`
	DrainID   string `json:"drain_id"`
}

func key(path string, index uint64) []byte {
	return []byte(fmt.Sprintf("%s:%d", path, index))
}

// Queue is a bolt-backed persisted set of pending drain items.
type Queue struct {
	db *bolt.DB
}

// Open opens (creating if absent) the drain queue database at path.
func Open(path string) (*Queue, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("drainqueue: open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketDrain)
		return e
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("drainqueue: create bucket: %w", err)
	}
	return &Queue{db: db}, nil
}

// Enqueue records a chunk as pending migration. Re-enqueueing the same
// (path, index) overwrites the prior record rather than duplicating it.
func (q *Queue) Enqueue(item Item) error {
	val, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("drainqueue: marshal: %w", err)
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDrain).Put(key(item.Path, item.Index), val)
	})
}

// Remove drops a chunk from the queue once it has been migrated.
func (q *Queue) Remove(path string, index uint64) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDrain).Delete(key(path, index))
	})
}

// IncrementAttempts bumps an item's retry counter and re-persists it.
func (q *Queue) IncrementAttempts(item Item) (Item, error) {
	item.Attempts++
	return item, q.Enqueue(item)
}

// All returns every pending item, for drain-loop resumption after restart.
func (q *Queue) All() ([]Item, error) {
	var items []Item
	err := q.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDrain).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("drainqueue: unmarshal %s: %w", k, err)
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Len reports the number of pending items.
func (q *Queue) Len() (int, error) {
	n := 0
	err := q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketDrain).Stats().KeyN
		return nil
	})
	return n, err
}

// Close releases the underlying database file.
func (q *Queue) Close() error { return q.db.Close() }
