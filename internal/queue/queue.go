package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
	"github.com/jpillora/backoff"
)

var keyPrefix = []byte("opp:")

// Envelope wraps a queued opportunity with its delivery bookkeeping. The
// whole envelope is stored as one JSON blob per opportunity id.
type Envelope struct {
	Opportunity models.BuyOpportunity `json:"opportunity"`
	Attempts    int                   `json:"attempts"`
	NotBefore   time.Time             `json:"not_before"`
	EnqueuedAt  time.Time             `json:"enqueued_at"`
}

// Queue is a durable buy-opportunity queue on BadgerDB. Opportunities
// survive restarts; an id is only ever stored once, so re-publishing an
// opportunity the scanner sees again is a no-op.
type Queue struct {
	db          *badger.DB
	maxAttempts int
	backoff     *backoff.Backoff
}

// Open creates or reopens the queue at dbPath.
func Open(dbPath string, maxAttempts int) (*Queue, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging would interleave with ours; errors still surface
	// through the returned values.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	return &Queue{
		db:          db,
		maxAttempts: maxAttempts,
		backoff: &backoff.Backoff{
			Min:    2 * time.Second,
			Max:    2 * time.Minute,
			Factor: 2,
			Jitter: true,
		},
	}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

func key(id string) []byte {
	return append(append([]byte{}, keyPrefix...), id...)
}

// Publish enqueues an opportunity. Returns false without writing when the
// id is already queued.
func (q *Queue) Publish(opp *models.BuyOpportunity) (bool, error) {
	published := false
	err := q.db.Update(func(txn *badger.Txn) error {
		k := key(opp.ID)
		if _, err := txn.Get(k); err == nil {
			return nil // already queued
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(Envelope{
			Opportunity: *opp,
			EnqueuedAt:  time.Now(),
		})
		if err != nil {
			return err
		}
		if err := txn.Set(k, data); err != nil {
			return err
		}
		published = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to publish opportunity %s: %w", opp.ID, err)
	}
	return published, nil
}

// Due returns up to limit envelopes whose redelivery time has passed.
// Badger iterates in key order, so delivery order across opportunities is
// by id, not enqueue time.
func (q *Queue) Due(now time.Time, limit int) ([]*Envelope, error) {
	var due []*Envelope
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			if len(due) >= limit {
				return nil
			}
			err := it.Item().Value(func(val []byte) error {
				var env Envelope
				if err := json.Unmarshal(val, &env); err != nil {
					return err
				}
				if env.NotBefore.After(now) {
					return nil
				}
				due = append(due, &env)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}
	return due, nil
}

// Ack removes a completed opportunity from the queue.
func (q *Queue) Ack(id string) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("failed to ack opportunity %s: %w", id, err)
	}
	return nil
}

// Nack records a failed delivery attempt. The envelope is rescheduled with
// exponential backoff, or removed and returned with exhausted=true once the
// attempt budget is spent; the caller then dead-letters it.
func (q *Queue) Nack(id string) (env *Envelope, exhausted bool, err error) {
	err = q.db.Update(func(txn *badger.Txn) error {
		k := key(id)
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var e Envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return err
		}

		e.Attempts++
		env = &e
		if e.Attempts >= q.maxAttempts {
			exhausted = true
			return txn.Delete(k)
		}
		e.NotBefore = time.Now().Add(q.backoff.ForAttempt(float64(e.Attempts)))
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(k, data)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to nack opportunity %s: %w", id, err)
	}
	return env, exhausted, nil
}

// Defer reschedules an opportunity without consuming a delivery attempt.
// Used when the circuit breaker is open: the failure is the API's, not the
// opportunity's.
func (q *Queue) Defer(id string, retryAfter time.Duration) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		k := key(id)
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var e Envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return err
		}
		e.NotBefore = time.Now().Add(retryAfter)
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(k, data)
	})
	if err != nil {
		return fmt.Errorf("failed to defer opportunity %s: %w", id, err)
	}
	return nil
}

// Len counts queued opportunities, due or not.
func (q *Queue) Len() (int, error) {
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}
