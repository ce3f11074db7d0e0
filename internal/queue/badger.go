package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/amishk599/jobintel/internal/model"
)

const (
	stateReady  = "ready"
	stateActive = "active"
	stateDead   = "dead"

	maxConflictRetries = 10
	conflictBackoff    = 2 * time.Millisecond
)

// badgerMessage is the value stored under the msg key. VisibleAt doubles as
// the lease expiry while the message is active.
type badgerMessage struct {
	ID         string      `json:"id"`
	Batch      model.Batch `json:"batch"`
	EnqueuedAt time.Time   `json:"enqueuedAt"`
	VisibleAt  time.Time   `json:"visibleAt"`
	Attempts   int         `json:"attempts"`
	State      string      `json:"state"`
	LastError  string      `json:"lastError,omitempty"`
	FailedAt   time.Time   `json:"failedAt,omitempty"`
}

// BadgerQueue is an embedded queue for single-process deployments. Keys:
//
//	q/<name>/msg/<id>                    message JSON
//	q/<name>/idx/<visibleAt nanos>/<id>  visibility index, ready and active only
//	q/<name>/dead/<id>                   dead-letter marker
type BadgerQueue struct {
	db     *badger.DB
	ownsDB bool
	opts   Options
	logger *slog.Logger

	// recvMu serializes receivers; they all scan the same index prefix.
	recvMu sync.Mutex
}

// OpenBadger opens (or creates) a badger database at path and returns a
// queue that owns it. An empty path keeps everything in memory.
func OpenBadger(path string, opts Options, logger *slog.Logger) (*BadgerQueue, error) {
	bopts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger})
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	q := NewBadger(db, opts, logger)
	q.ownsDB = true
	return q, nil
}

// NewBadger returns a queue over an existing database. Close does not
// close db.
func NewBadger(db *badger.DB, opts Options, logger *slog.Logger) *BadgerQueue {
	return &BadgerQueue{db: db, opts: opts.WithDefaults(), logger: logger}
}

func (q *BadgerQueue) prefix(kind string) string {
	return "q/" + q.opts.Name + "/" + kind + "/"
}

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(q.prefix("msg") + id)
}

func (q *BadgerQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero padded so lexical order is time order.
	return []byte(fmt.Sprintf("%s%020d/%s", q.prefix("idx"), visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) deadKey(id string) []byte {
	return []byte(q.prefix("dead") + id)
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	rest := strings.TrimPrefix(string(key), q.prefix("idx"))
	ts, id, ok := strings.Cut(rest, "/")
	if !ok || len(ts) != 20 {
		return time.Time{}, "", fmt.Errorf("invalid index key %q", key)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid index key %q: %w", key, err)
	}
	return time.Unix(0, nanos), id, nil
}

// update runs fn in a read-write transaction, retrying on conflicts with a
// short jittered pause that grows with each attempt.
func (q *BadgerQueue) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = q.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Duration(i+1)*conflictBackoff + rand.N(conflictBackoff))
	}
	return err
}

func getMessage(txn *badger.Txn, key []byte) (badgerMessage, error) {
	var m badgerMessage
	item, err := txn.Get(key)
	if err != nil {
		return m, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	})
	return m, err
}

func setMessage(txn *badger.Txn, key []byte, m badgerMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", m.ID, err)
	}
	return txn.Set(key, data)
}

func (q *BadgerQueue) Publish(_ context.Context, batch model.Batch) error {
	now := time.Now().UTC()
	m := badgerMessage{
		ID:         batch.ID,
		Batch:      batch,
		EnqueuedAt: now,
		VisibleAt:  now,
		State:      stateReady,
	}
	err := q.update(func(txn *badger.Txn) error {
		if err := setMessage(txn, q.msgKey(m.ID), m); err != nil {
			return err
		}
		return txn.Set(q.indexKey(m.VisibleAt, m.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("publish batch %s: %w", batch.ID, err)
	}
	return nil
}

func (q *BadgerQueue) Receive(ctx context.Context) (*Delivery, error) {
	return poll(ctx, q.opts.PollInterval, q.tryReceive)
}

func (q *BadgerQueue) tryReceive(_ context.Context) (*Delivery, error) {
	q.recvMu.Lock()
	defer q.recvMu.Unlock()

	var d *Delivery
	var buried []string

	err := q.update(func(txn *badger.Txn) error {
		d, buried = nil, nil
		now := time.Now().UTC()

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(q.prefix("idx"))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			idxKey := it.Item().KeyCopy(nil)
			visibleAt, id, err := q.parseIndexKey(idxKey)
			if err != nil {
				continue
			}
			if visibleAt.After(now) {
				// Sorted by time: nothing later is visible either.
				break
			}

			m, err := getMessage(txn, q.msgKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				if err := txn.Delete(idxKey); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := txn.Delete(idxKey); err != nil {
				return err
			}

			if m.Attempts >= q.opts.MaxAttempts {
				// Every attempt was used and the last lease expired.
				m.State = stateDead
				m.LastError = leaseExpiredText(m.Attempts)
				m.FailedAt = now
				if err := setMessage(txn, q.msgKey(id), m); err != nil {
					return err
				}
				if err := txn.Set(q.deadKey(id), nil); err != nil {
					return err
				}
				buried = append(buried, id)
				continue
			}

			m.Attempts++
			m.State = stateActive
			m.VisibleAt = now.Add(q.opts.Lease)
			if err := setMessage(txn, q.msgKey(id), m); err != nil {
				return err
			}
			if err := txn.Set(q.indexKey(m.VisibleAt, id), nil); err != nil {
				return err
			}

			d = &Delivery{
				ID:         id,
				Batch:      m.Batch,
				Attempt:    m.Attempts,
				EnqueuedAt: m.EnqueuedAt,
				LeaseUntil: m.VisibleAt,
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}

	for _, id := range buried {
		q.logger.Warn("batch dead-lettered after expired leases", "queue", q.opts.Name, "batch_id", id)
	}
	if d == nil {
		return nil, ErrEmpty
	}
	return d, nil
}

// settle loads the active message for d and hands it to fn. It fails with
// ErrLeaseLost when the delivery is no longer the current lease holder.
func (q *BadgerQueue) settle(d *Delivery, fn func(txn *badger.Txn, m badgerMessage) error) error {
	err := q.update(func(txn *badger.Txn) error {
		m, err := getMessage(txn, q.msgKey(d.ID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrLeaseLost
		}
		if err != nil {
			return err
		}
		if m.State != stateActive || m.Attempts != d.Attempt {
			return ErrLeaseLost
		}
		if err := txn.Delete(q.indexKey(m.VisibleAt, m.ID)); err != nil {
			return err
		}
		return fn(txn, m)
	})
	if err != nil && !errors.Is(err, ErrLeaseLost) {
		return fmt.Errorf("settle %s: %w", d.ID, err)
	}
	return err
}

func (q *BadgerQueue) Ack(_ context.Context, d *Delivery) error {
	return q.settle(d, func(txn *badger.Txn, m badgerMessage) error {
		return txn.Delete(q.msgKey(m.ID))
	})
}

func (q *BadgerQueue) Nack(_ context.Context, d *Delivery, cause error) (Outcome, error) {
	var out Outcome
	err := q.settle(d, func(txn *badger.Txn, m badgerMessage) error {
		now := time.Now().UTC()
		m.LastError = errorText(cause)

		if m.Attempts >= q.opts.MaxAttempts {
			m.State = stateDead
			m.FailedAt = now
			out = Outcome{DeadLettered: true}
			if err := setMessage(txn, q.msgKey(m.ID), m); err != nil {
				return err
			}
			return txn.Set(q.deadKey(m.ID), nil)
		}

		m.State = stateReady
		m.VisibleAt = now.Add(q.opts.RetryDelay(m.Attempts))
		out = Outcome{RetryAt: m.VisibleAt}
		if err := setMessage(txn, q.msgKey(m.ID), m); err != nil {
			return err
		}
		return txn.Set(q.indexKey(m.VisibleAt, m.ID), nil)
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// DeadLetters returns up to limit dead letters, most recently failed first.
func (q *BadgerQueue) DeadLetters(_ context.Context, limit int) ([]model.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []model.DeadLetter
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(q.prefix("dead"))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			m, err := getMessage(txn, q.msgKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, model.DeadLetter{
				ID:        m.ID,
				Batch:     m.Batch,
				Attempts:  m.Attempts,
				LastError: m.LastError,
				FailedAt:  m.FailedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *BadgerQueue) Requeue(_ context.Context, id string) error {
	err := q.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(q.deadKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		m, err := getMessage(txn, q.msgKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		m.State = stateReady
		m.Attempts = 0
		m.LastError = ""
		m.FailedAt = time.Time{}
		m.VisibleAt = time.Now().UTC()
		if err := txn.Delete(q.deadKey(id)); err != nil {
			return err
		}
		if err := setMessage(txn, q.msgKey(id), m); err != nil {
			return err
		}
		return txn.Set(q.indexKey(m.VisibleAt, id), nil)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	return err
}

func (q *BadgerQueue) Stats(_ context.Context) (Stats, error) {
	var s Stats
	now := time.Now()
	err := q.db.View(func(txn *badger.Txn) error {
		prefix := []byte(q.prefix("msg"))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m badgerMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			switch {
			case m.State == stateDead:
				s.Dead++
			case m.VisibleAt.After(now) && m.State == stateActive:
				s.Active++
			case m.VisibleAt.After(now):
				s.Delayed++
			default:
				s.Waiting++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return s, nil
}

func (q *BadgerQueue) Ping(_ context.Context) error {
	if q.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

func (q *BadgerQueue) Close() error {
	if !q.ownsDB {
		return nil
	}
	return q.db.Close()
}

// badgerLogger routes badger's internal logging to slog. Info and debug
// chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l badgerLogger) log(level slog.Level, format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
