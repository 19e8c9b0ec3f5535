// Package journal persists the structured trade-journal event stream to
// BoltDB: one append-only bucket of model.TradeJournalEvent records keyed by
// symbol and time. The journal is not a crash-recovery file: startup
// recovery reconstructs Position state from the exchange's own open-position
// and conditional-order endpoints (internal/lifecycle.Manager.Recover), not
// from this journal.
package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"perpengine/internal/model"

	"go.etcd.io/bbolt"
)

const eventsBucket = "trade_journal_events"

// Journal provides durable, append-only storage for trade-journal events.
type Journal struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the journal database under dataPath.
func Open(dataPath string) (*Journal, error) {
	dbPath := filepath.Join(dataPath, "engine-journal.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(eventsBucket)); err != nil {
			return fmt.Errorf("create events bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// RecordEvent appends one trade-journal event: Created,
// Reconciled-fill, Protected, TP-hit(i), Closing(reason), Closed.
func (j *Journal) RecordEvent(event model.TradeJournalEvent) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(eventsBucket))
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal trade journal event: %w", err)
		}
		key := fmt.Sprintf("%s_%d_%s", event.Symbol, event.Timestamp.UnixNano(), event.EventKind)
		return b.Put([]byte(key), data)
	})
}

// EventsForSymbol returns every recorded event for symbol within [start,
// end], ordered oldest-first.
func (j *Journal) EventsForSymbol(symbol string, start, end time.Time) ([]model.TradeJournalEvent, error) {
	var events []model.TradeJournalEvent
	prefix := []byte(symbol + "_")

	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(eventsBucket)).Cursor()
		startKey := []byte(fmt.Sprintf("%s_%d", symbol, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", symbol, end.UnixNano()+1))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var event model.TradeJournalEvent
			if err := json.Unmarshal(v, &event); err != nil {
				continue
			}
			events = append(events, event)
		}
		return nil
	})
	return events, err
}
