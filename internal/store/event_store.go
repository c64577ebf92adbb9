package store

import (
	"context"
	"time"
)

// EventStore is the idempotency guard: it records processed event ids
// and rejects replays.
type EventStore struct {
	db *DB
}

// NewEventStore creates an event store using the given database.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Admit attempts to claim eventID. It returns true when this is the
// first sighting and false when the id was already processed. The
// insert must run on the same transaction as the event's state
// mutations so a crash cannot separate admission from effect.
func (s *EventStore) Admit(ctx context.Context, q dbtx, eventID string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events (event_id, processed_at) VALUES (?, ?)`,
		eventID, fmtTime(at),
	)
	if err != nil {
		return false, wrapPersistence("admit event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapPersistence("admit event", err)
	}
	return n > 0, nil
}

// Seen reports whether an event id has already been admitted.
func (s *EventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_events WHERE event_id = ?`, eventID,
	).Scan(&count)
	if err != nil {
		return false, wrapPersistence("check event", err)
	}
	return count > 0, nil
}

// PurgeBefore deletes admission records older than cutoff. The delete is
// range-bounded on processed_at and never touches rows an in-flight
// admission could insert, so it runs safely alongside workers.
func (s *EventStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM processed_events WHERE processed_at < ?`, fmtTime(cutoff),
	)
	if err != nil {
		return 0, wrapPersistence("purge events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapPersistence("purge events", err)
	}
	if n > 0 {
		s.db.log.Debug().Int64("purged", n).Time("cutoff", cutoff).Msg("processed events purged")
	}
	return n, nil
}
