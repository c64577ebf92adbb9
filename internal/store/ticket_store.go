package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/deskd/internal/domain"
)

// TicketStore manages ticket lifecycle state. At most one non-resolved
// ticket exists per conversation, enforced by the partial unique index
// idx_tickets_unresolved.
type TicketStore struct {
	db *DB
}

// NewTicketStore creates a ticket store using the given database.
func NewTicketStore(db *DB) *TicketStore {
	return &TicketStore{db: db}
}

// TransitionOpts carries the optional fields a transition may set.
type TransitionOpts struct {
	Reason string
	Route  domain.EscalationRoute
	Notes  string
}

// EnsureOpen returns the conversation's non-resolved ticket, creating an
// open one when none exists. Concurrent creates race through the partial
// unique index; the loser adopts the winner's ticket.
func (s *TicketStore) EnsureOpen(ctx context.Context, q dbtx, conversationID, customerID string, ch domain.Channel, category domain.TicketCategory, at time.Time) (string, bool, error) {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM tickets WHERE conversation_id = ? AND status != 'resolved'`,
		conversationID,
	).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !isNotFound(err) {
		return "", false, wrapPersistence("find open ticket", err)
	}

	if category == "" {
		category = domain.CategoryGeneral
	}
	newID := uuid.New().String()
	_, err = q.ExecContext(ctx,
		`INSERT INTO tickets (id, conversation_id, customer_id, source_channel, category, priority, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'medium', 'open', ?, ?)`,
		newID, conversationID, customerID, string(ch), string(category),
		fmtTime(at), fmtTime(at),
	)
	if err == nil {
		s.db.log.Info().
			Str("ticketId", newID).
			Str("conversationId", conversationID).
			Str("category", string(category)).
			Msg("ticket opened")
		return newID, true, nil
	}
	if !isUniqueViolation(err) {
		return "", false, wrapPersistence("open ticket", err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id FROM tickets WHERE conversation_id = ? AND status != 'resolved'`,
		conversationID,
	).Scan(&id)
	if err != nil {
		return "", false, wrapPersistence("re-find open ticket", err)
	}
	return id, false, nil
}

// Transition moves a ticket to a new status after validating the move
// against the lifecycle graph. The update is guarded on the observed
// current status so a concurrent transition cannot be silently
// overwritten; losing the guard re-reads and reports the conflict as an
// invalid transition from the actual state.
func (s *TicketStore) Transition(ctx context.Context, q dbtx, id string, to domain.TicketStatus, at time.Time, opts TransitionOpts) error {
	for attempt := 0; attempt < 2; attempt++ {
		var from domain.TicketStatus
		err := q.QueryRowContext(ctx, `SELECT status FROM tickets WHERE id = ?`, id).Scan(&from)
		if err != nil {
			return wrapPersistence("load ticket status", err)
		}
		if from == to {
			return nil
		}
		if !domain.CanTransition(from, to) {
			return &domain.InvalidTransitionError{TicketID: id, From: from, To: to}
		}

		set := `status = ?, updated_at = ?`
		args := []any{string(to), fmtTime(at)}
		if to == domain.TicketResolved {
			set += `, resolved_at = ?`
			args = append(args, fmtTime(at))
		}
		if opts.Reason != "" {
			set += `, escalation_reason = ?`
			args = append(args, opts.Reason)
		}
		if opts.Route != "" {
			set += `, escalation_route = ?`
			args = append(args, string(opts.Route))
		}
		if opts.Notes != "" {
			set += `, resolution_notes = ?`
			args = append(args, opts.Notes)
		}
		args = append(args, id, string(from))

		res, err := q.ExecContext(ctx,
			`UPDATE tickets SET `+set+` WHERE id = ? AND status = ?`, args...,
		)
		if err != nil {
			return wrapPersistence("transition ticket", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapPersistence("transition ticket", err)
		}
		if n == 1 {
			s.db.log.Info().
				Str("ticketId", id).
				Str("from", string(from)).
				Str("to", string(to)).
				Msg("ticket transitioned")
			return nil
		}
		// Status moved under us; re-evaluate from the fresh state.
	}
	return &domain.InvalidTransitionError{TicketID: id, From: "", To: to}
}

// IncrementAttempts bumps the resolution attempt counter and returns the
// new count.
func (s *TicketStore) IncrementAttempts(ctx context.Context, q dbtx, id string, at time.Time) (int, error) {
	if _, err := q.ExecContext(ctx,
		`UPDATE tickets SET resolution_attempts = resolution_attempts + 1, updated_at = ? WHERE id = ?`,
		fmtTime(at), id,
	); err != nil {
		return 0, wrapPersistence("increment attempts", err)
	}
	var attempts int
	if err := q.QueryRowContext(ctx,
		`SELECT resolution_attempts FROM tickets WHERE id = ?`, id,
	).Scan(&attempts); err != nil {
		return 0, wrapPersistence("read attempts", err)
	}
	return attempts, nil
}

// priorityRank orders priorities for raise-only updates.
var priorityRank = map[domain.TicketPriority]int{
	domain.PriorityLow:    0,
	domain.PriorityMedium: 1,
	domain.PriorityHigh:   2,
}

// UpdateClassification refreshes a ticket's category and priority from
// the latest event. The category is only filled in while it is still
// general, and the priority only ever moves up, so later low-signal
// events cannot erase an earlier classification.
func (s *TicketStore) UpdateClassification(ctx context.Context, q dbtx, id string, category domain.TicketCategory, priority domain.TicketPriority, at time.Time) error {
	if category != "" && category != domain.CategoryGeneral {
		if _, err := q.ExecContext(ctx,
			`UPDATE tickets SET category = ?, updated_at = ? WHERE id = ? AND category = 'general' AND status != 'resolved'`,
			string(category), fmtTime(at), id,
		); err != nil {
			return wrapPersistence("update ticket category", err)
		}
	}
	if priority != "" {
		var current domain.TicketPriority
		if err := q.QueryRowContext(ctx, `SELECT priority FROM tickets WHERE id = ?`, id).Scan(&current); err != nil {
			return wrapPersistence("load ticket priority", err)
		}
		if priorityRank[priority] > priorityRank[current] {
			if _, err := q.ExecContext(ctx,
				`UPDATE tickets SET priority = ?, updated_at = ? WHERE id = ? AND status != 'resolved'`,
				string(priority), fmtTime(at), id,
			); err != nil {
				return wrapPersistence("update ticket priority", err)
			}
		}
	}
	return nil
}

// Get loads one ticket, or nil when absent.
func (s *TicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.get(ctx, s.db.sql, id)
}

func (s *TicketStore) get(ctx context.Context, q dbtx, id string) (*domain.Ticket, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, conversation_id, customer_id, source_channel, category, priority, status,
		        resolution_notes, resolution_attempts, escalation_reason, escalation_route,
		        created_at, updated_at, resolved_at
		 FROM tickets WHERE id = ?`, id,
	)
	t, err := scanTicket(row)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapPersistence("load ticket", err)
	}
	return t, nil
}

// GetOpenByConversation returns the conversation's non-resolved ticket,
// or nil when every ticket is resolved.
func (s *TicketStore) GetOpenByConversation(ctx context.Context, conversationID string) (*domain.Ticket, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, conversation_id, customer_id, source_channel, category, priority, status,
		        resolution_notes, resolution_attempts, escalation_reason, escalation_route,
		        created_at, updated_at, resolved_at
		 FROM tickets WHERE conversation_id = ? AND status != 'resolved'`, conversationID,
	)
	t, err := scanTicket(row)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapPersistence("load open ticket", err)
	}
	return t, nil
}

// List returns tickets newest first, optionally filtered by status.
func (s *TicketStore) List(ctx context.Context, status domain.TicketStatus, limit int) ([]domain.Ticket, error) {
	query := `SELECT id, conversation_id, customer_id, source_channel, category, priority, status,
	                 resolution_notes, resolution_attempts, escalation_reason, escalation_route,
	                 created_at, updated_at, resolved_at
	          FROM tickets`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPersistence("list tickets", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrapPersistence("list tickets", err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence("list tickets", err)
	}
	return tickets, nil
}

// Snapshot assembles the ticket view handed to humans on escalation or
// lookup: the ticket plus the recent conversation transcript, read in
// one transaction so the two halves agree.
func (s *TicketStore) Snapshot(ctx context.Context, conversations *ConversationStore, ticketID string, transcriptLimit int) (*domain.TicketSnapshot, error) {
	var snap *domain.TicketSnapshot
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		t, err := s.get(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		msgs, err := conversations.RecentMessages(ctx, tx, t.ConversationID, transcriptLimit)
		if err != nil {
			return err
		}
		snap = &domain.TicketSnapshot{
			TicketID:      t.ID,
			Status:        t.Status,
			Category:      t.Category,
			Priority:      t.Priority,
			SourceChannel: t.SourceChannel,
			CreatedAt:     t.CreatedAt,
			ResolvedAt:    t.ResolvedAt,
		}
		for _, m := range msgs {
			snap.Messages = append(snap.Messages, domain.SnapshotMessage{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
				Channel:   m.Channel,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	var createdAt, updatedAt string
	var resolvedAt any
	err := row.Scan(&t.ID, &t.ConversationID, &t.CustomerID, &t.SourceChannel,
		&t.Category, &t.Priority, &t.Status,
		&t.ResolutionNotes, &t.ResolutionAttempts, &t.EscalationReason, &t.EscalationRoute,
		&createdAt, &updatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if s, ok := resolvedAt.(string); ok && s != "" {
		ts := parseTime(s)
		t.ResolvedAt = &ts
	}
	return &t, nil
}
