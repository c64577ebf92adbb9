package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/deskd/internal/domain"
)

// ConversationStore manages conversation threads and their messages.
// At most one active conversation exists per (customer, channel); the
// partial unique index idx_conversations_active enforces this even when
// two workers open one concurrently.
type ConversationStore struct {
	db *DB
}

// NewConversationStore creates a conversation store using the given database.
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// OpenOrGet returns the active conversation for (customer, channel),
// opening a new one when none exists or when the existing one has been
// idle longer than the inactivity window. A stale conversation is closed
// before its replacement is opened, so the close and the open land in
// the same transaction.
func (s *ConversationStore) OpenOrGet(ctx context.Context, q dbtx, customerID string, ch domain.Channel, at time.Time, window time.Duration) (string, bool, error) {
	var id string
	var lastMessageAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, last_message_at FROM conversations
		 WHERE customer_id = ? AND channel = ? AND status = 'active'`,
		customerID, string(ch),
	).Scan(&id, &lastMessageAt)
	if err != nil && !isNotFound(err) {
		return "", false, wrapPersistence("find active conversation", err)
	}
	if err == nil {
		if at.Sub(parseTime(lastMessageAt)) <= window {
			return id, false, nil
		}
		// Idle past the window: retire it and start fresh below.
		if err := s.Close(ctx, q, id, at); err != nil {
			return "", false, err
		}
		s.db.log.Debug().
			Str("conversationId", id).
			Str("customerId", customerID).
			Msg("closed idle conversation")
	}

	newID := uuid.New().String()
	_, err = q.ExecContext(ctx,
		`INSERT INTO conversations (id, customer_id, channel, status, sentiment, metadata, started_at, last_message_at)
		 VALUES (?, ?, ?, 'active', 0, '{}', ?, ?)`,
		newID, customerID, string(ch), fmtTime(at), fmtTime(at),
	)
	if err == nil {
		return newID, true, nil
	}
	if !isUniqueViolation(err) {
		return "", false, wrapPersistence("open conversation", err)
	}

	// A concurrent worker opened the conversation between our select and
	// insert. Adopt theirs.
	err = q.QueryRowContext(ctx,
		`SELECT id FROM conversations
		 WHERE customer_id = ? AND channel = ? AND status = 'active'`,
		customerID, string(ch),
	).Scan(&id)
	if err != nil {
		return "", false, wrapPersistence("re-find active conversation", err)
	}
	return id, false, nil
}

// AppendMessage records a message and advances the conversation's
// last-activity clock. Messages carrying a channel-native id are
// deduplicated through the partial unique index on
// (channel, channel_message_id); a second arrival reports
// ErrDuplicateEvent and leaves the thread untouched.
func (s *ConversationStore) AppendMessage(ctx context.Context, q dbtx, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	var channelMessageID any
	if m.ChannelMessageID != "" {
		channelMessageID = m.ChannelMessageID
	}
	var sentiment any
	if m.Sentiment != nil {
		sentiment = *m.Sentiment
	}

	res, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, conversation_id, direction, role, content, channel, channel_message_id, sentiment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Direction), string(m.Role), m.Content,
		string(m.Channel), channelMessageID, sentiment, fmtTime(m.CreatedAt),
	)
	if err != nil {
		return wrapPersistence("append message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence("append message", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s/%s: %w", m.Channel, m.ChannelMessageID, domain.ErrDuplicateEvent)
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ? AND last_message_at < ?`,
		fmtTime(m.CreatedAt), m.ConversationID, fmtTime(m.CreatedAt),
	); err != nil {
		return wrapPersistence("advance conversation clock", err)
	}
	return nil
}

// UpdateSentiment recomputes the conversation's running sentiment as the
// mean of the last k scored messages, clamped to [-1, 1], and returns
// the new value. Conversations with no scored messages keep 0.
func (s *ConversationStore) UpdateSentiment(ctx context.Context, q dbtx, conversationID string, k int) (float64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT sentiment FROM messages
		 WHERE conversation_id = ? AND sentiment IS NOT NULL
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, k,
	)
	if err != nil {
		return 0, wrapPersistence("load message sentiments", err)
	}
	defer rows.Close()

	var sum float64
	var count int
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return 0, wrapPersistence("load message sentiments", err)
		}
		sum += score
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, wrapPersistence("load message sentiments", err)
	}
	if count == 0 {
		return 0, nil
	}

	mean := domain.ClampSentiment(sum / float64(count))
	if _, err := q.ExecContext(ctx,
		`UPDATE conversations SET sentiment = ? WHERE id = ?`,
		mean, conversationID,
	); err != nil {
		return 0, wrapPersistence("save conversation sentiment", err)
	}
	return mean, nil
}

// Close marks a conversation closed and stamps its end time. Closing an
// already closed conversation is a no-op.
func (s *ConversationStore) Close(ctx context.Context, q dbtx, conversationID string, at time.Time) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE conversations SET status = 'closed', ended_at = ? WHERE id = ? AND status = 'active'`,
		fmtTime(at), conversationID,
	); err != nil {
		return wrapPersistence("close conversation", err)
	}
	return nil
}

// Get loads one conversation, or nil when absent.
func (s *ConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.get(ctx, s.db.sql, id)
}

func (s *ConversationStore) get(ctx context.Context, q dbtx, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	var metadataJSON, startedAt, lastMessageAt string
	var endedAt any
	err := q.QueryRowContext(ctx,
		`SELECT id, customer_id, channel, status, sentiment, metadata, started_at, ended_at, last_message_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.CustomerID, &c.Channel, &c.Status, &c.Sentiment, &metadataJSON, &startedAt, &endedAt, &lastMessageAt)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapPersistence("load conversation", err)
	}
	_ = json.Unmarshal([]byte(metadataJSON), &c.Metadata)
	c.StartedAt = parseTime(startedAt)
	c.LastMessageAt = parseTime(lastMessageAt)
	if s, ok := endedAt.(string); ok && s != "" {
		t := parseTime(s)
		c.EndedAt = &t
	}
	return &c, nil
}

// RecentMessages returns the newest limit messages of a conversation in
// chronological order, for building responder context and snapshots.
func (s *ConversationStore) RecentMessages(ctx context.Context, q dbtx, conversationID string, limit int) ([]domain.Message, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, conversation_id, direction, role, content, channel, channel_message_id, sentiment, created_at
		 FROM (
		 	SELECT rowid AS rid, * FROM messages WHERE conversation_id = ?
		 	ORDER BY created_at DESC, rowid DESC LIMIT ?
		 ) ORDER BY created_at ASC, rid ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, wrapPersistence("load recent messages", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var channelMessageID, sentiment any
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Role, &m.Content,
			&m.Channel, &channelMessageID, &sentiment, &createdAt); err != nil {
			return nil, wrapPersistence("scan message", err)
		}
		if s, ok := channelMessageID.(string); ok {
			m.ChannelMessageID = s
		}
		switch v := sentiment.(type) {
		case float64:
			m.Sentiment = &v
		case int64:
			f := float64(v)
			m.Sentiment = &f
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence("scan message", err)
	}
	return msgs, nil
}
