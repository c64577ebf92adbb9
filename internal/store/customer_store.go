package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/deskd/internal/domain"
)

// CustomerStore resolves channel identifiers to canonical customers and
// maintains per-customer bookkeeping.
type CustomerStore struct {
	db *DB
}

// NewCustomerStore creates a customer store using the given database.
func NewCustomerStore(db *DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// Resolve maps (type, value) to a customer id, creating the customer and
// identifier on first sighting. Concurrent first sightings race through
// the unique index on (type, value); the loser discards its candidate
// row and adopts the winner's customer id. One such retry is attempted
// before giving up with an IdentityResolutionError.
func (s *CustomerStore) Resolve(ctx context.Context, q dbtx, typ domain.IdentifierType, value, displayName string, at time.Time) (string, bool, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		customerID, found, err := s.lookup(ctx, q, typ, value)
		if err != nil {
			lastErr = err
			continue
		}
		if found {
			if err := s.touchExisting(ctx, q, customerID, typ, value, displayName, at); err != nil {
				return "", false, err
			}
			return customerID, false, nil
		}

		customerID, created, err := s.create(ctx, q, typ, value, displayName, at)
		if err != nil {
			lastErr = err
			continue
		}
		if created {
			return customerID, true, nil
		}
		// Lost the insert race; loop once more to adopt the winner.
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("identifier insert raced and winner not visible")
	}
	return "", false, &domain.IdentityResolutionError{Type: typ, Value: value, Err: lastErr}
}

func (s *CustomerStore) lookup(ctx context.Context, q dbtx, typ domain.IdentifierType, value string) (string, bool, error) {
	var customerID string
	err := q.QueryRowContext(ctx,
		`SELECT customer_id FROM identifiers WHERE type = ? AND value = ?`,
		string(typ), value,
	).Scan(&customerID)
	if isNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapPersistence("lookup identifier", err)
	}
	return customerID, true, nil
}

// touchExisting bumps the interaction counter and opportunistically
// fills a previously unknown display name or primary email.
func (s *CustomerStore) touchExisting(ctx context.Context, q dbtx, customerID string, typ domain.IdentifierType, value, displayName string, at time.Time) error {
	if _, err := q.ExecContext(ctx,
		`UPDATE customers SET interaction_count = interaction_count + 1, updated_at = ? WHERE id = ?`,
		fmtTime(at), customerID,
	); err != nil {
		return wrapPersistence("touch customer", err)
	}
	if displayName != "" {
		if _, err := q.ExecContext(ctx,
			`UPDATE customers SET name = ? WHERE id = ? AND name = ''`,
			displayName, customerID,
		); err != nil {
			return wrapPersistence("update customer name", err)
		}
	}
	if typ == domain.IdentifierEmail {
		if _, err := q.ExecContext(ctx,
			`UPDATE customers SET email = ? WHERE id = ? AND email = ''`,
			value, customerID,
		); err != nil {
			return wrapPersistence("update customer email", err)
		}
	}
	return nil
}

func (s *CustomerStore) create(ctx context.Context, q dbtx, typ domain.IdentifierType, value, displayName string, at time.Time) (string, bool, error) {
	customerID := uuid.New().String()
	email := ""
	if typ == domain.IdentifierEmail {
		email = value
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO customers (id, name, email, sentiment_history, first_contact_at, interaction_count, created_at, updated_at)
		 VALUES (?, ?, ?, '[]', ?, 1, ?, ?)`,
		customerID, displayName, email, fmtTime(at), fmtTime(at), fmtTime(at),
	); err != nil {
		return "", false, wrapPersistence("insert customer", err)
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO identifiers (id, customer_id, type, value, verified, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		uuid.New().String(), customerID, string(typ), value, fmtTime(at),
	)
	if err == nil {
		s.db.log.Info().
			Str("customerId", customerID).
			Str("type", string(typ)).
			Msg("customer created")
		return customerID, true, nil
	}
	if !isUniqueViolation(err) {
		return "", false, wrapPersistence("insert identifier", err)
	}

	// A concurrent resolver claimed the identifier first. Drop the
	// candidate customer row; nothing references it yet.
	if _, err := q.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, customerID); err != nil {
		return "", false, wrapPersistence("discard candidate customer", err)
	}
	return "", false, nil
}

// AttachIdentifier binds an additional identifier to an existing
// customer: the administrative cross-channel linking action. Attachment
// is append-only; a value already bound to a different customer is
// rejected. Attaching an identifier the customer already owns is a
// no-op returning the existing row.
func (s *CustomerStore) AttachIdentifier(ctx context.Context, typ domain.IdentifierType, value, customerID string, verified bool) (domain.Identifier, error) {
	var exists int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM customers WHERE id = ?`, customerID,
	).Scan(&exists)
	if err != nil {
		return domain.Identifier{}, wrapPersistence("check customer", err)
	}
	if exists == 0 {
		return domain.Identifier{}, fmt.Errorf("customer %s not found", customerID)
	}

	now := time.Now()
	id := uuid.New().String()
	verifiedInt := 0
	if verified {
		verifiedInt = 1
	}
	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO identifiers (id, customer_id, type, value, verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, customerID, string(typ), value, verifiedInt, fmtTime(now),
	)
	if err != nil {
		if !isUniqueViolation(err) {
			return domain.Identifier{}, wrapPersistence("attach identifier", err)
		}
		existing, lookupErr := s.identifierByValue(ctx, typ, value)
		if lookupErr != nil {
			return domain.Identifier{}, lookupErr
		}
		if existing.CustomerID != customerID {
			return domain.Identifier{}, fmt.Errorf("identifier %s:%s already bound to customer %s", typ, value, existing.CustomerID)
		}
		return existing, nil
	}

	s.db.log.Info().
		Str("customerId", customerID).
		Str("type", string(typ)).
		Msg("identifier attached")
	return domain.Identifier{
		ID:         id,
		CustomerID: customerID,
		Type:       typ,
		Value:      value,
		Verified:   verified,
		CreatedAt:  now.UTC(),
	}, nil
}

func (s *CustomerStore) identifierByValue(ctx context.Context, typ domain.IdentifierType, value string) (domain.Identifier, error) {
	var ident domain.Identifier
	var verified int
	var createdAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, customer_id, type, value, verified, created_at
		 FROM identifiers WHERE type = ? AND value = ?`,
		string(typ), value,
	).Scan(&ident.ID, &ident.CustomerID, &ident.Type, &ident.Value, &verified, &createdAt)
	if err != nil {
		return domain.Identifier{}, wrapPersistence("load identifier", err)
	}
	ident.Verified = verified != 0
	ident.CreatedAt = parseTime(createdAt)
	return ident, nil
}

// AppendSentiment pushes one score onto the customer's rolling sentiment
// history, trimming to the window bound.
func (s *CustomerStore) AppendSentiment(ctx context.Context, q dbtx, customerID string, score float64, at time.Time) error {
	var historyJSON string
	err := q.QueryRowContext(ctx,
		`SELECT sentiment_history FROM customers WHERE id = ?`, customerID,
	).Scan(&historyJSON)
	if err != nil {
		return wrapPersistence("load sentiment history", err)
	}

	c := domain.Customer{}
	if err := json.Unmarshal([]byte(historyJSON), &c.SentimentHistory); err != nil {
		// A corrupt history column should not fail the event; start over.
		s.db.log.Warn().Err(err).Str("customerId", customerID).Msg("resetting unreadable sentiment history")
		c.SentimentHistory = nil
	}
	c.PushSentiment(score, at)

	data, err := json.Marshal(c.SentimentHistory)
	if err != nil {
		return fmt.Errorf("encode sentiment history: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`UPDATE customers SET sentiment_history = ?, updated_at = ? WHERE id = ?`,
		string(data), fmtTime(at), customerID,
	); err != nil {
		return wrapPersistence("save sentiment history", err)
	}
	return nil
}

// Get returns a customer with their identifiers, or nil if not found.
func (s *CustomerStore) Get(ctx context.Context, id string) (*domain.Customer, []domain.Identifier, error) {
	var c domain.Customer
	var historyJSON, firstContact, createdAt, updatedAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, name, email, sentiment_history, first_contact_at, interaction_count, created_at, updated_at
		 FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &historyJSON, &firstContact, &c.InteractionCount, &createdAt, &updatedAt)
	if isNotFound(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, wrapPersistence("load customer", err)
	}
	_ = json.Unmarshal([]byte(historyJSON), &c.SentimentHistory)
	c.FirstContactAt = parseTime(firstContact)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)

	idents, err := s.Identifiers(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &c, idents, nil
}

// GetByIdentifier returns the customer owning (type, value), or nil.
func (s *CustomerStore) GetByIdentifier(ctx context.Context, typ domain.IdentifierType, value string) (*domain.Customer, error) {
	customerID, found, err := s.lookup(ctx, s.db.sql, typ, value)
	if err != nil || !found {
		return nil, err
	}
	c, _, err := s.Get(ctx, customerID)
	return c, err
}

// Identifiers lists all identifiers attached to a customer.
func (s *CustomerStore) Identifiers(ctx context.Context, customerID string) ([]domain.Identifier, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, customer_id, type, value, verified, created_at
		 FROM identifiers WHERE customer_id = ? ORDER BY created_at, id`, customerID,
	)
	if err != nil {
		return nil, wrapPersistence("list identifiers", err)
	}
	defer rows.Close()

	var idents []domain.Identifier
	for rows.Next() {
		var ident domain.Identifier
		var verified int
		var createdAt string
		if err := rows.Scan(&ident.ID, &ident.CustomerID, &ident.Type, &ident.Value, &verified, &createdAt); err != nil {
			continue
		}
		ident.Verified = verified != 0
		ident.CreatedAt = parseTime(createdAt)
		idents = append(idents, ident)
	}
	return idents, nil
}
