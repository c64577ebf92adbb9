package domain

import "time"

// SentimentHistoryLimit bounds the rolling sentiment window kept per customer.
const SentimentHistoryLimit = 20

// SentimentSample is one timestamped sentiment score.
type SentimentSample struct {
	Score float64   `json:"score"`
	At    time.Time `json:"at"`
}

// Customer is the canonical record for one real-world customer, however
// many channel identifiers they contact us through.
type Customer struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Email            string            `json:"email,omitempty"`
	SentimentHistory []SentimentSample `json:"sentiment_history,omitempty"`
	FirstContactAt   time.Time         `json:"first_contact_at"`
	InteractionCount int               `json:"interaction_count"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PushSentiment appends a score to the rolling history, trimming to the
// window bound.
func (c *Customer) PushSentiment(score float64, at time.Time) {
	c.SentimentHistory = append(c.SentimentHistory, SentimentSample{Score: score, At: at})
	if n := len(c.SentimentHistory); n > SentimentHistoryLimit {
		c.SentimentHistory = c.SentimentHistory[n-SentimentHistoryLimit:]
	}
}

// Identifier binds a channel address to a customer. (type, value) is
// globally unique; a customer may own many identifiers.
type Identifier struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id"`
	Type       IdentifierType `json:"type"`
	Value      string         `json:"value"`
	Verified   bool           `json:"verified"`
	CreatedAt  time.Time      `json:"created_at"`
}
