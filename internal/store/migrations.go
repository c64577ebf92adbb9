package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create customer, conversation, ticket, and event tables",
		SQL: `
			CREATE TABLE customers (
				id                 TEXT PRIMARY KEY,
				name               TEXT NOT NULL DEFAULT '',
				email              TEXT NOT NULL DEFAULT '',
				sentiment_history  TEXT NOT NULL DEFAULT '[]',
				first_contact_at   TEXT NOT NULL,
				interaction_count  INTEGER NOT NULL DEFAULT 0,
				created_at         TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE identifiers (
				id           TEXT PRIMARY KEY,
				customer_id  TEXT NOT NULL REFERENCES customers(id),
				type         TEXT NOT NULL,
				value        TEXT NOT NULL,
				verified     INTEGER NOT NULL DEFAULT 0,
				created_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_identifiers_type_value ON identifiers (type, value);
			CREATE INDEX idx_identifiers_customer ON identifiers (customer_id);

			CREATE TABLE conversations (
				id               TEXT PRIMARY KEY,
				customer_id      TEXT NOT NULL REFERENCES customers(id),
				channel          TEXT NOT NULL,
				status           TEXT NOT NULL DEFAULT 'active',
				sentiment        REAL NOT NULL DEFAULT 0,
				metadata         TEXT NOT NULL DEFAULT '{}',
				started_at       TEXT NOT NULL,
				ended_at         TEXT,
				last_message_at  TEXT NOT NULL
			);

			CREATE UNIQUE INDEX idx_conversations_active
				ON conversations (customer_id, channel) WHERE status = 'active';
			CREATE INDEX idx_conversations_customer ON conversations (customer_id);

			CREATE TABLE tickets (
				id                  TEXT PRIMARY KEY,
				conversation_id     TEXT NOT NULL REFERENCES conversations(id),
				customer_id         TEXT NOT NULL REFERENCES customers(id),
				source_channel      TEXT NOT NULL,
				category            TEXT NOT NULL DEFAULT 'general',
				priority            TEXT NOT NULL DEFAULT 'medium',
				status              TEXT NOT NULL DEFAULT 'open',
				resolution_notes    TEXT NOT NULL DEFAULT '',
				resolution_attempts INTEGER NOT NULL DEFAULT 0,
				escalation_reason   TEXT NOT NULL DEFAULT '',
				escalation_route    TEXT NOT NULL DEFAULT '',
				created_at          TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at          TEXT NOT NULL DEFAULT (datetime('now')),
				resolved_at         TEXT
			);

			CREATE UNIQUE INDEX idx_tickets_unresolved
				ON tickets (conversation_id) WHERE status != 'resolved';
			CREATE INDEX idx_tickets_customer ON tickets (customer_id);
			CREATE INDEX idx_tickets_status ON tickets (status);

			CREATE TABLE messages (
				id                  TEXT PRIMARY KEY,
				conversation_id     TEXT NOT NULL REFERENCES conversations(id),
				direction           TEXT NOT NULL,
				role                TEXT NOT NULL,
				content             TEXT NOT NULL,
				channel             TEXT NOT NULL,
				channel_message_id  TEXT,
				sentiment           REAL,
				created_at          TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_messages_channel_native
				ON messages (channel, channel_message_id)
				WHERE channel_message_id IS NOT NULL;
			CREATE INDEX idx_messages_conversation ON messages (conversation_id, created_at, id);

			CREATE TABLE processed_events (
				event_id      TEXT PRIMARY KEY,
				processed_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_processed_events_at ON processed_events (processed_at);
		`,
	},
}
