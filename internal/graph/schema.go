package graph

// Schema is applied idempotently on first open of a database path. It
// covers every node and edge table the system needs: Memory, Entity,
// Session, ArchivedMemory, a single generic edge table carrying all four
// relationship types (MENTIONS, RELATES_TO, BELONGS_TO_SESSION,
// CONSOLIDATED_INTO) distinguished by their `type` column, and a
// key-value settings table for the small subset of config that can be
// changed live.
//
// content_hash uniqueness among *live* memories is enforced in
// application code rather than a SQL constraint: SQLite partial indexes
// cannot express a now()-relative predicate like "valid_to IS NULL OR
// valid_to > now()", so a WHERE-valid_to-IS-NULL partial unique index
// would wrongly reject a still-live memory whose valid_to is a future
// timestamp.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	memory_type   TEXT NOT NULL,
	source_type   TEXT NOT NULL DEFAULT 'unknown',
	importance    REAL NOT NULL DEFAULT 0.5,
	confidence    REAL NOT NULL DEFAULT 1.0,
	created_at    TIMESTAMP NOT NULL,
	valid_from    TIMESTAMP NOT NULL,
	valid_to      TIMESTAMP,
	accessed_at   TIMESTAMP,
	access_count  INTEGER NOT NULL DEFAULT 0,
	agent_id      TEXT NOT NULL DEFAULT '',
	user_id       TEXT NOT NULL DEFAULT '',
	session_id    TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	entities      TEXT NOT NULL DEFAULT '[]',
	keywords      TEXT NOT NULL DEFAULT '[]',
	update_marker INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_valid_to ON memories(valid_to);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_agent_user ON memories(agent_id, user_id);

CREATE TABLE IF NOT EXISTS entities (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	text            TEXT NOT NULL,
	normalized_text TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	UNIQUE(type, normalized_text)
);

CREATE INDEX IF NOT EXISTS idx_entities_normalized ON entities(normalized_text);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS archived_memories (
	id            TEXT PRIMARY KEY,
	original_id   TEXT NOT NULL,
	content       TEXT NOT NULL,
	memory_type   TEXT NOT NULL,
	source_type   TEXT NOT NULL DEFAULT 'unknown',
	importance    REAL NOT NULL DEFAULT 0.5,
	created_at    TIMESTAMP NOT NULL,
	archived_at   TIMESTAMP NOT NULL,
	expires_at    TIMESTAMP NOT NULL,
	prune_score   REAL NOT NULL DEFAULT 0,
	restore_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_archived_expires_at ON archived_memories(expires_at);
CREATE INDEX IF NOT EXISTS idx_archived_original_id ON archived_memories(original_id);

CREATE TABLE IF NOT EXISTS memory_edges (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON memory_edges(source_id, type);
CREATE INDEX IF NOT EXISTS idx_edges_target ON memory_edges(target_id, type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_unique ON memory_edges(source_id, target_id, type);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
