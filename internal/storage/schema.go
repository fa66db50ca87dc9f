package storage

// Timestamps are stored as UTC unix nanoseconds so that range filters and
// ordering compare numerically.
const schema = `
-- The 'cards' table maps reviewable cards to the folder they belong to.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    folder_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

-- The 'review_states' table holds one SM-2 schedule per user and card.
CREATE TABLE IF NOT EXISTS review_states (
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    folder_id TEXT NOT NULL DEFAULT '',
    repetitions INTEGER NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL,
    interval_days INTEGER NOT NULL DEFAULT 0,
    next_review_at INTEGER NOT NULL,
    last_reviewed_at INTEGER,
    last_grade INTEGER,
    suspended INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    PRIMARY KEY (user_id, card_id)
);

CREATE INDEX IF NOT EXISTS idx_review_states_due
    ON review_states (user_id, suspended, next_review_at);
CREATE INDEX IF NOT EXISTS idx_review_states_created
    ON review_states (user_id, created_at);

-- The 'xp_events' table is an append-only XP ledger.
CREATE TABLE IF NOT EXISTS xp_events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    source TEXT NOT NULL, -- 'enroll' or 'review'
    xp INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_xp_events_user_time
    ON xp_events (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_xp_events_card
    ON xp_events (user_id, card_id, source, created_at);

-- The 'graded_requests' table remembers applied grade request ids.
CREATE TABLE IF NOT EXISTS graded_requests (
    request_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`
