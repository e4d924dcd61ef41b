package database

// Schema is applied on startup inside a transaction. Statements are
// idempotent so re-running against an existing database is safe.
const Schema = `
-- Per-chat warning counters; WARN_LIMIT warns trigger an auto-ban.
CREATE TABLE IF NOT EXISTS warns (
    chat_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    warns INT NOT NULL DEFAULT 0,
    PRIMARY KEY (chat_id, user_id)
);

-- Named notes saved per chat (/note add, /note get).
CREATE TABLE IF NOT EXISTS chat_notes (
    chat_id BIGINT NOT NULL,
    name TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (chat_id, name)
);

-- Message activity counters, one row per chat member.
CREATE TABLE IF NOT EXISTS xp (
    chat_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    xp BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (chat_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_xp_chat ON xp(chat_id);

-- Per-chat feature toggles.
CREATE TABLE IF NOT EXISTS chat_settings (
    chat_id BIGINT PRIMARY KEY,
    anti_link BOOLEAN NOT NULL DEFAULT true
);

-- Every chat either bot has ever seen; broadcast targets.
CREATE TABLE IF NOT EXISTS known_chats (
    chat_id BIGINT PRIMARY KEY,
    first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Couple of the day, stable per chat per UTC day.
CREATE TABLE IF NOT EXISTS couples (
    chat_id BIGINT NOT NULL,
    day DATE NOT NULL,
    user1_id BIGINT NOT NULL,
    user2_id BIGINT NOT NULL,
    PRIMARY KEY (chat_id, day)
);
`
