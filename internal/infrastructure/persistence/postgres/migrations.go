package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migrations returns all embedded migrations in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progression_users", UpSQL: migration001Up},
		{Version: 2, Name: "create_action_ledger", UpSQL: migration002Up},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS progression_users (
    id VARCHAR(128) PRIMARY KEY,
    seq BIGSERIAL NOT NULL UNIQUE,
    display_name VARCHAR(100) NOT NULL,
    avatar_ref VARCHAR(512) NOT NULL DEFAULT '',
    experience BIGINT NOT NULL DEFAULT 0,
    statistics JSONB NOT NULL DEFAULT '{}'::jsonb,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    badges JSONB NOT NULL DEFAULT '[]'::jsonb,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_experience CHECK (experience >= 0),
    CONSTRAINT valid_streak CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_progression_users_leaderboard
    ON progression_users(experience DESC, seq ASC);
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS action_ledger (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL REFERENCES progression_users(id) ON DELETE CASCADE,
    action_type VARCHAR(50) NOT NULL,
    points_awarded INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    related_post_id VARCHAR(128),
    related_comment_id VARCHAR(128),
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    idempotency_key VARCHAR(128),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_points CHECK (points_awarded >= 0)
);

CREATE INDEX IF NOT EXISTS idx_action_ledger_user_created
    ON action_ledger(user_id, created_at DESC);

CREATE UNIQUE INDEX IF NOT EXISTS uq_action_ledger_idempotency
    ON action_ledger(user_id, idempotency_key)
    WHERE idempotency_key IS NOT NULL;
`
