package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const idempotencyIndex = "uq_action_ledger_idempotency"

// ProgressionRepository implements progression.Repository for PostgreSQL.
type ProgressionRepository struct {
	conn *Connection
}

// Compile-time check.
var _ progression.Repository = (*ProgressionRepository)(nil)

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(conn *Connection) *ProgressionRepository {
	return &ProgressionRepository{conn: conn}
}

// Ping checks the database is reachable.
func (r *ProgressionRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

const userColumns = `
	id, seq, display_name, avatar_ref, experience, statistics,
	current_streak, longest_streak, last_activity_date, badges, version, created_at
`

// CreateUser inserts a user with zero progression and assigns Seq.
func (r *ProgressionRepository) CreateUser(ctx context.Context, u *progression.User) error {
	stats, err := persistence.EncodeStatistics(u.Statistics)
	if err != nil {
		return err
	}
	badges, err := persistence.EncodeBadges(u.Badges)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO progression_users (
			id, display_name, avatar_ref, experience, statistics,
			current_streak, longest_streak, last_activity_date, badges, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING seq
	`
	err = r.conn.QueryRow(ctx, query,
		u.ID,
		u.DisplayName,
		u.AvatarRef,
		u.Experience,
		stats,
		u.Streak.Current,
		u.Streak.Longest,
		u.Streak.LastActivityDate,
		badges,
		u.Version,
		u.CreatedAt,
	).Scan(&u.Seq)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (r *ProgressionRepository) GetUser(ctx context.Context, id string) (*progression.User, error) {
	query := `SELECT ` + userColumns + ` FROM progression_users WHERE id = $1`
	return scanUser(r.conn.QueryRow(ctx, query, id))
}

// Leaderboard returns the top users by experience, ties by creation order.
func (r *ProgressionRepository) Leaderboard(ctx context.Context, limit int) ([]*progression.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM progression_users
		ORDER BY experience DESC, seq ASC
		LIMIT $1
	`
	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var users []*progression.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Commit
// ─────────────────────────────────────────────────────────────────────────────

// Commit writes the new state and the ledger entry in one transaction.
// The UPDATE is guarded by the expected version; zero affected rows means
// either the user is gone or somebody else committed first.
func (r *ProgressionRepository) Commit(ctx context.Context, c progression.Commit) error {
	u := c.User
	stats, err := persistence.EncodeStatistics(u.Statistics)
	if err != nil {
		return err
	}
	badges, err := persistence.EncodeBadges(u.Badges)
	if err != nil {
		return err
	}
	metadata, err := persistence.EncodeMetadata(c.Entry.Metadata)
	if err != nil {
		return err
	}

	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE progression_users SET
				display_name = $1,
				avatar_ref = $2,
				experience = $3,
				statistics = $4,
				current_streak = $5,
				longest_streak = $6,
				last_activity_date = $7,
				badges = $8,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $9 AND version = $10
		`,
			u.DisplayName,
			u.AvatarRef,
			u.Experience,
			stats,
			u.Streak.Current,
			u.Streak.Longest,
			u.Streak.LastActivityDate,
			badges,
			u.ID,
			c.ExpectedVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return missingOrStale(ctx, tx, u.ID)
		}

		e := c.Entry
		_, err = tx.Exec(ctx, `
			INSERT INTO action_ledger (
				id, user_id, action_type, points_awarded, description,
				related_post_id, related_comment_id, metadata, idempotency_key, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			e.ID,
			e.UserID,
			string(e.ActionType),
			e.PointsAwarded,
			e.Description,
			persistence.NullString(e.References.PostID),
			persistence.NullString(e.References.CommentID),
			metadata,
			persistence.NullString(e.IdempotencyKey),
			e.CreatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err, idempotencyIndex) {
				return shared.ErrDuplicateAction
			}
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	u.Version = c.ExpectedVersion + 1
	return nil
}

func missingOrStale(ctx context.Context, q Querier, id string) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM progression_users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return shared.ErrUserNotFound
	}
	return shared.ErrVersionMismatch
}

// ─────────────────────────────────────────────────────────────────────────────
// Ledger
// ─────────────────────────────────────────────────────────────────────────────

const entryColumns = `
	id, user_id, action_type, points_awarded, description,
	COALESCE(related_post_id, ''), COALESCE(related_comment_id, ''),
	metadata, COALESCE(idempotency_key, ''), created_at
`

// RecentEntries returns the newest entries first.
func (r *ProgressionRepository) RecentEntries(ctx context.Context, userID string, limit int) ([]*progression.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM action_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*progression.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindEntryByIdempotencyKey returns the entry recorded with key, or nil.
func (r *ProgressionRepository) FindEntryByIdempotencyKey(ctx context.Context, userID, key string) (*progression.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM action_ledger
		WHERE user_id = $1 AND idempotency_key = $2
	`
	e, err := scanEntry(r.conn.QueryRow(ctx, query, userID, key))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// LedgerTotals compares stored experience with the ledger sum per user.
func (r *ProgressionRepository) LedgerTotals(ctx context.Context) ([]progression.LedgerTotal, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT u.id, u.experience, COALESCE(SUM(l.points_awarded), 0), COUNT(l.id)
		FROM progression_users u
		LEFT JOIN action_ledger l ON l.user_id = u.id
		GROUP BY u.id, u.experience
		ORDER BY u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger totals: %w", err)
	}
	defer rows.Close()

	var totals []progression.LedgerTotal
	for rows.Next() {
		var t progression.LedgerTotal
		if err := rows.Scan(&t.UserID, &t.Experience, &t.LedgerPoints, &t.Entries); err != nil {
			return nil, fmt.Errorf("failed to scan ledger total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanUser(row pgx.Row) (*progression.User, error) {
	var (
		u            progression.User
		stats        []byte
		badges       []byte
		lastActivity *time.Time
	)
	err := row.Scan(
		&u.ID,
		&u.Seq,
		&u.DisplayName,
		&u.AvatarRef,
		&u.Experience,
		&stats,
		&u.Streak.Current,
		&u.Streak.Longest,
		&lastActivity,
		&badges,
		&u.Version,
		&u.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if u.Statistics, err = persistence.DecodeStatistics(stats); err != nil {
		return nil, err
	}
	if u.Badges, err = persistence.DecodeBadges(badges); err != nil {
		return nil, err
	}
	if lastActivity != nil {
		// DATE comes back as midnight UTC; keep the calendar date only.
		d := time.Date(lastActivity.Year(), lastActivity.Month(), lastActivity.Day(), 0, 0, 0, 0, time.UTC)
		u.Streak.LastActivityDate = &d
	}
	return &u, nil
}

func scanEntry(row pgx.Row) (*progression.LedgerEntry, error) {
	var (
		e        progression.LedgerEntry
		action   string
		metadata []byte
		id       uuid.UUID
	)
	err := row.Scan(
		&id,
		&e.UserID,
		&action,
		&e.PointsAwarded,
		&e.Description,
		&e.References.PostID,
		&e.References.CommentID,
		&metadata,
		&e.IdempotencyKey,
		&e.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.ID = id
	e.ActionType = progression.ActionType(action)
	if e.Metadata, err = persistence.DecodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &e, nil
}
