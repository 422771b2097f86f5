package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/learnhub/progression-engine/internal/domain/progression"
	"github.com/learnhub/progression-engine/internal/domain/shared"
	"github.com/learnhub/progression-engine/internal/infrastructure/persistence"
)

// Timestamps are stored as fixed-width UTC text so ORDER BY on the column
// matches chronological order.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

type userRow struct {
	Seq              int64          `db:"seq"`
	ID               string         `db:"id"`
	DisplayName      string         `db:"display_name"`
	AvatarRef        string         `db:"avatar_ref"`
	Experience       int64          `db:"experience"`
	Statistics       string         `db:"statistics"`
	CurrentStreak    int            `db:"current_streak"`
	LongestStreak    int            `db:"longest_streak"`
	LastActivityDate sql.NullString `db:"last_activity_date"`
	Badges           string         `db:"badges"`
	Version          int64          `db:"version"`
	CreatedAt        string         `db:"created_at"`
}

type entryRow struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	ActionType       string         `db:"action_type"`
	PointsAwarded    int            `db:"points_awarded"`
	Description      string         `db:"description"`
	RelatedPostID    sql.NullString `db:"related_post_id"`
	RelatedCommentID sql.NullString `db:"related_comment_id"`
	Metadata         string         `db:"metadata"`
	IdempotencyKey   sql.NullString `db:"idempotency_key"`
	CreatedAt        string         `db:"created_at"`
}

type totalRow struct {
	UserID       string `db:"id"`
	Experience   int64  `db:"experience"`
	LedgerPoints int64  `db:"ledger_points"`
	Entries      int64  `db:"entries"`
}

const selectUser = `
	SELECT seq, id, display_name, avatar_ref, experience, statistics,
	       current_streak, longest_streak, last_activity_date, badges, version, created_at
	FROM progression_users`

const selectEntry = `
	SELECT id, user_id, action_type, points_awarded, description,
	       related_post_id, related_comment_id, metadata, idempotency_key, created_at
	FROM action_ledger`

// ProgressionRepository implements progression.Repository on SQLite.
type ProgressionRepository struct {
	db *DB
}

// Compile-time check.
var _ progression.Repository = (*ProgressionRepository)(nil)

// NewProgressionRepository creates a repository over an open DB.
func NewProgressionRepository(db *DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// Ping checks the database handle.
func (r *ProgressionRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// CreateUser inserts a user and assigns Seq from the rowid.
func (r *ProgressionRepository) CreateUser(ctx context.Context, u *progression.User) error {
	stats, err := persistence.EncodeStatistics(u.Statistics)
	if err != nil {
		return err
	}
	badges, err := persistence.EncodeBadges(u.Badges)
	if err != nil {
		return err
	}

	created := u.CreatedAt.UTC().Format(timeLayout)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO progression_users (
			id, display_name, avatar_ref, experience, statistics,
			current_streak, longest_streak, last_activity_date, badges, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.AvatarRef, u.Experience, string(stats),
		u.Streak.Current, u.Streak.Longest, formatDate(u.Streak.LastActivityDate), string(badges), u.Version,
		created, created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user seq: %w", err)
	}
	u.Seq = seq
	return nil
}

// GetUser returns a user by ID.
func (r *ProgressionRepository) GetUser(ctx context.Context, id string) (*progression.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, selectUser+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toDomain()
}

// Leaderboard returns the top users by experience, ties by creation order.
func (r *ProgressionRepository) Leaderboard(ctx context.Context, limit int) ([]*progression.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, selectUser+` ORDER BY experience DESC, seq ASC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	users := make([]*progression.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// Commit writes the new state and the ledger entry in one transaction.
func (r *ProgressionRepository) Commit(ctx context.Context, c progression.Commit) error {
	u, e := c.User, c.Entry

	stats, err := persistence.EncodeStatistics(u.Statistics)
	if err != nil {
		return err
	}
	badges, err := persistence.EncodeBadges(u.Badges)
	if err != nil {
		return err
	}
	metadata, err := persistence.EncodeMetadata(e.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE progression_users SET
			display_name = ?, avatar_ref = ?, experience = ?, statistics = ?,
			current_streak = ?, longest_streak = ?, last_activity_date = ?, badges = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		u.DisplayName, u.AvatarRef, u.Experience, string(stats),
		u.Streak.Current, u.Streak.Longest, formatDate(u.Streak.LastActivityDate), string(badges),
		time.Now().UTC().Format(timeLayout),
		u.ID, c.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if affected == 0 {
		return missingOrStale(ctx, tx, u.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO action_ledger (
			id, user_id, action_type, points_awarded, description,
			related_post_id, related_comment_id, metadata, idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.UserID, string(e.ActionType), e.PointsAwarded, e.Description,
		persistence.NullString(e.References.PostID), persistence.NullString(e.References.CommentID),
		string(metadata), persistence.NullString(e.IdempotencyKey),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicateAction
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error: %w", err)
	}
	u.Version = c.ExpectedVersion + 1
	return nil
}

func missingOrStale(ctx context.Context, tx *sqlx.Tx, id string) error {
	var n int
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM progression_users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return shared.ErrUserNotFound
	}
	return shared.ErrVersionMismatch
}

// RecentEntries returns the newest entries first.
func (r *ProgressionRepository) RecentEntries(ctx context.Context, userID string, limit int) ([]*progression.LedgerEntry, error) {
	var rows []entryRow
	err := r.db.SelectContext(ctx, &rows,
		selectEntry+` WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}

	entries := make([]*progression.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FindEntryByIdempotencyKey returns the entry recorded with key, or nil.
func (r *ProgressionRepository) FindEntryByIdempotencyKey(ctx context.Context, userID, key string) (*progression.LedgerEntry, error) {
	var row entryRow
	err := r.db.GetContext(ctx, &row, selectEntry+` WHERE user_id = ? AND idempotency_key = ?`, userID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return row.toDomain()
}

// LedgerTotals compares stored experience with the ledger sum per user.
func (r *ProgressionRepository) LedgerTotals(ctx context.Context) ([]progression.LedgerTotal, error) {
	var rows []totalRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT u.id, u.experience,
		       COALESCE(SUM(l.points_awarded), 0) AS ledger_points,
		       COUNT(l.id) AS entries
		FROM progression_users u
		LEFT JOIN action_ledger l ON l.user_id = u.id
		GROUP BY u.id, u.experience
		ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger totals: %w", err)
	}

	totals := make([]progression.LedgerTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, progression.LedgerTotal(row))
	}
	return totals, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row mapping
// ─────────────────────────────────────────────────────────────────────────────

func (row userRow) toDomain() (*progression.User, error) {
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	u := &progression.User{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		AvatarRef:   row.AvatarRef,
		CreatedAt:   created,
		Seq:         row.Seq,
	}
	u.Experience = row.Experience
	u.Version = row.Version
	u.Streak.Current = row.CurrentStreak
	u.Streak.Longest = row.LongestStreak

	if row.LastActivityDate.Valid {
		d, err := time.Parse(dateLayout, row.LastActivityDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_activity_date: %w", err)
		}
		u.Streak.LastActivityDate = &d
	}
	if u.Statistics, err = persistence.DecodeStatistics([]byte(row.Statistics)); err != nil {
		return nil, err
	}
	if u.Badges, err = persistence.DecodeBadges([]byte(row.Badges)); err != nil {
		return nil, err
	}
	return u, nil
}

func (row entryRow) toDomain() (*progression.LedgerEntry, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("parse entry id: %w", err)
	}
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse entry created_at: %w", err)
	}
	metadata, err := persistence.DecodeMetadata([]byte(row.Metadata))
	if err != nil {
		return nil, err
	}

	return &progression.LedgerEntry{
		ID:            id,
		UserID:        row.UserID,
		ActionType:    progression.ActionType(row.ActionType),
		PointsAwarded: row.PointsAwarded,
		Description:   row.Description,
		References: progression.References{
			PostID:    row.RelatedPostID.String,
			CommentID: row.RelatedCommentID.String,
		},
		Metadata:       metadata,
		IdempotencyKey: row.IdempotencyKey.String,
		CreatedAt:      created,
	}, nil
}

// formatDate keeps only the calendar date; the day boundary was already
// resolved in the configured timezone when the value was produced.
func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}
