package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progression.ProgressRepository and
// progression.AtomicCommitter.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// GetProgress returns the stored row or a NotFound error.
func (r *ProgressRepository) GetProgress(ctx context.Context, userID string) (progression.UserProgress, error) {
	query := `
		SELECT user_id, total_points, current_level, version, created_at, updated_at
		FROM user_progress
		WHERE user_id = $1
	`

	var p progression.UserProgress
	err := r.conn.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.TotalPoints, &p.CurrentLevel, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return progression.UserProgress{}, shared.NotFound("progression", "GetProgress", "progress", userID)
		}
		return progression.UserProgress{}, storageErr("GetProgress", err)
	}
	return p, nil
}

// SaveProgress writes p if the stored version equals expectedVersion.
func (r *ProgressRepository) SaveProgress(ctx context.Context, p progression.UserProgress, expectedVersion int64) error {
	return saveProgress(ctx, r.conn, p, expectedVersion)
}

// GetEarned returns all earned achievements of a user.
func (r *ProgressRepository) GetEarned(ctx context.Context, userID string) (map[progression.AchievementID]progression.EarnedAchievement, error) {
	query := `
		SELECT achievement_id, name, description, point_reward, earned_at
		FROM earned_achievements
		WHERE user_id = $1
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, storageErr("GetEarned", err)
	}
	defer rows.Close()

	out := make(map[progression.AchievementID]progression.EarnedAchievement)
	for rows.Next() {
		var a progression.EarnedAchievement
		if err := rows.Scan(&a.AchievementID, &a.Name, &a.Description, &a.PointReward, &a.EarnedAt); err != nil {
			return nil, storageErr("GetEarned", err)
		}
		out[a.AchievementID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetEarned", err)
	}
	return out, nil
}

// MergeEarned inserts one achievement unless it is already present.
func (r *ProgressRepository) MergeEarned(ctx context.Context, userID string, a progression.EarnedAchievement) error {
	return mergeEarned(ctx, r.conn, userID, a)
}

// CommitProgress writes new achievements and the progress row in one transaction.
func (r *ProgressRepository) CommitProgress(ctx context.Context, p progression.UserProgress, expectedVersion int64, earned []progression.EarnedAchievement) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := saveProgress(ctx, tx, p, expectedVersion); err != nil {
			return err
		}
		for _, a := range earned {
			if err := mergeEarned(ctx, tx, p.UserID, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Statements shared by the plain and transactional paths
// ─────────────────────────────────────────────────────────────────────────────

func saveProgress(ctx context.Context, q Querier, p progression.UserProgress, expectedVersion int64) error {
	var (
		query string
		args  []any
	)
	if expectedVersion == 0 {
		query = `
			INSERT INTO user_progress (user_id, total_points, current_level, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO NOTHING
		`
		args = []any{p.UserID, p.TotalPoints, p.CurrentLevel, p.Version, p.CreatedAt, p.UpdatedAt}
	} else {
		query = `
			UPDATE user_progress SET
				total_points = $1,
				current_level = $2,
				version = $3,
				updated_at = $4
			WHERE user_id = $5 AND version = $6
		`
		args = []any{p.TotalPoints, p.CurrentLevel, p.Version, p.UpdatedAt, p.UserID, expectedVersion}
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return storageErr("SaveProgress", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProgressConflict
	}
	return nil
}

func mergeEarned(ctx context.Context, q Querier, userID string, a progression.EarnedAchievement) error {
	query := `
		INSERT INTO earned_achievements (user_id, achievement_id, name, description, point_reward, earned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`
	if _, err := q.Exec(ctx, query, userID, string(a.AchievementID), a.Name, a.Description, a.PointReward, a.EarnedAt); err != nil {
		return storageErr("MergeEarned", err)
	}
	return nil
}
