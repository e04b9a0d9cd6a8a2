package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/selfdev-app/selfdev/internal/domain/progression"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// ProgressRepository implements progression.ProgressRepository and
// progression.AtomicCommitter.
type ProgressRepository struct {
	db *DB
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) GetProgress(ctx context.Context, userID string) (progression.UserProgress, error) {
	var (
		p                progression.UserProgress
		created, updated int64
	)
	err := r.db.db.QueryRowContext(ctx, `
		SELECT user_id, total_points, current_level, version, created_at, updated_at
		FROM user_progress WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.TotalPoints, &p.CurrentLevel, &p.Version, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progression.UserProgress{}, shared.NotFound("progression", "GetProgress", "progress", userID)
		}
		return progression.UserProgress{}, storageErr("GetProgress", err)
	}
	p.CreatedAt, p.UpdatedAt = fromMillis(created), fromMillis(updated)
	return p, nil
}

func (r *ProgressRepository) SaveProgress(ctx context.Context, p progression.UserProgress, expectedVersion int64) error {
	return saveProgress(ctx, r.db.db, p, expectedVersion)
}

func (r *ProgressRepository) GetEarned(ctx context.Context, userID string) (map[progression.AchievementID]progression.EarnedAchievement, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT achievement_id, name, description, point_reward, earned_at
		FROM earned_achievements WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, storageErr("GetEarned", err)
	}
	defer rows.Close()

	out := make(map[progression.AchievementID]progression.EarnedAchievement)
	for rows.Next() {
		var (
			a  progression.EarnedAchievement
			id string
			at int64
		)
		if err := rows.Scan(&id, &a.Name, &a.Description, &a.PointReward, &at); err != nil {
			return nil, storageErr("GetEarned", err)
		}
		a.AchievementID = progression.AchievementID(id)
		a.EarnedAt = fromMillis(at)
		out[a.AchievementID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetEarned", err)
	}
	return out, nil
}

func (r *ProgressRepository) MergeEarned(ctx context.Context, userID string, a progression.EarnedAchievement) error {
	return mergeEarned(ctx, r.db.db, userID, a)
}

// CommitProgress writes achievements and the progress row in one transaction.
func (r *ProgressRepository) CommitProgress(ctx context.Context, p progression.UserProgress, expectedVersion int64, earned []progression.EarnedAchievement) error {
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
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
	if err != nil && !shared.IsConflict(err) && !shared.IsStorage(err) {
		return storageErr("CommitProgress", err)
	}
	return err
}

func saveProgress(ctx context.Context, q querier, p progression.UserProgress, expectedVersion int64) error {
	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = q.ExecContext(ctx, `
			INSERT INTO user_progress (user_id, total_points, current_level, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO NOTHING
		`, p.UserID, p.TotalPoints, p.CurrentLevel, p.Version, toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	} else {
		res, err = q.ExecContext(ctx, `
			UPDATE user_progress
			SET total_points = ?, current_level = ?, version = ?, updated_at = ?
			WHERE user_id = ? AND version = ?
		`, p.TotalPoints, p.CurrentLevel, p.Version, toMillis(p.UpdatedAt), p.UserID, expectedVersion)
	}
	if err != nil {
		return storageErr("SaveProgress", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("SaveProgress", err)
	}
	if n == 0 {
		return shared.ErrProgressConflict
	}
	return nil
}

func mergeEarned(ctx context.Context, q querier, userID string, a progression.EarnedAchievement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO earned_achievements (user_id, achievement_id, name, description, point_reward, earned_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, userID, string(a.AchievementID), a.Name, a.Description, a.PointReward, toMillis(a.EarnedAt))
	if err != nil {
		return storageErr("MergeEarned", err)
	}
	return nil
}
