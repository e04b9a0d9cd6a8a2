package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// GoalRepository implements goal.Repository for PostgreSQL.
type GoalRepository struct {
	conn *Connection
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(conn *Connection) *GoalRepository {
	return &GoalRepository{conn: conn}
}

const goalColumns = `id, user_id, name, specific, measurable, achievable, relevant, time_bound,
	progress, status, created_at, updated_at`

// List returns the user's goals ordered by creation time.
func (r *GoalRepository) List(ctx context.Context, userID string) ([]*goal.Goal, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storageErr("ListGoals", err)
	}
	defer rows.Close()

	var out []*goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, storageErr("ListGoals", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListGoals", err)
	}
	return out, nil
}

// Get returns one goal.
func (r *GoalRepository) Get(ctx context.Context, userID, goalID string) (*goal.Goal, error) {
	g, err := scanGoal(r.conn.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = $1 AND id = $2`, userID, goalID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, storageErr("GetGoal", err)
	}
	return g, nil
}

// Create inserts a goal and reports whether it is the user's first.
func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal) (bool, error) {
	var count int
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO goals (`+goalColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, g.ID, g.UserID, g.Name, g.Specific, g.Measurable, g.Achievable, g.Relevant, g.TimeBound,
			g.Progress, string(g.Status), g.CreatedAt, g.UpdatedAt)
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT count(*) FROM goals WHERE user_id = $1`, g.UserID).Scan(&count)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return false, shared.NewDomainError("goal", "Create", shared.ErrAlreadyExists, "goal already exists")
		}
		return false, storageErr("CreateGoal", err)
	}
	return count == 1, nil
}

// Save overwrites a goal.
func (r *GoalRepository) Save(ctx context.Context, g *goal.Goal) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE goals SET
			name = $1, specific = $2, measurable = $3, achievable = $4, relevant = $5,
			time_bound = $6, progress = $7, status = $8, updated_at = $9
		WHERE user_id = $10 AND id = $11
	`, g.Name, g.Specific, g.Measurable, g.Achievable, g.Relevant,
		g.TimeBound, g.Progress, string(g.Status), g.UpdatedAt, g.UserID, g.ID)
	if err != nil {
		return storageErr("SaveGoal", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrGoalNotFound
	}
	return nil
}

// Delete removes a goal.
func (r *GoalRepository) Delete(ctx context.Context, userID, goalID string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM goals WHERE user_id = $1 AND id = $2`, userID, goalID)
	if err != nil {
		return storageErr("DeleteGoal", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrGoalNotFound
	}
	return nil
}

// CountCompleted returns how many goals are completed.
func (r *GoalRepository) CountCompleted(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.conn.QueryRow(ctx, `SELECT count(*) FROM goals WHERE user_id = $1 AND status = 'completed'`, userID).Scan(&n)
	if err != nil {
		return 0, storageErr("CountCompletedGoals", err)
	}
	return n, nil
}

func scanGoal(row pgx.Row) (*goal.Goal, error) {
	var (
		g      goal.Goal
		status string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Specific, &g.Measurable, &g.Achievable, &g.Relevant,
		&g.TimeBound, &g.Progress, &status, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.Status = goal.Status(status)
	return &g, nil
}
