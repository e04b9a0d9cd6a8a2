package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXERCISE CATALOGUE
// ══════════════════════════════════════════════════════════════════════════════

// ExerciseCatalog implements training.ExerciseCatalog.
type ExerciseCatalog struct {
	conn *Connection
}

// NewExerciseCatalog creates a new ExerciseCatalog.
func NewExerciseCatalog(conn *Connection) *ExerciseCatalog {
	return &ExerciseCatalog{conn: conn}
}

// ListExercises returns the catalogue, seeding the defaults into an empty table.
func (c *ExerciseCatalog) ListExercises(ctx context.Context) ([]training.Exercise, error) {
	list, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		return list, nil
	}

	err = c.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ex := range training.DefaultExercises {
			batch.Queue(`
				INSERT INTO exercises (id, name, category, description)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO NOTHING
			`, ex.ID, ex.Name, string(ex.Category), ex.Description)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, storageErr("SeedExercises", err)
	}
	return c.list(ctx)
}

func (c *ExerciseCatalog) list(ctx context.Context) ([]training.Exercise, error) {
	rows, err := c.conn.Query(ctx, `SELECT id, name, category, description FROM exercises ORDER BY id`)
	if err != nil {
		return nil, storageErr("ListExercises", err)
	}
	defer rows.Close()

	var out []training.Exercise
	for rows.Next() {
		var (
			ex       training.Exercise
			category string
		)
		if err := rows.Scan(&ex.ID, &ex.Name, &category, &ex.Description); err != nil {
			return nil, storageErr("ListExercises", err)
		}
		ex.Category = training.Category(category)
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListExercises", err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING PLANS
// ══════════════════════════════════════════════════════════════════════════════

// PlanRepository implements training.PlanRepository.
type PlanRepository struct {
	conn *Connection
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(conn *Connection) *PlanRepository {
	return &PlanRepository{conn: conn}
}

const planColumns = `id, user_id, name, exercise_ids, times_completed, last_completed_at, created_at, updated_at`

// List returns the user's plans ordered by creation time.
func (r *PlanRepository) List(ctx context.Context, userID string) ([]*training.Plan, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+planColumns+` FROM training_plans WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storageErr("ListPlans", err)
	}
	defer rows.Close()

	var out []*training.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, storageErr("ListPlans", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListPlans", err)
	}
	return out, nil
}

// Get returns one plan.
func (r *PlanRepository) Get(ctx context.Context, userID, planID string) (*training.Plan, error) {
	p, err := scanPlan(r.conn.QueryRow(ctx, `SELECT `+planColumns+` FROM training_plans WHERE user_id = $1 AND id = $2`, userID, planID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPlanNotFound
		}
		return nil, storageErr("GetPlan", err)
	}
	return p, nil
}

// Create inserts a plan and reports whether it is the user's first.
func (r *PlanRepository) Create(ctx context.Context, p *training.Plan) (bool, error) {
	var count int
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO training_plans (`+planColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.ID, p.UserID, p.Name, p.ExerciseIDs, p.TimesCompleted, p.LastCompletedAt, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT count(*) FROM training_plans WHERE user_id = $1`, p.UserID).Scan(&count)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return false, shared.NewDomainError("training", "CreatePlan", shared.ErrAlreadyExists, "plan already exists")
		}
		return false, storageErr("CreatePlan", err)
	}
	return count == 1, nil
}

// Save overwrites a plan.
func (r *PlanRepository) Save(ctx context.Context, p *training.Plan) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE training_plans SET
			name = $1, exercise_ids = $2, times_completed = $3, last_completed_at = $4, updated_at = $5
		WHERE user_id = $6 AND id = $7
	`, p.Name, p.ExerciseIDs, p.TimesCompleted, p.LastCompletedAt, p.UpdatedAt, p.UserID, p.ID)
	if err != nil {
		return storageErr("SavePlan", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrPlanNotFound
	}
	return nil
}

// Delete removes a plan.
func (r *PlanRepository) Delete(ctx context.Context, userID, planID string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM training_plans WHERE user_id = $1 AND id = $2`, userID, planID)
	if err != nil {
		return storageErr("DeletePlan", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrPlanNotFound
	}
	return nil
}

func scanPlan(row pgx.Row) (*training.Plan, error) {
	var p training.Plan
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.ExerciseIDs, &p.TimesCompleted, &p.LastCompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
