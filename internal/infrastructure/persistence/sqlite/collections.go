package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/selfdev-app/selfdev/internal/domain/goal"
	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/internal/domain/training"
)

// createAndCount inserts a row and returns whether it is the user's only row
// in table. Both statements run in one transaction.
func (d *DB) createAndCount(ctx context.Context, table, userID, insert string, args ...any) (bool, error) {
	var count int
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT count(*) FROM `+table+` WHERE user_id = ?`, userID).Scan(&count)
	})
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HABITS
// ══════════════════════════════════════════════════════════════════════════════

// HabitRepository implements habit.Repository.
type HabitRepository struct {
	db *DB
}

// NewHabitRepository creates a new HabitRepository.
func NewHabitRepository(db *DB) *HabitRepository {
	return &HabitRepository{db: db}
}

const habitColumns = `id, user_id, name, streak, last_completed_date, created_at, updated_at`

func (r *HabitRepository) List(ctx context.Context, userID string) ([]*habit.Habit, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storageErr("ListHabits", err)
	}
	defer rows.Close()

	var out []*habit.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, storageErr("ListHabits", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListHabits", err)
	}
	return out, nil
}

func (r *HabitRepository) Get(ctx context.Context, userID, habitID string) (*habit.Habit, error) {
	h, err := scanHabit(r.db.db.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE user_id = ? AND id = ?`, userID, habitID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, storageErr("GetHabit", err)
	}
	return h, nil
}

func (r *HabitRepository) Create(ctx context.Context, h *habit.Habit) (bool, error) {
	first, err := r.db.createAndCount(ctx, "habits", h.UserID,
		`INSERT INTO habits (`+habitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.Name, h.Streak, formatDate(h.LastCompletedDate), toMillis(h.CreatedAt), toMillis(h.UpdatedAt))
	if err != nil {
		if isConstraint(err) {
			return false, shared.NewDomainError("habit", "Create", shared.ErrAlreadyExists, "habit already exists")
		}
		return false, storageErr("CreateHabit", err)
	}
	return first, nil
}

func (r *HabitRepository) Save(ctx context.Context, h *habit.Habit) error {
	res, err := r.db.db.ExecContext(ctx, `
		UPDATE habits SET name = ?, streak = ?, last_completed_date = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`, h.Name, h.Streak, formatDate(h.LastCompletedDate), toMillis(h.UpdatedAt), h.UserID, h.ID)
	if err != nil {
		return storageErr("SaveHabit", err)
	}
	return requireAffected(res, shared.ErrHabitNotFound)
}

func (r *HabitRepository) Delete(ctx context.Context, userID, habitID string) error {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM habits WHERE user_id = ? AND id = ?`, userID, habitID)
	if err != nil {
		return storageErr("DeleteHabit", err)
	}
	return requireAffected(res, shared.ErrHabitNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (*habit.Habit, error) {
	var (
		h                habit.Habit
		last             sql.NullString
		created, updated int64
	)
	if err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Streak, &last, &created, &updated); err != nil {
		return nil, err
	}
	date, err := parseDate(last)
	if err != nil {
		return nil, err
	}
	h.LastCompletedDate = date
	h.CreatedAt, h.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &h, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOALS
// ══════════════════════════════════════════════════════════════════════════════

// GoalRepository implements goal.Repository.
type GoalRepository struct {
	db *DB
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(db *DB) *GoalRepository {
	return &GoalRepository{db: db}
}

const goalColumns = `id, user_id, name, specific, measurable, achievable, relevant, time_bound,
	progress, status, created_at, updated_at`

func (r *GoalRepository) List(ctx context.Context, userID string) ([]*goal.Goal, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY created_at, id`, userID)
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

func (r *GoalRepository) Get(ctx context.Context, userID, goalID string) (*goal.Goal, error) {
	g, err := scanGoal(r.db.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND id = ?`, userID, goalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrGoalNotFound
		}
		return nil, storageErr("GetGoal", err)
	}
	return g, nil
}

func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal) (bool, error) {
	first, err := r.db.createAndCount(ctx, "goals", g.UserID,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Specific, g.Measurable, g.Achievable, g.Relevant, formatDate(g.TimeBound),
		g.Progress, string(g.Status), toMillis(g.CreatedAt), toMillis(g.UpdatedAt))
	if err != nil {
		if isConstraint(err) {
			return false, shared.NewDomainError("goal", "Create", shared.ErrAlreadyExists, "goal already exists")
		}
		return false, storageErr("CreateGoal", err)
	}
	return first, nil
}

func (r *GoalRepository) Save(ctx context.Context, g *goal.Goal) error {
	res, err := r.db.db.ExecContext(ctx, `
		UPDATE goals SET name = ?, specific = ?, measurable = ?, achievable = ?, relevant = ?,
			time_bound = ?, progress = ?, status = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`, g.Name, g.Specific, g.Measurable, g.Achievable, g.Relevant,
		formatDate(g.TimeBound), g.Progress, string(g.Status), toMillis(g.UpdatedAt), g.UserID, g.ID)
	if err != nil {
		return storageErr("SaveGoal", err)
	}
	return requireAffected(res, shared.ErrGoalNotFound)
}

func (r *GoalRepository) Delete(ctx context.Context, userID, goalID string) error {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ? AND id = ?`, userID, goalID)
	if err != nil {
		return storageErr("DeleteGoal", err)
	}
	return requireAffected(res, shared.ErrGoalNotFound)
}

func (r *GoalRepository) CountCompleted(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.db.QueryRowContext(ctx, `SELECT count(*) FROM goals WHERE user_id = ? AND status = ?`,
		userID, string(goal.StatusCompleted)).Scan(&n)
	if err != nil {
		return 0, storageErr("CountCompletedGoals", err)
	}
	return n, nil
}

func scanGoal(row rowScanner) (*goal.Goal, error) {
	var (
		g                goal.Goal
		status           string
		timeBound        sql.NullString
		created, updated int64
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Specific, &g.Measurable, &g.Achievable, &g.Relevant,
		&timeBound, &g.Progress, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	if g.TimeBound, err = parseDate(timeBound); err != nil {
		return nil, err
	}
	g.Status = goal.Status(status)
	g.CreatedAt, g.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &g, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING
// ══════════════════════════════════════════════════════════════════════════════

// ExerciseCatalog implements training.ExerciseCatalog.
type ExerciseCatalog struct {
	db *DB
}

// NewExerciseCatalog creates a new ExerciseCatalog.
func NewExerciseCatalog(db *DB) *ExerciseCatalog {
	return &ExerciseCatalog{db: db}
}

// ListExercises returns the catalogue, seeding the defaults into an empty table.
func (c *ExerciseCatalog) ListExercises(ctx context.Context) ([]training.Exercise, error) {
	list, err := c.list(ctx)
	if err != nil || len(list) > 0 {
		return list, err
	}

	err = c.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, ex := range training.DefaultExercises {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO exercises (id, name, category, description) VALUES (?, ?, ?, ?)
				ON CONFLICT (id) DO NOTHING
			`, ex.ID, ex.Name, string(ex.Category), ex.Description)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("SeedExercises", err)
	}
	return c.list(ctx)
}

func (c *ExerciseCatalog) list(ctx context.Context) ([]training.Exercise, error) {
	rows, err := c.db.db.QueryContext(ctx, `SELECT id, name, category, description FROM exercises ORDER BY id`)
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

// PlanRepository implements training.PlanRepository. Exercise ids are
// stored as a JSON array.
type PlanRepository struct {
	db *DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, user_id, name, exercise_ids, times_completed, last_completed_at, created_at, updated_at`

func (r *PlanRepository) List(ctx context.Context, userID string) ([]*training.Plan, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+planColumns+` FROM training_plans WHERE user_id = ? ORDER BY created_at, id`, userID)
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

func (r *PlanRepository) Get(ctx context.Context, userID, planID string) (*training.Plan, error) {
	p, err := scanPlan(r.db.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM training_plans WHERE user_id = ? AND id = ?`, userID, planID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrPlanNotFound
		}
		return nil, storageErr("GetPlan", err)
	}
	return p, nil
}

func (r *PlanRepository) Create(ctx context.Context, p *training.Plan) (bool, error) {
	ids, err := json.Marshal(p.ExerciseIDs)
	if err != nil {
		return false, storageErr("CreatePlan", err)
	}
	first, err := r.db.createAndCount(ctx, "training_plans", p.UserID,
		`INSERT INTO training_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, string(ids), p.TimesCompleted, nullMillis(p.LastCompletedAt),
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		if isConstraint(err) {
			return false, shared.NewDomainError("training", "CreatePlan", shared.ErrAlreadyExists, "plan already exists")
		}
		return false, storageErr("CreatePlan", err)
	}
	return first, nil
}

func (r *PlanRepository) Save(ctx context.Context, p *training.Plan) error {
	ids, err := json.Marshal(p.ExerciseIDs)
	if err != nil {
		return storageErr("SavePlan", err)
	}
	res, err := r.db.db.ExecContext(ctx, `
		UPDATE training_plans SET name = ?, exercise_ids = ?, times_completed = ?, last_completed_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`, p.Name, string(ids), p.TimesCompleted, nullMillis(p.LastCompletedAt), toMillis(p.UpdatedAt), p.UserID, p.ID)
	if err != nil {
		return storageErr("SavePlan", err)
	}
	return requireAffected(res, shared.ErrPlanNotFound)
}

func (r *PlanRepository) Delete(ctx context.Context, userID, planID string) error {
	res, err := r.db.db.ExecContext(ctx, `DELETE FROM training_plans WHERE user_id = ? AND id = ?`, userID, planID)
	if err != nil {
		return storageErr("DeletePlan", err)
	}
	return requireAffected(res, shared.ErrPlanNotFound)
}

func scanPlan(row rowScanner) (*training.Plan, error) {
	var (
		p                training.Plan
		ids              string
		last             sql.NullInt64
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &ids, &p.TimesCompleted, &last, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &p.ExerciseIDs); err != nil {
		return nil, err
	}
	if last.Valid {
		t := fromMillis(last.Int64)
		p.LastCompletedAt = &t
	}
	p.CreatedAt, p.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &p, nil
}
