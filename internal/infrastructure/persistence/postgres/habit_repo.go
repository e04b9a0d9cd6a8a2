package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

// HabitRepository implements habit.Repository for PostgreSQL.
type HabitRepository struct {
	conn *Connection
}

// NewHabitRepository creates a new HabitRepository.
func NewHabitRepository(conn *Connection) *HabitRepository {
	return &HabitRepository{conn: conn}
}

const habitColumns = `id, user_id, name, streak, last_completed_date, created_at, updated_at`

// List returns the user's habits ordered by creation time.
func (r *HabitRepository) List(ctx context.Context, userID string) ([]*habit.Habit, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+habitColumns+` FROM habits WHERE user_id = $1 ORDER BY created_at, id`, userID)
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

// Get returns one habit.
func (r *HabitRepository) Get(ctx context.Context, userID, habitID string) (*habit.Habit, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE user_id = $1 AND id = $2`, userID, habitID)
	h, err := scanHabit(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, storageErr("GetHabit", err)
	}
	return h, nil
}

// Create inserts the habit and counts the collection in the same transaction.
func (r *HabitRepository) Create(ctx context.Context, h *habit.Habit) (bool, error) {
	var count int
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO habits (`+habitColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, h.ID, h.UserID, h.Name, h.Streak, h.LastCompletedDate, h.CreatedAt, h.UpdatedAt)
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `SELECT count(*) FROM habits WHERE user_id = $1`, h.UserID).Scan(&count)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return false, shared.NewDomainError("habit", "Create", shared.ErrAlreadyExists, "habit already exists")
		}
		return false, storageErr("CreateHabit", err)
	}
	return count == 1, nil
}

// Save overwrites name, streak and last completion date.
func (r *HabitRepository) Save(ctx context.Context, h *habit.Habit) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE habits SET
			name = $1,
			streak = $2,
			last_completed_date = $3,
			updated_at = $4
		WHERE user_id = $5 AND id = $6
	`, h.Name, h.Streak, h.LastCompletedDate, h.UpdatedAt, h.UserID, h.ID)
	if err != nil {
		return storageErr("SaveHabit", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrHabitNotFound
	}
	return nil
}

// Delete removes a habit.
func (r *HabitRepository) Delete(ctx context.Context, userID, habitID string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM habits WHERE user_id = $1 AND id = $2`, userID, habitID)
	if err != nil {
		return storageErr("DeleteHabit", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrHabitNotFound
	}
	return nil
}

func scanHabit(row pgx.Row) (*habit.Habit, error) {
	var h habit.Habit
	if err := row.Scan(&h.ID, &h.UserID, &h.Name, &h.Streak, &h.LastCompletedDate, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	if h.LastCompletedDate != nil {
		d := h.LastCompletedDate.UTC()
		h.LastCompletedDate = &d
	}
	return &h, nil
}
