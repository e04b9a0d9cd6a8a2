package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/selfdev-app/selfdev/internal/application/command"
	"github.com/selfdev-app/selfdev/internal/domain/coach"
	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

const maxBodyBytes = 1 << 20

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Progress.Levels())
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Progress.GetProgress(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Progress.ListAchievements(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type awardPointsRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) handleAwardPoints(w http.ResponseWriter, r *http.Request) {
	var req awardPointsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Points.Award(r.Context(), command.AwardPointsCommand{
		UserID: userID(r),
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// HABIT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type habitRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Collections.ListHabits(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Habits.Create(r.Context(), command.CreateHabitCommand{UserID: userID(r), Name: req.Name})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRenameHabit(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if !s.decode(w, r, &req) {
		return
	}
	hb, err := s.deps.Habits.Rename(r.Context(), command.RenameHabitCommand{
		UserID:  userID(r),
		HabitID: chi.URLParam(r, "habitID"),
		Name:    req.Name,
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, hb)
}

func (s *Server) handleToggleHabit(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Habits.Toggle(r.Context(), command.ToggleHabitCommand{
		UserID:  userID(r),
		HabitID: chi.URLParam(r, "habitID"),
	})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Habits.Delete(r.Context(), command.DeleteHabitCommand{
		UserID:  userID(r),
		HabitID: chi.URLParam(r, "habitID"),
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// GOAL HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type goalProgressRequest struct {
	Progress int `json:"progress"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Collections.ListGoals(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req command.GoalFields
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Goals.Create(r.Context(), command.CreateGoalCommand{UserID: userID(r), GoalFields: req})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleEditGoal(w http.ResponseWriter, r *http.Request) {
	var req command.GoalFields
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.deps.Goals.Edit(r.Context(), command.EditGoalCommand{
		UserID:     userID(r),
		GoalID:     chi.URLParam(r, "goalID"),
		GoalFields: req,
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleUpdateGoalProgress(w http.ResponseWriter, r *http.Request) {
	var req goalProgressRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Goals.UpdateProgress(r.Context(), command.UpdateGoalProgressCommand{
		UserID:   userID(r),
		GoalID:   chi.URLParam(r, "goalID"),
		Progress: req.Progress,
	})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Goals.Delete(r.Context(), command.DeleteGoalCommand{
		UserID: userID(r),
		GoalID: chi.URLParam(r, "goalID"),
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type planRequest struct {
	Name        string   `json:"name"`
	ExerciseIDs []string `json:"exercise_ids"`
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	groups, err := s.deps.Collections.ListExercises(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Collections.ListPlans(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Plans.Create(r.Context(), command.CreatePlanCommand{
		UserID:      userID(r),
		Name:        req.Name,
		ExerciseIDs: req.ExerciseIDs,
	})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleEditPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.deps.Plans.Edit(r.Context(), command.EditPlanCommand{
		UserID:      userID(r),
		PlanID:      chi.URLParam(r, "planID"),
		Name:        req.Name,
		ExerciseIDs: req.ExerciseIDs,
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCompletePlan(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Plans.Complete(r.Context(), command.CompletePlanCommand{
		UserID: userID(r),
		PlanID: chi.URLParam(r, "planID"),
	})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Plans.Delete(r.Context(), command.DeletePlanCommand{
		UserID: userID(r),
		PlanID: chi.URLParam(r, "planID"),
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// COACH HANDLER
// ══════════════════════════════════════════════════════════════════════════════

type coachRequest struct {
	History    coach.Conversation  `json:"history"`
	Context    coach.PromptContext `json:"context,omitempty"`
	Reflection coach.Reflection    `json:"reflection"`
}

func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	var req coachRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Coach.Send(r.Context(), command.SendCoachMessageCommand{
		UserID:     userID(r),
		History:    req.History,
		Context:    req.Context,
		Reflection: req.Reflection,
	})
	if err != nil {
		s.writeError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func userID(r *http.Request) string {
	return chi.URLParam(r, "userID")
}

// decode reads a JSON body. It writes a 400 and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

// errorStatus maps domain error kinds to HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsConflict(err), shared.IsAlreadyExists(err):
		return http.StatusConflict, "conflict"
	case shared.IsStorage(err):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case shared.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream_timeout"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusBadGateway, "upstream_rate_limited"
	case shared.IsAPI(err):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError reports err. data, when set, carries the state after the
// failed call so the client can show what was kept.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, data any) {
	status, code := errorStatus(err)

	apiErr := APIError{Code: code, Message: err.Error()}
	if shared.IsStorage(err) {
		kept := false
		apiErr.DataKept = &kept
	}
	if shared.IsAPI(err) {
		// Progression for the turn was recorded even though the provider failed.
		kept := true
		apiErr.DataKept = &kept
	}

	log := s.logger.With(logger.UserID(userID(r)), logger.String("path", r.URL.Path), logger.Err(err))
	switch {
	case status >= 500 || shared.IsNotFound(err):
		log.Error("request failed", logger.Int("status", status))
	default:
		log.Debug("request rejected", logger.Int("status", status))
	}

	if isNilData(data) {
		data = nil
	}
	writeAPIError(w, status, apiErr, data)
}

func isNilData(data any) bool {
	switch v := data.(type) {
	case nil:
		return true
	case *command.HabitResult:
		return v == nil
	case *command.GoalResult:
		return v == nil
	case *command.PlanResult:
		return v == nil
	case *command.CoachResult:
		return v == nil
	}
	return false
}
