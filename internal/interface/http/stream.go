package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/selfdev-app/selfdev/internal/domain/habit"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

const streamKeepAlive = 25 * time.Second

// handleStreamHabits pushes the user's habit collection as server-sent
// events, once on connect and again after every change.
func (s *Server) handleStreamHabits(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming is not supported")
		return
	}

	// Only the latest snapshot matters, so a slow client skips intermediate ones.
	updates := make(chan []*habit.Habit, 1)
	failures := make(chan error, 1)
	onChange := func(list []*habit.Habit) {
		for {
			select {
			case updates <- list:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}
	onError := func(err error) {
		select {
		case failures <- err:
		default:
		}
	}

	uid := userID(r)
	stop, err := s.deps.Watcher.Watch(r.Context(), uid, onChange, onError)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case list := <-updates:
			if err := writeEvent(w, "habits", list); err != nil {
				s.logger.Warn("habit stream write failed", logger.UserID(uid), logger.Err(err))
				return
			}

		case err := <-failures:
			s.logger.Warn("habit stream delivery failed", logger.UserID(uid), logger.Err(err))
			if err := writeEvent(w, "error", APIError{Code: "stream_error", Message: err.Error()}); err != nil {
				return
			}

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
