package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/motorbank-core/internal/audit"
	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/motor"
)

// commandRequest is the body of POST /commands.
type commandRequest struct {
	Command string `json:"command"`
}

// handleListMotors returns every motor's status. Unnamed motors are hidden
// unless ?all=true.
func (s *Server) handleListMotors(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"

	statuses := s.driver.Statuses()
	motors := make([]driver.Status, 0, len(statuses))
	for _, st := range statuses {
		if all || st.Visible {
			motors = append(motors, st)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"motors": motors,
		"count":  len(motors),
	})
}

func (s *Server) handleGetMotor(w http.ResponseWriter, r *http.Request) {
	number, ok := parseMotorNumber(w, r)
	if !ok {
		return
	}

	status, err := s.driver.Status(number)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleMotorAction runs open, close or stop on one motor.
func (s *Server) handleMotorAction(w http.ResponseWriter, r *http.Request) {
	number, ok := parseMotorNumber(w, r)
	if !ok {
		return
	}

	res, err := s.driver.ExecuteAction(r.Context(), audit.SourceAPI, number, chi.URLParam(r, "action"))
	s.writeResult(w, res, err)
}

// handleCommand runs a raw command string such as "Open3".
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	res, err := s.driver.Execute(r.Context(), audit.SourceAPI, req.Command)
	s.writeResult(w, res, err)
}

// writeResult answers 202 for an accepted command (confirmation arrives
// later), 200 when the motor's guard ignored it.
func (s *Server) writeResult(w http.ResponseWriter, res driver.Result, err error) {
	if err != nil {
		writeDriverError(w, err)
		return
	}
	if res.Accepted {
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.Poll(r.Context(), audit.SourceAPI); err != nil {
		writeDriverError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "polling"})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Summary())
}

// handleListMotorEvents returns stored events for one motor, newest first.
//
// Query parameters:
//   - limit: max results (default 50, max 500)
func (s *Server) handleListMotorEvents(w http.ResponseWriter, r *http.Request) {
	number, ok := parseMotorNumber(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "event history not configured")
		return
	}

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, "invalid limit")
		return
	}

	events, err := s.history.ListEvents(r.Context(), number, limit)
	if err != nil {
		if errors.Is(err, motor.ErrIndexOutOfRange) {
			writeNotFound(w, err.Error())
			return
		}
		s.logger.Error("failed to list motor events", "motor", number, "error", err)
		writeInternalError(w, "failed to list motor events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"motor":  number,
		"events": events,
		"count":  len(events),
	})
}

// parseMotorNumber reads {number} and writes 400 or 404 when it is not a
// motor.
func parseMotorNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeBadRequest(w, "motor number must be an integer")
		return 0, false
	}
	if _, err := motor.IndexFromNumber(number); err != nil {
		writeNotFound(w, err.Error())
		return 0, false
	}
	return number, true
}

func parseOptionalInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
