package api

import (
	"net/http"

	"github.com/nerrad567/motorbank-core/internal/audit"
)

// handleListAudit returns paginated audit entries with optional filters.
//
// Query parameters:
//   - source: api, mqtt or ws
//   - outcome: accepted, ignored, rejected or failed
//   - motor: 1-based motor number
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Source:  q.Get("source"),
		Outcome: q.Get("outcome"),
	}

	var err error
	if filter.Motor, err = parseOptionalInt(q.Get("motor")); err != nil {
		writeBadRequest(w, "invalid motor")
		return
	}
	if filter.Limit, err = parseOptionalInt(q.Get("limit")); err != nil {
		writeBadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = parseOptionalInt(q.Get("offset")); err != nil {
		writeBadRequest(w, "invalid offset")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
