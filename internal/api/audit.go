package api

import (
	"net/http"
	"strconv"

	"github.com/simmsb/synapse-extension/internal/audit"
	"github.com/simmsb/synapse-extension/internal/entity"
)

// recordAction writes an action log entry. Failures are logged and
// never change the response.
func (s *Server) recordAction(r *http.Request, e *entity.Entry, action string, params map[string]any, outcome string) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:   action,
		EntityID: e.EntityID,
		UniqueID: e.UniqueID,
		Source:   audit.SourceAPI,
		Outcome:  outcome,
		Params:   params,
		Subject:  subjectOf(r),
	}

	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Error("recording light action",
			"entity_id", e.EntityID,
			"action", action,
			"error", err,
		)
	}
}

// subjectOf returns the authenticated caller, or "".
func subjectOf(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}

// handleListAudit returns recorded actions, newest first.
//
// Query parameters: action, entity_id, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "action log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		EntityID: q.Get("entity_id"),
	}

	var ok bool
	if filter.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing action log", "error", err)
		writeInternalError(w, "failed to list action log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
