package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/simmsb/synapse-extension/internal/audit"
	"github.com/simmsb/synapse-extension/internal/entity"
	"github.com/simmsb/synapse-extension/internal/light"
	"github.com/simmsb/synapse-extension/internal/platform"
)

// LightResponse is the JSON form of a registered light.
type LightResponse struct {
	EntityID   string         `json:"entity_id"`
	UniqueID   string         `json:"unique_id"`
	EntryID    string         `json:"entry_id"`
	Name       string         `json:"name"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// lightResponse renders an entry. State is "on" or "off" from the
// is_on attribute.
func lightResponse(e *entity.Entry) LightResponse {
	attrs := e.Entity.Attributes()
	state := "off"
	if on, _ := attrs[light.KeyIsOn].(bool); on {
		state = "on"
	}
	return LightResponse{
		EntityID:   e.EntityID,
		UniqueID:   e.UniqueID,
		EntryID:    e.EntryID,
		Name:       e.Entity.Name(),
		State:      state,
		Attributes: attrs,
	}
}

// handleListLights returns every registered light.
func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	lights := s.lightResponses()
	writeJSON(w, http.StatusOK, map[string]any{
		"lights": lights,
		"count":  len(lights),
	})
}

// handleGetLight returns one light.
func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupLight(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, lightResponse(e))
}

// handleTurnOn forwards the JSON body as the turn_on parameters.
func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, light.ActionTurnOn)
}

// handleTurnOff forwards the JSON body as the turn_off parameters.
func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, light.ActionTurnOff)
}

// handleAction invokes the action and answers 202: the app does not
// acknowledge actions, so acceptance by the transport is all we know.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, action string) {
	e, ok := s.lookupLight(w, r)
	if !ok {
		return
	}

	toggle, ok := e.Entity.(platform.ToggleEntity)
	if !ok {
		writeError(w, http.StatusConflict, ErrCodeConflict, "entity does not support "+action)
		return
	}

	params, err := decodeParams(r.Body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if action == light.ActionTurnOn {
		err = toggle.TurnOn(r.Context(), params)
	} else {
		err = toggle.TurnOff(r.Context(), params)
	}
	if err != nil {
		s.logger.Warn("light action failed",
			"entity_id", e.EntityID,
			"action", action,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		s.recordAction(r, e, action, params, audit.OutcomeFailed)
		writeError(w, http.StatusBadGateway, ErrCodeDispatchFailed, "action could not be delivered")
		return
	}

	s.recordAction(r, e, action, params, audit.OutcomeAccepted)
	s.hub.Broadcast(ChannelLightAction, map[string]any{
		"entity_id": e.EntityID,
		"action":    action,
		"params":    params,
		"subject":   subjectOf(r),
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"entity_id": e.EntityID,
		"action":    action,
	})
}

func (s *Server) lookupLight(w http.ResponseWriter, r *http.Request) (*entity.Entry, bool) {
	id := chi.URLParam(r, "entity_id")
	e, ok := s.entities.Get(id)
	if !ok || e.Domain != light.Domain {
		writeNotFound(w, "light not found: "+id)
		return nil, false
	}
	return e, true
}

// decodeParams reads an optional JSON object. An empty body means no params.
func decodeParams(body io.Reader) (map[string]any, error) {
	var params map[string]any
	err := json.NewDecoder(body).Decode(&params)
	switch {
	case errors.Is(err, io.EOF):
		return nil, nil
	case err != nil:
		return nil, errors.New("body must be a JSON object")
	}
	return params, nil
}
