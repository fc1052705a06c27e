package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/outpost-core/internal/automation"
)

// handleListRules returns all automation rules.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListRules(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleGetRule returns a single automation rule by ID.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates an automation rule. The registry refreshes its
// cache on success, so the rule is live on the next reading.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule automation.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.rules.CreateRule(r.Context(), &rule); err != nil {
		switch {
		case errors.Is(err, automation.ErrRuleExists):
			writeConflict(w, "a rule with this id already exists")
		case isRuleValidationError(err):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to create rule")
		}
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateRule partially updates an automation rule. The cooldown stamp
// survives the edit; only deletion clears it.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to get rule")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.rules.UpdateRule(r.Context(), existing); err != nil {
		if isRuleValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update rule")
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteRule removes an automation rule.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.rules.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to delete rule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// isRuleValidationError checks whether an error is a rule validation error.
// ValidateRule wraps field-specific sentinels, so all of them are checked.
func isRuleValidationError(err error) bool {
	return errors.Is(err, automation.ErrInvalidRule) ||
		errors.Is(err, automation.ErrInvalidName) ||
		errors.Is(err, automation.ErrInvalidTrigger) ||
		errors.Is(err, automation.ErrInvalidOperator) ||
		errors.Is(err, automation.ErrInvalidAction) ||
		errors.Is(err, automation.ErrInvalidActionKind) ||
		errors.Is(err, automation.ErrInvalidCooldown)
}
