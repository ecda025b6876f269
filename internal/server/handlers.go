package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloudops-agent/internal/agent/audit"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/validation"
	"cloudops-agent/internal/models"
)

var (
	chatSchema = validation.MustCompile(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"message"},
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
		},
	})

	confirmSchema = validation.MustCompile(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"operation", "confirmed"},
		"properties": map[string]interface{}{
			"operation":  map[string]interface{}{"type": "string"},
			"confirmed":  map[string]interface{}{"type": "boolean"},
			"parameters": map[string]interface{}{"type": []interface{}{"object", "null"}},
			"token":      map[string]interface{}{"type": "string"},
		},
	})

	objectBody = validation.MustCompile(map[string]interface{}{"type": "object"})
)

type chatRequest struct {
	Message string `json:"message"`
}

type interactionsResponse struct {
	Interactions []models.InteractionRecord `json:"interactions"`
	Count        int                        `json:"count"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, chatSchema, &req); err != nil {
		s.errors.WriteError(w, r, err)
		return
	}

	resp, err := s.deps.Chat.Handle(r.Context(), req.Message)
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmationRequest
	if err := decodeBody(r, confirmSchema, &req); err != nil {
		s.errors.WriteError(w, r, err)
		return
	}

	result, err := s.deps.Gate.Confirm(r.Context(), req)
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// direct serves the operation endpoints that bypass chat and confirmation.
// When fromQuery is set, parameters may also be given as query values,
// which override body fields of the same name.
func (s *Server) direct(operation models.Intent, fromQuery bool) http.HandlerFunc {
	op := string(operation)
	return func(w http.ResponseWriter, r *http.Request) {
		params := models.EntitySet{}
		if r.ContentLength != 0 {
			if err := decodeBody(r, objectBody, &params); err != nil {
				s.errors.WriteError(w, r, err)
				return
			}
		}
		if fromQuery {
			for key, values := range r.URL.Query() {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}

		entry, ok := s.deps.Catalog.Lookup(op)
		if !ok {
			s.errors.WriteError(w, r, apperrors.NewUnknownOperationError(op))
			return
		}
		if err := entry.ValidateParameters(params); err != nil {
			s.errors.WriteError(w, r, apperrors.NewValidationError(
				fmt.Sprintf("Invalid parameters for %s: %s", op, err.Error()), err.Error()))
			return
		}

		details, err := s.deps.Dispatcher.Run(r.Context(), op, params)
		if err != nil {
			s.errors.WriteError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.deps.Dispatcher.Usage(r.Context())
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage.AsMap())
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}
	records, err := s.deps.Audit.Recent(r.Context(), limit)
	if err != nil {
		s.errors.WriteError(w, r, apperrors.NewPersistenceError(err))
		return
	}
	writeJSON(w, http.StatusOK, interactionsResponse{Interactions: records, Count: len(records)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")
	if text == "" {
		s.errors.WriteError(w, r, apperrors.NewInvalidRequestError("query parameter q is required"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.errors.WriteError(w, r, err)
		return
	}

	records, err := s.deps.Audit.Search(r.Context(), text, limit)
	switch {
	case errors.Is(err, audit.ErrSearchUnavailable):
		writeJSON(w, http.StatusNotImplemented, apperrors.ErrorResponse{
			Detail: "Interaction search is not configured",
			Code:   "SEARCH_UNAVAILABLE",
		})
		return
	case err != nil:
		s.errors.WriteError(w, r, apperrors.NewPersistenceError(err))
		return
	}
	writeJSON(w, http.StatusOK, interactionsResponse{Interactions: records, Count: len(records)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failures := map[string]string{}
	for _, check := range s.deps.Checks {
		if err := check.Ping(ctx); err != nil {
			failures[check.Name] = err.Error()
		}
	}

	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failures": failures})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"checks": failures,
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// decodeBody validates the raw body against schema before decoding into out.
func decodeBody(r *http.Request, schema *validation.Schema, out interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("read body: %s", err.Error()))
	}
	result, err := schema.ValidateBytes(body)
	if err != nil {
		return apperrors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid {
		return apperrors.NewInvalidRequestError(result.Summary())
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewInvalidRequestError(err.Error())
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return audit.DefaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidRequestError(fmt.Sprintf("invalid limit %q", raw))
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
