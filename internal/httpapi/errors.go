package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"kitascrape-engine/internal/domain"
)

type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// WriteDomainError maps err onto a status code and stable error code.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := Classify(err)
	WriteError(w, r, status, code, err.Error())
}

func Classify(err error) (int, string) {
	var execErr *domain.ExecutorError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrSessionActive):
		return http.StatusConflict, "session_active"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrConnectivity):
		return http.StatusServiceUnavailable, "executor_unreachable"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &execErr):
		return http.StatusBadGateway, "executor_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
