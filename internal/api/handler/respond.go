package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"library-api/internal/api/handler/dto"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/query"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return apperrors.NewValidationError("", "request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrValidation, &apperrors.ValidationError{Message: "malformed request body", Cause: err})
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"errors":["Internal server error"]}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, messages := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(r.Context(), "Unhandled internal error", slog.Any("error", err))
	}
	respondJSON(w, status, dto.NewApiErrors(messages...))
}

func errorStatus(err error) (int, []string) {
	var validationErrors apperrors.ValidationErrors
	var validationError *apperrors.ValidationError

	switch {
	case errors.As(err, &validationErrors):
		return http.StatusBadRequest, validationErrors.Messages()
	case errors.As(err, &validationError):
		return http.StatusBadRequest, []string{validationError.Message}
	case apperrors.IsBusiness(err):
		msg, _ := apperrors.BusinessMessage(err)
		return http.StatusBadRequest, []string{msg}
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, []string{"Resource not found."}
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest, []string{err.Error()}
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrAlreadyExists):
		return http.StatusConflict, []string{"The resource is busy, please retry."}
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, []string{"Unauthorized"}
	default:
		return http.StatusInternalServerError, []string{"An unexpected error occurred."}
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError(name, fmt.Sprintf("%s must be a positive number", name))
	}
	return id, nil
}

// pageRequest reads the zero-based page and size query parameters.
func pageRequest(r *http.Request) (query.PageRequest, error) {
	var errs apperrors.ValidationErrors
	index := intParam(r, "page", 0, &errs)
	size := intParam(r, "size", query.DefaultPageSize, &errs)
	if err := errs.ErrOrNil(); err != nil {
		return query.PageRequest{}, err
	}
	return query.NewPageRequest(index, size), nil
}

func intParam(r *http.Request, name string, fallback int, errs *apperrors.ValidationErrors) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		errs.Add(name, name+" must be a non-negative integer")
		return fallback
	}
	return v
}
