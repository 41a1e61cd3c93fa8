package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"library-api/internal/api/handler/dto"
	"library-api/internal/api/middleware"
	"library-api/internal/config"
	"library-api/internal/pkg/apperrors"
)

type AuthHandler struct {
	cfg    config.AuthConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthHandler(cfg config.AuthConfig, l *slog.Logger) *AuthHandler {
	return &AuthHandler{
		cfg:    cfg,
		logger: l.With("component", "AuthHandler"),
		now:    time.Now,
	}
}

// GenerateBearerToken issues a signed JWT for the given username.
//
// @Summary Generate a JWT bearer token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body dto.TokenRequest true "username"
// @Success 200 {object} dto.TokenResponse
// @Failure 400 {object} dto.ApiErrors "Invalid request parameters"
// @Failure 500 {object} dto.ApiErrors "Internal server error"
// @Router /auth/token [post]
func (h *AuthHandler) GenerateBearerToken(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		respondError(w, r, apperrors.NewValidationError("username", "username must not be blank"))
		return
	}

	token, expiresAt, err := middleware.IssueToken(h.cfg.JWTSecret, username, h.cfg.TokenTTL, h.now())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to issue token", slog.String("username", username), slog.Any("error", err))
		respondError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Issued bearer token", slog.String("username", username), slog.Time("expires_at", expiresAt))
	respondJSON(w, http.StatusOK, dto.TokenResponse{Token: "Bearer " + token, ExpiresAt: expiresAt.Unix()})
}
