package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"adforge/internal/domain"
	"adforge/internal/events"
	"adforge/internal/infra"
	"adforge/internal/infra/google"
	"adforge/internal/pipeline"
)

// AdService is the pipeline surface the handlers depend on.
type AdService interface {
	Submit(ctx context.Context, in pipeline.SubmitInput) (*pipeline.SubmitResult, error)
	GenerateVideo(ctx context.Context, in pipeline.VideoInput) (*pipeline.VideoResult, error)
}

// IdentityVerifier validates third-party ID tokens during sign-in.
type IdentityVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*google.Profile, error)
}

// App is the handler dependency container.
type App struct {
	Service   AdService
	Ads       domain.AdRepository
	Users     domain.UserRepository
	Hub       *events.Hub
	Verifier  IdentityVerifier
	JWTSecret string
	Logger    infra.Logger
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps the error taxonomy onto HTTP statuses and renders the structured
// failure envelope the front end expects.
func (a *App) fail(w http.ResponseWriter, err error, message string) {
	a.json(w, statusFor(err), errorResponse{
		Success: false,
		Message: message,
		Details: err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrMissingField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
