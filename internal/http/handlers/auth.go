package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"adforge/internal/domain"
	"adforge/internal/middleware"
)

const sessionTTL = 7 * 24 * time.Hour

func decodeJSON(r *http.Request, v any) error {
	defer io.Copy(io.Discard, r.Body)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

type loginResponse struct {
	Success bool     `json:"success"`
	Token   string   `json:"token"`
	User    userData `json:"user"`
}

type userData struct {
	UID     string `json:"uid"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Credits int    `json:"credits"`
}

// AuthGoogle exchanges a Google ID token for an application session. First
// sign-in provisions the user with the signup credit bonus.
func (a *App) AuthGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.IDToken) == "" {
		a.json(w, http.StatusBadRequest, errorResponse{Success: false, Message: "id_token is required"})
		return
	}

	profile, err := a.Verifier.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		a.json(w, http.StatusUnauthorized, errorResponse{Success: false, Message: "invalid id token", Details: err.Error()})
		return
	}

	user, err := a.Users.UpsertByUID(r.Context(), &domain.User{
		UID:     profile.Sub,
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
		Credits: domain.SignupBonusCredits,
	})
	if err != nil {
		a.fail(w, err, "Failed to provision user")
		return
	}

	token, err := middleware.SignSession(a.JWTSecret, user.UID, user.Email, sessionTTL)
	if err != nil {
		a.fail(w, err, "Failed to issue session")
		return
	}

	a.json(w, http.StatusOK, loginResponse{
		Success: true,
		Token:   token,
		User: userData{
			UID:     user.UID,
			Email:   user.Email,
			Name:    user.Name,
			Picture: user.Picture,
			Credits: user.Credits,
		},
	})
}

// Me returns the authenticated caller's profile and credit balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserUIDFromContext(r.Context())
	if uid == "" {
		a.json(w, http.StatusUnauthorized, errorResponse{Success: false, Message: "not authenticated"})
		return
	}
	user, err := a.Users.GetByUID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusNotFound, errorResponse{Success: false, Message: "user not found"})
			return
		}
		a.fail(w, err, "Failed to load user")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"user": userData{
			UID:     user.UID,
			Email:   user.Email,
			Name:    user.Name,
			Picture: user.Picture,
			Credits: user.Credits,
		},
	})
}
