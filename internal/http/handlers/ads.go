package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"adforge/internal/domain"
	"adforge/internal/pipeline"
)

const maxUploadBytes = 32 << 20

type submitResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    submitData `json:"data"`
}

type submitData struct {
	AdID              string           `json:"adId"`
	OriginalImageURL  string           `json:"originalImageUrl"`
	GeneratedImageURL string           `json:"generatedImageUrl"`
	Prompts           domain.AdPrompts `json:"prompts"`
	CreditsRemaining  int              `json:"creditsRemaining"`
}

// AdsSubmit accepts the multipart generation request and runs the image
// pipeline synchronously, returning the durable URLs and remaining credits.
func (a *App) AdsSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.json(w, http.StatusBadRequest, errorResponse{Success: false, Message: "invalid form payload", Details: err.Error()})
		return
	}

	in := pipeline.SubmitInput{
		OwnerEmail:    strings.TrimSpace(r.FormValue("user_email")),
		Description:   strings.TrimSpace(r.FormValue("description")),
		RequestedSize: strings.TrimSpace(r.FormValue("size")),
		ImageURL:      strings.TrimSpace(r.FormValue("image_url")),
		AvatarURL:     strings.TrimSpace(r.FormValue("avatar_url")),
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			a.json(w, http.StatusBadRequest, errorResponse{Success: false, Message: "failed to read uploaded file", Details: readErr.Error()})
			return
		}
		in.ImageData = data
		in.ImageMIME = header.Header.Get("Content-Type")
	}

	result, err := a.Service.Submit(r.Context(), in)
	if err != nil {
		a.fail(w, err, "Failed to generate product ad")
		return
	}

	a.json(w, http.StatusOK, submitResponse{
		Success: true,
		Message: "Product ad generated successfully",
		Data: submitData{
			AdID:              result.AdID,
			OriginalImageURL:  result.OriginalImageURL,
			GeneratedImageURL: result.GeneratedImageURL,
			Prompts:           result.Prompts,
			CreditsRemaining:  result.CreditsRemaining,
		},
	})
}

type videoRequest struct {
	ImageURL    string `json:"image_url"`
	VideoPrompt string `json:"video_prompt"`
	UID         string `json:"uid"`
}

type videoResponse struct {
	Success          bool   `json:"success"`
	URL              string `json:"url"`
	CreditsRemaining int    `json:"creditsRemaining"`
}

// AdsGenerateVideo triggers the post-hoc image-to-video sub-pipeline for a
// completed ad.
func (a *App) AdsGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decodeJSON(r, &req); err != nil {
		a.json(w, http.StatusBadRequest, errorResponse{Success: false, Message: "invalid payload", Details: err.Error()})
		return
	}

	result, err := a.Service.GenerateVideo(r.Context(), pipeline.VideoInput{
		AdID:        chi.URLParam(r, "ad_id"),
		ImageURL:    req.ImageURL,
		VideoPrompt: req.VideoPrompt,
		OwnerUID:    req.UID,
	})
	if err != nil {
		a.fail(w, err, "Failed to generate product video")
		return
	}

	a.json(w, http.StatusOK, videoResponse{
		Success:          true,
		URL:              result.VideoURL,
		CreditsRemaining: result.CreditsRemaining,
	})
}

// AdsList returns the owner's ads, newest first.
func (a *App) AdsList(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		a.json(w, http.StatusBadRequest, errorResponse{Success: false, Message: "email is required"})
		return
	}
	ads, err := a.Ads.ListByEmail(r.Context(), email)
	if err != nil {
		a.fail(w, err, "Failed to list ads")
		return
	}
	items := make([]map[string]any, 0, len(ads))
	for i := range ads {
		items = append(items, adJSON(&ads[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// AdsGet returns one ad by id.
func (a *App) AdsGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ad_id")
	if id == "" {
		a.json(w, http.StatusBadRequest, errorResponse{Success: false, Message: "ad_id is required"})
		return
	}
	ad, err := a.Ads.GetByID(r.Context(), id)
	if err != nil {
		a.fail(w, err, "Failed to load ad")
		return
	}
	a.json(w, http.StatusOK, adJSON(ad))
}

func adJSON(ad *domain.Ad) map[string]any {
	out := map[string]any{
		"id":            ad.ID,
		"email":         ad.OwnerEmail,
		"status":        ad.Status,
		"videoStatus":   ad.VideoStatus,
		"description":   ad.Description,
		"requestedSize": ad.RequestedSize,
		"createdAt":     ad.CreatedAt.Format(time.RFC3339),
		"updatedAt":     ad.UpdatedAt.Format(time.RFC3339),
	}
	if ad.OriginalImageURL != "" {
		out["originalImageUrl"] = ad.OriginalImageURL
	}
	if ad.GeneratedImageURL != "" {
		out["generatedImageUrl"] = ad.GeneratedImageURL
	}
	if ad.ImagePrompt != "" {
		out["imagePrompt"] = ad.ImagePrompt
	}
	if ad.VideoPrompt != "" {
		out["videoPrompt"] = ad.VideoPrompt
	}
	if ad.VideoURL != "" {
		out["videoUrl"] = ad.VideoURL
	}
	if ad.ErrorMessage != "" {
		out["error"] = ad.ErrorMessage
	}
	if ad.CompletedAt != nil {
		out["completedAt"] = ad.CompletedAt.Format(time.RFC3339)
	}
	return out
}
