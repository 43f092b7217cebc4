package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"adforge/internal/domain"
	"adforge/internal/events"
	"adforge/internal/infra/google"
	"adforge/internal/middleware"
	"adforge/internal/pipeline"
)

type fakeService struct {
	submitIn  pipeline.SubmitInput
	submitOut *pipeline.SubmitResult
	submitErr error

	videoIn  pipeline.VideoInput
	videoOut *pipeline.VideoResult
	videoErr error
}

func (f *fakeService) Submit(ctx context.Context, in pipeline.SubmitInput) (*pipeline.SubmitResult, error) {
	f.submitIn = in
	return f.submitOut, f.submitErr
}

func (f *fakeService) GenerateVideo(ctx context.Context, in pipeline.VideoInput) (*pipeline.VideoResult, error) {
	f.videoIn = in
	return f.videoOut, f.videoErr
}

type fakeAds struct {
	ads map[string]*domain.Ad
}

func (f *fakeAds) Create(ctx context.Context, ad *domain.Ad) error { return nil }
func (f *fakeAds) GetByID(ctx context.Context, id string) (*domain.Ad, error) {
	if ad, ok := f.ads[id]; ok {
		return ad, nil
	}
	return nil, domain.ErrNotFound
}
func (f *fakeAds) ListByEmail(ctx context.Context, email string) ([]domain.Ad, error) {
	var out []domain.Ad
	for _, ad := range f.ads {
		if ad.OwnerEmail == email {
			out = append(out, *ad)
		}
	}
	return out, nil
}
func (f *fakeAds) MarkCompleted(ctx context.Context, id string, res domain.AdResult) error { return nil }
func (f *fakeAds) MarkFailed(ctx context.Context, id, message string) error                { return nil }
func (f *fakeAds) SetVideoStatus(ctx context.Context, id string, status domain.VideoStatus, message string) error {
	return nil
}
func (f *fakeAds) CompleteVideo(ctx context.Context, id, videoURL string) error { return nil }

type fakeUsers struct {
	users map[string]*domain.User
}

// UpsertByUID mirrors the SQL contract: first insert seeds credits, later
// sign-ins refresh the profile and leave the balance alone.
func (f *fakeUsers) UpsertByUID(ctx context.Context, user *domain.User) (*domain.User, error) {
	if existing, ok := f.users[user.UID]; ok {
		existing.Email = user.Email
		existing.Name = user.Name
		existing.Picture = user.Picture
		return existing, nil
	}
	f.users[user.UID] = user
	return user, nil
}
func (f *fakeUsers) GetByUID(ctx context.Context, uid string) (*domain.User, error) {
	if u, ok := f.users[uid]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}
func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (f *fakeUsers) Debit(ctx context.Context, email string, amount int) (int, error) {
	return 0, domain.ErrNotFound
}

type fakeVerifier struct {
	profile *google.Profile
	err     error
}

func (f *fakeVerifier) VerifyIDToken(ctx context.Context, raw string) (*google.Profile, error) {
	return f.profile, f.err
}

func newTestApp(svc *fakeService) *App {
	return &App{
		Service:   svc,
		Ads:       &fakeAds{ads: map[string]*domain.Ad{}},
		Users:     &fakeUsers{users: map[string]*domain.User{}},
		Hub:       events.NewHub(),
		Verifier:  &fakeVerifier{},
		JWTSecret: "test-secret",
		Logger:    zerolog.Nop(),
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(fileData); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestAdsSubmitSuccessEnvelope(t *testing.T) {
	svc := &fakeService{submitOut: &pipeline.SubmitResult{
		AdID:              "ad-1",
		OriginalImageURL:  "https://cdn/orig.jpg",
		GeneratedImageURL: "https://cdn/gen.jpg",
		Prompts:           domain.AdPrompts{TextToImage: "t2i", ImageToVideo: "i2v"},
		CreditsRemaining:  5,
	}}
	app := newTestApp(svc)

	body, contentType := multipartBody(t, map[string]string{
		"user_email":  "alice@example.com",
		"description": "ceramic mug",
	}, "file", "mug.jpg", []byte("img-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/v1/ads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.AdsSubmit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data.AdID != "ad-1" || resp.Data.CreditsRemaining != 5 {
		t.Fatalf("response = %+v", resp)
	}
	if svc.submitIn.OwnerEmail != "alice@example.com" || string(svc.submitIn.ImageData) != "img-bytes" {
		t.Fatalf("service input = %+v", svc.submitIn)
	}
}

func TestAdsSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: description required", domain.ErrValidation), http.StatusBadRequest},
		{"credits", fmt.Errorf("%w: need 5", domain.ErrInsufficientCredits), http.StatusForbidden},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"synthesis", fmt.Errorf("%w: overloaded", domain.ErrImageSynthesis), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(&fakeService{submitErr: tc.err})

			body, contentType := multipartBody(t, map[string]string{
				"user_email":  "alice@example.com",
				"description": "mug",
			}, "", "", nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/ads", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			app.AdsSubmit(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Success {
				t.Fatal("error envelope has success=true")
			}
		})
	}
}

func TestAdsGenerateVideoPassesURLParam(t *testing.T) {
	svc := &fakeService{videoOut: &pipeline.VideoResult{VideoURL: "https://cdn/v.mp4", CreditsRemaining: 10}}
	app := newTestApp(svc)

	r := chi.NewRouter()
	r.Post("/v1/ads/{ad_id}/video", app.AdsGenerateVideo)

	payload := `{"image_url":"https://cdn/gen.jpg","video_prompt":"pan","uid":"uid-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ads/ad-42/video", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if svc.videoIn.AdID != "ad-42" || svc.videoIn.OwnerUID != "uid-1" {
		t.Fatalf("service input = %+v", svc.videoIn)
	}
	var resp videoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL != "https://cdn/v.mp4" || resp.CreditsRemaining != 10 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestAdsGenerateVideoRejectsBadJSON(t *testing.T) {
	app := newTestApp(&fakeService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/ads/x/video", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	app.AdsGenerateVideo(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdsGetNotFound(t *testing.T) {
	app := newTestApp(&fakeService{})
	r := chi.NewRouter()
	r.Get("/v1/ads/{ad_id}", app.AdsGet)

	req := httptest.NewRequest(http.MethodGet, "/v1/ads/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAdsListRequiresEmail(t *testing.T) {
	app := newTestApp(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/ads", nil)
	rec := httptest.NewRecorder()
	app.AdsList(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAuthGoogleIssuesSession(t *testing.T) {
	app := newTestApp(&fakeService{})
	app.Verifier = &fakeVerifier{profile: &google.Profile{
		Sub:   "uid-9",
		Email: "bob@example.com",
		Name:  "Bob",
	}}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/google", strings.NewReader(`{"id_token":"tok"}`))
	rec := httptest.NewRecorder()
	app.AuthGoogle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := middleware.VerifySession("test-secret", resp.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Subject != "uid-9" || claims.Email != "bob@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
	if resp.User.Credits != domain.SignupBonusCredits {
		t.Fatalf("credits = %d, want signup bonus", resp.User.Credits)
	}
}

func TestAuthGoogleSecondSignInKeepsSpentCredits(t *testing.T) {
	app := newTestApp(&fakeService{})
	app.Verifier = &fakeVerifier{profile: &google.Profile{
		Sub:   "uid-9",
		Email: "bob@example.com",
	}}

	signIn := func() loginResponse {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/google", strings.NewReader(`{"id_token":"tok"}`))
		rec := httptest.NewRecorder()
		app.AuthGoogle(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var resp loginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp
	}

	first := signIn()
	if first.User.Credits != domain.SignupBonusCredits {
		t.Fatalf("first sign-in credits = %d, want signup bonus", first.User.Credits)
	}

	// The account spends credits between sessions; signing in again must not
	// re-seed the bonus.
	app.Users.(*fakeUsers).users["uid-9"].Credits = 3

	second := signIn()
	if second.User.Credits != 3 {
		t.Fatalf("second sign-in credits = %d, want 3", second.User.Credits)
	}
}

func TestAuthGoogleRejectsInvalidToken(t *testing.T) {
	app := newTestApp(&fakeService{})
	app.Verifier = &fakeVerifier{err: errors.New("bad signature")}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/google", strings.NewReader(`{"id_token":"tok"}`))
	rec := httptest.NewRecorder()
	app.AuthGoogle(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthGoogleRequiresToken(t *testing.T) {
	app := newTestApp(&fakeService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/google", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	app.AuthGoogle(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdsEventsStreamsFrames(t *testing.T) {
	app := newTestApp(&fakeService{})

	srv := httptest.NewServer(http.HandlerFunc(app.AdsEvents))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?email=alice%40example.com", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}

	// Publish repeatedly until the handler's subscription picks a frame up;
	// the first publishes may race the subscription registration.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				app.Hub.PublishAd(domain.Ad{ID: "ad-1", OwnerEmail: "alice@example.com", Status: domain.AdStatusPending})
			}
		}
	}()

	buf := make([]byte, 1024)
	n, readErr := resp.Body.Read(buf)
	if readErr != nil && n == 0 {
		t.Fatalf("read stream: %v", readErr)
	}
	chunk := string(buf[:n])
	if !strings.Contains(chunk, "event: ad") || !strings.Contains(chunk, `"id":"ad-1"`) {
		t.Fatalf("unexpected frame: %q", chunk)
	}
}
