// Package image wraps the external image-generation model. This is the single
// most failure-prone call in the pipeline, so it is the only adapter that
// carries its own backoff policy.
package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"adforge/internal/domain"
	"adforge/internal/retry"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-2.5-flash-image-preview"

	generateMaxAttempts = 3
	generateBackoffStep = 2 * time.Second
)

// GenerateRequest carries the prompt plus one or two conditioning images.
type GenerateRequest struct {
	Prompt     string
	Image      []byte
	ImageMIME  string
	Avatar     []byte
	AvatarMIME string
}

// Generator is the image-synthesis adapter contract: prompt + reference
// images in, generated image bytes out.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]byte, error)
}

// GeminiOptions configures the Gemini generator.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client

	// Sleep overrides the backoff sleep, used by tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// GeminiGenerator calls generateContent with inline image data and extracts
// the first inline image payload from the first candidate.
type GeminiGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

func NewGeminiGenerator(opts GeminiOptions) (*GeminiGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = geminiDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &GeminiGenerator{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
		policy: retry.Policy{
			MaxAttempts: generateMaxAttempts,
			Backoff:     retry.Linear(generateBackoffStep),
			Sleep:       opts.Sleep,
		},
	}, nil
}

// Generate runs up to 3 attempts with linear backoff (2s, 4s) and wraps the
// last underlying error on exhaustion.
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) ([]byte, error) {
	var generated []byte
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		data, err := g.generate(ctx, req)
		if err != nil {
			return err
		}
		generated = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: after %d attempts: %v", domain.ErrImageSynthesis, generateMaxAttempts, err)
	}
	return generated, nil
}

func (g *GeminiGenerator) generate(ctx context.Context, req GenerateRequest) ([]byte, error) {
	parts := []geminiPart{
		{Text: req.Prompt},
		{InlineData: &geminiInlineData{
			MimeType: orDefault(req.ImageMIME, "image/jpeg"),
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}},
	}
	if len(req.Avatar) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: orDefault(req.AvatarMIME, "image/jpeg"),
			Data:     base64.StdEncoding.EncodeToString(req.Avatar),
		}})
	}

	payload := geminiGenerateRequest{
		Contents:         []geminiContent{{Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return nil, errors.New("no candidates returned")
	}
	for _, part := range out.Candidates[0].Content.Parts {
		if part.InlineData == nil || part.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline data: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("no image data in candidate")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

var _ Generator = (*GeminiGenerator)(nil)
