// Package video wraps the external image-to-video model. Generation is
// triggered independently of the image pipeline, after an ad has completed.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"adforge/internal/domain"
)

const (
	replicateDefaultBaseURL = "https://api.replicate.com/v1"
	replicateDefaultModel   = "wan-video/wan-2.2-i2v-fast"

	replicatePollInterval = 2 * time.Second
)

// Generator is the video-synthesis adapter contract: a completed image URL
// plus a prompt in, a fetchable video URL out.
type Generator interface {
	Generate(ctx context.Context, imageURL, prompt string) (string, error)
}

// ReplicateOptions configures the Replicate generator.
type ReplicateOptions struct {
	APIToken   string
	Model      string
	BaseURL    string
	HTTPClient *http.Client

	// PollInterval overrides the prediction polling cadence, used by tests.
	PollInterval time.Duration
}

// ReplicateGenerator creates a prediction and polls it to a terminal state.
// There is no retry at this layer; failures propagate to the caller.
type ReplicateGenerator struct {
	apiToken     string
	model        string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

type predictionInput struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

func NewReplicateGenerator(opts ReplicateOptions) (*ReplicateGenerator, error) {
	if strings.TrimSpace(opts.APIToken) == "" {
		return nil, errors.New("replicate api token is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = replicateDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = replicateDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = replicatePollInterval
	}
	return &ReplicateGenerator{
		apiToken:     strings.TrimSpace(opts.APIToken),
		model:        model,
		baseURL:      baseURL,
		client:       client,
		pollInterval: interval,
	}, nil
}

// Generate creates the prediction, waits for a terminal state and returns the
// output video URL.
func (r *ReplicateGenerator) Generate(ctx context.Context, imageURL, prompt string) (string, error) {
	pred, err := r.createPrediction(ctx, imageURL, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrVideoSynthesis, err)
	}

	for !terminal(pred.Status) {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrVideoSynthesis, ctx.Err())
		case <-time.After(r.pollInterval):
		}
		pred, err = r.getPrediction(ctx, pred.ID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrVideoSynthesis, err)
		}
	}

	if pred.Status != "succeeded" {
		msg := pred.Error
		if msg == "" {
			msg = "prediction " + pred.Status
		}
		return "", fmt.Errorf("%w: %s", domain.ErrVideoSynthesis, msg)
	}

	url, err := outputURL(pred.Output)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrVideoSynthesis, err)
	}
	return url, nil
}

func (r *ReplicateGenerator) createPrediction(ctx context.Context, imageURL, prompt string) (*prediction, error) {
	body, err := json.Marshal(predictionRequest{Input: predictionInput{Image: imageURL, Prompt: prompt}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s/predictions", r.baseURL, r.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiToken)
	// Block server-side until the prediction finishes when possible.
	req.Header.Set("Prefer", "wait")

	return r.doPrediction(req)
}

func (r *ReplicateGenerator) getPrediction(ctx context.Context, id string) (*prediction, error) {
	endpoint := fmt.Sprintf("%s/predictions/%s", r.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiToken)
	return r.doPrediction(req)
}

func (r *ReplicateGenerator) doPrediction(req *http.Request) (*prediction, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke replicate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("replicate status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &pred, nil
}

func terminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// outputURL handles both output shapes the API returns: a single URL string or
// a list of URLs.
func outputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("prediction has no output")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", errors.New("prediction output has no url")
}

var _ Generator = (*ReplicateGenerator)(nil)
