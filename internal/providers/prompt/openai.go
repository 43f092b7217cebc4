// Package prompt derives the two generation prompts (text-to-image and
// image-to-video) from a free-text product description plus reference images.
package prompt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"adforge/internal/domain"
)

const openAIDefaultTimeout = 60 * time.Second

const productSystemPrompt = `You are a professional marketing AI that creates stunning product advertisements.

Create hyper-realistic, high-resolution product showcase prompts featuring the product in the center.
Surround it with dynamic, visually appealing splashes or thematic props.
Bright, clean background, realistic shadows and reflections.
Add cinematic depth of field (bokeh) for a professional look.

Return ONLY valid JSON in EXACT format:
{
  "textToImage": "<detailed prompt for image generation>",
  "imageToVideo": "<detailed prompt for video generation>"
}
No extra text or explanation.`

const avatarSystemPrompt = `You are a professional marketing AI that creates stunning product advertisements.

Create hyper-realistic, high-resolution showcase prompts featuring the provided avatar naturally holding or presenting the product.
Keep the avatar's face and identity consistent with the second reference image.
Bright, clean background, realistic shadows and reflections.
Add cinematic depth of field (bokeh) for a professional look.

Return ONLY valid JSON in EXACT format:
{
  "textToImage": "<detailed prompt for image generation>",
  "imageToVideo": "<detailed prompt for video generation>"
}
No extra text or explanation.`

// SynthesisRequest carries the description and reference images. A non-empty
// Avatar switches the system instruction to the avatar-holding-product mode.
type SynthesisRequest struct {
	Description string
	Image       []byte
	ImageMIME   string
	Avatar      []byte
	AvatarMIME  string
}

// Synthesizer is the prompt-synthesis adapter contract.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*domain.AdPrompts, error)
}

// OpenAIOptions configures the OpenAI-backed synthesizer.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
}

// OpenAISynthesizer calls the chat-completions API with a strict JSON output
// contract. There is no retry at this layer; failures propagate to the caller.
type OpenAISynthesizer struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature,omitempty"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAISynthesizer(opts OpenAIOptions) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAISynthesizer{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
	}, nil
}

// Synthesize issues one model call and enforces the two-field JSON contract.
func (o *OpenAISynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*domain.AdPrompts, error) {
	payload := chatRequest{
		Model:          o.model,
		MaxTokens:      500,
		Temperature:    0.7,
		ResponseFormat: &chatFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPromptFor(req)},
			{Role: "user", Content: buildUserContent(req)},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrPromptSynthesis, err)
	}
	endpoint := o.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrPromptSynthesis, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPromptSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrPromptSynthesis, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrPromptSynthesis, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", domain.ErrPromptSynthesis)
	}

	return parsePrompts(out.Choices[0].Message.Content)
}

func systemPromptFor(req SynthesisRequest) string {
	if len(req.Avatar) > 0 {
		return avatarSystemPrompt
	}
	return productSystemPrompt
}

func buildUserContent(req SynthesisRequest) any {
	text := fmt.Sprintf("Product: %s\n\nPlease create professional marketing prompts for this product.", req.Description)
	if len(req.Image) == 0 {
		return text
	}
	parts := []chatContentPart{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &chatImageURL{URL: dataURI(req.Image, req.ImageMIME)}},
	}
	if len(req.Avatar) > 0 {
		parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: dataURI(req.Avatar, req.AvatarMIME)}})
	}
	return parts
}

func dataURI(data []byte, mime string) string {
	if mime == "" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

// parsePrompts strips any formatting wrapper the model adds, then enforces the
// two-field contract.
func parsePrompts(raw string) (*domain.AdPrompts, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrPromptSynthesis)
	}
	var prompts domain.AdPrompts
	if err := json.Unmarshal([]byte(cleaned), &prompts); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", domain.ErrPromptSynthesis, err)
	}
	if strings.TrimSpace(prompts.TextToImage) == "" || strings.TrimSpace(prompts.ImageToVideo) == "" {
		return nil, fmt.Errorf("%w: incomplete prompt structure", domain.ErrPromptSynthesis)
	}
	return &prompts, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var _ Synthesizer = (*OpenAISynthesizer)(nil)
