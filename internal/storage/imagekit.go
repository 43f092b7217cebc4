package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"adforge/internal/domain"
	"adforge/internal/retry"
)

const (
	imagekitDefaultBaseURL = "https://upload.imagekit.io/api/v1"
	imagekitUploadPath     = "/files/upload"

	uploadMaxAttempts = 3
)

// ImageKitOptions configures the ImageKit upload client.
type ImageKitOptions struct {
	PrivateKey string
	BaseURL    string
	HTTPClient *http.Client

	// Sleep overrides the backoff sleep, used by tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ImageKitClient uploads blobs to the ImageKit media library. Uploads are
// retried with exponential backoff (2s, 4s) before surfacing a storage error.
type ImageKitClient struct {
	privateKey string
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
}

type imagekitUploadResponse struct {
	URL    string `json:"url"`
	FileID string `json:"fileId"`
}

type imagekitErrorResponse struct {
	Message string `json:"message"`
}

// NewImageKitClient constructs the client. The private key is required.
func NewImageKitClient(opts ImageKitOptions) (*ImageKitClient, error) {
	if strings.TrimSpace(opts.PrivateKey) == "" {
		return nil, fmt.Errorf("imagekit private key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = imagekitDefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ImageKitClient{
		privateKey: strings.TrimSpace(opts.PrivateKey),
		baseURL:    baseURL,
		httpClient: client,
		policy: retry.Policy{
			MaxAttempts: uploadMaxAttempts,
			Backoff:     retry.Exponential(time.Second),
			Sleep:       opts.Sleep,
		},
	}, nil
}

// Upload sends the blob as a base64 data URI and returns the durable URL plus
// the opaque file identifier.
func (c *ImageKitClient) Upload(ctx context.Context, data []byte, mimeType, fileName, folder string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrStorageUpload)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	var result *UploadResult
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		res, err := c.upload(ctx, data, mimeType, fileName, folder)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: after %d attempts: %v", domain.ErrStorageUpload, uploadMaxAttempts, err)
	}
	return result, nil
}

func (c *ImageKitClient) upload(ctx context.Context, data []byte, mimeType, fileName, folder string) (*UploadResult, error) {
	var body strings.Builder
	form := multipart.NewWriter(&body)

	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	fields := map[string]string{
		"file":        dataURI,
		"fileName":    fileName,
		"folder":      folder,
		"isPublished": "true",
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", key, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	endpoint := c.baseURL + imagekitUploadPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body.String()))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	// ImageKit authenticates uploads with the private key as basic-auth user.
	req.SetBasicAuth(c.privateKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr imagekitErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("upload status %d: %s", resp.StatusCode, apiErr.Message)
		}
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out imagekitUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if out.URL == "" {
		return nil, fmt.Errorf("upload response missing url")
	}
	return &UploadResult{URL: out.URL, FileID: out.FileID}, nil
}

var _ Uploader = (*ImageKitClient)(nil)
