package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"geminichat/internal/providers"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-pro"
)

var (
	ErrEmptyAPIKey   = errors.New("gemini api key is empty")
	ErrEmptyResponse = providers.ErrEmptyResponse
)

// APIError is returned for any non-2xx reply from the endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.StatusCode)
	}
	if e.Status == "" {
		return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini status %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.ChatResponse{}, ErrEmptyAPIKey
	}
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.cfg.Model
	}

	body, err := json.Marshal(NewUserRequest(req.UserPrompt))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	endpointURL, err := c.endpointURL(model)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	resp, err := c.callOnce(ctx, endpointURL, body)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	text, ok := resp.FirstText()
	if !ok {
		return providers.ChatResponse{}, ErrEmptyResponse
	}
	return providers.ChatResponse{
		Text:         text,
		FinishReason: resp.Candidates[0].FinishReason,
		Usage: providers.Usage{
			PromptTokens:    resp.UsageMetadata.PromptTokenCount,
			CandidateTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:     resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte) (GenerateContentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("build request: %w", c.redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("request failed: %w", c.redact(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return GenerateContentResponse{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return GenerateContentResponse{}, parseAPIError(resp.StatusCode, respBody)
	}

	var out GenerateContentResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return GenerateContentResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *Client) endpointURL(model string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.cfg.BaseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/models/" + model + ":generateContent"
	q := u.Query()
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips the api key from the URL that net/http embeds in its errors.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && c.cfg.APIKey != "" {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.cfg.APIKey), "<redacted>")
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.cfg.APIKey, "<redacted>")
	}
	return err
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Status = parsed.Error.Status
		apiErr.Message = parsed.Error.Message
		return apiErr
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) <= 512 {
		apiErr.Message = trimmed
	}
	return apiErr
}
