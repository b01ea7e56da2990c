package genaisdk

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"geminichat/internal/providers"
)

const defaultModel = "gemini-pro"

var ErrEmptyResponse = providers.ErrEmptyResponse

type Config struct {
	// BaseURL may carry a trailing API version segment, e.g. https://host/v1beta.
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client sends single-turn prompts through the official genai SDK.
type Client struct {
	cli   *genai.Client
	model string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("genai api key is empty")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if base, version := splitVersion(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base, APIVersion: version}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{cli: cli, model: model}, nil
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}
	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}
	resp, err := c.cli.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0] == nil {
		return providers.ChatResponse{}, ErrEmptyResponse
	}

	first := resp.Candidates[0]
	out := providers.ChatResponse{
		Text:         first.Content.Parts[0].Text,
		FinishReason: string(first.FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = providers.Usage{
			PromptTokens:    int(u.PromptTokenCount),
			CandidateTokens: int(u.CandidatesTokenCount),
			TotalTokens:     int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func splitVersion(base string) (string, string) {
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	if base == "" {
		return "", ""
	}
	idx := strings.LastIndex(base, "/")
	if idx > 0 {
		last := base[idx+1:]
		if strings.HasPrefix(last, "v1") {
			return base[:idx+1], last
		}
	}
	return base + "/", ""
}
