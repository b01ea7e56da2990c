package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"geminichat/internal/providers"
	"geminichat/internal/providers/gemini"
	"geminichat/internal/providers/genaisdk"
)

const (
	KindREST  = "rest"
	KindGenAI = "genai"
)

type BuildOptions struct {
	Kind       string
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func Build(ctx context.Context, opts BuildOptions) (providers.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case KindREST, "gemini", "":
		return gemini.New(gemini.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			HTTPClient: opts.HTTPClient,
		}), nil

	case KindGenAI, "genai_sdk", "sdk":
		return genaisdk.New(ctx, genaisdk.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			HTTPClient: opts.HTTPClient,
		})

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
