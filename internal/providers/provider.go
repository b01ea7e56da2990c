package providers

import (
	"context"
	"errors"
)

// ErrEmptyResponse means the model answered without any candidate text.
var ErrEmptyResponse = errors.New("response contains no candidate text")

type ChatRequest struct {
	Model      string
	UserPrompt string
}

type Usage struct {
	PromptTokens    int
	CandidateTokens int
	TotalTokens     int
}

type ChatResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
