package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geminichat/internal/providers/gemini"
	"geminichat/internal/providers/genaisdk"
)

func TestBuildREST(t *testing.T) {
	p, err := Build(context.Background(), BuildOptions{Kind: "rest", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &gemini.Client{}, p)
}

func TestBuildGenAI(t *testing.T) {
	p, err := Build(context.Background(), BuildOptions{Kind: "genai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &genaisdk.Client{}, p)
}

func TestBuildUnknownKind(t *testing.T) {
	_, err := Build(context.Background(), BuildOptions{Kind: "openai", APIKey: "k"})
	require.EqualError(t, err, `unsupported provider kind "openai"`)
}
