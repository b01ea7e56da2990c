package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"geminichat/internal/metrics"
	"geminichat/internal/providers"
	"geminichat/internal/providers/gemini"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	prompts []string
	chat    func(ctx context.Context, prompt string) (providers.ChatResponse, error)
}

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	f.prompts = append(f.prompts, req.UserPrompt)
	return f.chat(ctx, req.UserPrompt)
}

func reply(text string) func(context.Context, string) (providers.ChatResponse, error) {
	return func(context.Context, string) (providers.ChatResponse, error) {
		return providers.ChatResponse{Text: text}, nil
	}
}

type countingIndicator struct {
	starts, stops int
	active        bool
}

func (c *countingIndicator) Start() { c.starts++; c.active = true }
func (c *countingIndicator) Stop()  { c.stops++; c.active = false }

type harness struct {
	loop      *Loop
	out       *bytes.Buffer
	logs      *bytes.Buffer
	indicator *countingIndicator
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T, p providers.Provider, in io.Reader, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		out:       &bytes.Buffer{},
		logs:      &bytes.Buffer{},
		indicator: &countingIndicator{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	h.loop = New(Config{
		Provider:  p,
		In:        in,
		Out:       h.out,
		Indicator: h.indicator,
		Timeout:   timeout,
		Logger:    zerolog.New(h.logs),
		Metrics:   h.metrics,
	})
	return h
}

func TestRunPrintsEscapedAnswer(t *testing.T) {
	p := &fakeProvider{chat: reply("```go\nfmt.Println()\n```")}
	h := newHarness(t, p, strings.NewReader("  hello  \n"), 0)

	require.NoError(t, h.loop.Run(context.Background()))

	assert.Equal(t, []string{"hello"}, p.prompts)
	assert.Equal(t, "> \n'''go\nfmt.Println()\n'''\n> ", h.out.String())
	assert.Equal(t, 1, h.indicator.starts)
	assert.Equal(t, 1, h.indicator.stops)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Requests))
}

func TestRunSkipsBlankLines(t *testing.T) {
	p := &fakeProvider{chat: reply("ok")}
	h := newHarness(t, p, strings.NewReader("\n   \nhi\n"), 0)

	require.NoError(t, h.loop.Run(context.Background()))

	assert.Equal(t, []string{"hi"}, p.prompts)
	assert.Equal(t, 1, h.indicator.starts)
}

func TestRunProcessesFinalLineWithoutNewline(t *testing.T) {
	p := &fakeProvider{chat: reply("bye")}
	h := newHarness(t, p, strings.NewReader("last"), 0)

	require.NoError(t, h.loop.Run(context.Background()))

	assert.Equal(t, []string{"last"}, p.prompts)
	assert.Equal(t, "> \nbye\n", h.out.String())
}

func TestRunContinuesAfterFailure(t *testing.T) {
	calls := 0
	p := &fakeProvider{chat: func(context.Context, string) (providers.ChatResponse, error) {
		calls++
		if calls == 1 {
			return providers.ChatResponse{}, fmt.Errorf("request failed: %w", errors.New("connection refused"))
		}
		return providers.ChatResponse{Text: "second"}, nil
	}}
	h := newHarness(t, p, strings.NewReader("first\nsecond\n"), 0)

	require.NoError(t, h.loop.Run(context.Background()))

	assert.Equal(t, []string{"first", "second"}, p.prompts)
	assert.Equal(t, "> > \nsecond\n> ", h.out.String())
	assert.Contains(t, h.logs.String(), "connection refused")
	assert.Equal(t, 2, h.indicator.starts)
	assert.Equal(t, 2, h.indicator.stops)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Failures.WithLabelValues("request")))
}

func TestRunReportsEmptyResponse(t *testing.T) {
	p := &fakeProvider{chat: func(context.Context, string) (providers.ChatResponse, error) {
		return providers.ChatResponse{}, gemini.ErrEmptyResponse
	}}
	h := newHarness(t, p, strings.NewReader("hi\n"), 0)

	require.NoError(t, h.loop.Run(context.Background()))

	assert.Equal(t, "> > ", h.out.String())
	assert.Contains(t, h.logs.String(), "no candidate text")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Failures.WithLabelValues("empty")))
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	p := &fakeProvider{chat: reply("unused")}
	h := newHarness(t, p, pr, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	assert.Empty(t, p.prompts)
}

func TestAskIndicatorActiveDuringCall(t *testing.T) {
	var h *harness
	p := &fakeProvider{chat: func(context.Context, string) (providers.ChatResponse, error) {
		assert.True(t, h.indicator.active)
		return providers.ChatResponse{Text: "x"}, nil
	}}
	h = newHarness(t, p, nil, 0)

	_, err := h.loop.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.False(t, h.indicator.active)
}

func TestAskTimeout(t *testing.T) {
	p := &fakeProvider{chat: func(ctx context.Context, _ string) (providers.ChatResponse, error) {
		<-ctx.Done()
		return providers.ChatResponse{}, ctx.Err()
	}}
	h := newHarness(t, p, nil, 10*time.Millisecond)

	_, err := h.loop.Ask(context.Background(), "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, h.indicator.active)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Failures.WithLabelValues("timeout")))
}

func TestRunRequiresInput(t *testing.T) {
	h := newHarness(t, &fakeProvider{chat: reply("x")}, nil, 0)
	require.Error(t, h.loop.Run(context.Background()))
}

func TestFailureStage(t *testing.T) {
	cases := map[string]error{
		"timeout":  fmt.Errorf("request failed: %w", context.DeadlineExceeded),
		"canceled": context.Canceled,
		"empty":    providers.ErrEmptyResponse,
		"status":   fmt.Errorf("wrapped: %w", &gemini.APIError{StatusCode: 500}),
		"request":  errors.New("decode response: unexpected EOF"),
	}
	for want, err := range cases {
		assert.Equal(t, want, failureStage(err), err.Error())
	}
}

func TestEscapeFences(t *testing.T) {
	assert.Equal(t, "'''sh\nls\n'''", EscapeFences("```sh\nls\n```"))
	assert.Equal(t, "no fences", EscapeFences("no fences"))
	assert.Equal(t, "'''`", EscapeFences("````"))
}
