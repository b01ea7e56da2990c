package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"geminichat/internal/metrics"
	"geminichat/internal/providers"
	"geminichat/internal/providers/gemini"
)

const Prompt = "> "

// Indicator is shown while a request is in flight.
type Indicator interface {
	Start()
	Stop()
}

type nopIndicator struct{}

func (nopIndicator) Start() {}
func (nopIndicator) Stop()  {}

type Config struct {
	Provider  providers.Provider
	Model     string
	In        io.Reader
	Out       io.Writer
	Indicator Indicator
	Timeout   time.Duration
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Loop is the read-ask-print cycle. Only one request is ever in flight.
type Loop struct {
	provider  providers.Provider
	model     string
	in        io.Reader
	out       io.Writer
	indicator Indicator
	timeout   time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func New(cfg Config) *Loop {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Indicator == nil {
		cfg.Indicator = nopIndicator{}
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	return &Loop{
		provider:  cfg.Provider,
		model:     cfg.Model,
		in:        cfg.In,
		out:       cfg.Out,
		indicator: cfg.Indicator,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		metrics:   m,
	}
}

type readResult struct {
	line string
	err  error
}

// Run prompts until the input ends (nil) or ctx is done (ctx.Err()).
func (l *Loop) Run(ctx context.Context) error {
	if l.in == nil {
		return fmt.Errorf("input is nil")
	}
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := l.readLines(readCtx)

	for {
		fmt.Fprint(l.out, Prompt)

		var res readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-lines:
		}

		if text := strings.TrimSpace(res.line); text != "" {
			l.handle(ctx, text)
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				l.logger.Debug().Msg("input closed")
				return nil
			}
			return fmt.Errorf("read input: %w", res.err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (l *Loop) readLines(ctx context.Context) <-chan readResult {
	ch := make(chan readResult)
	go func() {
		r := bufio.NewReader(l.in)
		for {
			line, err := r.ReadString('\n')
			select {
			case ch <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

func (l *Loop) handle(ctx context.Context, text string) {
	answer, err := l.Ask(ctx, text)
	if err != nil {
		l.logger.Error().Err(err).Msg("request failed")
		return
	}
	fmt.Fprintf(l.out, "\n%s\n", EscapeFences(answer))
}

// Ask sends one prompt and returns the first candidate's text. The indicator
// runs for exactly the duration of the call.
func (l *Loop) Ask(ctx context.Context, text string) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.metrics.Requests.Inc()
	started := time.Now()

	resp, err := l.call(ctx, text)

	l.metrics.RequestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		l.metrics.Failures.WithLabelValues(failureStage(err)).Inc()
		return "", err
	}

	l.logger.Debug().
		Str("finish_reason", resp.FinishReason).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("candidate_tokens", resp.Usage.CandidateTokens).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("response received")
	return resp.Text, nil
}

func (l *Loop) call(ctx context.Context, text string) (providers.ChatResponse, error) {
	l.indicator.Start()
	defer l.indicator.Stop()
	return l.provider.Chat(ctx, providers.ChatRequest{Model: l.model, UserPrompt: text})
}

func failureStage(err error) string {
	var apiErr *gemini.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, providers.ErrEmptyResponse):
		return "empty"
	case errors.As(err, &apiErr):
		return "status"
	default:
		return "request"
	}
}

// EscapeFences swaps markdown code fences for ''' so terminal renderers do
// not treat the answer as a code block.
func EscapeFences(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
