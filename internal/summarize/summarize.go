// Package summarize condenses raw user messages into short third-person
// notes that are embedded into the session vector index.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/provider"
)

// Summarizer never fails: on any error it returns Fallback(sessionID, text).
type Summarizer interface {
	Summarize(ctx context.Context, text, sessionID string) string
}

// Func adapts a plain function to Summarizer.
type Func func(ctx context.Context, text, sessionID string) string

func (f Func) Summarize(ctx context.Context, text, sessionID string) string {
	return f(ctx, text, sessionID)
}

// Passthrough stores the raw text as its own summary.
var Passthrough = Func(func(_ context.Context, text, _ string) string { return text })

const systemPrompt = "You are an assistant that writes short but precise notes about meaning."

const userTemplate = "The user in session '%s' wrote the following message:\n" +
	"\"%s\"\n\n" +
	"Write a brief summary of this message: its gist and the user's intentions, interests or feelings. " +
	"Phrase it in the third person, as if briefly explaining the point to another AI. Keep it short, only the essentials."

// Fallback is the deterministic summary used when the provider is unavailable.
func Fallback(sessionID, text string) string {
	return fmt.Sprintf("Message from user in session '%s': %s", sessionID, text)
}

// Config tunes the summarization call.
type Config struct {
	Temperature float32
	MaxTokens   int
}

// DefaultConfig keeps summaries short: 100 tokens at temperature 0.7.
var DefaultConfig = Config{Temperature: 0.7, MaxTokens: 100}

// LLM summarizes through a provider.
type LLM struct {
	provider provider.Provider
	cfg      Config
	obs      *observe.Observer
	metrics  *observe.Metrics
}

func New(p provider.Provider, cfg Config, obs *observe.Observer, metrics *observe.Metrics) *LLM {
	if obs == nil {
		obs = observe.Discard()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig.MaxTokens
	}
	return &LLM{provider: p, cfg: cfg, obs: obs, metrics: metrics}
}

func (s *LLM) Summarize(ctx context.Context, text, sessionID string) string {
	ctx, span := s.obs.StartSpan(ctx, "summarize")

	summary, err := s.call(ctx, text, sessionID)
	observe.EndSpan(span, err)
	if err != nil {
		s.obs.Log().Warn().
			Str("session", sessionID).
			Str("provider", s.provider.Name()).
			Err(err).
			Msg("Summarizer failed, using fallback")
		s.metrics.SummarizerFallback()
		return Fallback(sessionID, text)
	}
	return summary
}

func (s *LLM) call(ctx context.Context, text, sessionID string) (string, error) {
	resp, err := s.provider.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: systemPrompt},
		{Role: provider.RoleUser, Content: fmt.Sprintf(userTemplate, sessionID, text)},
	}, provider.Options{Temperature: s.cfg.Temperature, MaxTokens: s.cfg.MaxTokens})
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errors.New("empty summary")
	}
	return summary, nil
}
