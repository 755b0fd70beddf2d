// Package runtime runs conversation turns against session memory: it records
// the transcript, indexes a summary of each user message, retrieves similar
// summaries and assembles the prompt for the generation provider.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/provider"
	"github.com/felixgeelhaar/mnemo/internal/transcript"
)

var (
	// ErrDurability wraps transcript or index write failures. The reply, if
	// any, was not returned because memory could not be trusted.
	ErrDurability = errors.New("memory write failed")

	// ErrGeneration wraps provider failures. Memory writes made before the
	// call stay committed.
	ErrGeneration = errors.New("reply generation failed")
)

// Config tunes retrieval and generation.
type Config struct {
	TopK        int
	RecentLimit int
	Temperature float32
	MaxTokens   int
}

var DefaultConfig = Config{
	TopK:        3,
	RecentLimit: 10,
	Temperature: 0.7,
}

const dialogueSummaryPrompt = "You are an AI that writes a short summary of the whole conversation between the user and the assistant. " +
	"Extract the user's key questions and the assistant's answers. Present the result as a brief summary, without filler or greetings."

// Runtime orchestrates turns. Turns for one session are serialized; turns
// for different sessions run independently.
type Runtime struct {
	transcripts transcript.Store
	memory      memory.Memory
	provider    provider.Provider
	observe     *observe.Observer
	metrics     *observe.Metrics
	events      *EventBus
	modes       *Modes
	cfg         Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(ts transcript.Store, mem memory.Memory, p provider.Provider, o *observe.Observer, cfg Config) *Runtime {
	if o == nil {
		o = observe.Discard()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig.TopK
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultConfig.RecentLimit
	}
	return &Runtime{
		transcripts: ts,
		memory:      mem,
		provider:    p,
		observe:     o,
		events:      NewEventBus(),
		modes:       NewModes(),
		cfg:         cfg,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (r *Runtime) SetMetrics(m *observe.Metrics) {
	r.metrics = m
}

func (r *Runtime) Events() *EventBus {
	return r.events
}

func (r *Runtime) Modes() *Modes {
	return r.modes
}

func (r *Runtime) Provider() provider.Provider {
	return r.provider
}

func (r *Runtime) lock(sessionID string) func() {
	r.mu.Lock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[sessionID] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// HandleTurn answers message within the session's memory.
//
// The user turn and its index entry are committed before generation and are
// kept when generation fails. Errors wrap ErrDurability or ErrGeneration.
func (r *Runtime) HandleTurn(ctx context.Context, sessionID, message string) (string, error) {
	ctx, span := r.observe.StartSpan(ctx, "HandleTurn")

	defer r.lock(sessionID)()

	r.events.PublishSimple(EventTurnStart, sessionID)
	reply, status, err := r.handleTurn(ctx, sessionID, message)
	observe.EndSpan(span, err)

	r.metrics.TurnFinished(status)
	switch status {
	case observe.TurnDurabilityError:
		r.events.PublishWithData(EventDurabilityError, sessionID, map[string]interface{}{"error": err.Error()})
	case observe.TurnGenerationError:
		r.events.PublishWithData(EventGenerationError, sessionID, map[string]interface{}{"error": err.Error()})
	default:
		r.events.PublishSimple(EventTurnEnd, sessionID)
	}
	return reply, err
}

func (r *Runtime) handleTurn(ctx context.Context, sessionID, message string) (string, string, error) {
	log := r.observe.Log().With().Str("session", sessionID).Logger()

	if err := r.transcripts.Append(ctx, sessionID, transcript.RoleUser, message); err != nil {
		log.Error().Err(err).Msg("failed to record user turn")
		return "", observe.TurnDurabilityError, fmt.Errorf("%w: %w", ErrDurability, err)
	}

	summary, err := r.memory.Insert(ctx, sessionID, message)
	if err != nil {
		log.Error().Err(err).Msg("failed to index user turn")
		return "", observe.TurnDurabilityError, fmt.Errorf("%w: %w", ErrDurability, err)
	}
	r.events.PublishWithData(EventMemoryInserted, sessionID, map[string]interface{}{"summary": summary})

	similar, err := r.memory.Search(ctx, sessionID, message, r.cfg.TopK)
	if err != nil {
		// Retrieval is best effort; the turn proceeds on the transcript alone.
		log.Warn().Err(err).Msg("similarity search failed")
		r.events.PublishWithData(EventSearchFailed, sessionID, map[string]interface{}{"error": err.Error()})
		similar = nil
	}

	recent, err := r.transcripts.Recent(ctx, sessionID, r.cfg.RecentLimit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read transcript")
		return "", observe.TurnDurabilityError, fmt.Errorf("%w: %w", ErrDurability, err)
	}

	mode := r.modes.Get(sessionID)
	messages := BuildPrompt(mode.Instruction(), similar, recent)

	log.Debug().
		Str("mode", string(mode)).
		Int("similar", len(similar)).
		Int("recent", len(recent)).
		Msg("calling provider")

	start := time.Now()
	resp, err := r.provider.Chat(ctx, messages, provider.Options{
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	r.metrics.ObserveGeneration(time.Since(start))
	if err != nil {
		log.Error().Str("provider", r.provider.Name()).Err(err).Msg("provider call failed")
		return "", observe.TurnGenerationError, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	if err := r.transcripts.Append(ctx, sessionID, transcript.RoleAssistant, resp.Content); err != nil {
		log.Error().Err(err).Msg("failed to record assistant turn")
		return "", observe.TurnDurabilityError, fmt.Errorf("%w: %w", ErrDurability, err)
	}

	log.Info().
		Int("tokens", resp.Usage.TotalTokens).
		Msg("turn complete")
	return resp.Content, observe.TurnOK, nil
}

// BuildPrompt lays out the generation request: the system instruction, then
// similar summaries as prior user context, then the recent transcript.
func BuildPrompt(instruction string, similar []string, recent []transcript.Turn) []provider.Message {
	messages := make([]provider.Message, 0, 1+len(similar)+len(recent))
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: instruction})
	for _, s := range similar {
		messages = append(messages, provider.Message{Role: provider.RoleUser, Content: s})
	}
	for _, t := range recent {
		messages = append(messages, provider.Message{Role: string(t.Role), Content: t.Message})
	}
	return messages
}

// SetMode switches the session persona and returns the activation greeting.
func (r *Runtime) SetMode(sessionID string, mode Mode) string {
	r.modes.Set(sessionID, mode)
	r.events.PublishWithData(EventModeChanged, sessionID, map[string]interface{}{"mode": string(mode)})
	return mode.Greeting()
}

// History returns the full transcript.
func (r *Runtime) History(ctx context.Context, sessionID string) ([]transcript.Turn, error) {
	return r.transcripts.LoadAll(ctx, sessionID)
}

// Recent returns the turns that would be sent as context.
func (r *Runtime) Recent(ctx context.Context, sessionID string) ([]transcript.Turn, error) {
	return r.transcripts.Recent(ctx, sessionID, r.cfg.RecentLimit)
}

// SummarizeDialogue asks the provider for a digest of the recent transcript.
// It returns "" with no error when there is nothing to summarize.
func (r *Runtime) SummarizeDialogue(ctx context.Context, sessionID string) (string, error) {
	ctx, span := r.observe.StartSpan(ctx, "SummarizeDialogue")

	recent, err := r.Recent(ctx, sessionID)
	if err != nil || len(recent) == 0 {
		observe.EndSpan(span, err)
		return "", err
	}

	messages := BuildPrompt(dialogueSummaryPrompt, nil, recent)
	resp, err := r.provider.Chat(ctx, messages, provider.Options{Temperature: 0.5})
	observe.EndSpan(span, err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ClearSession deletes the transcript, the vector index and the mode of a
// session. Clearing an unknown session succeeds.
func (r *Runtime) ClearSession(ctx context.Context, sessionID string) error {
	defer r.lock(sessionID)()

	if err := r.transcripts.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrDurability, err)
	}
	if err := r.memory.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrDurability, err)
	}
	r.modes.Reset(sessionID)

	r.observe.Log().Info().Str("session", sessionID).Msg("session cleared")
	r.events.PublishSimple(EventSessionCleared, sessionID)
	return nil
}
