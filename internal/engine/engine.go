// Package engine is the chat façade: it owns one user's conversation and
// resolves each inbound message through a fixed chain of stages, degrading
// from follow-up resolution to retrieval, remote chat, local generation, and
// finally a canned apology. The chain guarantees the user always gets a
// reply.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BabyNest/assistant/internal/conversation"
	"github.com/BabyNest/assistant/internal/genai"
	"github.com/BabyNest/assistant/internal/models"
	"github.com/BabyNest/assistant/internal/store"
)

// Timing defaults for the remote stage.
const (
	DefaultChatTimeout     = 15 * time.Second
	DefaultRetryTimeout    = 5 * time.Second
	DefaultRetryBackoff    = 500 * time.Millisecond
	DefaultNavigationDelay = 1500 * time.Millisecond

	// historyWindow bounds how much transcript the local generator sees.
	historyWindow = 10
)

// FallbackMessage is the last-resort reply when every stage fails.
const FallbackMessage = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// Retrieval is the intent-driven stage: structured queries and follow-up
// resolution.
type Retrieval interface {
	conversation.FollowUpResolver
	ProcessQuery(ctx context.Context, userID, text string) (*models.AssistantResult, error)
}

// Remote is the backend chat agent.
type Remote interface {
	Chat(ctx context.Context, query, userID string) (string, error)
	Context(ctx context.Context, userID string) (map[string]any, error)
}

// Navigator receives deferred screen changes triggered by navigation
// actions.
type Navigator interface {
	Navigate(screen string)
}

// ChatEngine resolves messages for a single user.
type ChatEngine struct {
	userID    string
	conv      *conversation.Context
	store     store.Store
	retrieval Retrieval
	remote    Remote
	generator genai.Generator
	navigator Navigator

	chatTimeout  time.Duration
	retryTimeout time.Duration
	retryBackoff time.Duration
	navDelay     time.Duration
}

// Option configures the engine.
type Option func(*ChatEngine)

// WithRemote attaches the backend chat agent stage.
func WithRemote(r Remote) Option {
	return func(e *ChatEngine) { e.remote = r }
}

// WithNavigator attaches a navigation sink for deferred screen changes.
func WithNavigator(n Navigator) Option {
	return func(e *ChatEngine) { e.navigator = n }
}

// WithChatTimeout bounds the first remote attempt.
func WithChatTimeout(d time.Duration) Option {
	return func(e *ChatEngine) {
		if d > 0 {
			e.chatTimeout = d
		}
	}
}

// WithRetryTimeout bounds the second remote attempt.
func WithRetryTimeout(d time.Duration) Option {
	return func(e *ChatEngine) {
		if d > 0 {
			e.retryTimeout = d
		}
	}
}

// WithRetryBackoff sets the pause between remote attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *ChatEngine) {
		if d >= 0 {
			e.retryBackoff = d
		}
	}
}

// WithNavigationDelay sets how long a navigation action waits before firing,
// giving the user time to read the reply first.
func WithNavigationDelay(d time.Duration) Option {
	return func(e *ChatEngine) {
		if d >= 0 {
			e.navDelay = d
		}
	}
}

// New creates a chat engine for one user.
func New(userID string, st store.Store, retrieval Retrieval, generator genai.Generator, options ...Option) *ChatEngine {
	e := &ChatEngine{
		userID:       userID,
		conv:         conversation.New(userID),
		store:        st,
		retrieval:    retrieval,
		generator:    generator,
		chatTimeout:  DefaultChatTimeout,
		retryTimeout: DefaultRetryTimeout,
		retryBackoff: DefaultRetryBackoff,
		navDelay:     DefaultNavigationDelay,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Conversation exposes the engine's conversation context.
func (e *ChatEngine) Conversation() *conversation.Context { return e.conv }

// Initialize restores persisted history and warms the user context from the
// backend when one is attached. A missing backend context is degraded, not
// fatal.
func (e *ChatEngine) Initialize(ctx context.Context) error {
	messages, err := e.store.LoadMessages(e.userID)
	if err != nil {
		return fmt.Errorf("engine: load history: %w", err)
	}
	e.conv.SetMessages(messages)
	slog.Info("Chat engine initialized", "userID", e.userID, "restoredMessages", len(messages))

	if e.remote != nil {
		if userCtx, err := e.remote.Context(ctx, e.userID); err != nil {
			slog.Warn("Could not fetch user context from backend", "userID", e.userID, "err", err)
		} else {
			e.conv.SetUserContext(userCtx)
		}
	}
	return nil
}

// SendMessage resolves one inbound message through the stage chain and
// returns the reply. The reply is also appended to the transcript and
// persisted best-effort.
func (e *ChatEngine) SendMessage(ctx context.Context, text string) (*models.AssistantResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrEmptyMessage
	}
	e.conv.AddMessage(models.RoleUser, text)

	result := e.resolve(ctx, text)
	e.finish(result)
	return result, nil
}

// resolve walks the stage chain until one produces a result.
func (e *ChatEngine) resolve(ctx context.Context, text string) *models.AssistantResult {
	if e.conv.HasPendingFollowUp() {
		result, err := e.conv.ProcessFollowUpResponse(ctx, text, e.retrieval)
		if err == nil {
			return result
		}
		if !errors.Is(err, models.ErrNotHandled) {
			slog.Warn("Follow-up resolution failed, dropping pending state", "userID", e.userID, "err", err)
			e.conv.ClearPendingFollowUp()
		}
	}

	result, err := e.retrieval.ProcessQuery(ctx, e.userID, text)
	if err == nil {
		return result
	}
	if !errors.Is(err, models.ErrNotHandled) {
		slog.Warn("Retrieval stage failed", "userID", e.userID, "err", err)
	}

	if e.remote != nil {
		if reply, err := e.remoteChat(ctx, text); err == nil {
			return &models.AssistantResult{Message: reply, Source: models.SourceRemote}
		} else {
			slog.Warn("Remote chat failed after retry", "userID", e.userID, "err", err)
		}
	}

	if e.generator != nil {
		reply, err := e.generator.ChatCompletion(ctx, e.conv.RecentMessages(historyWindow), nil)
		if err == nil && reply != "" {
			return &models.AssistantResult{Message: reply, Source: models.SourceLocal}
		}
		if err != nil {
			slog.Warn("Local generation failed", "userID", e.userID, "err", err)
		}
	}

	return &models.AssistantResult{Message: FallbackMessage, Source: models.SourceFallback}
}

// remoteChat tries the backend agent once with the full timeout, then once
// more with the shorter retry timeout after a brief backoff.
func (e *ChatEngine) remoteChat(ctx context.Context, text string) (string, error) {
	attempt := func(timeout time.Duration) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return e.remote.Chat(callCtx, text, e.userID)
	}

	reply, err := attempt(e.chatTimeout)
	if err == nil {
		return reply, nil
	}
	slog.Debug("Remote chat attempt failed, retrying", "userID", e.userID, "err", err)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(e.retryBackoff):
	}
	return attempt(e.retryTimeout)
}

// finish applies a result's side effects: pending follow-up bookkeeping, the
// assistant transcript entry, best-effort persistence, and deferred
// navigation.
func (e *ChatEngine) finish(result *models.AssistantResult) {
	if result.RequiresFollowUp && result.Intent != "" && result.PartialData != nil && result.MissingFields != nil {
		e.conv.SetPendingFollowUp(&models.PendingFollowUp{
			Intent:        result.Intent,
			PartialData:   result.PartialData,
			MissingFields: result.MissingFields,
		})
	} else {
		e.conv.ClearPendingFollowUp()
	}

	e.conv.AddMessage(models.RoleAssistant, result.Message)
	if err := e.store.SaveMessages(e.userID, e.conv.Messages()); err != nil {
		slog.Warn("Could not persist chat history", "userID", e.userID, "err", err)
	}

	if result.Navigate != "" && e.navigator != nil {
		screen := result.Navigate
		time.AfterFunc(e.navDelay, func() { e.navigator.Navigate(screen) })
	}
}

// History returns the current transcript.
func (e *ChatEngine) History() []models.Message {
	return e.conv.Messages()
}

// ClearHistory drops the transcript in memory and in the store.
func (e *ChatEngine) ClearHistory() error {
	e.conv.ClearHistory()
	return e.store.DeleteHistory(e.userID)
}
