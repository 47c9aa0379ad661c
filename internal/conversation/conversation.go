// Package conversation keeps a single user's chat transcript and the
// pending follow-up marker that tells the next turn it is a continuation.
package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BabyNest/assistant/internal/models"
	"github.com/BabyNest/assistant/internal/util"
)

// DefaultMaxMessages bounds the in-memory transcript length.
const DefaultMaxMessages = 200

// FollowUpResolver resumes an interrupted exchange from its pending state.
// The user profile snapshot rides along so resolved actions can default
// fields like the pregnancy week from it.
type FollowUpResolver interface {
	ResolveFollowUp(ctx context.Context, userID, text string, pending *models.PendingFollowUp, userCtx map[string]any) (*models.AssistantResult, error)
}

// Context holds one user's conversational state: the message transcript, the
// at-most-one pending follow-up, and the user profile snapshot used to
// default action fields.
type Context struct {
	mu          sync.Mutex
	userID      string
	messages    []models.Message
	maxMessages int
	pending     *models.PendingFollowUp
	userCtx     map[string]any
}

// Option configures a Context.
type Option func(*Context)

// WithMaxMessages bounds the transcript length.
func WithMaxMessages(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.maxMessages = n
		}
	}
}

// New creates a conversation context for a user.
func New(userID string, options ...Option) *Context {
	c := &Context{
		userID:      userID,
		maxMessages: DefaultMaxMessages,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// UserID returns the owning user id.
func (c *Context) UserID() string { return c.userID }

// AddMessage appends a message to the transcript, assigning it a fresh id,
// and returns the stored message. The oldest messages are dropped once the
// transcript exceeds its bound.
func (c *Context) AddMessage(role models.Role, content string) models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := models.Message{
		ID:      util.GenerateMessageID(),
		Role:    role,
		Content: content,
	}
	c.messages = append(c.messages, msg)
	if len(c.messages) > c.maxMessages {
		c.messages = c.messages[len(c.messages)-c.maxMessages:]
	}
	return msg
}

// Messages returns a copy of the full transcript in order.
func (c *Context) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// RecentMessages returns the last n messages, oldest first.
func (c *Context) RecentMessages(n int) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.messages) {
		n = len(c.messages)
	}
	out := make([]models.Message, n)
	copy(out, c.messages[len(c.messages)-n:])
	return out
}

// SetMessages replaces the transcript, typically when restoring persisted
// history at startup.
func (c *Context) SetMessages(messages []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]models.Message, len(messages))
	copy(c.messages, messages)
	if len(c.messages) > c.maxMessages {
		c.messages = c.messages[len(c.messages)-c.maxMessages:]
	}
}

// ClearHistory drops the transcript but keeps pending follow-up state.
func (c *Context) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	slog.Debug("Conversation history cleared", "userID", c.userID)
}

// HasPendingFollowUp reports whether an interrupted exchange is waiting for
// the user's next message.
func (c *Context) HasPendingFollowUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// PendingFollowUp returns the pending marker, or nil.
func (c *Context) PendingFollowUp() *models.PendingFollowUp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// SetPendingFollowUp installs a pending marker, unconditionally replacing any
// existing one. At most one follow-up is pending per user.
func (c *Context) SetPendingFollowUp(pending *models.PendingFollowUp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil && pending != nil {
		slog.Debug("Replacing pending follow-up", "userID", c.userID, "old", c.pending.Intent, "new", pending.Intent)
	}
	c.pending = pending
}

// ClearPendingFollowUp removes the pending marker, if any.
func (c *Context) ClearPendingFollowUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}

// SetUserContext stores the user profile snapshot (current week and similar)
// consulted when defaulting action fields.
func (c *Context) SetUserContext(userCtx map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userCtx = userCtx
}

// UserContext returns the stored profile snapshot, or nil.
func (c *Context) UserContext() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userCtx
}

// ProcessFollowUpResponse resolves the user's reply against the pending
// follow-up through the given resolver, handing it the stored user profile
// snapshot. Returns models.ErrNotHandled when nothing is pending. The caller
// decides whether the result installs a new pending marker or clears it.
func (c *Context) ProcessFollowUpResponse(ctx context.Context, text string, resolver FollowUpResolver) (*models.AssistantResult, error) {
	c.mu.Lock()
	pending := c.pending
	userID := c.userID
	userCtx := c.userCtx
	c.mu.Unlock()

	if pending == nil {
		return nil, models.ErrNotHandled
	}
	return resolver.ResolveFollowUp(ctx, userID, text, pending, userCtx)
}
