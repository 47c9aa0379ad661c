package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BabyNest/assistant/internal/models"
)

// MockGenerator produces deterministic, keyword-contextual canned replies.
// It keeps development and tests independent of any model runtime.
type MockGenerator struct {
	mu          sync.Mutex
	initialized bool
}

// NewMockGenerator creates a mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Name identifies the generator mode.
func (m *MockGenerator) Name() string { return "mock" }

// Initialize prepares the generator for use.
func (m *MockGenerator) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	slog.Debug("Mock generator initialized")
	return nil
}

// Generate returns a canned reply keyed off the prompt content.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts *Options) (string, error) {
	m.mu.Lock()
	initialized := m.initialized
	m.mu.Unlock()
	if !initialized {
		return "", fmt.Errorf("mock generator: %w", models.ErrNotInitialized)
	}

	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "appointment"):
		return "I'd be happy to help you schedule an appointment! What type of appointment would you like to make?", nil
	case strings.Contains(lower, "weight"):
		return "Let me help you log your weight. What's your current weight?", nil
	case strings.Contains(lower, "mood"):
		return "How are you feeling today? I can help you track your mood.", nil
	case strings.Contains(lower, "sleep"):
		return "Rest matters a lot right now. How many hours did you sleep?", nil
	default:
		return "I'm here to help with your pregnancy journey! How can I assist you today?", nil
	}
}

// ChatCompletion flattens the history and delegates to Generate, so the mock
// stays sensitive to the latest user message.
func (m *MockGenerator) ChatCompletion(ctx context.Context, messages []models.Message, opts *Options) (string, error) {
	return m.Generate(ctx, historyPrompt(messages), opts)
}
