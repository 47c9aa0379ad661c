package genai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BabyNest/assistant/internal/models"
)

// OpenAIGenerator generates text through the OpenAI chat completions API. It
// is the "real model" counterpart of MockGenerator behind the same contract.
type OpenAIGenerator struct {
	mu          sync.Mutex
	client      openai.Client
	model       openai.ChatModel
	initialized bool
}

// NewOpenAIGenerator creates a generator using the given API key.
func NewOpenAIGenerator(apiKey string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai generator: API key not set")
	}
	return &OpenAIGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}, nil
}

// Name identifies the generator mode.
func (o *OpenAIGenerator) Name() string { return "openai" }

// Initialize prepares the generator for use.
func (o *OpenAIGenerator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.initialized = true
	slog.Info("OpenAI generator initialized", "model", o.model)
	return nil
}

// Generate produces a completion for a single user prompt.
func (o *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts *Options) (string, error) {
	resolved := resolveOptions(opts)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(resolved.SystemPrompt),
		openai.UserMessage(prompt),
	}
	return o.complete(ctx, messages, resolved)
}

// ChatCompletion produces a completion over the full conversation history, in
// order.
func (o *OpenAIGenerator) ChatCompletion(ctx context.Context, history []models.Message, opts *Options) (string, error) {
	resolved := resolveOptions(opts)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(resolved.SystemPrompt),
	}
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return o.complete(ctx, messages, resolved)
}

func (o *OpenAIGenerator) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts Options) (string, error) {
	o.mu.Lock()
	initialized := o.initialized
	o.mu.Unlock()
	if !initialized {
		return "", fmt.Errorf("openai generator: %w", models.ErrNotInitialized)
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               o.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(opts.MaxTokens)),
		Temperature:         openai.Float(opts.Temperature),
		TopP:                openai.Float(opts.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("openai generator: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai generator: no choices returned")
	}
	slog.Debug("OpenAI generator completed", "model", o.model, "choices", len(resp.Choices))
	return resp.Choices[0].Message.Content, nil
}
