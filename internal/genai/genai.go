// Package genai provides text generation behind a single Generator contract,
// with a deterministic mock mode and an OpenAI-backed real mode selected at
// construction time.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BabyNest/assistant/internal/models"
)

// Generation parameter defaults, matching the mobile app's model settings.
const (
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
)

// Options tunes a single generation call. Zero values fall back to defaults.
type Options struct {
	MaxTokens    int
	Temperature  float64
	TopP         float64
	SystemPrompt string
}

// Generator turns a prompt into generated text. Implementations must fail
// fast with models.ErrNotInitialized when used before Initialize.
type Generator interface {
	Initialize(ctx context.Context) error
	Generate(ctx context.Context, prompt string, opts *Options) (string, error)
	ChatCompletion(ctx context.Context, messages []models.Message, opts *Options) (string, error)
	Name() string
}

// StructuredResult carries the outcome of a schema-guided generation: the raw
// text plus the parsed JSON object, if any was found.
type StructuredResult struct {
	Text       string
	Data       map[string]any
	Valid      bool
	ParseError string
}

var jsonBlobPattern = regexp.MustCompile(`(?s)\{.*\}`)

// GenerateStructured asks the generator for a JSON response following the
// given schema and extracts the first JSON object from the reply. A reply
// without parseable JSON is not an error; Valid is false and the raw text is
// still returned.
func GenerateStructured(ctx context.Context, g Generator, prompt string, schema map[string]any, opts *Options) (*StructuredResult, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal schema: %w", err)
	}
	structuredPrompt := fmt.Sprintf("%s\n\nPlease respond with valid JSON following this schema: %s", prompt, schemaJSON)

	text, err := g.Generate(ctx, structuredPrompt, opts)
	if err != nil {
		return nil, err
	}

	blob := jsonBlobPattern.FindString(text)
	if blob == "" {
		return &StructuredResult{Text: text, ParseError: "no JSON found in response"}, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return &StructuredResult{Text: text, ParseError: err.Error()}, nil
	}
	return &StructuredResult{Text: text, Data: data, Valid: true}, nil
}

// EstimateTokens gives a rough token count for a text (~4 characters per
// token). Used only for prompt budgeting, never billing.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncatePrompt trims a prompt so its estimated token count fits maxTokens.
// The cut always lands on a rune boundary so the result stays valid UTF-8.
func TruncatePrompt(prompt string, maxTokens int) string {
	estimated := EstimateTokens(prompt)
	if estimated <= maxTokens {
		return prompt
	}
	ratio := float64(maxTokens) / float64(estimated)
	newLen := int(float64(len(prompt)) * ratio)
	if newLen >= len(prompt) {
		return prompt
	}
	for newLen > 0 && !utf8.RuneStart(prompt[newLen]) {
		newLen--
	}
	return prompt[:newLen] + "..."
}

// DefaultSystemPrompt is the assistant persona used when a call provides no
// system prompt of its own.
const DefaultSystemPrompt = `You are BabyNest's assistant, designed to help pregnant women with their health journey. You are knowledgeable, empathetic, and always prioritize safety.

Key capabilities:
- Schedule and manage appointments
- Track health metrics (weight, mood, symptoms, sleep)
- Provide pregnancy-related guidance
- Answer questions about health and wellness

Guidelines:
- Always be supportive and encouraging
- If asked about medical advice, recommend consulting healthcare providers
- Keep responses concise and helpful
- When scheduling appointments, ask for necessary details (date, time, location, type)`

// resolveOptions fills zero-valued fields with defaults.
func resolveOptions(opts *Options) Options {
	out := Options{
		MaxTokens:    DefaultMaxTokens,
		Temperature:  DefaultTemperature,
		TopP:         DefaultTopP,
		SystemPrompt: DefaultSystemPrompt,
	}
	if opts == nil {
		return out
	}
	if opts.MaxTokens > 0 {
		out.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		out.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		out.TopP = opts.TopP
	}
	if opts.SystemPrompt != "" {
		out.SystemPrompt = opts.SystemPrompt
	}
	return out
}

// historyPrompt flattens a conversation into a single completion prompt for
// generators without a native chat interface.
func historyPrompt(messages []models.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant:")
	return b.String()
}
