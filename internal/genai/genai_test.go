package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/BabyNest/assistant/internal/models"
)

// scriptedGenerator returns a fixed reply, for exercising the structured
// generation helpers.
type scriptedGenerator struct {
	reply string
}

func (s *scriptedGenerator) Initialize(ctx context.Context) error { return nil }
func (s *scriptedGenerator) Name() string                         { return "scripted" }
func (s *scriptedGenerator) Generate(ctx context.Context, prompt string, opts *Options) (string, error) {
	return s.reply, nil
}
func (s *scriptedGenerator) ChatCompletion(ctx context.Context, messages []models.Message, opts *Options) (string, error) {
	return s.reply, nil
}

func TestMockGeneratorRequiresInitialize(t *testing.T) {
	g := NewMockGenerator()
	if _, err := g.Generate(context.Background(), "hi", nil); !errors.Is(err, models.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestMockGeneratorKeywordReplies(t *testing.T) {
	g := NewMockGenerator()
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	cases := []struct {
		prompt string
		want   string
	}{
		{"I need an appointment", "appointment"},
		{"log my weight please", "weight"},
		{"my mood today", "mood"},
		{"how much sleep do I need", "sleep"},
		{"hello there", "pregnancy journey"},
	}
	for _, tc := range cases {
		reply, err := g.Generate(context.Background(), tc.prompt, nil)
		if err != nil {
			t.Fatalf("Generate(%q) failed: %v", tc.prompt, err)
		}
		if !strings.Contains(strings.ToLower(reply), tc.want) {
			t.Errorf("Generate(%q) = %q, want mention of %q", tc.prompt, reply, tc.want)
		}
	}
}

func TestMockChatCompletionUsesLatestUserMessage(t *testing.T) {
	g := NewMockGenerator()
	if err := g.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	reply, err := g.ChatCompletion(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi!"},
		{Role: models.RoleUser, Content: "help me track my sleep"},
	}, nil)
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if !strings.Contains(strings.ToLower(reply), "sleep") {
		t.Errorf("reply %q ignores the latest user message", reply)
	}
}

func TestGenerateStructuredExtractsJSON(t *testing.T) {
	g := &scriptedGenerator{reply: `Sure! Here you go: {"intent": "log_mood", "confidence": 0.9} hope that helps`}

	result, err := GenerateStructured(context.Background(), g, "classify this", map[string]any{"type": "object"}, nil)
	if err != nil {
		t.Fatalf("GenerateStructured failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result, got parse error %q", result.ParseError)
	}
	if result.Data["intent"] != "log_mood" {
		t.Errorf("parsed data %v", result.Data)
	}
}

func TestGenerateStructuredToleratesNonJSON(t *testing.T) {
	g := &scriptedGenerator{reply: "I cannot answer that in JSON, sorry."}

	result, err := GenerateStructured(context.Background(), g, "classify", map[string]any{}, nil)
	if err != nil {
		t.Fatalf("non-JSON reply must not be an error: %v", err)
	}
	if result.Valid {
		t.Error("reply without JSON marked valid")
	}
	if result.Text == "" || result.ParseError == "" {
		t.Errorf("raw text and parse error should both be set: %+v", result)
	}
}

func TestResolveOptionsDefaults(t *testing.T) {
	opts := resolveOptions(nil)
	if opts.MaxTokens != DefaultMaxTokens || opts.Temperature != DefaultTemperature || opts.TopP != DefaultTopP {
		t.Errorf("unexpected defaults: %+v", opts)
	}
	if opts.SystemPrompt == "" {
		t.Error("default system prompt missing")
	}

	opts = resolveOptions(&Options{MaxTokens: 64})
	if opts.MaxTokens != 64 || opts.Temperature != DefaultTemperature {
		t.Errorf("partial override broken: %+v", opts)
	}
}

func TestTruncatePrompt(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	truncated := TruncatePrompt(long, 50)
	if EstimateTokens(truncated) > 60 {
		t.Errorf("truncated prompt still estimates %d tokens", EstimateTokens(truncated))
	}
	if !strings.HasSuffix(truncated, "...") {
		t.Error("truncated prompt missing ellipsis")
	}

	short := "hello"
	if TruncatePrompt(short, 50) != short {
		t.Error("prompt under budget was modified")
	}
}

func TestTruncatePromptKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("héllo wörld ", 500)
	for _, budget := range []int{10, 25, 40, 99} {
		truncated := TruncatePrompt(long, budget)
		if !utf8.ValidString(truncated) {
			t.Errorf("budget %d: truncation split a rune: %q", budget, truncated[len(truncated)-8:])
		}
		if !strings.HasSuffix(truncated, "...") {
			t.Errorf("budget %d: truncated prompt missing ellipsis", budget)
		}
	}
}
