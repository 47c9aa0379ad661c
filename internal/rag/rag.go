// Package rag is the retrieval stage of the resolution chain: it classifies
// an inbound message against seeded intent exemplars in the vector store,
// extracts slot values from the text, and drives the dialog manager.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BabyNest/assistant/internal/actions"
	"github.com/BabyNest/assistant/internal/dialog"
	"github.com/BabyNest/assistant/internal/embedding"
	"github.com/BabyNest/assistant/internal/models"
	"github.com/BabyNest/assistant/internal/vectorstore"
)

// DefaultMinSimilarity is the similarity floor below which a vector match is
// not trusted and the keyword fallback decides instead.
const DefaultMinSimilarity = 0.6

// intentExemplars seed the vector store, several phrasings per intent.
var intentExemplars = map[string][]string{
	"create_appointment": {
		"I want to schedule an appointment",
		"Book a checkup with my doctor",
		"Schedule an ultrasound for next week",
		"I need to see my doctor",
	},
	"log_mood": {
		"I want to log my mood",
		"I'm feeling anxious today",
		"Track how I'm feeling",
		"Record my mood",
	},
	"log_sleep": {
		"I want to log my sleep",
		"I slept eight hours last night",
		"Track my sleep",
		"Record how long I slept",
	},
	"query_analytics": {
		"Show me my weight trend",
		"How has my sleep been this week",
		"Give me my health stats",
		"Show my analytics",
	},
}

var (
	datePattern     = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	timePattern     = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	durationPattern = regexp.MustCompile(`(\d+(\.\d+)?)\s*hours?`)
)

// Orchestrator wires the embedder, vector store, dialog manager, and action
// executor into the retrieval stage.
type Orchestrator struct {
	embedder      *embedding.Service
	store         *vectorstore.Store
	dialogs       *dialog.Manager
	executor      *actions.Executor
	minSimilarity float64
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithMinSimilarity overrides the similarity floor for intent matches.
func WithMinSimilarity(min float64) Option {
	return func(o *Orchestrator) {
		if min > 0 {
			o.minSimilarity = min
		}
	}
}

// New creates the retrieval orchestrator.
func New(embedder *embedding.Service, store *vectorstore.Store, dialogs *dialog.Manager, executor *actions.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		embedder:      embedder,
		store:         store,
		dialogs:       dialogs,
		executor:      executor,
		minSimilarity: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Initialize prepares the embedder and vector store and seeds the store with
// intent exemplar embeddings.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.embedder.Initialize(ctx); err != nil {
		return fmt.Errorf("rag: %w", err)
	}
	if err := o.store.Initialize(); err != nil {
		return fmt.Errorf("rag: %w", err)
	}

	var seeded int
	for intent, examples := range intentExemplars {
		vectors, err := o.embedder.Embed(ctx, examples...)
		if err != nil {
			return fmt.Errorf("rag: embed exemplars for %s: %w", intent, err)
		}
		for i, vec := range vectors {
			id := fmt.Sprintf("intent-%s-%d", intent, i)
			meta := map[string]any{
				"kind":   "intent",
				"intent": intent,
				"text":   examples[i],
			}
			if err := o.store.AddDocument(id, meta, vec); err != nil {
				return fmt.Errorf("rag: seed %s: %w", id, err)
			}
			seeded++
		}
	}
	slog.Info("Retrieval stage initialized", "exemplars", seeded, "minSimilarity", o.minSimilarity)
	return nil
}

// ProcessQuery classifies the message and, when an intent is recognized,
// starts or advances the user's slot-filling dialog. General chat with no
// recognizable intent returns models.ErrNotHandled so the caller can fall
// through to the next resolution stage.
func (o *Orchestrator) ProcessQuery(ctx context.Context, userID, text string) (*models.AssistantResult, error) {
	intent, similarity, err := o.classify(ctx, text)
	if err != nil {
		return nil, err
	}
	if intent == "" {
		return nil, models.ErrNotHandled
	}
	slog.Debug("Intent recognized", "userID", userID, "intent", intent, "similarity", similarity)

	template, ok := o.dialogs.Template(intent)
	if !ok {
		return nil, models.ErrNotHandled
	}

	extracted := o.extractSlots(text, template)
	// Prefill stable slots from the user's last dialog with the same intent.
	// Dates and times are volatile and never carried over; the current
	// message always wins.
	for k, v := range o.dialogs.ContextFromHistory(userID, intent) {
		if k == "date" || k == "time" {
			continue
		}
		if _, present := extracted[k]; !present {
			extracted[k] = v
		}
	}

	if _, err := o.dialogs.StartDialog(userID, intent, extracted); err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}
	resp, err := o.dialogs.ProcessUserInput(userID, text, nil)
	if err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}
	return resultFromDialog(resp, models.SourceRAG), nil
}

// ResolveFollowUp feeds a follow-up reply into the user's active dialog. When
// the dialog is awaiting confirmation the reply is interpreted as yes/no and
// a confirmed action is executed immediately, with the user profile snapshot
// available for field defaulting. If the active dialog has been swept in the
// meantime, it is restarted from the pending partial data so the user does
// not lose collected slots.
func (o *Orchestrator) ResolveFollowUp(ctx context.Context, userID, text string, pending *models.PendingFollowUp, userCtx map[string]any) (*models.AssistantResult, error) {
	if o.dialogs.AwaitingConfirmation(userID) {
		return o.resolveConfirmation(ctx, userID, text, userCtx)
	}

	resp, err := o.advanceDialog(userID, text, pending)
	if errors.Is(err, models.ErrNoActiveDialog) {
		if _, startErr := o.dialogs.StartDialog(userID, pending.Intent, pending.PartialData); startErr != nil {
			return nil, fmt.Errorf("rag: restart dialog: %w", startErr)
		}
		resp, err = o.advanceDialog(userID, text, pending)
	}
	if err != nil {
		return nil, err
	}
	return resultFromDialog(resp, models.SourceFollowUp), nil
}

func (o *Orchestrator) advanceDialog(userID, text string, pending *models.PendingFollowUp) (*models.DialogResponse, error) {
	var template *models.DialogTemplate
	if state, ok := o.dialogs.ActiveDialog(userID); ok {
		template = state.Template
	} else if t, ok := o.dialogs.Template(pending.Intent); ok {
		template = t
	}

	extracted := map[string]any{}
	if template != nil {
		extracted = o.extractSlots(text, template)
	}
	if len(extracted) == 0 && len(pending.MissingFields) > 0 && strings.TrimSpace(text) != "" {
		// A free-text answer with no recognizable structure fills the slot
		// that was just asked for.
		extracted[pending.MissingFields[0]] = strings.TrimSpace(text)
	}
	return o.dialogs.ProcessUserInput(userID, text, extracted)
}

// resolveConfirmation interprets the reply as an answer to the pending
// confirmation prompt. Confirmed actions are dispatched right away with the
// user profile snapshot, and the action outcome becomes the reply.
func (o *Orchestrator) resolveConfirmation(ctx context.Context, userID, text string, userCtx map[string]any) (*models.AssistantResult, error) {
	switch {
	case isAffirmative(text):
		resp, err := o.dialogs.ConfirmDialog(userID, true)
		if err != nil {
			return nil, fmt.Errorf("rag: %w", err)
		}
		result := resultFromDialog(resp, models.SourceFollowUp)
		if resp.Action != nil {
			actionResult := o.executor.ExecuteAction(ctx, resp.Action, userCtx)
			result.ActionResult = actionResult
			result.Message = actionResult.Message
			result.Navigate = actionResult.Screen
		}
		return result, nil
	case isNegative(text):
		resp, err := o.dialogs.ConfirmDialog(userID, false)
		if err != nil {
			return nil, fmt.Errorf("rag: %w", err)
		}
		return resultFromDialog(resp, models.SourceFollowUp), nil
	default:
		// Neither yes nor no: treat it as a correction and keep collecting.
		resp, err := o.dialogs.ProcessUserInput(userID, text, nil)
		if err != nil {
			return nil, fmt.Errorf("rag: %w", err)
		}
		return resultFromDialog(resp, models.SourceFollowUp), nil
	}
}

// classify decides the message intent. The keyword table rules first: it is
// deterministic in both mock and real modes and mirrors the backend agent's
// intent rules, so an explicit "log my sleep" can never lose to a borderline
// vector match. Only texts without a keyword hit are embedded and matched
// against the seeded exemplars, accepted above the similarity floor.
func (o *Orchestrator) classify(ctx context.Context, text string) (string, float64, error) {
	if intent := keywordIntent(text); intent != "" {
		return intent, 0, nil
	}

	vec, err := o.embedder.EmbedOne(ctx, text)
	if err != nil {
		return "", 0, fmt.Errorf("rag: embed query: %w", err)
	}
	matches, err := o.store.Search(vec, 1, map[string]any{"kind": "intent"})
	if err != nil {
		return "", 0, fmt.Errorf("rag: search intents: %w", err)
	}
	if len(matches) > 0 && matches[0].Similarity >= o.minSimilarity {
		if intent, ok := matches[0].Document.Metadata["intent"].(string); ok {
			return intent, matches[0].Similarity, nil
		}
	}
	return "", 0, nil
}

// keywordIntent is the deterministic rule table.
func keywordIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "appointment", "schedule", "checkup", "ultrasound", "doctor visit"):
		return "create_appointment"
	case containsAny(lower, "mood", "feeling", "i feel"):
		return "log_mood"
	case containsAny(lower, "sleep", "slept"):
		return "log_sleep"
	case containsAny(lower, "analytics", "stats", "trend", "chart", "summary"):
		return "query_analytics"
	default:
		return ""
	}
}

// extractSlots pulls structured values out of free text: dates, times,
// durations by pattern, everything else by matching the template's quick
// reply vocabulary.
func (o *Orchestrator) extractSlots(text string, template *models.DialogTemplate) map[string]any {
	extracted := make(map[string]any)
	lower := strings.ToLower(text)

	slots := make([]string, 0, len(template.RequiredSlots)+len(template.OptionalSlots))
	slots = append(slots, template.RequiredSlots...)
	slots = append(slots, template.OptionalSlots...)

	for _, slot := range slots {
		switch slot {
		case "date":
			if m := datePattern.FindString(text); m != "" {
				extracted[slot] = m
			}
		case "time", "bedtime", "wake_time":
			if m := timePattern.FindString(text); m != "" {
				extracted[slot] = m
			}
		case "duration":
			if m := durationPattern.FindStringSubmatch(lower); m != nil {
				extracted[slot] = m[1]
			}
		default:
			for _, candidate := range template.QuickReplies[slot] {
				if strings.Contains(lower, strings.ToLower(candidate)) {
					extracted[slot] = candidate
					break
				}
			}
		}
	}
	return extracted
}

func resultFromDialog(resp *models.DialogResponse, source string) *models.AssistantResult {
	return &models.AssistantResult{
		Message:          resp.Message,
		Intent:           resp.Intent,
		Source:           source,
		RequiresFollowUp: resp.RequiresFollowUp,
		PartialData:      resp.PartialData,
		MissingFields:    resp.MissingFields,
		QuickReplies:     resp.QuickReplies,
		Action:           resp.Action,
	}
}

func isAffirmative(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return containsAny(lower, "yes", "yeah", "yep", "confirm", "sure", "ok", "okay", "do it")
}

func isNegative(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return containsAny(lower, "no", "cancel", "nevermind", "never mind", "stop", "don't")
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
