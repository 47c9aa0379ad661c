package dialog

import (
	"github.com/BabyNest/assistant/internal/models"
)

// DefaultTemplates returns the static slot-filling templates keyed by intent.
// Slot order in RequiredSlots is the prompting order; ties between missing
// slots resolve by this declared order.
func DefaultTemplates() map[string]*models.DialogTemplate {
	return map[string]*models.DialogTemplate{
		"create_appointment": {
			Intent:        "create_appointment",
			Action:        models.ActionCreateAppointment,
			RequiredSlots: []string{"title", "date", "time", "location"},
			OptionalSlots: []string{"description"},
			SlotQuestions: map[string]string{
				"title":       "What type of appointment would you like to schedule?",
				"date":        "What date would you prefer for this appointment?",
				"time":        "What time works best for you?",
				"location":    "Where should this appointment take place?",
				"description": "Any additional notes for this appointment?",
			},
			QuickReplies: map[string][]string{
				"title":    {"Checkup", "Ultrasound", "Blood Test", "Consultation"},
				"time":     {"9:00", "14:00", "Morning", "Afternoon"},
				"location": {"City Hospital", "Clinic", "Home"},
			},
			ConfirmationMessage: "Perfect! I'll schedule your {title} appointment for {date} at {time} at {location}.",
			MaxTurns:            5,
		},

		"log_mood": {
			Intent:        "log_mood",
			Action:        models.ActionCreateMood,
			RequiredSlots: []string{"mood"},
			OptionalSlots: []string{"intensity", "note"},
			SlotQuestions: map[string]string{
				"mood":      "How are you feeling right now?",
				"intensity": "How intense is this feeling?",
				"note":      "Would you like to add any notes about your mood?",
			},
			QuickReplies: map[string][]string{
				"mood":      {"Happy", "Anxious", "Calm", "Tired", "Stressed"},
				"intensity": {"Low", "Medium", "High"},
			},
			ConfirmationMessage: "Got it! I've logged your mood as {mood} with {intensity} intensity.",
			MaxTurns:            3,
		},

		"log_sleep": {
			Intent:        "log_sleep",
			Action:        models.ActionCreateSleep,
			RequiredSlots: []string{"duration"},
			OptionalSlots: []string{"quality", "bedtime", "wake_time", "note"},
			SlotQuestions: map[string]string{
				"duration":  "How many hours did you sleep?",
				"quality":   "How was your sleep quality?",
				"bedtime":   "What time did you go to bed?",
				"wake_time": "What time did you wake up?",
				"note":      "Any additional notes about your sleep?",
			},
			QuickReplies: map[string][]string{
				"duration": {"8 hours", "7 hours", "6 hours", "9 hours"},
				"quality":  {"Excellent", "Good", "Fair", "Poor"},
			},
			ConfirmationMessage: "Sleep logged! You slept {duration} hours with {quality} quality.",
			MaxTurns:            4,
		},

		"query_analytics": {
			Intent:        "query_analytics",
			Action:        models.ActionQueryStats,
			RequiredSlots: []string{"metric"},
			OptionalSlots: []string{"timeframe", "chart_type"},
			SlotQuestions: map[string]string{
				"metric":     "What would you like to analyze?",
				"timeframe":  "What time period are you interested in?",
				"chart_type": "What type of visualization would you prefer?",
			},
			QuickReplies: map[string][]string{
				"metric":     {"Weight", "Sleep", "Mood", "Symptoms"},
				"timeframe":  {"This week", "This month", "Today", "All time"},
				"chart_type": {"Summary", "Trend", "Comparison"},
			},
			ConfirmationMessage: "I'll generate a {chart_type} analysis of your {metric} for {timeframe}.",
			MaxTurns:            3,
		},
	}
}
