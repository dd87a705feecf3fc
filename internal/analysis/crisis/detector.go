package crisis

import "strings"

// Category tags a class of risky content found in user text.
type Category string

const (
	SelfHarm  Category = "self-harm"
	Crisis    Category = "crisis"
	Emergency Category = "emergency"
)

// categoryOrder doubles as severity order: earlier categories take priority
// when several match and a single safety message has to be chosen.
var categoryOrder = []Category{SelfHarm, Crisis, Emergency}

var lexicon = map[Category][]string{
	SelfHarm: {
		"kill myself", "suicide", "suicidal", "self-harm", "self harm",
		"hurt myself", "harm myself", "end my life", "want to die",
		"end it all", "better off dead", "cutting myself",
	},
	Crisis: {
		"crisis", "can't go on", "cant go on", "no way out",
		"no reason to live", "nothing matters anymore", "falling apart",
		"can't take it anymore", "cant take it anymore",
	},
	Emergency: {
		"emergency", "urgent help", "call 911", "in danger right now",
		"need help right now", "immediate help",
	},
}

var safetyMessages = map[Category]string{
	SelfHarm: "I'm really concerned about what you just shared. You don't have to face this alone. " +
		"Please reach out to the 988 Suicide & Crisis Lifeline right now: call or text 988, any time, day or night. " +
		"If you are in immediate danger, please call 911. I'm staying right here with you.",
	Crisis: "It sounds like you're going through something really heavy right now, and I want you to have real support. " +
		"You can call or text 988 to talk with a trained crisis counselor at any hour. " +
		"Would you consider reaching out to them, or to someone you trust, right now?",
	Emergency: "This sounds urgent, and your safety comes first. " +
		"If you or someone near you is in immediate danger, please call 911 now. " +
		"For emotional support you can also call or text 988 at any time. I'm here with you.",
}

// Detect scans text for lexicon phrases and returns every matched category in
// severity order. Matching is case-insensitive substring matching. Detect is
// pure and total: unmatched or empty input yields nil.
func Detect(text string) []Category {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}

	var matched []Category
	for _, category := range categoryOrder {
		for _, phrase := range lexicon[category] {
			if strings.Contains(normalized, phrase) {
				matched = append(matched, category)
				break
			}
		}
	}
	return matched
}

// SafetyMessage picks the scripted safety reply for the most severe matched
// category. Self-harm wording wins over crisis wording, which wins over the
// generic concern wording. Empty input falls back to the generic script.
func SafetyMessage(categories []Category) string {
	for _, category := range categoryOrder {
		for _, matched := range categories {
			if matched == category {
				return safetyMessages[category]
			}
		}
	}
	return safetyMessages[Emergency]
}
