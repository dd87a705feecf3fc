package profile

import (
	"regexp"
	"strings"

	model "github.com/harborlight/henry/backend/internal/model/profile"
)

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([a-z]+)`),
	regexp.MustCompile(`(?i)\bi'?m called ([a-z]+)`),
	regexp.MustCompile(`(?i)\bcall me ([a-z]+)`),
}

// moodOrder fixes scan order so extraction stays deterministic when a message
// carries keywords from several families.
var moodOrder = []model.Mood{model.MoodPositive, model.MoodNegative, model.MoodTired}

var moodKeywords = map[model.Mood][]string{
	model.MoodPositive: {"happy", "great", "good", "wonderful", "excited", "fantastic"},
	model.MoodNegative: {"sad", "depressed", "anxious", "down", "lonely", "stressed", "upset"},
	model.MoodTired:    {"tired", "exhausted", "sleepy", "drained", "worn out"},
}

// Extract scans user text for self-introductions and mood signals. The
// returned profile is p with any new attributes merged in; mood is reported
// separately because it is session-scoped, last-detected-wins state rather
// than a durable attribute. moodFound is false when the text carries no
// signal, so callers keep the previous mood.
func Extract(p model.UserProfile, text string) (updated model.UserProfile, mood model.Mood, moodFound bool) {
	updated = p
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return updated, model.MoodNeutral, false
	}

	for _, pattern := range namePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			updated = updated.Merge(model.UserProfile{Name: capitalize(match[1])})
			break
		}
	}

	for _, candidate := range moodOrder {
		for _, keyword := range moodKeywords[candidate] {
			if strings.Contains(normalized, keyword) {
				return updated, candidate, true
			}
		}
	}
	return updated, model.MoodNeutral, false
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}
