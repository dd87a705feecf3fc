package intent

import (
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/harborlight/henry/backend/internal/model/profile"
)

// rule is a single fast-path intent. Templates may carry two placeholders:
// {{greeting}} expands to a time-of-day greeting and {{name}} expands to
// ", <name>" when the profile has one, or to nothing.
type rule struct {
	pattern *regexp.Regexp
	maxLen  int // 0 means no length gate
	replies []string
}

// rules are checked in order; the first match wins. Keep greeting first so
// "hello, how are you" stays a greeting.
var rules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)^\s*(hi|hiya|hello|hey|howdy|good (morning|afternoon|evening))\b`),
		replies: []string{
			"{{greeting}}{{name}}! I'm Henry. How are you feeling today?",
			"{{greeting}}{{name}}! What's on your mind?",
			"Hey there{{name}}! I'm here whenever you want to talk.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)how (are|r) (you|u)|how's it going|how are things`),
		replies: []string{
			"I'm doing well, thank you for asking{{name}}! More importantly, how are you doing?",
			"All good on my end! How has your day been treating you?",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(thanks|thank you|thx|ty|appreciate it)\b`),
		replies: []string{
			"You're very welcome{{name}}!",
			"Any time{{name}}. That's what I'm here for.",
			"Glad I could help!",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)what('?s| is) your name|who are you\b`),
		replies: []string{
			"I'm Henry, your companion here. And you are?",
			"My name is Henry. I'm always around if you'd like to chat.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(weather|sunny|raining|rainy|snowing)\b`),
		maxLen:  60,
		replies: []string{
			"I can't see outside from in here, but I hope it's lovely where you are!",
			"Whatever the sky is doing, I hope your day is a bright one{{name}}.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(bye|goodbye|see you|good night|goodnight|take care)\b`),
		replies: []string{
			"Take care{{name}}! I'll be right here whenever you need me.",
			"Goodbye{{name}}! Be kind to yourself.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)\bcan you help\b|\bi need help\b|\bhelp me\b`),
		replies: []string{
			"Of course{{name}}. Tell me a little about what's going on, and we'll take it from there.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)what can you do|what do you do`),
		replies: []string{
			"I'm here to listen, keep you company, and point you toward support when it helps. You can tell me anything.",
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)are you (an? )?(ai|bot|robot|real|human)`),
		replies: []string{
			"I'm an AI companion, not a person, but the listening is real. What would you like to talk about?",
		},
	},
}

// Responder answers small talk locally so the remote model is only consulted
// for messages that need it. Randomness and the clock are injected so tests
// can pin outputs.
type Responder struct {
	rng *rand.Rand
	now func() time.Time
}

// New builds a Responder. A nil rng always picks the first template variant;
// a nil now falls back to time.Now.
func New(rng *rand.Rand, now func() time.Time) *Responder {
	if now == nil {
		now = time.Now
	}
	return &Responder{rng: rng, now: now}
}

// Reply returns the first matching rule's reply, personalized with the
// profile name and a time-of-day greeting. The second return is false when no
// rule matches and the caller should fall through to the remote model.
func (r *Responder) Reply(text string, prof profile.UserProfile) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	for _, candidate := range rules {
		if candidate.maxLen > 0 && len(trimmed) > candidate.maxLen {
			continue
		}
		if !candidate.pattern.MatchString(trimmed) {
			continue
		}
		return r.expand(r.pick(candidate.replies), prof), true
	}
	return "", false
}

func (r *Responder) pick(replies []string) string {
	if r.rng == nil || len(replies) == 1 {
		return replies[0]
	}
	return replies[r.rng.Intn(len(replies))]
}

func (r *Responder) expand(template string, prof profile.UserProfile) string {
	name := ""
	if prof.Name != "" {
		name = ", " + prof.Name
	}
	out := strings.ReplaceAll(template, "{{name}}", name)
	return strings.ReplaceAll(out, "{{greeting}}", greetingForHour(r.now().Hour()))
}

func greetingForHour(hour int) string {
	switch {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}
