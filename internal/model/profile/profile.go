package profile

// Mood is the session-scoped signal derived from recent user text.
type Mood string

const (
	MoodNeutral  Mood = "neutral"
	MoodPositive Mood = "positive"
	MoodNegative Mood = "negative"
	MoodTired    Mood = "tired"
)

// UserProfile is the small key-value profile derived from free text.
// It is created lazily on first extraction and merged additively.
type UserProfile struct {
	Name  string         `json:"name,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Merge overlays other onto p. New keys overwrite old values; there is no
// deletion path.
func (p UserProfile) Merge(other UserProfile) UserProfile {
	if other.Name != "" {
		p.Name = other.Name
	}
	if len(other.Attrs) > 0 {
		if p.Attrs == nil {
			p.Attrs = make(map[string]any, len(other.Attrs))
		}
		for k, v := range other.Attrs {
			p.Attrs[k] = v
		}
	}
	return p
}
