package moderation

import "context"

// Verdict is the classifier decision on a topic
type Verdict string

const (
	VerdictAllowed   Verdict = "0"
	VerdictPointless Verdict = "1"
	VerdictSensitive Verdict = "2"
)

// Allowed reports whether the topic may be admitted
func (v Verdict) Allowed() bool {
	return v == VerdictAllowed
}

// Reason describes a rejection to the caller
func (v Verdict) Reason() string {
	switch v {
	case VerdictPointless:
		return "the topic must be meaningful and specific"
	case VerdictSensitive:
		return "the topic you entered contains sensitive information, please try another topic"
	}
	return ""
}

// Moderator classifies a topic before admission
type Moderator interface {
	Check(ctx context.Context, text string) (Verdict, error)
}
