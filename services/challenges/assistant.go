package challenges

import (
	"context"
	"errors"
)

// Verdict is the assistant's judgement of a submitted answer
type Verdict struct {
	IsValid  bool   `json:"isValid"`
	Feedback string `json:"feedback"`
}

// Turn is one exchange of a tutoring conversation
type Turn struct {
	Role string `json:"role"` // "user" or "tutor"
	Text string `json:"text"`
}

// TutoringAssistant is the generative tutor. Implementations live outside
// this module; every call may be slow and may fail.
type TutoringAssistant interface {
	ValidateAnswer(ctx context.Context, question, answer string) (Verdict, error)
	Explain(ctx context.Context, topic string) (string, error)
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	CorrectSpelling(ctx context.Context, text string) (string, error)
	Chat(ctx context.Context, systemInstruction string, history []Turn, message string) (string, error)
}

var ErrAssistantOffline = errors.New("tutoring assistant is not configured")

// Offline is the assistant used when none is configured; every call fails
type Offline struct{}

func (Offline) ValidateAnswer(context.Context, string, string) (Verdict, error) {
	return Verdict{}, ErrAssistantOffline
}

func (Offline) Explain(context.Context, string) (string, error) {
	return "", ErrAssistantOffline
}

func (Offline) Translate(context.Context, string, string) (string, error) {
	return "", ErrAssistantOffline
}

func (Offline) CorrectSpelling(context.Context, string) (string, error) {
	return "", ErrAssistantOffline
}

func (Offline) Chat(context.Context, string, []Turn, string) (string, error) {
	return "", ErrAssistantOffline
}
