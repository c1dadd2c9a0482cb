package challenges

import (
	"context"
	"strings"
	"time"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/pkg/breaker"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
	"tutorhub/services/sessions"
	"tutorhub/services/settings"

	"github.com/sony/gobreaker"
)

const dayLayout = "2006-01-02"

type Options struct {
	Logger *logger.Logger
	Now    func() time.Time
	// Location decides where a calendar day starts for the daily reward
	Location *time.Location
	// Timeout bounds a single assistant call
	Timeout time.Duration
}

// Service awards points for tutoring activity. Points are only written
// after the assistant has answered.
type Service struct {
	assistant TutoringAssistant
	sessions  *sessions.SessionManager
	settings  *settings.Registry
	cb        *gobreaker.CircuitBreaker
	log       *logger.Logger
	now       func() time.Time
	loc       *time.Location
	timeout   time.Duration
}

func NewService(assistant TutoringAssistant, sm *sessions.SessionManager, reg *settings.Registry, opts Options) *Service {
	if assistant == nil {
		assistant = Offline{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Service{
		assistant: assistant,
		sessions:  sm,
		settings:  reg,
		cb:        breaker.New(breaker.Config{Name: "assistant", Timeout: time.Minute}),
		log:       opts.Logger.Component("challenges"),
		now:       opts.Now,
		loc:       opts.Location,
		timeout:   opts.Timeout,
	}
}

// call runs one assistant operation with a deadline and maps any failure
// to ASSISTANT_FAILED
func call[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := breaker.Execute(ctx, s.cb, func() (T, error) {
		return fn(ctx)
	})
	metrics.RecordAssistantCall(op, err == nil)
	if err != nil {
		s.log.WithError(err).WithField("operation", op).Warn("assistant call failed")
		var zero T
		return zero, apperrors.NewAssistantFailed(op, err)
	}
	return res, nil
}

type SubmitResult struct {
	Verdict Verdict       `json:"verdict"`
	Awarded int           `json:"awarded"`
	User    db.UserRecord `json:"user"`
}

// Submit asks the assistant to judge answer and awards reward points only
// when it is valid. On assistant failure nothing is written.
func (s *Service) Submit(ctx context.Context, question, answer string, reward int) (SubmitResult, error) {
	if strings.TrimSpace(answer) == "" {
		return SubmitResult{}, apperrors.NewValidationError("Answer is required")
	}
	if reward < 0 {
		return SubmitResult{}, apperrors.NewValidationError("Reward cannot be negative")
	}

	user, found, err := s.sessions.CurrentUser(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	if !found {
		return SubmitResult{}, apperrors.NewNotAuthenticated()
	}

	verdict, err := call(ctx, s, "validate_answer", func(ctx context.Context) (Verdict, error) {
		return s.assistant.ValidateAnswer(ctx, question, answer)
	})
	if err != nil {
		return SubmitResult{}, err
	}

	result := SubmitResult{Verdict: verdict, User: user.Public()}
	if !verdict.IsValid || reward == 0 {
		return result, nil
	}

	updated, err := s.sessions.AwardPoints(ctx, reward, "challenge")
	if err != nil {
		return SubmitResult{}, err
	}
	result.Awarded = reward
	result.User = updated.Public()
	return result, nil
}

func (s *Service) Explain(ctx context.Context, topic string) (string, error) {
	return call(ctx, s, "explain", func(ctx context.Context) (string, error) {
		return s.assistant.Explain(ctx, topic)
	})
}

func (s *Service) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	return call(ctx, s, "translate", func(ctx context.Context) (string, error) {
		return s.assistant.Translate(ctx, text, targetLanguage)
	})
}

func (s *Service) CorrectSpelling(ctx context.Context, text string) (string, error) {
	return call(ctx, s, "correct_spelling", func(ctx context.Context) (string, error) {
		return s.assistant.CorrectSpelling(ctx, text)
	})
}

// Chat sends message with the administrator's system instruction
func (s *Service) Chat(ctx context.Context, history []Turn, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperrors.NewMessageEmpty()
	}
	cfg, err := s.settings.Read(ctx)
	if err != nil {
		return "", err
	}
	return call(ctx, s, "chat", func(ctx context.Context) (string, error) {
		return s.assistant.Chat(ctx, cfg.SystemInstruction, history, message)
	})
}

// ClaimDailyReward grants the configured daily reward once per calendar
// day. Claiming on consecutive days grows the streak; a gap resets it
// to 1.
func (s *Service) ClaimDailyReward(ctx context.Context) (db.UserRecord, int, error) {
	cfg, err := s.settings.Read(ctx)
	if err != nil {
		return db.UserRecord{}, 0, err
	}

	now := s.now().In(s.loc)
	today := now.Format(dayLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dayLayout)
	reward := cfg.DailyReward

	user, err := s.sessions.UpdateCurrent(ctx, func(u *db.UserRecord) error {
		switch u.LastRewardDay {
		case today:
			return apperrors.NewAlreadyClaimed(today)
		case yesterday:
			u.Streak++
		default:
			u.Streak = 1
		}
		u.LastRewardDay = today
		u.Points += reward
		u.LastActive = db.At(now)
		return nil
	})
	if err != nil {
		return db.UserRecord{}, 0, err
	}

	metrics.RecordPoints("daily_reward", reward)
	s.log.WithFields(map[string]any{"user_id": user.ID, "streak": user.Streak}).Info("daily reward claimed")
	return user.Public(), reward, nil
}
