package challenges

import (
	"context"
	"errors"
	"testing"
	"time"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/services/sessions"
	"tutorhub/services/settings"
	"tutorhub/store"
	"tutorhub/store/memstore"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockAssistant struct {
	mock.Mock
}

func (m *MockAssistant) ValidateAnswer(ctx context.Context, question, answer string) (Verdict, error) {
	args := m.Called(ctx, question, answer)
	return args.Get(0).(Verdict), args.Error(1)
}

func (m *MockAssistant) Explain(ctx context.Context, topic string) (string, error) {
	args := m.Called(ctx, topic)
	return args.String(0), args.Error(1)
}

func (m *MockAssistant) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	args := m.Called(ctx, text, targetLanguage)
	return args.String(0), args.Error(1)
}

func (m *MockAssistant) CorrectSpelling(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

func (m *MockAssistant) Chat(ctx context.Context, systemInstruction string, history []Turn, message string) (string, error) {
	args := m.Called(ctx, systemInstruction, history, message)
	return args.String(0), args.Error(1)
}

type ChallengesTestSuite struct {
	suite.Suite
	ctx       context.Context
	store     *store.Store
	assistant *MockAssistant
	sm        *sessions.SessionManager
	registry  *settings.Registry
	svc       *Service
	now       time.Time
}

func (s *ChallengesTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.New(memstore.New(), nil, store.Options{Logger: logger.Discard()})
	s.assistant = new(MockAssistant)
	s.now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	clock := func() time.Time { return s.now }
	s.sm = sessions.NewSessionManager(s.store, sessions.Options{Logger: logger.Discard(), Now: clock})
	s.registry = settings.NewRegistry(s.store, logger.Discard())
	s.svc = NewService(s.assistant, s.sm, s.registry, Options{
		Logger:   logger.Discard(),
		Now:      clock,
		Location: time.UTC,
	})

	_, err := s.sm.Register(s.ctx, sessions.RegisterParams{ID: "amina", Name: "Amina", Password: "pass123"})
	s.Require().NoError(err)
}

func TestChallengesSuite(t *testing.T) {
	suite.Run(t, new(ChallengesTestSuite))
}

func (s *ChallengesTestSuite) points() int {
	user, found, err := s.sm.CurrentUser(s.ctx)
	s.Require().NoError(err)
	s.Require().True(found)
	return user.Points
}

func (s *ChallengesTestSuite) TestSubmitValidAnswerAwardsPoints() {
	s.assistant.On("ValidateAnswer", mock.Anything, "2+2?", "4").Return(Verdict{IsValid: true, Feedback: "Correct"}, nil)

	res, err := s.svc.Submit(s.ctx, "2+2?", "4", 20)
	s.Require().NoError(err)
	s.True(res.Verdict.IsValid)
	s.Equal(20, res.Awarded)
	s.Equal(20, res.User.Points)
	s.Empty(res.User.Password)
	s.Equal(20, s.points())
	s.assistant.AssertExpectations(s.T())
}

func (s *ChallengesTestSuite) TestSubmitInvalidAnswerAwardsNothing() {
	s.assistant.On("ValidateAnswer", mock.Anything, "2+2?", "5").Return(Verdict{IsValid: false, Feedback: "Try again"}, nil)

	res, err := s.svc.Submit(s.ctx, "2+2?", "5", 20)
	s.Require().NoError(err)
	s.False(res.Verdict.IsValid)
	s.Zero(res.Awarded)
	s.Zero(s.points())
}

func (s *ChallengesTestSuite) TestSubmitAssistantFailureLeavesStoreUntouched() {
	before, _, err := s.store.Raw(s.ctx, db.KeyUsers)
	s.Require().NoError(err)

	s.assistant.On("ValidateAnswer", mock.Anything, mock.Anything, mock.Anything).Return(Verdict{}, errors.New("quota exceeded"))

	_, err = s.svc.Submit(s.ctx, "2+2?", "4", 20)
	s.True(apperrors.HasCode(err, apperrors.ErrCodeAssistantFailed))

	after, _, err := s.store.Raw(s.ctx, db.KeyUsers)
	s.Require().NoError(err)
	s.Equal(before, after)
}

func (s *ChallengesTestSuite) TestSubmitRequiresSession() {
	s.Require().NoError(s.sm.Logout(s.ctx))

	_, err := s.svc.Submit(s.ctx, "2+2?", "4", 20)
	s.True(apperrors.HasCode(err, apperrors.ErrCodeNotAuthenticated))
	s.assistant.AssertNotCalled(s.T(), "ValidateAnswer", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ChallengesTestSuite) TestChatUsesSystemInstruction() {
	instruction := "Answer only in French."
	_, err := s.registry.Write(s.ctx, settings.Patch{SystemInstruction: &instruction})
	s.Require().NoError(err)

	history := []Turn{{Role: "user", Text: "hi"}, {Role: "tutor", Text: "bonjour"}}
	s.assistant.On("Chat", mock.Anything, instruction, history, "how are you?").Return("très bien", nil)

	reply, err := s.svc.Chat(s.ctx, history, "how are you?")
	s.Require().NoError(err)
	s.Equal("très bien", reply)

	_, err = s.svc.Chat(s.ctx, nil, "  ")
	s.True(apperrors.HasCode(err, apperrors.ErrCodeMessageEmpty))
}

func (s *ChallengesTestSuite) TestOfflineAssistant() {
	svc := NewService(nil, s.sm, s.registry, Options{Logger: logger.Discard()})

	_, err := svc.Explain(s.ctx, "fractions")
	s.True(apperrors.HasCode(err, apperrors.ErrCodeAssistantFailed))
}

func (s *ChallengesTestSuite) TestDailyRewardOncePerDay() {
	user, reward, err := s.svc.ClaimDailyReward(s.ctx)
	s.Require().NoError(err)
	s.Equal(settings.Defaults().DailyReward, reward)
	s.Equal(reward, user.Points)
	s.Equal(1, user.Streak)
	s.Equal("2024-03-01", user.LastRewardDay)

	s.now = s.now.Add(10 * time.Hour)
	_, _, err = s.svc.ClaimDailyReward(s.ctx)
	s.True(apperrors.HasCode(err, apperrors.ErrCodeAlreadyClaimed))
	s.Equal(reward, s.points())
}

func (s *ChallengesTestSuite) TestDailyRewardStreak() {
	bonus := 25
	_, err := s.registry.Write(s.ctx, settings.Patch{DailyReward: &bonus})
	s.Require().NoError(err)

	_, _, err = s.svc.ClaimDailyReward(s.ctx)
	s.Require().NoError(err)

	s.now = s.now.AddDate(0, 0, 1)
	user, _, err := s.svc.ClaimDailyReward(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, user.Streak)
	s.Equal(50, user.Points)

	s.now = s.now.AddDate(0, 0, 3)
	user, _, err = s.svc.ClaimDailyReward(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, user.Streak, "gap resets the streak")
	s.Equal(75, user.Points)
}
