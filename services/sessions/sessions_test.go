package sessions

import (
	"context"
	"testing"
	"time"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/notify"
	"tutorhub/pkg/logger"
	"tutorhub/store"
	"tutorhub/store/memstore"

	"github.com/stretchr/testify/suite"
)

type SessionsTestSuite struct {
	suite.Suite
	ctx      context.Context
	ns       *memstore.Namespace
	notifier *notify.Notifier
	store    *store.Store
	sm       *SessionManager
	now      time.Time
}

func (s *SessionsTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ns = memstore.NewNamespace()
	s.notifier = notify.New(logger.Discard())
	s.store = store.New(s.ns.Open(), s.notifier, store.Options{Logger: logger.Discard()})
	s.now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.sm = s.manager(false)
}

func (s *SessionsTestSuite) manager(hash bool) *SessionManager {
	return NewSessionManager(s.store, Options{
		HashPasswords: hash,
		Logger:        logger.Discard(),
		Now:           func() time.Time { return s.now },
	})
}

func TestSessionsSuite(t *testing.T) {
	suite.Run(t, new(SessionsTestSuite))
}

func (s *SessionsTestSuite) registerAmina() db.UserRecord {
	user, err := s.sm.Register(s.ctx, RegisterParams{ID: "amina", Name: "Amina", Password: "pass123"})
	s.Require().NoError(err)
	return user
}

func (s *SessionsTestSuite) blockUser(id string) {
	users, err := s.sm.Users().List(s.ctx)
	s.Require().NoError(err)
	for i := range users {
		if users[i].ID == id {
			users[i].IsBlocked = true
		}
	}
	s.Require().NoError(s.sm.Users().SaveAll(s.ctx, users))
}

func (s *SessionsTestSuite) TestRegisterCreatesAuthenticatedSession() {
	user := s.registerAmina()

	s.Equal(0, user.Points)
	s.Equal(1, user.Streak)
	s.True(s.now.Equal(user.LastActive.Time))
	s.Equal(Authenticated, s.sm.State())

	current, ok, err := s.sm.CurrentUser(s.ctx)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("amina", current.ID)
}

func (s *SessionsTestSuite) TestRegisterDuplicateLeavesUsersUnchanged() {
	s.registerAmina()
	before, _, err := s.store.Raw(s.ctx, db.KeyUsers)
	s.Require().NoError(err)

	_, err = s.sm.Register(s.ctx, RegisterParams{ID: "amina", Name: "Other", Password: "x"})
	s.True(apperrors.HasCode(err, apperrors.ErrCodeDuplicateID))

	after, _, err := s.store.Raw(s.ctx, db.KeyUsers)
	s.Require().NoError(err)
	s.Equal(before, after)
}

func (s *SessionsTestSuite) TestRegisterValidates() {
	cases := []RegisterParams{
		{ID: "am", Name: "Amina", Password: "x"},
		{ID: "amina!", Name: "Amina", Password: "x"},
		{ID: "amina", Name: "  ", Password: "x"},
		{ID: "amina", Name: "Amina", Password: ""},
	}
	for _, p := range cases {
		_, err := s.sm.Register(s.ctx, p)
		s.True(apperrors.HasCode(err, apperrors.ErrCodeValidationFailed), "%+v", p)
	}
	users, _ := s.sm.Users().List(s.ctx)
	s.Empty(users)
}

func (s *SessionsTestSuite) TestLoginFailures() {
	s.registerAmina()
	s.Require().NoError(s.sm.Logout(s.ctx))

	_, err := s.sm.Login(s.ctx, "nobody", "pass123")
	s.True(apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

	_, err = s.sm.Login(s.ctx, "amina", "wrong")
	s.True(apperrors.HasCode(err, apperrors.ErrCodeWrongPassword))

	s.Equal(Anonymous, s.sm.State())
	_, ok, _ := s.sm.CurrentUser(s.ctx)
	s.False(ok, "no partial session")
}

func (s *SessionsTestSuite) TestLoginUpdatesLastActive() {
	s.registerAmina()
	s.Require().NoError(s.sm.Logout(s.ctx))

	s.now = s.now.Add(time.Hour)
	user, err := s.sm.Login(s.ctx, "amina", "pass123")
	s.Require().NoError(err)
	s.True(s.now.Equal(user.LastActive.Time))
	s.Equal(Authenticated, s.sm.State())
}

func (s *SessionsTestSuite) TestBlockedUserCannotLogin() {
	s.registerAmina()
	s.Require().NoError(s.sm.Logout(s.ctx))
	s.blockUser("amina")

	_, err := s.sm.Login(s.ctx, "amina", "pass123")
	s.True(apperrors.HasCode(err, apperrors.ErrCodeUserBlocked))
	s.Equal(Anonymous, s.sm.State())
}

func (s *SessionsTestSuite) TestResolveSessionForcesBlockedLogout() {
	s.registerAmina()

	var transitions []State
	unsubscribe := s.sm.OnStateChange(func(st State) { transitions = append(transitions, st) })
	defer unsubscribe()

	s.blockUser("amina")

	state, err := s.sm.ResolveSession(s.ctx)
	s.Require().NoError(err)
	s.Equal(Anonymous, state)
	s.Equal([]State{Blocked, Anonymous}, transitions)

	_, ok, err := s.store.Raw(s.ctx, db.KeySession)
	s.Require().NoError(err)
	s.False(ok, "session pointer cleared")
}

func (s *SessionsTestSuite) TestResolveSessionClearsStalePointer() {
	s.Require().NoError(s.store.SetJSON(s.ctx, db.KeySession, "ghost"))

	state, err := s.sm.ResolveSession(s.ctx)
	s.Require().NoError(err)
	s.Equal(Anonymous, state)

	_, ok, _ := s.store.Raw(s.ctx, db.KeySession)
	s.False(ok)
}

func (s *SessionsTestSuite) TestResolveSessionSeesOtherContextLogin() {
	s.registerAmina()

	other := NewSessionManager(
		store.New(s.ns.Open(), nil, store.Options{Logger: logger.Discard()}),
		Options{Logger: logger.Discard()},
	)
	s.Equal(Anonymous, other.State())

	state, err := other.ResolveSession(s.ctx)
	s.Require().NoError(err)
	s.Equal(Authenticated, state)
}

func (s *SessionsTestSuite) TestLogoutBroadcasts() {
	s.registerAmina()

	signals := 0
	defer s.notifier.Subscribe(func(notify.Signal) { signals++ }).Close()

	s.Require().NoError(s.sm.Logout(s.ctx))
	s.Equal(1, signals)
	s.Equal(Anonymous, s.sm.State())
}

func (s *SessionsTestSuite) TestAddPointsScenario() {
	s.registerAmina()

	s.now = s.now.Add(10 * time.Minute)
	_, err := s.sm.AddPoints(s.ctx, 10)
	s.Require().NoError(err)

	users, err := s.sm.Users().List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.Equal(10, users[0].Points)
	s.True(s.now.Equal(users[0].LastActive.Time))
}

func (s *SessionsTestSuite) TestAddPointsIsPermissive() {
	s.registerAmina()

	user, err := s.sm.AddPoints(s.ctx, -25)
	s.Require().NoError(err)
	s.Equal(-25, user.Points)
}

func (s *SessionsTestSuite) TestAddPointsRequiresSession() {
	_, err := s.sm.AddPoints(s.ctx, 10)
	s.True(apperrors.HasCode(err, apperrors.ErrCodeNotAuthenticated))
}

func (s *SessionsTestSuite) TestUpdateProfile() {
	s.registerAmina()

	bio := "Physics student"
	grade := "11"
	user, applied, err := s.sm.UpdateProfile(s.ctx, ProfilePatch{Bio: &bio, Grade: &grade})
	s.Require().NoError(err)
	s.True(applied)
	s.Equal("Physics student", user.Bio)
	s.Equal("Amina", user.Name, "fields outside the patch are kept")

	bad := "data:image/png;base64,aGVsbG8="
	_, _, err = s.sm.UpdateProfile(s.ctx, ProfilePatch{ProfileImage: &bad})
	s.True(apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

func (s *SessionsTestSuite) TestUpdateProfileIgnoredWhenAnonymous() {
	s.registerAmina()
	s.Require().NoError(s.sm.Logout(s.ctx))
	before, _, _ := s.store.Raw(s.ctx, db.KeyUsers)

	bio := "changed"
	_, applied, err := s.sm.UpdateProfile(s.ctx, ProfilePatch{Bio: &bio})
	s.Require().NoError(err)
	s.False(applied)

	after, _, _ := s.store.Raw(s.ctx, db.KeyUsers)
	s.Equal(before, after)

	bad := "not-an-image"
	_, applied, err = s.sm.UpdateProfile(s.ctx, ProfilePatch{ProfileImage: &bad})
	s.Require().NoError(err)
	s.False(applied)
}

func (s *SessionsTestSuite) TestUpdateProfileIgnoredWhenSessionUserRemoved() {
	s.registerAmina()
	s.Require().NoError(s.sm.Users().SaveAll(s.ctx, nil))

	bio := "changed"
	_, applied, err := s.sm.UpdateProfile(s.ctx, ProfilePatch{Bio: &bio})
	s.Require().NoError(err)
	s.False(applied)

	users, err := s.sm.Users().List(s.ctx)
	s.Require().NoError(err)
	s.Empty(users)

	state, err := s.sm.ResolveSession(s.ctx)
	s.Require().NoError(err)
	s.Equal(Anonymous, state)
}

func (s *SessionsTestSuite) TestChangePassword() {
	s.registerAmina()

	err := s.sm.ChangePassword(s.ctx, "wrong", "new-pass")
	s.True(apperrors.HasCode(err, apperrors.ErrCodeWrongPassword))

	s.Require().NoError(s.sm.ChangePassword(s.ctx, "pass123", "new-pass"))
	s.Require().NoError(s.sm.Logout(s.ctx))
	_, err = s.sm.Login(s.ctx, "amina", "new-pass")
	s.NoError(err)
}

func (s *SessionsTestSuite) TestHashedPasswords() {
	s.sm = s.manager(true)
	user := s.registerAmina()
	s.NotEqual("pass123", user.Password)

	s.Require().NoError(s.sm.Logout(s.ctx))
	_, err := s.sm.Login(s.ctx, "amina", "pass123")
	s.NoError(err)
}
