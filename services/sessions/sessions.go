package sessions

import (
	"context"
	"strings"
	"sync"
	"time"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
	"tutorhub/store"
	"tutorhub/utils"
)

type State int

const (
	Anonymous State = iota
	Authenticated
	// Blocked is reported while a session pointing at a blocked user is
	// being torn down; it always settles on Anonymous
	Blocked
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Blocked:
		return "blocked"
	default:
		return "anonymous"
	}
}

type Options struct {
	HashPasswords bool
	Logger        *logger.Logger
	Now           func() time.Time
}

// SessionManager resolves the current user from the shared session
// pointer and the users collection. It keeps only the last resolved state
// in memory; user data is re-read on every call.
type SessionManager struct {
	store *store.Store
	users *store.Collection[db.UserRecord]
	hash  bool
	log   *logger.Logger
	now   func() time.Time

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
}

func NewSessionManager(st *store.Store, opts Options) *SessionManager {
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &SessionManager{
		store:     st,
		users:     store.NewCollection(st, db.KeyUsers, db.UserKey),
		hash:      opts.HashPasswords,
		log:       opts.Logger.Component("sessions"),
		now:       opts.Now,
		listeners: make(map[int]func(State)),
	}
}

// Users exposes the users collection to other services
func (sm *SessionManager) Users() *store.Collection[db.UserRecord] {
	return sm.users
}

func (sm *SessionManager) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// OnStateChange registers fn for state transitions and returns a function
// that removes it
func (sm *SessionManager) OnStateChange(fn func(State)) func() {
	sm.mu.Lock()
	sm.nextID++
	id := sm.nextID
	sm.listeners[id] = fn
	sm.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sm.mu.Lock()
			delete(sm.listeners, id)
			sm.mu.Unlock()
		})
	}
}

func (sm *SessionManager) setState(state State) {
	sm.mu.Lock()
	changed := sm.state != state || state == Blocked
	sm.state = state
	listeners := make([]func(State), 0, len(sm.listeners))
	for _, fn := range sm.listeners {
		listeners = append(listeners, fn)
	}
	sm.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(state)
	}
}

type RegisterParams struct {
	ID          string
	Name        string
	Password    string
	Email       string
	Institution string
	Grade       string
}

// Register creates the account and signs it in
func (sm *SessionManager) Register(ctx context.Context, p RegisterParams) (db.UserRecord, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)

	if err := utils.ValidateUserID(p.ID); err != nil {
		return db.UserRecord{}, err
	}
	if err := utils.ValidateName(p.Name); err != nil {
		return db.UserRecord{}, err
	}
	if err := utils.ValidatePassword(p.Password); err != nil {
		return db.UserRecord{}, err
	}
	if err := utils.ValidateEmail(p.Email); err != nil {
		return db.UserRecord{}, err
	}

	password := p.Password
	if sm.hash {
		hashed, err := utils.HashPassword(p.Password)
		if err != nil {
			return db.UserRecord{}, err
		}
		password = hashed
	}

	user := db.UserRecord{
		ID:          p.ID,
		Name:        p.Name,
		Email:       p.Email,
		Password:    password,
		Points:      0,
		Streak:      1,
		LastActive:  db.At(sm.now()),
		Institution: p.Institution,
		Grade:       p.Grade,
	}

	_, err := sm.users.Mutate(ctx, func(users []db.UserRecord) ([]db.UserRecord, error) {
		if _, exists := db.FindUser(users, user.ID); exists {
			return nil, apperrors.NewDuplicateID(user.ID)
		}
		return append(users, user), nil
	})
	if err != nil {
		return db.UserRecord{}, err
	}

	if err := sm.store.SetJSON(ctx, db.KeySession, user.ID); err != nil {
		return db.UserRecord{}, err
	}

	metrics.IncrementRegistrations()
	sm.log.WithField("user_id", user.ID).Info("user registered")
	sm.setState(Authenticated)
	return user, nil
}

// Login checks credentials in order: existence, password, block flag.
// Nothing is written unless all three pass.
func (sm *SessionManager) Login(ctx context.Context, id, password string) (db.UserRecord, error) {
	id = strings.TrimSpace(id)

	user, err := sm.UpdateUser(ctx, id, func(u *db.UserRecord) error {
		if !utils.CheckPassword(u.Password, password) {
			return apperrors.NewWrongPassword(id)
		}
		if u.IsBlocked {
			return apperrors.NewUserBlocked(id)
		}
		u.LastActive = db.At(sm.now())
		return nil
	})
	if err != nil {
		metrics.RecordLoginAttempt(loginStatus(err))
		return db.UserRecord{}, err
	}

	if err := sm.store.SetJSON(ctx, db.KeySession, user.ID); err != nil {
		return db.UserRecord{}, err
	}

	metrics.RecordLoginAttempt("success")
	sm.log.WithField("user_id", user.ID).Info("user logged in")
	sm.setState(Authenticated)
	return user, nil
}

func loginStatus(err error) string {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeUserNotFound):
		return "not_found"
	case apperrors.HasCode(err, apperrors.ErrCodeWrongPassword):
		return "wrong_password"
	case apperrors.HasCode(err, apperrors.ErrCodeUserBlocked):
		return "blocked"
	default:
		return "error"
	}
}

// ResolveSession re-derives the state from storage. It runs at start and
// on every change signal. A pointer to a missing user is cleared; a
// pointer to a blocked user is cleared after reporting Blocked.
func (sm *SessionManager) ResolveSession(ctx context.Context) (State, error) {
	id, err := sm.sessionID(ctx)
	if err != nil {
		return sm.State(), err
	}
	if id == "" {
		sm.setState(Anonymous)
		return Anonymous, nil
	}

	user, found, err := sm.users.Find(ctx, id)
	if err != nil {
		return sm.State(), err
	}

	switch {
	case !found:
		sm.log.WithField("user_id", id).Warn("session points at a missing user, clearing")
		if err := sm.clearSession(ctx); err != nil {
			return sm.State(), err
		}
		metrics.IncrementForcedLogouts()
		sm.setState(Anonymous)
		return Anonymous, nil

	case user.IsBlocked:
		sm.log.WithField("user_id", id).Warn("session user is blocked, forcing logout")
		if err := sm.clearSession(ctx); err != nil {
			return sm.State(), err
		}
		metrics.IncrementForcedLogouts()
		sm.setState(Blocked)
		sm.setState(Anonymous)
		return Anonymous, nil
	}

	sm.setState(Authenticated)
	return Authenticated, nil
}

// Logout clears the session pointer
func (sm *SessionManager) Logout(ctx context.Context) error {
	if err := sm.store.Delete(ctx, db.KeySession); err != nil {
		return err
	}
	sm.setState(Anonymous)
	return nil
}

// CurrentUser returns the signed-in user, or false when there is none
func (sm *SessionManager) CurrentUser(ctx context.Context) (db.UserRecord, bool, error) {
	id, err := sm.sessionID(ctx)
	if err != nil || id == "" {
		return db.UserRecord{}, false, err
	}

	user, found, err := sm.users.Find(ctx, id)
	if err != nil || !found || user.IsBlocked {
		return db.UserRecord{}, false, err
	}
	return user, true, nil
}

// ProfilePatch holds the owner-editable fields; nil means unchanged
type ProfilePatch struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	Institution  *string `json:"institution,omitempty"`
	Grade        *string `json:"grade,omitempty"`
	Interests    *string `json:"interests,omitempty"`
	ThemeColor   *string `json:"themeColor,omitempty"`
}

func (p ProfilePatch) validate() error {
	if p.Name != nil {
		if err := utils.ValidateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Email != nil {
		if err := utils.ValidateEmail(*p.Email); err != nil {
			return err
		}
	}
	if p.ProfileImage != nil && *p.ProfileImage != "" {
		if err := utils.ValidateImageDataURI(*p.ProfileImage); err != nil {
			return err
		}
	}
	return nil
}

func (p ProfilePatch) apply(u *db.UserRecord) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	set(&u.Email, p.Email)
	set(&u.ProfileImage, p.ProfileImage)
	set(&u.Bio, p.Bio)
	set(&u.Institution, p.Institution)
	set(&u.Grade, p.Grade)
	set(&u.Interests, p.Interests)
	set(&u.ThemeColor, p.ThemeColor)
}

// UpdateProfile merges patch into the signed-in user. Without a session,
// or with a session whose user no longer exists, it does nothing and
// reports false. The patch is validated only once a user is resolved.
func (sm *SessionManager) UpdateProfile(ctx context.Context, patch ProfilePatch) (db.UserRecord, bool, error) {
	id, err := sm.sessionID(ctx)
	if err != nil {
		return db.UserRecord{}, false, err
	}
	if id == "" {
		sm.log.Debug("profile update ignored without a session")
		return db.UserRecord{}, false, nil
	}
	if _, found, err := sm.users.Find(ctx, id); err != nil || !found {
		if err == nil {
			sm.log.WithField("user_id", id).Debug("profile update ignored, session user is gone")
		}
		return db.UserRecord{}, false, err
	}

	if err := patch.validate(); err != nil {
		return db.UserRecord{}, false, err
	}

	user, err := sm.UpdateUser(ctx, id, func(u *db.UserRecord) error {
		if u.IsBlocked {
			return apperrors.NewUserBlocked(u.ID)
		}
		patch.apply(u)
		return nil
	})
	if apperrors.HasCode(err, apperrors.ErrCodeUserNotFound) {
		// removed between the lookup and the write
		return db.UserRecord{}, false, nil
	}
	if err != nil {
		return db.UserRecord{}, false, err
	}
	return user, true, nil
}

// AddPoints adds amount, which may be negative, to the signed-in user's
// total and refreshes lastActive. The total is not clamped.
func (sm *SessionManager) AddPoints(ctx context.Context, amount int) (db.UserRecord, error) {
	return sm.AwardPoints(ctx, amount, "manual")
}

// AwardPoints is AddPoints with a reason recorded in metrics
func (sm *SessionManager) AwardPoints(ctx context.Context, amount int, reason string) (db.UserRecord, error) {
	user, err := sm.UpdateCurrent(ctx, func(u *db.UserRecord) error {
		u.Points += amount
		u.LastActive = db.At(sm.now())
		return nil
	})
	if err != nil {
		return db.UserRecord{}, err
	}

	metrics.RecordPoints(reason, amount)
	return user, nil
}

func (sm *SessionManager) ChangePassword(ctx context.Context, current, next string) error {
	if err := utils.ValidatePassword(next); err != nil {
		return err
	}

	password := next
	if sm.hash {
		hashed, err := utils.HashPassword(next)
		if err != nil {
			return err
		}
		password = hashed
	}

	_, err := sm.UpdateCurrent(ctx, func(u *db.UserRecord) error {
		if !utils.CheckPassword(u.Password, current) {
			return apperrors.NewWrongPassword(u.ID).WithOperation("change_password")
		}
		u.Password = password
		return nil
	})
	return err
}

// UpdateCurrent applies fn to the signed-in user under compare-and-swap
func (sm *SessionManager) UpdateCurrent(ctx context.Context, fn func(*db.UserRecord) error) (db.UserRecord, error) {
	id, err := sm.sessionID(ctx)
	if err != nil {
		return db.UserRecord{}, err
	}
	if id == "" {
		return db.UserRecord{}, apperrors.NewNotAuthenticated()
	}

	return sm.UpdateUser(ctx, id, func(u *db.UserRecord) error {
		if u.IsBlocked {
			return apperrors.NewUserBlocked(u.ID)
		}
		return fn(u)
	})
}

// UpdateUser applies fn to user id in place, keeping its position
func (sm *SessionManager) UpdateUser(ctx context.Context, id string, fn func(*db.UserRecord) error) (db.UserRecord, error) {
	var updated db.UserRecord
	_, err := sm.users.Mutate(ctx, func(users []db.UserRecord) ([]db.UserRecord, error) {
		user, found := db.FindUser(users, id)
		if !found {
			return nil, apperrors.NewUserNotFound(id)
		}
		if err := fn(&user); err != nil {
			return nil, err
		}
		updated = user
		return store.Upsert(users, user, db.UserKey), nil
	})
	if err != nil {
		return db.UserRecord{}, err
	}
	return updated, nil
}

func (sm *SessionManager) sessionID(ctx context.Context) (string, error) {
	var id string
	if _, err := sm.store.GetJSON(ctx, db.KeySession, &id); err != nil {
		return "", err
	}
	return id, nil
}

func (sm *SessionManager) clearSession(ctx context.Context) error {
	return sm.store.Delete(ctx, db.KeySession)
}
