package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/library-auth/internal/metrics"
	"github.com/iliyamo/library-auth/internal/model"
	"github.com/iliyamo/library-auth/internal/queue"
	"github.com/iliyamo/library-auth/internal/repository"
	"github.com/iliyamo/library-auth/internal/utils"
)

// Session is what register, login and refresh hand back to the client.
type Session struct {
	User    model.User
	Access  utils.AccessToken
	Refresh IssuedRefresh
}

// Actor is the verified caller of a profile or admin operation.
type Actor struct {
	UserID uint64
	Role   string
}

func (a Actor) isAdmin() bool { return a.Role == model.RoleAdmin }

// SessionManager composes the credential verifier, the access token issuer
// and the refresh token ledger into the client facing operations.
type SessionManager struct {
	creds  *Credentials
	issuer *utils.TokenIssuer
	ledger *Ledger
	users  UserStore
	settings
}

func NewSessionManager(creds *Credentials, issuer *utils.TokenIssuer, ledger *Ledger, users UserStore, opts ...Option) *SessionManager {
	return &SessionManager{
		creds:    creds,
		issuer:   issuer,
		ledger:   ledger,
		users:    users,
		settings: newSettings("session", opts),
	}
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName *string
}

// Register creates a staff account and opens its first session.  When the
// account is stored but the session cannot be opened, the returned Session
// carries only the user and the error matches ErrSessionNotOpened.
func (s *SessionManager) Register(ctx context.Context, in RegisterInput, meta ClientMeta) (Session, error) {
	u, err := s.creds.Register(ctx, NewUser{Email: in.Email, Password: in.Password, DisplayName: in.DisplayName})
	if err != nil {
		metrics.Register.WithLabelValues(outcome(err)).Inc()
		return Session{}, err
	}
	sess, err := s.open(ctx, u, meta, queue.EventUserRegistered)
	if err != nil {
		metrics.Register.WithLabelValues(metrics.OutcomeError).Inc()
		s.log.Error().Err(err).Uint64("user_id", u.ID).Msg("user registered without session")
		return Session{User: u}, fmt.Errorf("%w: %w", ErrSessionNotOpened, err)
	}
	metrics.Register.WithLabelValues(metrics.OutcomeOK).Inc()
	s.log.Info().Uint64("user_id", u.ID).Str("role", u.Role).Msg("user registered")
	return sess, nil
}

// Login verifies credentials and opens a new session (new rotation family).
func (s *SessionManager) Login(ctx context.Context, email, password string, meta ClientMeta) (Session, error) {
	u, err := s.creds.Verify(ctx, email, password)
	if err != nil {
		metrics.Login.WithLabelValues(outcome(err)).Inc()
		if errors.Is(err, ErrAccountInactive) {
			s.log.Info().Uint64("user_id", u.ID).Str("ip", meta.IP).Msg("login refused: account inactive")
			s.publish(ctx, queue.SessionEvent{Type: queue.EventLoginDeniedInactive, UserID: u.ID, IP: meta.IP})
		}
		return Session{}, err
	}
	sess, err := s.open(ctx, u, meta, queue.EventLogin)
	if err != nil {
		metrics.Login.WithLabelValues(metrics.OutcomeError).Inc()
		return Session{}, err
	}
	metrics.Login.WithLabelValues(metrics.OutcomeOK).Inc()
	s.log.Info().Uint64("user_id", u.ID).Str("family_id", sess.Refresh.FamilyID).Msg("login")
	return sess, nil
}

func (s *SessionManager) open(ctx context.Context, u model.User, meta ClientMeta, event string) (Session, error) {
	access, err := s.issuer.Issue(u)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.ledger.Create(ctx, u.ID, meta)
	if err != nil {
		return Session{}, err
	}
	s.publish(ctx, queue.SessionEvent{Type: event, UserID: u.ID, FamilyID: refresh.FamilyID, IP: meta.IP})
	return Session{User: u, Access: access, Refresh: refresh}, nil
}

// Refresh rotates the presented refresh token and issues a new access token
// from the freshly loaded user, so role, branch and active flag changes
// apply on the next refresh.
func (s *SessionManager) Refresh(ctx context.Context, raw string, meta ClientMeta) (Session, error) {
	refresh, u, err := s.ledger.Rotate(ctx, raw, meta)
	if err != nil {
		metrics.Refresh.WithLabelValues(outcome(err)).Inc()
		if errors.Is(err, ErrAccountInactive) {
			s.log.Info().Uint64("user_id", u.ID).Msg("refresh refused: account inactive")
		}
		return Session{}, err
	}
	access, err := s.issuer.Issue(u)
	if err != nil {
		metrics.Refresh.WithLabelValues(metrics.OutcomeError).Inc()
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	metrics.Refresh.WithLabelValues(metrics.OutcomeOK).Inc()
	s.publish(ctx, queue.SessionEvent{Type: queue.EventRefreshed, UserID: u.ID, FamilyID: refresh.FamilyID, IP: meta.IP})
	return Session{User: u, Access: access, Refresh: refresh}, nil
}

// Logout revokes the presented refresh token.  Unknown, rotated and already
// revoked tokens all count as success; only a storage failure is returned.
func (s *SessionManager) Logout(ctx context.Context, raw string, meta ClientMeta) error {
	metrics.Logout.Inc()
	rec, err := s.ledger.Revoke(ctx, raw)
	if errors.Is(err, ErrTokenInvalid) {
		return nil
	}
	if err != nil {
		return err
	}
	s.publish(ctx, queue.SessionEvent{Type: queue.EventLogout, UserID: rec.UserID, FamilyID: rec.FamilyID, IP: meta.IP})
	return nil
}

// Profile returns a user record.  Callers may read themselves; admins may
// read anyone.
func (s *SessionManager) Profile(ctx context.Context, actor Actor, userID uint64) (model.User, error) {
	if err := authorizeSelfOrAdmin(actor, userID); err != nil {
		return model.User{}, err
	}
	return s.load(ctx, userID)
}

// UpdateProfile sets or clears the display name.
func (s *SessionManager) UpdateProfile(ctx context.Context, actor Actor, userID uint64, displayName *string) (model.User, error) {
	if err := authorizeSelfOrAdmin(actor, userID); err != nil {
		return model.User{}, err
	}
	verr := newValidationError()
	name := normalizeDisplayName(verr, displayName)
	if err := verr.orNil(); err != nil {
		return model.User{}, err
	}
	if err := s.users.UpdateDisplayName(ctx, userID, name); err != nil {
		return model.User{}, mapUserErr(err)
	}
	return s.load(ctx, userID)
}

// UpdateTheme stores one of the accepted theme preferences.
func (s *SessionManager) UpdateTheme(ctx context.Context, actor Actor, userID uint64, theme string) (model.User, error) {
	if err := authorizeSelfOrAdmin(actor, userID); err != nil {
		return model.User{}, err
	}
	if !model.ValidTheme(theme) {
		verr := newValidationError()
		verr.add("theme", "must be one of light, dark, system")
		return model.User{}, verr
	}
	if err := s.users.UpdateTheme(ctx, userID, theme); err != nil {
		return model.User{}, mapUserErr(err)
	}
	return s.load(ctx, userID)
}

// SetActive is the administrative activation switch.  Deactivation also
// revokes every outstanding refresh token of the user at once; refresh
// re-checks the flag regardless.
func (s *SessionManager) SetActive(ctx context.Context, actor Actor, userID uint64, active bool) (model.User, error) {
	if !actor.isAdmin() {
		return model.User{}, ErrForbidden
	}
	if !active && actor.UserID == userID {
		verr := newValidationError()
		verr.add("is_active", "administrators cannot deactivate themselves")
		return model.User{}, verr
	}
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return model.User{}, mapUserErr(err)
	}
	ev := queue.SessionEvent{Type: queue.EventUserReactivated, UserID: userID, ActorID: actor.UserID}
	if !active {
		n, err := s.ledger.RevokeAllForUser(ctx, userID)
		if err != nil {
			return model.User{}, err
		}
		ev.Type, ev.Revoked = queue.EventUserDeactivated, n
		s.log.Info().Uint64("user_id", userID).Uint64("actor_id", actor.UserID).Int64("revoked", n).Msg("user deactivated")
	}
	s.publish(ctx, ev)
	return s.load(ctx, userID)
}

// UpdateAccess changes role and branch scope.  New values reach access
// tokens on the user's next refresh.
func (s *SessionManager) UpdateAccess(ctx context.Context, actor Actor, userID uint64, role string, branchID *uint64) (model.User, error) {
	if !actor.isAdmin() {
		return model.User{}, ErrForbidden
	}
	if !model.ValidRole(role) {
		verr := newValidationError()
		verr.add("role", "must be admin or staff")
		return model.User{}, verr
	}
	if err := s.users.UpdateAccess(ctx, userID, role, branchID); err != nil {
		return model.User{}, mapUserErr(err)
	}
	return s.load(ctx, userID)
}

// EnsureAdmin creates the bootstrap administrator when the email is not
// registered yet.  It reports whether an account was created.
func (s *SessionManager) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	u, err := s.creds.Register(ctx, NewUser{Email: email, Password: password, Role: model.RoleAdmin})
	if errors.Is(err, ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log.Info().Uint64("user_id", u.ID).Msg("bootstrap admin created")
	return true, nil
}

func (s *SessionManager) load(ctx context.Context, userID uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, mapUserErr(err)
	}
	return u, nil
}

func authorizeSelfOrAdmin(actor Actor, userID uint64) error {
	if actor.UserID == userID || actor.isAdmin() {
		return nil
	}
	return ErrForbidden
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// outcome labels an error for the session counters.
func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrDuplicateEmail):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrBadCredentials), errors.Is(err, ErrTokenInvalid):
		return metrics.OutcomeDenied
	case errors.Is(err, ErrAccountInactive):
		return metrics.OutcomeInactive
	case errors.Is(err, ErrTokenExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, ErrReplayDetected):
		return metrics.OutcomeReplay
	default:
		return metrics.OutcomeError
	}
}
