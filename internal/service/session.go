package service

import (
	"context"
	"errors"
	"time"

	pkg_hash "github.com/nkarpova/market_auth/pkg/hash"
	"github.com/nkarpova/market_auth/pkg/logging"
	"github.com/nkarpova/market_auth/pkg/tokens"

	"github.com/nkarpova/market_auth/internal/audit"
	"github.com/nkarpova/market_auth/internal/events"
	"github.com/nkarpova/market_auth/internal/models"
	"github.com/nkarpova/market_auth/internal/repo"
)

const minPasswordLen = 8

// ErrTokenRevoked marks a correctly signed refresh token that no longer
// matches the account's stored one: a later login or a logout replaced it.
var ErrTokenRevoked = errors.New("refresh token revoked")

// SessionService drives the session lifecycle of an account. All session
// state lives in the store; every mutation here is a single document write,
// so concurrent logins for the same account resolve by last write wins.
type SessionService struct {
	Repo       *repo.GormRepo
	Codec      *tokens.Codec
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Events     events.Publisher
	Audit      audit.Recorder
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	Account      *models.Account
}

type RefreshResult struct {
	AccessToken string
	AccessExp   time.Time
}

func (s *SessionService) identity(acc *models.Account) tokens.Identity {
	return tokens.Identity{
		AccountID: acc.ID,
		Username:  acc.Username,
		Role:      acc.Role,
		ProfileID: acc.ProfileID,
	}
}

// Login checks credentials and opens a session. A missing account, an
// inactive account and a wrong password all produce the same error so the
// response cannot be used to enumerate usernames.
func (s *SessionService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "session.login")

	if username == "" {
		return nil, &FieldError{Field: "username", Reason: "must not be empty"}
	}
	if password == "" {
		return nil, &FieldError{Field: "password", Reason: "must not be empty"}
	}

	acc, err := s.Repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "reason", "store lookup", "error", err)
		return nil, err
	}
	if !acc.Active || !pkg_hash.CheckPassword(acc.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	id := s.identity(acc)
	accessToken, err := s.Codec.Issue(id, s.AccessTTL)
	if err != nil {
		l.Error("login_failed", "reason", "cannot sign access token", "error", err)
		return nil, err
	}
	refreshToken, err := s.Codec.Issue(id, s.RefreshTTL)
	if err != nil {
		l.Error("login_failed", "reason", "cannot sign refresh token", "error", err)
		return nil, err
	}

	// The refresh token's own expiry is read back from the freshly signed
	// value rather than recomputed, so the stored expiry always matches the
	// token in the client's hands.
	refreshClaims, err := s.Codec.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	refreshExp := refreshClaims.ExpiresAt.Time

	// Overwrites any prior refresh pair: an earlier session's refresh token
	// stops working the moment this write lands.
	if err := s.Repo.SetRefreshToken(ctx, acc.ID, refreshToken, refreshExp); err != nil {
		l.Error("login_failed", "reason", "cannot persist refresh token", "error", err)
		return nil, err
	}
	acc.RefreshToken = &refreshToken
	acc.RefreshExpiresAt = &refreshExp

	accessClaims, err := s.Codec.Decode(accessToken)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, "user_logged_in", acc)
	l.Info("login_successful", "account_id", acc.ID)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessClaims.ExpiresAt.Time,
		RefreshExp:   refreshExp,
		Account:      acc,
	}, nil
}

// ValidateAccessToken verifies the token and re-fetches the live account, so
// a role change or deactivation takes effect on the next request even though
// the token itself is stateless.
func (s *SessionService) ValidateAccessToken(ctx context.Context, raw string) (*models.Account, error) {
	claims, err := s.Codec.Verify(raw)
	if err != nil {
		return nil, err
	}

	acc, err := s.Repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !acc.Active {
		return nil, ErrNotFound
	}
	return acc, nil
}

// Refresh exchanges a refresh token for a new access token. The presented
// value must byte-for-byte match the account's stored one; that match is what
// makes refresh revocation immediate while access tokens stay stateless. The
// refresh token itself is not rotated here.
func (s *SessionService) Refresh(ctx context.Context, raw string) (*RefreshResult, error) {
	l := logging.FromContext(ctx).With("svc", "session.refresh")

	claims, err := s.Codec.Verify(raw)
	if err != nil {
		return nil, err
	}

	acc, err := s.Repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !acc.Active {
		return nil, ErrNotFound
	}
	if acc.RefreshToken == nil || acc.RefreshExpiresAt == nil || *acc.RefreshToken != raw {
		return nil, ErrTokenRevoked
	}
	if !acc.RefreshExpiresAt.After(time.Now()) {
		return nil, tokens.ErrExpired
	}

	accessToken, err := s.Codec.Issue(s.identity(acc), s.AccessTTL)
	if err != nil {
		l.Error("refresh_failed", "reason", "cannot sign access token", "error", err)
		return nil, err
	}
	accessClaims, err := s.Codec.Decode(accessToken)
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken: accessToken,
		AccessExp:   accessClaims.ExpiresAt.Time,
	}, nil
}

// Logout clears the refresh pair. Idempotent; logging out twice is fine.
func (s *SessionService) Logout(ctx context.Context, id string) error {
	if err := s.Repo.ClearRefreshToken(ctx, id); err != nil {
		return err
	}
	s.notifyID(ctx, "user_logged_out", id)
	return nil
}

// ForceLogout is the admin path to the same transition as Logout; only the
// authorization gate above it differs.
func (s *SessionService) ForceLogout(ctx context.Context, id string) error {
	if err := s.Repo.ClearRefreshToken(ctx, id); err != nil {
		return err
	}
	s.notifyID(ctx, "user_force_logged_out", id)
	return nil
}

// ChangePassword verifies the current password, stores the new hash and
// clears the refresh pair, forcing a re-login everywhere.
func (s *SessionService) ChangePassword(ctx context.Context, id, current, newPassword string) error {
	l := logging.FromContext(ctx).With("svc", "session.change_password")

	if len(newPassword) < minPasswordLen {
		return &FieldError{Field: "new_password", Reason: "must be at least 8 characters"}
	}

	acc, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !pkg_hash.CheckPassword(acc.PasswordHash, current) {
		return &FieldError{Field: "current_password", Reason: "does not match"}
	}

	hashed, err := pkg_hash.HashPassword(newPassword)
	if err != nil {
		l.Error("change_password_failed", "reason", "cannot hash password", "error", err)
		return err
	}
	if err := s.Repo.UpdatePassword(ctx, id, hashed); err != nil {
		return err
	}

	s.notifyID(ctx, "user_password_changed", id)
	return nil
}

// ResetPassword is the admin path: same hash-and-clear as ChangePassword but
// without requiring the current password.
func (s *SessionService) ResetPassword(ctx context.Context, id, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return &FieldError{Field: "new_password", Reason: "must be at least 8 characters"}
	}

	hashed, err := pkg_hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	// repo.ErrNotFound passes through untouched: on the admin paths a
	// missing account is a 404, not a session failure.
	if err := s.Repo.UpdatePassword(ctx, id, hashed); err != nil {
		return err
	}

	s.notifyID(ctx, "user_password_reset", id)
	return nil
}

// Deactivate disables the account and revokes its session in one write.
func (s *SessionService) Deactivate(ctx context.Context, id string) error {
	if err := s.Repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.notifyID(ctx, "user_deactivated", id)
	return nil
}

func (s *SessionService) Activate(ctx context.Context, id string) error {
	if err := s.Repo.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.notifyID(ctx, "user_activated", id)
	return nil
}

func (s *SessionService) notify(ctx context.Context, action string, acc *models.Account) {
	l := logging.FromContext(ctx)

	if s.Events != nil {
		event := map[string]any{
			"type":       action,
			"account_id": acc.ID,
			"username":   acc.Username,
		}
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Events.Publish(pubCtx, acc.ID, event); err != nil {
			l.Error("event_publish_failed", "action", action, "error", err)
		}
	}

	if s.Audit != nil {
		entry := audit.Entry{
			Action:    action,
			AccountID: acc.ID,
			Username:  acc.Username,
			At:        time.Now().UTC(),
		}
		if err := s.Audit.Record(ctx, entry); err != nil {
			l.Error("audit_record_failed", "action", action, "error", err)
		}
	}
}

func (s *SessionService) notifyID(ctx context.Context, action, id string) {
	s.notify(ctx, action, &models.Account{ID: id})
}
