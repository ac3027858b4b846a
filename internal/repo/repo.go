package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nkarpova/market_auth/internal/models"
)

var ErrNotFound = errors.New("account not found")

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	var acc models.Account
	err := r.DB.WithContext(ctx).
		Where("username = ?", models.NormalizeUsername(username)).
		First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *GormRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var acc models.Account
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// SetRefreshToken overwrites the refresh pair in a single write. A later
// login for the same account silently invalidates an earlier one:
// last write wins, one active session per account.
func (r *GormRepo) SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refresh_token":      token,
			"refresh_expires_at": expiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearRefreshToken nulls the refresh pair. Idempotent: clearing an account
// with no session is not an error.
func (r *GormRepo) ClearRefreshToken(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refresh_token":      nil,
			"refresh_expires_at": nil,
		}).Error
}

// UpdatePassword writes the new hash and clears the refresh pair in the same
// statement, so a password change always revokes the live session.
func (r *GormRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res := r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":      passwordHash,
			"refresh_token":      nil,
			"refresh_expires_at": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive toggles the active flag. Deactivation clears the refresh pair in
// the same write; access tokens die on their next validation against the
// live account.
func (r *GormRepo) SetActive(ctx context.Context, id string, active bool) error {
	updates := map[string]any{"active": active}
	if !active {
		updates["refresh_token"] = nil
		updates["refresh_expires_at"] = nil
	}
	res := r.DB.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) Create(ctx context.Context, acc *models.Account) error {
	acc.Username = models.NormalizeUsername(acc.Username)
	return r.DB.WithContext(ctx).Create(acc).Error
}
