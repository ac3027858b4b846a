package models

import (
	"strings"
	"time"
)

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// Account is one identity record. The nullable refresh pair encodes the
// session state: both fields nil means no session, both set means one
// active session. The two fields are always written together.
type Account struct {
	ID               string     `gorm:"type:uuid;primaryKey"     json:"id"`
	Username         string     `gorm:"uniqueIndex;not null"     json:"username"`
	PasswordHash     string     `gorm:"not null"                 json:"-"`
	Role             string     `gorm:"not null;default:client"  json:"role"`
	Active           bool       `gorm:"not null;default:true"    json:"active"`
	ProfileID        string     `gorm:"type:uuid;not null"       json:"profile_id"`
	RefreshToken     *string    `json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NormalizeUsername is applied before every persist and every lookup so the
// unique index and login both see the same form.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
