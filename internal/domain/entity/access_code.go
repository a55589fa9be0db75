package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Статусы кода доступа
const (
	CodeStatusActive  = "active"
	CodeStatusUsed    = "used"
	CodeStatusExpired = "expired"
	CodeStatusRevoked = "revoked"
)

// CodeAlphabet — 32 символа без визуально неоднозначных (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength — длина кода доступа
const CodeLength = 6

// AccessCode represents a single- or limited-use access code.
// A code is created by an admin, mutated only through the redemption
// transaction or an explicit revoke, and never deleted.
type AccessCode struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	Code       string     `gorm:"size:6;not null;index" json:"code"`
	Status     string     `gorm:"size:10;not null;default:'active';index" json:"status"`
	UsedCount  int        `gorm:"not null;default:0" json:"used_count"`
	MaxUses    *int       `json:"max_uses,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	UsedBy     *string    `gorm:"size:100" json:"used_by,omitempty"`
	Note       string     `gorm:"size:255;not null;default:''" json:"note"`
	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

func (AccessCode) TableName() string {
	return "access_codes"
}

// BeforeCreate назначает непрозрачный идентификатор на стороне приложения
func (c *AccessCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (c *AccessCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// UsageExhausted reports whether the usage ceiling is already reached.
// A nil MaxUses means the code is unlimited.
func (c *AccessCode) UsageExhausted() bool {
	return c.MaxUses != nil && c.UsedCount >= *c.MaxUses
}
