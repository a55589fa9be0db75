package entity

import "time"

// FaucetUser представляет пользователя фасета в системе.
// Идентификатор приходит извне (от клиента), запись создается при первом
// успешном погашении кода либо при первом обновлении кошелька.
type FaucetUser struct {
	ID            string     `gorm:"size:100;primaryKey" json:"id"`
	Status        string     `gorm:"size:20;not null;default:''" json:"status"` // "active" после авторизации
	WalletAddress string     `gorm:"size:42;not null;default:''" json:"wallet_address"`
	AuthorizedAt  *time.Time `json:"authorized_at,omitempty"`
	LastCode      string     `gorm:"size:6;not null;default:''" json:"last_code"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	LoginCount    int64      `gorm:"not null;default:0" json:"login_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (FaucetUser) TableName() string {
	return "faucet_users"
}

// IsAuthorized возвращает true, если пользователь прошел авторизацию кодом
func (u *FaucetUser) IsAuthorized() bool {
	return u.Status == "active"
}
