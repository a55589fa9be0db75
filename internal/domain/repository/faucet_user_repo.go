package repository

import (
	"github.com/DevSwayam/faucet-attenomics/internal/domain/entity"
)

// FaucetUserRepository определяет методы для работы с пользователями фасета
type FaucetUserRepository interface {
	GetByID(id string) (*entity.FaucetUser, error)
	// Upsert создает пользователя либо дополняет существующего (merge-семантика:
	// authorized_at устанавливается только при создании, непустые поля не затираются)
	Upsert(user *entity.FaucetUser) error
	// UpdateWallet обновляет адрес кошелька, создавая пользователя при необходимости
	UpdateWallet(id, walletAddress string) error
	// TouchLogin увеличивает счетчик входов и ставит last_login
	TouchLogin(id string) error
}
