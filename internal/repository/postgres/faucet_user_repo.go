package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DevSwayam/faucet-attenomics/internal/domain/entity"
	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
)

// FaucetUserRepo реализует repository.FaucetUserRepository
type FaucetUserRepo struct {
	db *gorm.DB
}

// NewFaucetUserRepo создает новый репозиторий пользователей фасета
func NewFaucetUserRepo(db *gorm.DB) *FaucetUserRepo {
	return &FaucetUserRepo{db: db}
}

// GetByID возвращает пользователя по внешнему идентификатору
func (r *FaucetUserRepo) GetByID(id string) (*entity.FaucetUser, error) {
	var user entity.FaucetUser
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Upsert создает пользователя либо дополняет существующего.
// Merge-семантика: authorized_at устанавливается только при создании,
// непустые поля существующей записи не затираются пустыми значениями.
func (r *FaucetUserRepo) Upsert(user *entity.FaucetUser) error {
	now := time.Now()
	assignments := map[string]interface{}{
		"updated_at": now,
	}
	if user.Status != "" {
		assignments["status"] = user.Status
	}
	if user.WalletAddress != "" {
		assignments["wallet_address"] = user.WalletAddress
	}
	if user.LastCode != "" {
		assignments["last_code"] = user.LastCode
	}
	if user.AuthorizedAt != nil {
		assignments["authorized_at"] = gorm.Expr("COALESCE(faucet_users.authorized_at, EXCLUDED.authorized_at)")
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(user).Error
}

// UpdateWallet обновляет адрес кошелька, создавая пользователя при необходимости
func (r *FaucetUserRepo) UpdateWallet(id, walletAddress string) error {
	user := entity.FaucetUser{
		ID:            id,
		WalletAddress: walletAddress,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"wallet_address": walletAddress,
			"updated_at":     time.Now(),
		}),
	}).Create(&user).Error
}

// TouchLogin увеличивает счетчик входов и ставит last_login
func (r *FaucetUserRepo) TouchLogin(id string) error {
	now := time.Now()
	return r.db.Model(&entity.FaucetUser{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"login_count": gorm.Expr("login_count + 1"),
			"last_login":  now,
		}).Error
}
