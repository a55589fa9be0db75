package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevSwayam/faucet-attenomics/internal/domain/entity"
	"github.com/DevSwayam/faucet-attenomics/internal/domain/repository"
	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
)

// UserService отвечает за авторизационное состояние пользователей фасета
type UserService struct {
	userRepo repository.FaucetUserRepository
}

// NewUserService создает новый сервис пользователей
func NewUserService(userRepo repository.FaucetUserRepository) (*UserService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("faucet user repository is required")
	}
	return &UserService{userRepo: userRepo}, nil
}

// CheckAccess возвращает true, если пользователь авторизован (погасил код).
// Если передан адрес кошелька, он сохраняется, а поля аудита входа обновляются.
func (s *UserService) CheckAccess(userID, walletAddress string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("%w: userId is required", apperrors.ErrValidation)
	}

	if walletAddress != "" {
		if !common.IsHexAddress(walletAddress) {
			return false, fmt.Errorf("%w: invalid wallet address", apperrors.ErrValidation)
		}
		if err := s.userRepo.Upsert(&entity.FaucetUser{
			ID:            userID,
			WalletAddress: common.HexToAddress(walletAddress).Hex(),
		}); err != nil {
			return false, fmt.Errorf("failed to merge wallet address: %w", err)
		}
		if err := s.userRepo.TouchLogin(userID); err != nil {
			return false, fmt.Errorf("failed to update login audit fields: %w", err)
		}
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.IsAuthorized(), nil
}

// UpdateWallet сохраняет адрес кошелька пользователя.
// Адрес валидируется как EVM-адрес и нормализуется к checksum-форме.
func (s *UserService) UpdateWallet(userID, walletAddress string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: userId is required", apperrors.ErrValidation)
	}
	if !common.IsHexAddress(walletAddress) {
		return fmt.Errorf("%w: invalid wallet address", apperrors.ErrValidation)
	}
	return s.userRepo.UpdateWallet(userID, common.HexToAddress(walletAddress).Hex())
}
