package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/DevSwayam/faucet-attenomics/internal/domain/entity"
	"github.com/DevSwayam/faucet-attenomics/internal/domain/repository"
	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
)

// ValidationResult is the explicit outcome of a code validation.
// A domain rejection (expired, exhausted, foreign code) is NOT an error:
// the call succeeded, the code is just not usable. Store failures surface
// as a separate error return.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Rejection texts returned to callers. Kept stable: frontends match on them.
const (
	msgInvalidCode     = "Invalid code"
	msgCodeExpired     = "Code expired"
	msgUsageLimit      = "Code usage limit reached"
	msgUsedByOther     = "This code has already been used by another user"
	msgAlreadyUsedByMe = "Code already used by this user"
)

// CodeService владеет жизненным циклом кодов доступа: генерация, погашение,
// отзыв. Ядро — Validate: двухфазный контракт «поиск, затем транзакция»,
// повторная проверка годности выполняется внутри транзакции стора.
type CodeService struct {
	codeRepo        repository.AccessCodeRepository
	generateRetries int
}

// NewCodeService создает новый сервис кодов доступа
func NewCodeService(codeRepo repository.AccessCodeRepository, generateRetries int) (*CodeService, error) {
	if codeRepo == nil {
		return nil, fmt.Errorf("access code repository is required")
	}
	if generateRetries <= 0 {
		generateRetries = 5
	}
	return &CodeService{
		codeRepo:        codeRepo,
		generateRetries: generateRetries,
	}, nil
}

// Validate проверяет и погашает код для пользователя.
// Формат проверяется до любого обращения к стору.
func (s *CodeService) Validate(ctx context.Context, code, userID string) (*ValidationResult, error) {
	code = strings.TrimSpace(code)
	if len(code) != entity.CodeLength {
		return nil, fmt.Errorf("%w: code must be exactly %d characters", apperrors.ErrValidation, entity.CodeLength)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", apperrors.ErrValidation)
	}

	normalized := strings.ToUpper(code)

	// Фаза 1: ищем активного кандидата вне транзакции
	candidate, err := s.codeRepo.FindActiveByCode(normalized)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &ValidationResult{Valid: false, Error: msgInvalidCode}, nil
		}
		return nil, err
	}

	// Фаза 2: транзакция перечитывает кандидата и применяет правила к живым данным
	outcome, err := s.codeRepo.Redeem(ctx, candidate.ID, userID, time.Now())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Код успел смениться между фазами (отзыв, параллельное исчерпание)
			return &ValidationResult{Valid: false, Error: msgInvalidCode}, nil
		}
		return nil, err
	}

	switch {
	case outcome.FirstUse:
		return &ValidationResult{Valid: true}, nil
	case outcome.AlreadyOwned:
		return &ValidationResult{Valid: true, Message: msgAlreadyUsedByMe}, nil
	case outcome.Rejected == repository.RejectExpired:
		return &ValidationResult{Valid: false, Error: msgCodeExpired}, nil
	case outcome.Rejected == repository.RejectUsageLimit:
		return &ValidationResult{Valid: false, Error: msgUsageLimit}, nil
	case outcome.Rejected == repository.RejectOtherUser:
		return &ValidationResult{Valid: false, Error: msgUsedByOther}, nil
	default:
		return nil, fmt.Errorf("unexpected redeem outcome for code %s", candidate.ID)
	}
}

// Generate создает новый код доступа.
// Уникальность среди активных кодов обеспечивается транзакцией стора
// (CreateUnique); коллизия приводит к повторной генерации.
func (s *CodeService) Generate(ctx context.Context, maxUses *int, expiresInDays *int, note string) (*entity.AccessCode, error) {
	if maxUses != nil && *maxUses <= 0 {
		return nil, fmt.Errorf("%w: maxUses must be positive", apperrors.ErrValidation)
	}
	if expiresInDays != nil && *expiresInDays <= 0 {
		return nil, fmt.Errorf("%w: expiresInDays must be positive", apperrors.ErrValidation)
	}

	var expiresAt *time.Time
	if expiresInDays != nil {
		t := time.Now().AddDate(0, 0, *expiresInDays)
		expiresAt = &t
	}

	var lastErr error
	for attempt := 0; attempt < s.generateRetries; attempt++ {
		text, err := randomCode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCodeGeneration, err)
		}

		code := &entity.AccessCode{
			Code:      text,
			Status:    entity.CodeStatusActive,
			MaxUses:   maxUses,
			ExpiresAt: expiresAt,
			Note:      note,
		}
		err = s.codeRepo.CreateUnique(ctx, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no unique code after %d attempts: %v", ErrCodeGeneration, s.generateRetries, lastErr)
}

// List возвращает коды, опционально отфильтрованные по статусу
func (s *CodeService) List(status string) ([]entity.AccessCode, error) {
	switch status {
	case "", entity.CodeStatusActive, entity.CodeStatusUsed, entity.CodeStatusExpired, entity.CodeStatusRevoked:
	default:
		return nil, fmt.Errorf("%w: unknown status '%s'", apperrors.ErrValidation, status)
	}
	return s.codeRepo.List(status)
}

// Revoke отзывает код по идентификатору
func (s *CodeService) Revoke(codeID string) error {
	if strings.TrimSpace(codeID) == "" {
		return fmt.Errorf("%w: codeId is required", apperrors.ErrValidation)
	}
	return s.codeRepo.Revoke(codeID, time.Now())
}

// randomCode выбирает 6 символов из фиксированного 32-символьного алфавита
func randomCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(entity.CodeAlphabet)))
	b := make([]byte, entity.CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b[i] = entity.CodeAlphabet[n.Int64()]
	}
	return string(b), nil
}
