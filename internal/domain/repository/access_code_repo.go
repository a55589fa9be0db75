package repository

import (
	"context"
	"time"

	"github.com/DevSwayam/faucet-attenomics/internal/domain/entity"
)

// RedeemOutcome — результат транзакции погашения кода.
// Rejected заполняется при доменном отказе (код истек, лимит исчерпан,
// код занят другим пользователем); ошибка транспорта/стора возвращается
// отдельной ошибкой из Redeem.
type RedeemOutcome struct {
	// FirstUse — true, если это первое успешное погашение кода
	FirstUse bool
	// AlreadyOwned — true, если код уже погашен этим же пользователем (идемпотентный повтор)
	AlreadyOwned bool
	// Rejected — непустая причина доменного отказа
	Rejected string
	// Code — состояние кода после транзакции
	Code *entity.AccessCode
}

// Причины доменного отказа, устанавливаемые внутри транзакции погашения
const (
	RejectExpired    = "expired"
	RejectUsageLimit = "usage_limit"
	RejectOtherUser  = "other_user"
)

// AccessCodeRepository определяет методы для работы с кодами доступа
type AccessCodeRepository interface {
	// CreateUnique вставляет код, проверяя уникальность среди активных кодов
	// в той же транзакции. Возвращает apperrors.ErrConflict при дубликате.
	CreateUnique(ctx context.Context, code *entity.AccessCode) error
	GetByID(id string) (*entity.AccessCode, error)
	// FindActiveByCode ищет документ с совпадающим текстом кода и status == active
	FindActiveByCode(code string) (*entity.AccessCode, error)
	List(status string) ([]entity.AccessCode, error)
	// Revoke переводит код в состояние revoked и ставит revoked_at
	Revoke(id string, at time.Time) error
	// Redeem выполняет атомарную транзакцию погашения: перечитывает код под
	// блокировкой, применяет правила годности и фиксирует переходы кода и
	// пользователя вместе. Конфликт сериализации повторяется прозрачно.
	Redeem(ctx context.Context, codeID string, userID string, now time.Time) (*RedeemOutcome, error)
}
