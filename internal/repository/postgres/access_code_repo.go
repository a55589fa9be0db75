package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DevSwayam/faucet-attenomics/internal/domain/entity"
	"github.com/DevSwayam/faucet-attenomics/internal/domain/repository"
	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
)

// redeemMaxRetries ограничивает прозрачные повторы транзакции погашения
// при конфликте сериализации. Победитель определяется блокировкой строки,
// поэтому на практике повторы нужны редко.
const redeemMaxRetries = 3

// AccessCodeRepo реализует repository.AccessCodeRepository
type AccessCodeRepo struct {
	db *gorm.DB
}

// NewAccessCodeRepo создает новый репозиторий кодов доступа
func NewAccessCodeRepo(db *gorm.DB) *AccessCodeRepo {
	return &AccessCodeRepo{db: db}
}

// CreateUnique вставляет код, проверяя уникальность среди активных кодов
// в той же транзакции. Проверка и вставка выполняются под блокировкой,
// чтобы параллельные генераторы не создали два одинаковых активных кода.
func (r *AccessCodeRepo) CreateUnique(ctx context.Context, code *entity.AccessCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&entity.AccessCode{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ? AND status = ?", code.Code, entity.CodeStatusActive).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check code uniqueness: %w", err)
		}
		if count > 0 {
			return apperrors.ErrConflict
		}
		return tx.Create(code).Error
	})
}

// GetByID возвращает код по идентификатору
func (r *AccessCodeRepo) GetByID(id string) (*entity.AccessCode, error) {
	var code entity.AccessCode
	err := r.db.Where("id = ?", id).First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &code, nil
}

// FindActiveByCode ищет запись с совпадающим текстом кода и статусом active
func (r *AccessCodeRepo) FindActiveByCode(codeText string) (*entity.AccessCode, error) {
	var code entity.AccessCode
	err := r.db.
		Where("code = ? AND status = ?", codeText, entity.CodeStatusActive).
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active code: %w", err)
	}
	return &code, nil
}

// List возвращает коды, опционально отфильтрованные по статусу
func (r *AccessCodeRepo) List(status string) ([]entity.AccessCode, error) {
	var codes []entity.AccessCode
	q := r.db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&codes).Error
	return codes, err
}

// Revoke переводит код в состояние revoked
func (r *AccessCodeRepo) Revoke(id string, at time.Time) error {
	result := r.db.Model(&entity.AccessCode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     entity.CodeStatusRevoked,
			"revoked_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Redeem выполняет атомарную транзакцию погашения кода.
// Двухфазный контракт: кандидат найден снаружи (FindActiveByCode), здесь
// строка перечитывается под блокировкой FOR UPDATE и правила годности
// применяются к живым данным. Все записи фиксируются вместе или никак.
func (r *AccessCodeRepo) Redeem(ctx context.Context, codeID string, userID string, now time.Time) (*repository.RedeemOutcome, error) {
	var outcome *repository.RedeemOutcome
	var err error

	for attempt := 0; attempt < redeemMaxRetries; attempt++ {
		outcome, err = r.redeemOnce(ctx, codeID, userID, now)
		if err == nil || !isSerializationFailure(err) {
			return outcome, err
		}
		log.Printf("[AccessCodeRepo] Конфликт сериализации при погашении кода %s (попытка %d): %v", codeID, attempt+1, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("redeem transaction did not converge after %d attempts: %w", redeemMaxRetries, err)
}

// decideRedemption применяет правила годности к перечитанной строке кода.
// Чистая функция: мутирует только переданную копию и возвращает итог плюс
// новый статус кода ("" — без перехода). Порядок проверок существенен:
// повтор владельцем идет ДО лимита, чтобы владелец мог переподтвердить
// уже исчерпанный код; лимит идет до проверки чужого владельца, чтобы
// исчерпанный код отвечал «лимит», а не «занят».
func decideRedemption(code *entity.AccessCode, userID string, now time.Time) (repository.RedeemOutcome, string) {
	if code.IsExpired(now) {
		code.Status = entity.CodeStatusExpired
		return repository.RedeemOutcome{Rejected: repository.RejectExpired, Code: code}, entity.CodeStatusExpired
	}

	if code.UsedBy != nil && *code.UsedBy == userID {
		// Идемпотентный повтор: чистое чтение, без мутаций
		return repository.RedeemOutcome{AlreadyOwned: true, Code: code}, ""
	}

	if code.UsageExhausted() {
		code.Status = entity.CodeStatusUsed
		return repository.RedeemOutcome{Rejected: repository.RejectUsageLimit, Code: code}, entity.CodeStatusUsed
	}

	if code.UsedBy != nil {
		return repository.RedeemOutcome{Rejected: repository.RejectOtherUser, Code: code}, ""
	}

	return repository.RedeemOutcome{FirstUse: true, Code: code}, ""
}

func (r *AccessCodeRepo) redeemOnce(ctx context.Context, codeID string, userID string, now time.Time) (*repository.RedeemOutcome, error) {
	var outcome repository.RedeemOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var code entity.AccessCode
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", codeID).
			First(&code).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("failed to re-read code inside transaction: %w", err)
		}

		// Код мог быть отозван или погашен между поиском и транзакцией
		if code.Status != entity.CodeStatusActive {
			return apperrors.ErrNotFound
		}

		decision, newStatus := decideRedemption(&code, userID, now)

		if newStatus != "" {
			if err := tx.Model(&code).Update("status", newStatus).Error; err != nil {
				return fmt.Errorf("failed to mark code %s: %w", newStatus, err)
			}
		}
		if !decision.FirstUse {
			outcome = decision
			return nil
		}

		// Первое погашение: инкремент счетчика, отметка времени, привязка владельца
		updates := map[string]interface{}{
			"used_count":   gorm.Expr("used_count + 1"),
			"last_used_at": now,
			"used_by":      userID,
		}
		if err := tx.Model(&code).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update code on first use: %w", err)
		}
		code.UsedCount++
		code.LastUsedAt = &now
		code.UsedBy = &userID

		// Upsert пользователя в той же транзакции: authorized_at только при
		// создании (merge-семантика), last_code и status обновляются всегда
		user := entity.FaucetUser{
			ID:           userID,
			Status:       "active",
			AuthorizedAt: &now,
			LastCode:     code.Code,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":        "active",
				"last_code":     code.Code,
				"authorized_at": gorm.Expr("COALESCE(faucet_users.authorized_at, EXCLUDED.authorized_at)"),
				"updated_at":    now,
			}),
		}).Create(&user).Error
		if err != nil {
			return fmt.Errorf("failed to upsert faucet user: %w", err)
		}

		outcome = decision
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// isSerializationFailure распознает SQLSTATE конфликтов сериализации и дедлоков
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
