package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DevSwayam/faucet-attenomics/internal/domain/entity"
	"github.com/DevSwayam/faucet-attenomics/internal/domain/repository"
	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
)

// ============================================================================
// Моки для CodeService
// ============================================================================

// MockAccessCodeRepo реализует repository.AccessCodeRepository
type MockAccessCodeRepo struct {
	mock.Mock
}

func (m *MockAccessCodeRepo) CreateUnique(ctx context.Context, code *entity.AccessCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockAccessCodeRepo) GetByID(id string) (*entity.AccessCode, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AccessCode), args.Error(1)
}

func (m *MockAccessCodeRepo) FindActiveByCode(code string) (*entity.AccessCode, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AccessCode), args.Error(1)
}

func (m *MockAccessCodeRepo) List(status string) ([]entity.AccessCode, error) {
	args := m.Called(status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AccessCode), args.Error(1)
}

func (m *MockAccessCodeRepo) Revoke(id string, at time.Time) error {
	args := m.Called(id, at)
	return args.Error(0)
}

func (m *MockAccessCodeRepo) Redeem(ctx context.Context, codeID string, userID string, now time.Time) (*repository.RedeemOutcome, error) {
	args := m.Called(ctx, codeID, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.RedeemOutcome), args.Error(1)
}

func newTestCodeService(t *testing.T, repo *MockAccessCodeRepo) *CodeService {
	svc, err := NewCodeService(repo, 3)
	require.NoError(t, err)
	return svc
}

// ============================================================================
// Validate
// ============================================================================

func TestCodeService_Validate_FormatCheckedBeforeStoreAccess(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	// Неверная длина кода — стор не должен вызываться вообще
	_, err := svc.Validate(context.Background(), "AB1", "u1")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// Пустой userId
	_, err = svc.Validate(context.Background(), "AB234C", "  ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	repo.AssertNotCalled(t, "FindActiveByCode", mock.Anything)
	repo.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCodeService_Validate_NormalizesToUppercase(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	repo.On("FindActiveByCode", "AB234C").Return(nil, apperrors.ErrNotFound)

	result, err := svc.Validate(context.Background(), "ab234c", "u1")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid code", result.Error)
	repo.AssertExpectations(t)
}

func TestCodeService_Validate_FirstUse(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	candidate := &entity.AccessCode{ID: "id-1", Code: "AB234C", Status: entity.CodeStatusActive}
	repo.On("FindActiveByCode", "AB234C").Return(candidate, nil)
	repo.On("Redeem", mock.Anything, "id-1", "u1", mock.AnythingOfType("time.Time")).
		Return(&repository.RedeemOutcome{FirstUse: true, Code: candidate}, nil)

	result, err := svc.Validate(context.Background(), "AB234C", "u1")

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Message, "Первое погашение возвращает valid без message")
	assert.Empty(t, result.Error)
}

func TestCodeService_Validate_IdempotentForOwner(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	candidate := &entity.AccessCode{ID: "id-1", Code: "AB234C", Status: entity.CodeStatusActive}
	repo.On("FindActiveByCode", "AB234C").Return(candidate, nil)
	repo.On("Redeem", mock.Anything, "id-1", "u1", mock.AnythingOfType("time.Time")).
		Return(&repository.RedeemOutcome{AlreadyOwned: true, Code: candidate}, nil)

	result, err := svc.Validate(context.Background(), "AB234C", "u1")

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Code already used by this user", result.Message)
}

func TestCodeService_Validate_RejectionMapping(t *testing.T) {
	cases := []struct {
		name     string
		rejected string
		wantErr  string
	}{
		{"expired", repository.RejectExpired, "Code expired"},
		{"usage limit", repository.RejectUsageLimit, "Code usage limit reached"},
		{"other user", repository.RejectOtherUser, "This code has already been used by another user"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(MockAccessCodeRepo)
			svc := newTestCodeService(t, repo)

			candidate := &entity.AccessCode{ID: "id-1", Code: "AB234C", Status: entity.CodeStatusActive}
			repo.On("FindActiveByCode", "AB234C").Return(candidate, nil)
			repo.On("Redeem", mock.Anything, "id-1", "u2", mock.AnythingOfType("time.Time")).
				Return(&repository.RedeemOutcome{Rejected: tc.rejected, Code: candidate}, nil)

			result, err := svc.Validate(context.Background(), "AB234C", "u2")

			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.Equal(t, tc.wantErr, result.Error)
		})
	}
}

func TestCodeService_Validate_CodeRevokedBetweenPhases(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	// Кандидат найден, но транзакция перечитала код и он уже не active
	candidate := &entity.AccessCode{ID: "id-1", Code: "AB234C", Status: entity.CodeStatusActive}
	repo.On("FindActiveByCode", "AB234C").Return(candidate, nil)
	repo.On("Redeem", mock.Anything, "id-1", "u1", mock.AnythingOfType("time.Time")).
		Return(nil, apperrors.ErrNotFound)

	result, err := svc.Validate(context.Background(), "AB234C", "u1")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid code", result.Error)
}

func TestCodeService_Validate_StoreFailureIsNotRejection(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	candidate := &entity.AccessCode{ID: "id-1", Code: "AB234C", Status: entity.CodeStatusActive}
	repo.On("FindActiveByCode", "AB234C").Return(candidate, nil)
	repo.On("Redeem", mock.Anything, "id-1", "u1", mock.AnythingOfType("time.Time")).
		Return(nil, assert.AnError)

	result, err := svc.Validate(context.Background(), "AB234C", "u1")

	// Ошибка стора — это ошибка вызова, а не доменный отказ
	assert.Error(t, err)
	assert.Nil(t, result)
}

// ============================================================================
// Generate
// ============================================================================

func TestCodeService_Generate_ProducesWellFormedCode(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	var created *entity.AccessCode
	repo.On("CreateUnique", mock.Anything, mock.AnythingOfType("*entity.AccessCode")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*entity.AccessCode)
		}).
		Return(nil)

	maxUses := 3
	expiresInDays := 7
	code, err := svc.Generate(context.Background(), &maxUses, &expiresInDays, "for testers")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Len(t, code.Code, entity.CodeLength)
	for _, ch := range code.Code {
		assert.True(t, strings.ContainsRune(entity.CodeAlphabet, ch),
			"Символ %c должен принадлежать алфавиту", ch)
	}
	assert.Equal(t, entity.CodeStatusActive, code.Status)
	assert.Equal(t, &maxUses, code.MaxUses)
	require.NotNil(t, code.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *code.ExpiresAt, time.Minute)
	assert.Equal(t, "for testers", code.Note)
}

func TestCodeService_Generate_RetriesOnCollision(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	// Две коллизии, третья попытка успешна
	repo.On("CreateUnique", mock.Anything, mock.AnythingOfType("*entity.AccessCode")).
		Return(apperrors.ErrConflict).Twice()
	repo.On("CreateUnique", mock.Anything, mock.AnythingOfType("*entity.AccessCode")).
		Return(nil).Once()

	code, err := svc.Generate(context.Background(), nil, nil, "")

	require.NoError(t, err)
	assert.NotEmpty(t, code.Code)
	repo.AssertNumberOfCalls(t, "CreateUnique", 3)
}

func TestCodeService_Generate_GivesUpAfterRetries(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	repo.On("CreateUnique", mock.Anything, mock.AnythingOfType("*entity.AccessCode")).
		Return(apperrors.ErrConflict)

	_, err := svc.Generate(context.Background(), nil, nil, "")

	assert.ErrorIs(t, err, ErrCodeGeneration)
	repo.AssertNumberOfCalls(t, "CreateUnique", 3)
}

func TestCodeService_Generate_RejectsNonPositiveLimits(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	zero := 0
	_, err := svc.Generate(context.Background(), &zero, nil, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	negative := -1
	_, err = svc.Generate(context.Background(), nil, &negative, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	repo.AssertNotCalled(t, "CreateUnique", mock.Anything, mock.Anything)
}

// ============================================================================
// List / Revoke
// ============================================================================

func TestCodeService_List_RejectsUnknownStatus(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	_, err := svc.List("bogus")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	repo.AssertNotCalled(t, "List", mock.Anything)
}

func TestCodeService_List_PassesStatusFilter(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	repo.On("List", entity.CodeStatusRevoked).Return([]entity.AccessCode{}, nil)

	codes, err := svc.List(entity.CodeStatusRevoked)

	require.NoError(t, err)
	assert.Empty(t, codes)
	repo.AssertExpectations(t)
}

func TestCodeService_Revoke(t *testing.T) {
	repo := new(MockAccessCodeRepo)
	svc := newTestCodeService(t, repo)

	repo.On("Revoke", "id-1", mock.AnythingOfType("time.Time")).Return(nil)

	require.NoError(t, svc.Revoke("id-1"))

	// Пустой идентификатор отклоняется до вызова стора
	assert.ErrorIs(t, svc.Revoke("  "), apperrors.ErrValidation)

	// ErrNotFound прокидывается наружу для маппинга в 404
	repo.On("Revoke", "missing", mock.AnythingOfType("time.Time")).Return(apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.Revoke("missing"), apperrors.ErrNotFound)
}
