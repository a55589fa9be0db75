package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeAlphabet_ExcludesAmbiguousCharacters(t *testing.T) {
	// Алфавит фиксирован: 32 символа, без визуально неоднозначных
	require.Len(t, CodeAlphabet, 32)

	for _, ambiguous := range []string{"0", "O", "1", "I"} {
		assert.False(t, strings.Contains(CodeAlphabet, ambiguous),
			"Алфавит не должен содержать символ %s", ambiguous)
	}
}

func TestAccessCode_IsExpired(t *testing.T) {
	now := time.Now()

	// Без expires_at код не истекает никогда
	code := &AccessCode{}
	assert.False(t, code.IsExpired(now))

	past := now.Add(-time.Hour)
	code.ExpiresAt = &past
	assert.True(t, code.IsExpired(now))

	future := now.Add(time.Hour)
	code.ExpiresAt = &future
	assert.False(t, code.IsExpired(now))
}

func TestAccessCode_UsageExhausted(t *testing.T) {
	// nil MaxUses означает безлимитный код
	code := &AccessCode{UsedCount: 1000}
	assert.False(t, code.UsageExhausted())

	maxUses := 3
	code = &AccessCode{MaxUses: &maxUses, UsedCount: 2}
	assert.False(t, code.UsageExhausted())

	code.UsedCount = 3
	assert.True(t, code.UsageExhausted())
}

func TestAccessCode_BeforeCreate_AssignsID(t *testing.T) {
	code := &AccessCode{Code: "AB234C"}

	err := code.BeforeCreate(nil)

	require.NoError(t, err)
	assert.NotEmpty(t, code.ID, "BeforeCreate должен назначить идентификатор")

	// Уже назначенный идентификатор не перезаписывается
	existing := code.ID
	err = code.BeforeCreate(nil)
	require.NoError(t, err)
	assert.Equal(t, existing, code.ID)
}
