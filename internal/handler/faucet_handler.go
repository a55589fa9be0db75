package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DevSwayam/faucet-attenomics/internal/middleware"
	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
	"github.com/DevSwayam/faucet-attenomics/internal/service"
)

// FaucetHandler обрабатывает запросы на выдачу тестовых средств
type FaucetHandler struct {
	faucetService *service.FaucetService
	codeService   *service.CodeService
	adminAuth     *middleware.AdminMiddleware
}

// NewFaucetHandler создает новый обработчик фасета
func NewFaucetHandler(faucetService *service.FaucetService, codeService *service.CodeService, adminAuth *middleware.AdminMiddleware) *FaucetHandler {
	return &FaucetHandler{
		faucetService: faucetService,
		codeService:   codeService,
		adminAuth:     adminAuth,
	}
}

// FaucetRequest представляет публичный запрос на выдачу
type FaucetRequest struct {
	Address string `json:"address" binding:"required"`
	Chain   string `json:"chain" binding:"required"`
}

// FaucetAccessCodeRequest — выдача в обход rate limit: запрос гасит код
// доступа либо предъявляет админ-секрет в поле adminKey
type FaucetAccessCodeRequest struct {
	Address    string `json:"address" binding:"required"`
	Chain      string `json:"chain" binding:"required"`
	AccessCode string `json:"accessCode" binding:"omitempty"`
	AdminKey   string `json:"adminKey" binding:"omitempty"`
}

// Drip обрабатывает POST /api/faucet (публичный, за rate limit)
func (h *FaucetHandler) Drip(c *gin.Context) {
	var req FaucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "address and chain are required"})
		return
	}

	h.dispatch(c, req.Address, req.Chain, false)
}

// DripWithAccessCode обрабатывает POST /api/faucet/access-code.
// Валидный код доступа (или админ-секрет в теле) пропускает кулдаун.
func (h *FaucetHandler) DripWithAccessCode(c *gin.Context) {
	var req FaucetAccessCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "address and chain are required"})
		return
	}

	// Админ-секрет как поле тела — прямой пропуск
	if !h.adminAuth.Verify(req.AdminKey) {
		if req.AccessCode == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "accessCode or adminKey is required"})
			return
		}

		// Код гасится на адрес получателя: адрес и есть идентификатор пользователя
		result, err := h.codeService.Validate(c.Request.Context(), req.AccessCode, req.Address)
		if err != nil {
			// Кривой формат кода — отказ в доступе, а не ошибка сервера
			if errors.Is(err, apperrors.ErrValidation) {
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid code"})
				return
			}
			log.Printf("[FaucetHandler] Ошибка проверки кода доступа: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			return
		}
		if !result.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": result.Error})
			return
		}
	}

	h.dispatch(c, req.Address, req.Chain, true)
}

// Chains обрабатывает GET /api/faucet/chains
func (h *FaucetHandler) Chains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"chains":  h.faucetService.Chains(),
	})
}

// dispatch переводит результат выдачи в HTTP-ответ.
// Доменный отказ (кулдаун, достаточный баланс) — 200 с success:false.
func (h *FaucetHandler) dispatch(c *gin.Context, address, chain string, bypassCooldown bool) {
	result, err := h.faucetService.Drip(c.Request.Context(), address, chain, bypassCooldown)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid address"})
		case errors.Is(err, service.ErrUnsupportedChain):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unsupported chain"})
		default:
			// Детали RPC-ошибок не раскрываем наружу
			log.Printf("[FaucetHandler] Ошибка выдачи (chain=%s, address=%s): %v", chain, address, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Faucet temporarily unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
