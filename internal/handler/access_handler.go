package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
	"github.com/DevSwayam/faucet-attenomics/internal/service"
)

// AccessHandler обрабатывает запросы авторизационного состояния пользователей
type AccessHandler struct {
	userService *service.UserService
}

// NewAccessHandler создает новый обработчик авторизационного состояния
func NewAccessHandler(userService *service.UserService) *AccessHandler {
	return &AccessHandler{userService: userService}
}

// CheckAccessRequest представляет запрос на проверку авторизации
type CheckAccessRequest struct {
	UserID        string `json:"userId" binding:"required"`
	WalletAddress string `json:"walletAddress" binding:"omitempty"`
}

// UpdateWalletRequest представляет запрос на обновление кошелька
type UpdateWalletRequest struct {
	UserID        string `json:"userId" binding:"required"`
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// CheckAccess обрабатывает POST /api/check-access
func (h *AccessHandler) CheckAccess(c *gin.Context) {
	var req CheckAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	isAuthorized, err := h.userService.CheckAccess(req.UserID, req.WalletAddress)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[AccessHandler] Ошибка проверки доступа для %s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"isAuthorized": isAuthorized})
}

// UpdateWallet обрабатывает POST /api/update-wallet
func (h *AccessHandler) UpdateWallet(c *gin.Context) {
	var req UpdateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and walletAddress are required"})
		return
	}

	if err := h.userService.UpdateWallet(req.UserID, req.WalletAddress); err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[AccessHandler] Ошибка обновления кошелька для %s: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
