package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/DevSwayam/faucet-attenomics/internal/events"
	apperrors "github.com/DevSwayam/faucet-attenomics/internal/pkg/errors"
	"github.com/DevSwayam/faucet-attenomics/internal/service"
)

// CodeHandler обрабатывает запросы, связанные с кодами доступа
type CodeHandler struct {
	codeService *service.CodeService
	hub         *events.Hub
}

// NewCodeHandler создает новый обработчик кодов доступа
func NewCodeHandler(codeService *service.CodeService, hub *events.Hub) *CodeHandler {
	return &CodeHandler{
		codeService: codeService,
		hub:         hub,
	}
}

// Структуры запросов

// ValidateCodeRequest представляет запрос на погашение кода
type ValidateCodeRequest struct {
	Code   string `json:"code" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

// GenerateCodeRequest представляет запрос на генерацию кода.
// AdminKey уже проверен middleware, здесь поле нужно только для повторного
// чтения кешированного тела.
type GenerateCodeRequest struct {
	MaxUses       *int   `json:"maxUses" binding:"omitempty,min=1"`
	ExpiresInDays *int   `json:"expiresInDays" binding:"omitempty,min=1"`
	Note          string `json:"note" binding:"omitempty,max=255"`
	AdminKey      string `json:"adminKey" binding:"omitempty"`
}

// RevokeCodeRequest представляет запрос на отзыв кода
type RevokeCodeRequest struct {
	CodeID   string `json:"codeId" binding:"required"`
	AdminKey string `json:"adminKey" binding:"omitempty"`
}

// ValidateCode обрабатывает POST /api/validate-code.
// Доменный отказ (код истек, занят, исчерпан) — это 200 с valid:false,
// чтобы клиент отличал «вызов прошел, код непригоден» от ошибки транспорта.
func (h *CodeHandler) ValidateCode(c *gin.Context) {
	var req ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "code and userId are required"})
		return
	}

	result, err := h.codeService.Validate(c.Request.Context(), req.Code, req.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
			return
		}
		log.Printf("[CodeHandler] Ошибка валидации кода: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"valid": false, "error": "Internal server error"})
		return
	}

	// Первое погашение (valid без message) попадает в ленту событий
	if h.hub != nil && result.Valid && result.Message == "" {
		h.hub.Publish(events.TypeCodeRedeemed, gin.H{"userId": req.UserID})
	}

	c.JSON(http.StatusOK, result)
}

// GenerateCode обрабатывает POST /api/generate-code (админ)
func (h *CodeHandler) GenerateCode(c *gin.Context) {
	var req GenerateCodeRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.codeService.Generate(c.Request.Context(), req.MaxUses, req.ExpiresInDays, req.Note)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[CodeHandler] Ошибка генерации кода: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        code.ID,
		"code":      code.Code,
		"expiresAt": code.ExpiresAt,
		"maxUses":   code.MaxUses,
	})
}

// ListCodes обрабатывает GET /api/list-codes (админ)
func (h *CodeHandler) ListCodes(c *gin.Context) {
	status := c.Query("status")

	codes, err := h.codeService.List(status)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[CodeHandler] Ошибка получения списка кодов: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list codes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

// RevokeCode обрабатывает POST /api/revoke-code (админ)
func (h *CodeHandler) RevokeCode(c *gin.Context) {
	var req RevokeCodeRequest
	if err := c.ShouldBindBodyWithJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "codeId is required"})
		return
	}

	if err := h.codeService.Revoke(req.CodeID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Code not found"})
		default:
			log.Printf("[CodeHandler] Ошибка отзыва кода %s: %v", req.CodeID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke code"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExportCodes обрабатывает GET /api/export-codes (админ): выгрузка кодов в Excel
func (h *CodeHandler) ExportCodes(c *gin.Context) {
	status := c.Query("status")

	codes, err := h.codeService.List(status)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[CodeHandler] Ошибка выгрузки кодов: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export codes"})
		return
	}

	filename := "access-codes-" + time.Now().Format("2006-01-02")
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))

	// StreamWriter для эффективной работы с большими выгрузками
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Codes"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[CodeHandler] Ошибка создания StreamWriter: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := []interface{}{"ID", "Code", "Status", "Used", "Max uses", "Used by", "Expires at", "Created at", "Note"}
	if err := sw.SetRow("A1", headers); err != nil {
		log.Printf("[CodeHandler] Ошибка записи заголовков: %v", err)
	}

	for i, code := range codes {
		rowNum := i + 2 // Начинаем с 2 строки (1 - заголовки)
		cell := fmt.Sprintf("A%d", rowNum)

		maxUses := "unlimited"
		if code.MaxUses != nil {
			maxUses = fmt.Sprintf("%d", *code.MaxUses)
		}
		usedBy := ""
		if code.UsedBy != nil {
			usedBy = *code.UsedBy
		}
		expiresAt := ""
		if code.ExpiresAt != nil {
			expiresAt = code.ExpiresAt.Format(time.RFC3339)
		}

		row := []interface{}{
			code.ID, code.Code, code.Status, code.UsedCount, maxUses,
			sanitizeForExcel(usedBy), expiresAt, code.CreatedAt.Format(time.RFC3339), sanitizeForExcel(code.Note),
		}
		if err := sw.SetRow(cell, row); err != nil {
			log.Printf("[CodeHandler] Ошибка записи строки %d: %v", rowNum, err)
		}
	}

	if err := sw.Flush(); err != nil {
		log.Printf("[CodeHandler] Ошибка при Flush: %v", err)
	}

	if err := f.Write(c.Writer); err != nil {
		log.Printf("[CodeHandler] Ошибка записи Excel в response: %v", err)
	}
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}
