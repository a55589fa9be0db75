package service

import "errors"

// Ошибки сервисного слоя, используемые обработчиками для маппинга error_type
var (
	ErrUnsupportedChain = errors.New("unsupported_chain")
	ErrInvalidAddress   = errors.New("invalid_address")
	ErrChainUnavailable = errors.New("chain_unavailable")
	ErrCodeGeneration   = errors.New("code_generation_failed")
)
