package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный админ-ключ).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, дубликат активного кода).
	ErrConflict = errors.New("resource state conflict")

	// ErrUnavailable используется, когда внешний сервис (RPC нода, Redis) недоступен.
	ErrUnavailable = errors.New("service unavailable")
)
