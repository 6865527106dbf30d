package models

import "github.com/pkg/errors"

// Доменная таксономия ошибок. Сравнивать через errors.Is — по цепочке
// обёрток errors.Wrap они остаются различимыми.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCourierBusy        = errors.New("courier already has an active delivery")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrBackendUnavailable = errors.New("backend unavailable")
)
