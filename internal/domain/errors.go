package domain

import "errors"

var (
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrInvalidSize     = errors.New("invalid size")
	ErrAccountNotFound = errors.New("account not found")
)
