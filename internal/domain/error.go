package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("not authorized")
	ErrQuotaExceeded      = errors.New("daily quota exceeded")
	ErrUnknownEndpoint    = errors.New("unknown endpoint")
	ErrServiceUnavailable = errors.New("upstream service unavailable")
	ErrCodeNotFound       = errors.New("redeem code not found")
	ErrDeliveryFailure    = errors.New("message delivery failed")
)
