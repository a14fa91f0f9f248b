package vault

import (
	"errors"

	"vaultctl/internal/oracle"
)

// Error taxonomy of the orchestrator. Match with errors.Is.
var (
	// ErrConfig is missing or invalid static configuration.
	ErrConfig = oracle.ErrConfig
	// ErrOracleUnavailable is a failed price update fetch.
	ErrOracleUnavailable = oracle.ErrOracleUnavailable

	ErrValidation          = errors.New("validation error")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrEventNotFound       = errors.New("event not found")
	ErrWriteRejected       = errors.New("write rejected")
	ErrRetryExhausted      = errors.New("retry exhausted")
)
