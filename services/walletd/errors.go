package walletd

import (
	"fmt"

	ledgererrors "walletledger/core/errors"
)

var (
	ErrUnauthorized      = fmt.Errorf("walletd: admin role required: %w", ledgererrors.ErrAuthorization)
	ErrAccountNotFound   = fmt.Errorf("walletd: account not found: %w", ledgererrors.ErrNotFound)
	ErrAccountExists     = fmt.Errorf("walletd: account already registered: %w", ledgererrors.ErrValidation)
	ErrInvalidRequest    = fmt.Errorf("walletd: invalid request: %w", ledgererrors.ErrValidation)
	ErrConflictExhausted = fmt.Errorf("walletd: too many concurrent updates, try again: %w", ledgererrors.ErrConcurrency)
)
