package payments

import (
	"fmt"

	ledgererrors "walletledger/core/errors"
)

var (
	ErrNilAccount          = fmt.Errorf("payments: nil account: %w", ledgererrors.ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("payments: amount must be positive: %w", ledgererrors.ErrValidation)
	ErrReferenceRequired   = fmt.Errorf("payments: payment reference required: %w", ledgererrors.ErrValidation)
	ErrBelowMinimum        = fmt.Errorf("payments: withdrawal below minimum: %w", ledgererrors.ErrValidation)
	ErrInsufficientBalance = fmt.Errorf("payments: insufficient balance: %w", ledgererrors.ErrValidation)
	ErrInvalidDetails      = fmt.Errorf("payments: invalid withdrawal details: %w", ledgererrors.ErrValidation)
	ErrNotModeratable      = fmt.Errorf("payments: transaction is not subject to moderation: %w", ledgererrors.ErrValidation)
	ErrTransactionNotFound = fmt.Errorf("payments: transaction not found: %w", ledgererrors.ErrNotFound)
	ErrUnknownDecision     = fmt.Errorf("payments: unknown decision: %w", ledgererrors.ErrValidation)
	ErrAlreadyFinalized    = fmt.Errorf("payments: transaction already finalized: %w", ledgererrors.ErrAlreadyFinalized)
)
