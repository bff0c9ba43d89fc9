package invest

import (
	"fmt"

	ledgererrors "walletledger/core/errors"
)

var (
	ErrNilAccount          = fmt.Errorf("invest: nil account: %w", ledgererrors.ErrValidation)
	ErrInvalidPlan         = fmt.Errorf("invest: invalid plan: %w", ledgererrors.ErrValidation)
	ErrPlanNotFound        = fmt.Errorf("invest: plan not found: %w", ledgererrors.ErrNotFound)
	ErrPlanLimitReached    = fmt.Errorf("invest: plan purchase limit reached: %w", ledgererrors.ErrValidation)
	ErrInsufficientBalance = fmt.Errorf("invest: insufficient balance: %w", ledgererrors.ErrValidation)
	ErrInvestmentNotFound  = fmt.Errorf("invest: investment not found: %w", ledgererrors.ErrNotFound)
	ErrInvestmentNotActive = fmt.Errorf("invest: investment not active: %w", ledgererrors.ErrAlreadyFinalized)
)
