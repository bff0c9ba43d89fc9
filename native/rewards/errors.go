package rewards

import (
	"fmt"

	ledgererrors "walletledger/core/errors"
)

var (
	ErrNilAccount              = fmt.Errorf("rewards: nil account: %w", ledgererrors.ErrValidation)
	ErrInsufficientSpinCredits = fmt.Errorf("rewards: no spin credits: %w", ledgererrors.ErrValidation)
	ErrNoActiveReward          = fmt.Errorf("rewards: no active reward: %w", ledgererrors.ErrValidation)
	ErrRewardExpired           = fmt.Errorf("rewards: reward expired: %w", ledgererrors.ErrValidation)
	ErrCooldown                = fmt.Errorf("rewards: claim cooldown active: %w", ledgererrors.ErrValidation)
	ErrBonusAlreadyClaimed     = fmt.Errorf("rewards: daily bonus already claimed: %w", ledgererrors.ErrValidation)
	ErrInvalidBonus            = fmt.Errorf("rewards: invalid bonus amount: %w", ledgererrors.ErrValidation)
)
