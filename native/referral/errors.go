package referral

import (
	"fmt"

	ledgererrors "walletledger/core/errors"
)

var (
	ErrNilAccount        = fmt.Errorf("referral: nil account: %w", ledgererrors.ErrValidation)
	ErrInvalidInviteCode = fmt.Errorf("referral: invalid invite code: %w", ledgererrors.ErrValidation)
)
