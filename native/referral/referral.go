package referral

import "walletledger/core/types"

// Bind links a newly registered account to the owner of the invite code it
// was registered with. A nil referrer (unknown code) and self referral are
// ignored, and an existing referrer is never replaced. It reports whether
// the link was recorded.
func Bind(acc, referrer *types.Account) bool {
	if acc == nil || referrer == nil {
		return false
	}
	if acc.ReferrerID != "" || referrer.ID == acc.ID {
		return false
	}
	acc.ReferrerID = referrer.ID
	return true
}

// OnRechargeApproved runs the first-deposit hook for acc. The referrer, when
// present, earns one spin credit. HasDeposited is set regardless so the
// grant can never repeat. It reports whether a credit was granted.
func OnRechargeApproved(acc, referrer *types.Account) bool {
	if acc == nil || acc.HasDeposited {
		return false
	}
	acc.HasDeposited = true
	if referrer == nil || acc.ReferrerID == "" || referrer.ID != acc.ReferrerID {
		return false
	}
	referrer.SpinCredits++
	return true
}
