package rewards

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"walletledger/core/types"
)

// RewardWindow is how long a stacked reward stays claimable after the most
// recent winning spin.
const RewardWindow = 11 * 24 * time.Hour

// Draw yields a uniform sample in [0, 100).
type Draw func() float64

// DefaultDraw samples from the runtime's random source.
func DefaultDraw() float64 { return rand.Float64() * 100 }

type tier struct {
	below float64
	prize int64
}

var payoutTable = []tier{
	{below: 80, prize: 0},
	{below: 92, prize: 10},
	{below: 97, prize: 30},
	{below: 99, prize: 50},
}

const topPrize = 100

// Prize maps a draw in [0, 100) onto the payout table.
func Prize(r float64) decimal.Decimal {
	for _, t := range payoutTable {
		if r < t.below {
			return decimal.NewFromInt(t.prize)
		}
	}
	return decimal.NewFromInt(topPrize)
}

// Spin consumes one spin credit and stacks any prize onto the daily reward
// rate, restarting the reward window.
func Spin(acc *types.Account, draw Draw, now time.Time) (decimal.Decimal, error) {
	if acc == nil {
		return decimal.Zero, ErrNilAccount
	}
	if acc.SpinCredits <= 0 {
		return decimal.Zero, ErrInsufficientSpinCredits
	}
	if draw == nil {
		draw = DefaultDraw
	}
	prize := Prize(draw())
	acc.SpinCredits--
	if prize.IsPositive() {
		acc.RewardDailyRate = acc.RewardDailyRate.Add(prize)
		acc.RewardEndDate = types.TimePtr(now.Add(RewardWindow))
	}
	return prize, nil
}
