package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func sampleAccount(now time.Time) *Account {
	acc := NewAccount("user-1", now)
	acc.Name = "Asha"
	acc.Email = "asha@example.com"
	acc.InviteCode = "AB12CD"
	acc.Balance = decimal.NewFromInt(1000)
	acc.Investments["inv-1"] = &Investment{
		ID:             "inv-1",
		ProductID:      "2",
		InvestedAmount: decimal.NewFromInt(499),
		DailyIncome:    decimal.NewFromInt(90),
		StartDate:      now,
		EndDate:        now.Add(15 * 24 * time.Hour),
		Status:         InvestmentActive,
	}
	acc.Transactions["tx-1"] = &Transaction{
		ID:        "tx-1",
		Kind:      KindWithdraw,
		Amount:    decimal.NewFromInt(500),
		CreatedAt: now,
		Status:    StatusPending,
		WithdrawalDetails: &WithdrawalDetails{
			FullName:       "Asha",
			Phone:          "+910000000000",
			Method:         MethodUPI,
			PaymentAddress: "asha@upi",
		},
	}
	return acc
}

func TestAccountRoundTripThroughCodec(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	acc := sampleAccount(now)
	raw, err := EncodeAccount(acc)
	require.NoError(t, err)

	decoded, err := DecodeAccount(raw)
	require.NoError(t, err)
	require.True(t, decoded.Balance.Equal(acc.Balance))
	require.Equal(t, InvestmentActive, decoded.Investments["inv-1"].Status)
	require.Equal(t, MethodUPI, decoded.Transactions["tx-1"].WithdrawalDetails.Method)
}

func TestDecodeAccountDefaultsAbsentCollections(t *testing.T) {
	decoded, err := DecodeAccount([]byte(`{"id":"u1","inviteCode":"ZZ99AA","balance":"12"}`))
	require.NoError(t, err)
	require.NotNil(t, decoded.Investments)
	require.NotNil(t, decoded.Transactions)
	require.True(t, decoded.Balance.Equal(decimal.NewFromInt(12)))
	require.Nil(t, decoded.LastAccrualDate)
}

func TestDecodeAccountRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"negative balance": `{"id":"u1","inviteCode":"AAAAAA","balance":"-1"}`,
		"unknown status":   `{"id":"u1","inviteCode":"AAAAAA","investments":{"i":{"id":"i","productId":"1","status":"paused"}}}`,
		"unknown kind":     `{"id":"u1","inviteCode":"AAAAAA","transactions":{"t":{"id":"t","type":"gift","amount":"5","status":"pending"}}}`,
		"zero amount":      `{"id":"u1","inviteCode":"AAAAAA","transactions":{"t":{"id":"t","type":"recharge","amount":"0","status":"pending"}}}`,
		"missing id":       `{"inviteCode":"AAAAAA"}`,
		"not json":         `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAccount([]byte(raw))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrCorruptRecord))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	acc := sampleAccount(now)
	acc.RewardEndDate = TimePtr(now)
	clone := acc.Clone()

	clone.Investments["inv-1"].Status = InvestmentCompleted
	clone.Transactions["tx-1"].WithdrawalDetails.FullName = "changed"
	*clone.RewardEndDate = now.Add(time.Hour)

	require.Equal(t, InvestmentActive, acc.Investments["inv-1"].Status)
	require.Equal(t, "Asha", acc.Transactions["tx-1"].WithdrawalDetails.FullName)
	require.True(t, acc.RewardEndDate.Equal(now))
}

func TestSettingsNormalize(t *testing.T) {
	raw, err := json.Marshal(AppSettings{CollectionAddress: " pay@upi ", SiteOrigin: "https://wallet.example/"})
	require.NoError(t, err)
	settings, err := DecodeSettings(raw)
	require.NoError(t, err)
	require.Equal(t, "pay@upi", settings.CollectionAddress)
	require.Equal(t, "https://wallet.example", settings.SiteOrigin)
}

func TestSortedTransactionsNewestFirst(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	acc := NewAccount("u", now)
	for i, offset := range []time.Duration{0, 2 * time.Hour, time.Hour} {
		id := string(rune('a' + i))
		acc.Transactions[id] = &Transaction{ID: id, Kind: KindRecharge, Amount: decimal.NewFromInt(1), CreatedAt: now.Add(offset), Status: StatusPending}
	}
	sorted := acc.SortedTransactions()
	require.Equal(t, []string{"b", "c", "a"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}
