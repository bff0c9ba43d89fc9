package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrCorruptRecord is returned when a persisted document fails schema checks.
var ErrCorruptRecord = errors.New("types: corrupt record")

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

// Validator returns the shared struct validator used at every decoding
// boundary.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst
}

// DecodeAccount parses a persisted account document, defaulting absent
// collections and rejecting documents that violate the ledger invariants.
func DecodeAccount(raw []byte) (*Account, error) {
	var acc Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("%w: decode account: %v", ErrCorruptRecord, err)
	}
	acc.normalize()
	if err := acc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: account %s: %v", ErrCorruptRecord, acc.ID, err)
	}
	return &acc, nil
}

// EncodeAccount serialises the account for persistence.
func EncodeAccount(acc *Account) ([]byte, error) {
	if acc == nil {
		return nil, fmt.Errorf("types: nil account")
	}
	return json.Marshal(acc)
}

func (a *Account) normalize() {
	if a.Investments == nil {
		a.Investments = make(map[string]*Investment)
	}
	if a.Transactions == nil {
		a.Transactions = make(map[string]*Transaction)
	}
	for id, inv := range a.Investments {
		if inv == nil {
			delete(a.Investments, id)
			continue
		}
		if inv.ID == "" {
			inv.ID = id
		}
	}
	for id, tx := range a.Transactions {
		if tx == nil {
			delete(a.Transactions, id)
			continue
		}
		if tx.ID == "" {
			tx.ID = id
		}
	}
}

// Validate checks structural rules plus the monetary invariants the struct
// tags cannot express.
func (a *Account) Validate() error {
	if err := Validator().Struct(a); err != nil {
		return err
	}
	if a.Balance.IsNegative() {
		return fmt.Errorf("negative balance %s", a.Balance)
	}
	if a.RewardDailyRate.IsNegative() {
		return fmt.Errorf("negative reward rate %s", a.RewardDailyRate)
	}
	for id, inv := range a.Investments {
		if id != inv.ID {
			return fmt.Errorf("investment key %s does not match id %s", id, inv.ID)
		}
		if inv.DailyIncome.IsNegative() || inv.InvestedAmount.IsNegative() {
			return fmt.Errorf("investment %s has negative amounts", id)
		}
	}
	for id, tx := range a.Transactions {
		if id != tx.ID {
			return fmt.Errorf("transaction key %s does not match id %s", id, tx.ID)
		}
		if !tx.Amount.IsPositive() {
			return fmt.Errorf("transaction %s has non-positive amount", id)
		}
		if tx.Kind == KindWithdraw && tx.WithdrawalDetails == nil {
			return fmt.Errorf("withdrawal %s missing payout details", id)
		}
	}
	return nil
}

// DecodeSettings parses the persisted settings singleton.
func DecodeSettings(raw []byte) (*AppSettings, error) {
	var settings AppSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("%w: decode settings: %v", ErrCorruptRecord, err)
	}
	settings.Normalize()
	if err := Validator().Struct(&settings); err != nil {
		return nil, fmt.Errorf("%w: settings: %v", ErrCorruptRecord, err)
	}
	return &settings, nil
}
