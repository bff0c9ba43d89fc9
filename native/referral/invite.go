package referral

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// InviteCodeLength is the number of characters in a generated invite code.
const InviteCodeLength = 6

const inviteAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewInviteCode returns a random upper-case base-36 code. Global uniqueness
// is enforced by the caller when the code index is written.
func NewInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(InviteCodeLength)
	base := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("referral: generate invite code: %w", err)
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode upper-cases and trims a user supplied code and checks
// its shape. An empty input yields an empty code and no error.
func NormalizeInviteCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", nil
	}
	if len(code) != InviteCodeLength {
		return "", ErrInvalidInviteCode
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(inviteAlphabet, rune(code[i])) {
			return "", ErrInvalidInviteCode
		}
	}
	return code, nil
}
