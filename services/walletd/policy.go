package walletd

import (
	"strings"

	"walletledger/gateway/middleware"
)

// Policy decides which identities may moderate the ledger.
type Policy struct {
	AdminRole string
}

// IsAdmin reports whether id carries the configured admin role.
func (p Policy) IsAdmin(id middleware.Identity) bool {
	role := strings.TrimSpace(p.AdminRole)
	if role == "" || strings.TrimSpace(id.Subject) == "" {
		return false
	}
	return id.HasRole(role)
}

func (p Policy) authorize(id middleware.Identity) error {
	if !p.IsAdmin(id) {
		return ErrUnauthorized
	}
	return nil
}
