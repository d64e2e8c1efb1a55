package auth

import (
	"context"
	"log/slog"

	"github.com/pendergraft/splitledger/internal/validation"
)

// AddressAuthorizer grants the DAO authority role to a fixed set of wallet
// addresses.
type AddressAuthorizer struct {
	addresses map[string]struct{}
}

// NewAddressAuthorizer builds an authorizer from configured addresses.
// Invalid entries are logged and skipped.
func NewAddressAuthorizer(addresses []string, logger *slog.Logger) *AddressAuthorizer {
	a := &AddressAuthorizer{addresses: make(map[string]struct{}, len(addresses))}
	for _, raw := range addresses {
		addr, err := validation.NormalizeAddress(raw)
		if err != nil {
			if logger != nil {
				logger.Warn("ignoring invalid dao authority", "address", raw, "error", err)
			}
			continue
		}
		a.addresses[addr] = struct{}{}
	}
	return a
}

// IsAuthority reports whether actor is a configured authority.
func (a *AddressAuthorizer) IsAuthority(_ context.Context, actor string) bool {
	addr, err := validation.NormalizeAddress(actor)
	if err != nil {
		return false
	}
	_, ok := a.addresses[addr]
	return ok
}

// Len returns the number of configured authorities.
func (a *AddressAuthorizer) Len() int {
	return len(a.addresses)
}
