// Package resolver provides best-effort name resolution. Lookups are
// cosmetic: every failure degrades to "use the raw address", never to an
// error the caller has to handle.
package resolver

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Lookup is the name-service surface of the indexer client.
type Lookup interface {
	ResolveName(ctx context.Context, name string) (string, error)
	ReverseResolve(ctx context.Context, address string) (string, error)
}

type Resolver struct {
	lookup Lookup
	log    *zap.Logger
}

func New(lookup Lookup, log *zap.Logger) *Resolver {
	return &Resolver{lookup: lookup, log: log}
}

// IsName reports whether the input looks like a resolvable name rather than
// a hex address.
func IsName(s string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(s)), ".eth")
}

// Resolve maps a name to an address. ok is false when resolution failed or
// produced an invalid address.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, bool) {
	if r == nil || r.lookup == nil {
		return common.Address{}, false
	}
	addr, err := r.lookup.ResolveName(ctx, name)
	if err != nil {
		r.log.Debug("name resolution failed", zap.String("name", name), zap.Error(err))
		return common.Address{}, false
	}
	if !common.IsHexAddress(addr) {
		r.log.Debug("name resolved to invalid address", zap.String("name", name), zap.String("address", addr))
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// ReverseResolve maps an address back to its primary name. ok is false when
// no name is set or the lookup failed.
func (r *Resolver) ReverseResolve(ctx context.Context, address common.Address) (string, bool) {
	if r == nil || r.lookup == nil {
		return "", false
	}
	name, err := r.lookup.ReverseResolve(ctx, address.Hex())
	if err != nil {
		r.log.Debug("reverse resolution failed", zap.String("address", address.Hex()), zap.Error(err))
		return "", false
	}
	return name, true
}
