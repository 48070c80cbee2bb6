// Package ops implements the per-operation flows: validate the request,
// resolve the target pool, convert the amount, assemble the transaction and
// hand it to the signer. Each flow invocation is stateless.
package ops

import (
	"context"
	"strings"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/navi"
)

// Sentinels the extraction layer emits when the user named no pool.
const (
	PoolIDNone = -1
	SymbolNone = "UNKNOWN"
)

// Resolver turns (id, symbol) pairs into pools and surfaces positions. Id
// wins over symbol when both are present, since it is the less ambiguous
// identifier; a symbol that disagrees with the id-resolved pool is an error,
// not a tiebreak.
type Resolver struct {
	pools   *navi.PoolCache
	lending navi.LendingAPI
}

func NewResolver(pools *navi.PoolCache, lending navi.LendingAPI) *Resolver {
	return &Resolver{pools: pools, lending: lending}
}

func hasPoolID(id int) bool { return id != PoolIDNone && id >= 0 }

func hasSymbol(symbol string) bool {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	return upper != "" && upper != SymbolNone
}

// Resolve finds the pool addressed by id and/or symbol.
func (r *Resolver) Resolve(ctx context.Context, id int, symbol string) (*navi.Pool, error) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))

	switch {
	case hasPoolID(id):
		pool, err := r.pools.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if hasSymbol(upper) && !strings.EqualFold(pool.Symbol, upper) {
			return nil, agerr.Newf(agerr.CodeSymbolMismatch,
				"pool %d is %s, not %s", id, pool.Symbol, upper)
		}
		return pool, nil
	case hasSymbol(upper):
		return r.pools.GetBySymbol(ctx, upper)
	}
	return nil, agerr.New(agerr.CodeMissingTarget, "neither a pool id nor an asset symbol was given")
}

// Position returns the owner's position in the given pool, zero-valued when
// the owner has none. A snapshot, when supplied, is used instead of a fetch
// so repay/withdraw sizing stays consistent within one flow invocation.
func (r *Resolver) Position(ctx context.Context, owner string, poolID int, snapshot []navi.Position) (navi.Position, error) {
	positions := snapshot
	if positions == nil {
		fetched, err := r.lending.Positions(ctx, owner)
		if err != nil {
			return navi.Position{}, err
		}
		positions = fetched
	}
	for _, p := range positions {
		if p.PoolID == poolID {
			return p, nil
		}
	}
	return navi.Position{PoolID: poolID, SupplyBalance: "0", BorrowBalance: "0"}, nil
}
