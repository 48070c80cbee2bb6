// Package ledger assembles a single spendable coin of an exact amount from
// the caller's fragmented coin objects. Flows never reason about individual
// coins; they ask for an amount and get back one argument to spend.
package ledger

import (
	"context"
	"math/big"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/navi"
	"github.com/kaiwenluo/suilend-agent/internal/tx"
	"github.com/rs/zerolog"
)

// SpendableUnit is one coin argument carrying exactly the requested amount,
// plus the owner's total balance in that asset for diagnostics.
type SpendableUnit struct {
	Coin  tx.Arg
	Total *big.Int
}

// Builder turns an owner's coin objects into spendable units. It appends
// split and merge commands to the request it is given; it never submits.
type Builder struct {
	chain navi.ChainAPI
	log   zerolog.Logger
}

func NewBuilder(chain navi.ChainAPI) *Builder {
	return &Builder{chain: chain, log: zerolog.Nop()}
}

func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// Consolidate produces a coin argument worth exactly amount of coinType.
//
// The native asset splits off the gas coin, which the runtime keeps merged,
// so no coin objects need to be enumerated. Any other asset merges the
// owner's fragments into the first coin object and splits the amount off it.
func (b *Builder) Consolidate(ctx context.Context, req *tx.Request, owner, coinType string, amount *big.Int) (SpendableUnit, error) {
	if amount == nil || amount.Sign() <= 0 {
		return SpendableUnit{}, agerr.New(agerr.CodeInvalidAmount, "spend amount must be positive")
	}
	normalized := navi.NormalizeCoinType(coinType)

	if normalized == navi.NativeCoinType {
		return b.consolidateNative(ctx, req, owner, amount)
	}

	coins, err := b.chain.Coins(ctx, owner, normalized)
	if err != nil {
		return SpendableUnit{}, err
	}

	total := big.NewInt(0)
	for _, coin := range coins {
		total.Add(total, coin.Units())
	}
	if total.Cmp(amount) < 0 {
		return SpendableUnit{}, agerr.Newf(agerr.CodeInsufficientBalance,
			"balance %s is below the requested %s", total, amount)
	}

	primary := tx.ObjectArg(coins[0].ObjectID)
	if len(coins) > 1 {
		sources := make([]tx.Arg, 0, len(coins)-1)
		for _, coin := range coins[1:] {
			sources = append(sources, tx.ObjectArg(coin.ObjectID))
		}
		req.MergeCoins(primary, sources)
		b.log.Debug().Int("merged", len(sources)).Str("coinType", normalized).Msg("consolidated coin fragments")
	}

	return SpendableUnit{Coin: req.SplitCoins(primary, amount), Total: total}, nil
}

func (b *Builder) consolidateNative(ctx context.Context, req *tx.Request, owner string, amount *big.Int) (SpendableUnit, error) {
	raw, err := b.chain.Balance(ctx, owner, navi.NativeCoinType)
	if err != nil {
		return SpendableUnit{}, err
	}
	total, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		total = big.NewInt(0)
	}
	if total.Cmp(amount) < 0 {
		return SpendableUnit{}, agerr.Newf(agerr.CodeInsufficientBalance,
			"balance %s is below the requested %s", total, amount)
	}
	return SpendableUnit{Coin: req.SplitGas(amount), Total: total}, nil
}
