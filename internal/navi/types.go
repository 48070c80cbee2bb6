// Package navi holds the lending-market data model, the chain and lending
// RPC collaborators, and the pool cache that sits in front of them.
package navi

import (
	"math/big"
	"strings"
	"time"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
)

// Env selects the protocol deployment a client talks to.
type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

// EnvForNetwork maps a Sui network name to the protocol environment.
func EnvForNetwork(network string) Env {
	if strings.EqualFold(network, "mainnet") {
		return EnvProd
	}
	return EnvDev
}

// The chain's native gas asset. It resolves without a pool entry so balance
// and transfer flows work even on a cold cache.
const (
	NativeSymbol   = "SUI"
	NativeCoinType = "0x2::sui::SUI"
	NativeDecimals = 9
)

// Pool is a point-in-time snapshot of one lending market. Snapshots are
// immutable; a refresh replaces the whole slice, never mutates entries.
type Pool struct {
	ID                int       `json:"id"`
	Symbol            string    `json:"symbol"`
	CoinType          string    `json:"coinType"`
	Decimals          int       `json:"decimals"`
	Price             string    `json:"price"`
	BorrowAPY         string    `json:"borrowApy"`
	SupplyAPY         string    `json:"supplyApy"`
	AvailableToBorrow string    `json:"availableToBorrow"`
	TotalSupplied     string    `json:"totalSupplied"`
	TotalBorrowed     string    `json:"totalBorrowed"`
	LoanToValue       string    `json:"loanToValue"`
	IsIsolated        bool      `json:"isIsolated"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// NormalizedCoinType returns the pool's coin type with a 0x prefix.
func (p Pool) NormalizedCoinType() string {
	return NormalizeCoinType(p.CoinType)
}

// PoolSummary is the projection the pool-list flow feeds to the model.
type PoolSummary struct {
	ID        int    `json:"id"`
	Symbol    string `json:"symbol"`
	BorrowAPY string `json:"borrowAPY"`
	SupplyAPY string `json:"supplyAPY"`
	Price     string `json:"price"`
}

func (p Pool) Summary() PoolSummary {
	return PoolSummary{
		ID:        p.ID,
		Symbol:    p.Symbol,
		BorrowAPY: p.BorrowAPY + "%",
		SupplyAPY: p.SupplyAPY + "%",
		Price:     p.Price + "USD",
	}
}

// Position is a user's supply and borrow balance in one pool, in minimal
// units. Positions are transient: always re-fetched or passed in as a
// snapshot so repay/withdraw sizing never runs on stale data.
type Position struct {
	PoolID        int    `json:"poolId"`
	Symbol        string `json:"symbol"`
	SupplyBalance string `json:"supplyBalance"`
	BorrowBalance string `json:"borrowBalance"`
}

func (p Position) SupplyUnits() *big.Int { return parseUnits(p.SupplyBalance) }
func (p Position) BorrowUnits() *big.Int { return parseUnits(p.BorrowBalance) }

func parseUnits(raw string) *big.Int {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || n.Sign() < 0 {
		return big.NewInt(0)
	}
	return n
}

// Coin is one discrete value-bearing object of a fungible asset.
type Coin struct {
	ObjectID string `json:"coinObjectId"`
	Balance  string `json:"balance"`
}

func (c Coin) Units() *big.Int { return parseUnits(c.Balance) }

// NormalizeCoinType accepts coin types written with or without the 0x prefix.
func NormalizeCoinType(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "0x") {
		return trimmed
	}
	return "0x" + trimmed
}

// AssertAddress performs the basic Sui address shape check used by every
// flow: 0x prefix, at least 66 characters total.
func AssertAddress(addr string) error {
	if len(addr) < 66 || !strings.HasPrefix(addr, "0x") {
		return agerr.New(agerr.CodeUsage, "invalid Sui address")
	}
	for _, r := range addr[2:] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return agerr.New(agerr.CodeUsage, "invalid Sui address")
		}
	}
	return nil
}
