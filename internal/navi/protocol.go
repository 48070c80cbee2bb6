package navi

import (
	"math/big"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/tx"
)

// AccountCapNone is the sentinel the extraction layer emits when the user
// supplied no account capability id.
const AccountCapNone = "NONE"

// InstructionBuilder appends the protocol's primitive lending instructions
// to a transaction request. Spend-side calls (deposit, repay) consume a coin
// argument; receive-side calls (borrow, withdraw) return a reference to the
// coin the protocol releases.
type InstructionBuilder interface {
	Deposit(req *tx.Request, coinType string, coin tx.Arg, accountCap string) error
	Borrow(req *tx.Request, coinType string, amount *big.Int, accountCap string) (tx.Arg, error)
	Repay(req *tx.Request, coinType string, coin tx.Arg, accountCap string) error
	Withdraw(req *tx.Request, coinType string, amount *big.Int, accountCap string) (tx.Arg, error)
}

const (
	depositTarget  = "navi::incentive_v3::entry_deposit"
	borrowTarget   = "navi::incentive_v3::borrow"
	repayTarget    = "navi::incentive_v3::entry_repay"
	withdrawTarget = "navi::incentive_v3::withdraw"
)

// MoveCallBuilder composes the standard move calls of the lending protocol.
type MoveCallBuilder struct {
	env Env
}

func NewMoveCallBuilder(env Env) *MoveCallBuilder {
	return &MoveCallBuilder{env: env}
}

func capArgs(accountCap string) []tx.Arg {
	if accountCap == "" || accountCap == AccountCapNone {
		return nil
	}
	return []tx.Arg{tx.ObjectArg(accountCap)}
}

func (b *MoveCallBuilder) Deposit(req *tx.Request, coinType string, coin tx.Arg, accountCap string) error {
	if coin.IsZero() {
		return agerr.New(agerr.CodeInternal, "deposit requires a coin argument")
	}
	args := append([]tx.Arg{tx.PureArg(NormalizeCoinType(coinType)), coin}, capArgs(accountCap)...)
	req.MoveCall(depositTarget, args...)
	return nil
}

func (b *MoveCallBuilder) Borrow(req *tx.Request, coinType string, amount *big.Int, accountCap string) (tx.Arg, error) {
	if amount == nil || amount.Sign() <= 0 {
		return tx.Arg{}, agerr.New(agerr.CodeInvalidAmount, "borrow amount must be positive")
	}
	args := append([]tx.Arg{tx.PureArg(NormalizeCoinType(coinType)), tx.PureArg(amount.String())}, capArgs(accountCap)...)
	return req.MoveCall(borrowTarget, args...), nil
}

func (b *MoveCallBuilder) Repay(req *tx.Request, coinType string, coin tx.Arg, accountCap string) error {
	if coin.IsZero() {
		return agerr.New(agerr.CodeInternal, "repay requires a coin argument")
	}
	args := append([]tx.Arg{tx.PureArg(NormalizeCoinType(coinType)), coin}, capArgs(accountCap)...)
	req.MoveCall(repayTarget, args...)
	return nil
}

func (b *MoveCallBuilder) Withdraw(req *tx.Request, coinType string, amount *big.Int, accountCap string) (tx.Arg, error) {
	if amount == nil || amount.Sign() <= 0 {
		return tx.Arg{}, agerr.New(agerr.CodeInvalidAmount, "withdraw amount must be positive")
	}
	args := append([]tx.Arg{tx.PureArg(NormalizeCoinType(coinType)), tx.PureArg(amount.String())}, capArgs(accountCap)...)
	return req.MoveCall(withdrawTarget, args...), nil
}

var _ InstructionBuilder = (*MoveCallBuilder)(nil)
