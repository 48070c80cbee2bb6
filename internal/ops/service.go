package ops

import (
	"context"
	"math/big"
	"strings"

	"github.com/kaiwenluo/suilend-agent/internal/amount"
	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/ledger"
	"github.com/kaiwenluo/suilend-agent/internal/navi"
	"github.com/kaiwenluo/suilend-agent/internal/tx"
	"github.com/rs/zerolog"
)

// Stage names the steps every flow walks through. Flows log stage
// transitions; they keep no state between invocations.
type Stage string

const (
	StageValidating        Stage = "VALIDATING"
	StageResolving         Stage = "RESOLVING"
	StageConverting        Stage = "CONVERTING"
	StageBuilding          Stage = "BUILDING"
	StageAwaitingSignature Stage = "AWAITING_SIGNATURE"
	StageSubmitted         Stage = "SUBMITTED"
	StageFailed            Stage = "FAILED"
)

// Service wires the flows to their collaborators. The signer is external;
// everything up to AWAITING_SIGNATURE is side-effect free.
type Service struct {
	pools    *navi.PoolCache
	chain    navi.ChainAPI
	lending  navi.LendingAPI
	resolver *Resolver
	ledger   *ledger.Builder
	builder  navi.InstructionBuilder
	signer   tx.Signer
	log      zerolog.Logger
}

func NewService(pools *navi.PoolCache, chain navi.ChainAPI, lending navi.LendingAPI, builder navi.InstructionBuilder, signer tx.Signer) *Service {
	return &Service{
		pools:    pools,
		chain:    chain,
		lending:  lending,
		resolver: NewResolver(pools, lending),
		ledger:   ledger.NewBuilder(chain),
		builder:  builder,
		signer:   signer,
		log:      zerolog.Nop(),
	}
}

func (s *Service) WithLogger(log zerolog.Logger) *Service {
	s.log = log
	return s
}

func (s *Service) stage(flow string, st Stage) {
	s.log.Debug().Str("flow", flow).Str("stage", string(st)).Msg("flow stage")
}

// TransferParams moves an asset from the sender to another address.
type TransferParams struct {
	Sender    string
	Recipient string
	Symbol    string
	Quantity  string
	Unit      amount.Unit
}

// LendingParams addresses one lending flow at one pool. PoolID -1 and
// Symbol "UNKNOWN" mean the user named no such target. Positions, when set,
// is a caller-supplied snapshot used instead of a portfolio fetch;
// CoinTypeHint overrides the pool's coin type for a withdraw.
type LendingParams struct {
	Sender       string
	PoolID       int
	Symbol       string
	Quantity     string
	Unit         amount.Unit
	AccountCap   string
	Positions    []navi.Position
	CoinTypeHint string
}

// Result is the terminal outcome of a submitted flow.
type Result struct {
	Digest  string
	Symbol  string
	Units   *big.Int
	Display string
}

func newResult(receipt tx.Receipt, pool navi.Pool, units *big.Int) *Result {
	return &Result{
		Digest:  receipt.Digest,
		Symbol:  pool.Symbol,
		Units:   units,
		Display: amount.ToCoin(units, pool.Decimals),
	}
}

var hundredRat = new(big.Rat).SetInt64(100)

// validatePercent enforces the flow-level percentage window before any
// conversion runs, so an out-of-range percentage reads as a bad amount
// rather than a missing base.
func validatePercent(quantity string, unit amount.Unit) error {
	if unit != amount.UnitPercent {
		return nil
	}
	q, ok := new(big.Rat).SetString(strings.TrimSpace(quantity))
	if !ok || q.Sign() <= 0 || q.Cmp(hundredRat) > 0 {
		return agerr.Newf(agerr.CodeInvalidAmount, "percentage must be within (0, 100], got %q", quantity)
	}
	return nil
}

func normalizeAccountCap(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return navi.AccountCapNone
	}
	return raw
}

// resolveAsset resolves a symbol to a pool for conversion. The native asset
// works without a pool entry (symbol and percent conversions only need
// decimals), so a cold cache never blocks a SUI transfer.
func (s *Service) resolveAsset(ctx context.Context, symbol string) (navi.Pool, error) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	pool, err := s.pools.GetBySymbol(ctx, upper)
	if err == nil {
		return *pool, nil
	}
	if upper == navi.NativeSymbol {
		return navi.Pool{
			ID:       PoolIDNone,
			Symbol:   navi.NativeSymbol,
			CoinType: navi.NativeCoinType,
			Decimals: navi.NativeDecimals,
		}, nil
	}
	return navi.Pool{}, err
}

// walletBalance reads the owner's on-chain balance of coinType as an integer.
func (s *Service) walletBalance(ctx context.Context, owner, coinType string) (*big.Int, error) {
	raw, err := s.chain.Balance(ctx, owner, coinType)
	if err != nil {
		return nil, err
	}
	units, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		units = big.NewInt(0)
	}
	return units, nil
}

// Transfer sends an exact amount of one asset to a recipient.
func (s *Service) Transfer(ctx context.Context, p TransferParams) (*Result, error) {
	const flow = "transfer"
	s.stage(flow, StageValidating)
	if err := navi.AssertAddress(p.Sender); err != nil {
		return nil, err
	}
	if err := navi.AssertAddress(p.Recipient); err != nil {
		return nil, err
	}
	if err := validatePercent(p.Quantity, p.Unit); err != nil {
		return nil, err
	}

	s.stage(flow, StageResolving)
	pool, err := s.resolveAsset(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

	s.stage(flow, StageConverting)
	var percentBase *big.Int
	if p.Unit == amount.UnitPercent {
		if percentBase, err = s.walletBalance(ctx, p.Sender, pool.CoinType); err != nil {
			return nil, err
		}
	}
	units, err := amount.ToMinimalUnits(pool, p.Quantity, p.Unit, percentBase)
	if err != nil {
		return nil, err
	}

	s.stage(flow, StageBuilding)
	req := tx.NewRequest(p.Sender)
	unit, err := s.ledger.Consolidate(ctx, req, p.Sender, pool.CoinType, units)
	if err != nil {
		return nil, err
	}
	req.TransferObjects([]tx.Arg{unit.Coin}, p.Recipient)

	return s.submit(ctx, flow, req, pool, units)
}

// Deposit supplies an asset into its lending pool.
func (s *Service) Deposit(ctx context.Context, p LendingParams) (*Result, error) {
	const flow = "deposit"
	s.stage(flow, StageValidating)
	if err := navi.AssertAddress(p.Sender); err != nil {
		return nil, err
	}
	if err := validatePercent(p.Quantity, p.Unit); err != nil {
		return nil, err
	}

	s.stage(flow, StageResolving)
	pool, err := s.resolver.Resolve(ctx, p.PoolID, p.Symbol)
	if err != nil {
		return nil, err
	}

	s.stage(flow, StageConverting)
	var percentBase *big.Int
	if p.Unit == amount.UnitPercent {
		if percentBase, err = s.walletBalance(ctx, p.Sender, pool.CoinType); err != nil {
			return nil, err
		}
	}
	units, err := amount.ToMinimalUnits(*pool, p.Quantity, p.Unit, percentBase)
	if err != nil {
		return nil, err
	}

	s.stage(flow, StageBuilding)
	req := tx.NewRequest(p.Sender)
	unit, err := s.ledger.Consolidate(ctx, req, p.Sender, pool.CoinType, units)
	if err != nil {
		return nil, err
	}
	if err := s.builder.Deposit(req, pool.CoinType, unit.Coin, normalizeAccountCap(p.AccountCap)); err != nil {
		return nil, err
	}

	return s.submit(ctx, flow, req, *pool, units)
}

// Borrow takes an asset out of its lending pool against existing collateral.
// Percentages are not meaningful here: there is no single base balance a
// borrow percentage could refer to.
func (s *Service) Borrow(ctx context.Context, p LendingParams) (*Result, error) {
	const flow = "borrow"
	s.stage(flow, StageValidating)
	if err := navi.AssertAddress(p.Sender); err != nil {
		return nil, err
	}
	if p.Unit == amount.UnitPercent {
		return nil, agerr.New(agerr.CodeInvalidAmount, "borrow amounts cannot be percentages")
	}

	s.stage(flow, StageResolving)
	pool, err := s.resolver.Resolve(ctx, p.PoolID, p.Symbol)
	if err != nil {
		return nil, err
	}

	s.stage(flow, StageConverting)
	units, err := amount.ToMinimalUnits(*pool, p.Quantity, p.Unit, nil)
	if err != nil {
		return nil, err
	}

	s.stage(flow, StageBuilding)
	req := tx.NewRequest(p.Sender)
	borrowed, err := s.builder.Borrow(req, pool.CoinType, units, normalizeAccountCap(p.AccountCap))
	if err != nil {
		return nil, err
	}
	req.TransferObjects([]tx.Arg{borrowed}, p.Sender)

	return s.submit(ctx, flow, req, *pool, units)
}

// Repay settles an outstanding borrow. A percentage sizes against the
// current borrow balance; a fixed amount may overshoot the balance by at
// most one minimal unit (rounding tolerance) and is clamped down.
func (s *Service) Repay(ctx context.Context, p LendingParams) (*Result, error) {
	const flow = "repay"
	s.stage(flow, StageValidating)
	if err := navi.AssertAddress(p.Sender); err != nil {
		return nil, err
	}
	if err := validatePercent(p.Quantity, p.Unit); err != nil {
		return nil, err
	}

	s.stage(flow, StageResolving)
	pool, err := s.resolver.Resolve(ctx, p.PoolID, p.Symbol)
	if err != nil {
		return nil, err
	}
	position, err := s.resolver.Position(ctx, p.Sender, pool.ID, p.Positions)
	if err != nil {
		return nil, err
	}
	owed := position.BorrowUnits()
	if owed.Sign() == 0 {
		return nil, agerr.Newf(agerr.CodeNothingToSettle, "no outstanding %s borrow to repay", pool.Symbol)
	}

	s.stage(flow, StageConverting)
	units, err := amount.ToMinimalUnits(*pool, p.Quantity, p.Unit, owed)
	if err != nil {
		return nil, err
	}
	if units.Cmp(owed) > 0 {
		overshoot := new(big.Int).Sub(units, owed)
		if overshoot.Cmp(big.NewInt(1)) > 0 {
			return nil, agerr.Newf(agerr.CodeInvalidAmount,
				"repay amount %s exceeds the outstanding borrow %s", units, owed)
		}
		units = owed
	}

	s.stage(flow, StageBuilding)
	req := tx.NewRequest(p.Sender)
	unit, err := s.ledger.Consolidate(ctx, req, p.Sender, pool.CoinType, units)
	if err != nil {
		return nil, err
	}
	if err := s.builder.Repay(req, pool.CoinType, unit.Coin, normalizeAccountCap(p.AccountCap)); err != nil {
		return nil, err
	}

	return s.submit(ctx, flow, req, *pool, units)
}

// Withdraw pulls supplied collateral back out of a pool. Requests above the
// withdrawable balance are clamped to it rather than rejected.
func (s *Service) Withdraw(ctx context.Context, p LendingParams) (*Result, error) {
	const flow = "withdraw"
	s.stage(flow, StageValidating)
	if err := navi.AssertAddress(p.Sender); err != nil {
		return nil, err
	}
	if err := validatePercent(p.Quantity, p.Unit); err != nil {
		return nil, err
	}

	s.stage(flow, StageResolving)
	pool, err := s.resolver.Resolve(ctx, p.PoolID, p.Symbol)
	if err != nil {
		return nil, err
	}
	position, err := s.resolver.Position(ctx, p.Sender, pool.ID, p.Positions)
	if err != nil {
		return nil, err
	}
	supplied := position.SupplyUnits()
	if supplied.Sign() == 0 {
		return nil, agerr.Newf(agerr.CodeNothingToSettle, "no supplied %s to withdraw", pool.Symbol)
	}

	s.stage(flow, StageConverting)
	units, err := amount.ToMinimalUnits(*pool, p.Quantity, p.Unit, supplied)
	if err != nil {
		return nil, err
	}
	if units.Cmp(supplied) > 0 {
		units = supplied
	}

	coinType := pool.CoinType
	if strings.TrimSpace(p.CoinTypeHint) != "" {
		coinType = navi.NormalizeCoinType(p.CoinTypeHint)
	}

	s.stage(flow, StageBuilding)
	req := tx.NewRequest(p.Sender)
	withdrawn, err := s.builder.Withdraw(req, coinType, units, normalizeAccountCap(p.AccountCap))
	if err != nil {
		return nil, err
	}
	req.TransferObjects([]tx.Arg{withdrawn}, p.Sender)

	return s.submit(ctx, flow, req, *pool, units)
}

// submit hands the assembled request to the signer and maps its failure
// modes: an explicit decline keeps its code, anything else is a signer
// failure. The chain makes submission all-or-nothing, so a failure here
// leaves no partial state.
func (s *Service) submit(ctx context.Context, flow string, req *tx.Request, pool navi.Pool, units *big.Int) (*Result, error) {
	s.stage(flow, StageAwaitingSignature)
	receipt, err := s.signer.SignAndExecute(ctx, req)
	if err != nil {
		s.stage(flow, StageFailed)
		if agerr.HasCode(err, agerr.CodeSignerDeclined) {
			return nil, err
		}
		return nil, agerr.Wrap(agerr.CodeSigner, "transaction submission failed", err)
	}
	s.stage(flow, StageSubmitted)
	s.log.Info().Str("flow", flow).Str("digest", receipt.Digest).Str("symbol", pool.Symbol).Msg("transaction submitted")
	return newResult(receipt, pool, units), nil
}

// Balance reports the owner's on-chain balance of one asset, both as
// minimal units and as a display string.
func (s *Service) Balance(ctx context.Context, owner, symbol string) (*Result, error) {
	if err := navi.AssertAddress(owner); err != nil {
		return nil, err
	}
	pool, err := s.resolveAsset(ctx, symbol)
	if err != nil {
		return nil, err
	}
	units, err := s.walletBalance(ctx, owner, pool.CoinType)
	if err != nil {
		return nil, err
	}
	return &Result{Symbol: pool.Symbol, Units: units, Display: amount.ToCoin(units, pool.Decimals)}, nil
}

// Pools returns the market summaries the conversation layer feeds the model.
func (s *Service) Pools(ctx context.Context) ([]navi.PoolSummary, error) {
	pools, err := s.pools.GetAll(ctx, false)
	if err != nil {
		return nil, err
	}
	summaries := make([]navi.PoolSummary, 0, len(pools))
	for _, pool := range pools {
		summaries = append(summaries, pool.Summary())
	}
	return summaries, nil
}

// Portfolio returns the owner's positions across all pools.
func (s *Service) Portfolio(ctx context.Context, owner string) ([]navi.Position, error) {
	if err := navi.AssertAddress(owner); err != nil {
		return nil, err
	}
	return s.lending.Positions(ctx, owner)
}
