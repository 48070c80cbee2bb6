package ops

import (
	"context"
	"strconv"
	"testing"

	"github.com/kaiwenluo/suilend-agent/internal/amount"
	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/navi"
	"github.com/kaiwenluo/suilend-agent/internal/tx"
)

const (
	sender    = "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
	recipient = "0x" + "ff12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
)

var marketPools = []navi.Pool{
	{ID: 0, Symbol: "SUI", CoinType: "0x2::sui::SUI", Decimals: 9, Price: "3.5"},
	{ID: 7, Symbol: "USDC", CoinType: "0xdead::usdc::USDC", Decimals: 6, Price: "1.0002"},
}

type fakeLending struct {
	pools     []navi.Pool
	positions []navi.Position
	posErr    error
}

func (f *fakeLending) Pools(ctx context.Context) ([]navi.Pool, error) { return f.pools, nil }

func (f *fakeLending) PoolByKey(ctx context.Context, key string) (*navi.Pool, error) {
	for i := range f.pools {
		if strconv.Itoa(f.pools[i].ID) == key {
			p := f.pools[i]
			return &p, nil
		}
	}
	return nil, agerr.Newf(agerr.CodePoolNotFound, "no pool for %q", key)
}

func (f *fakeLending) Positions(ctx context.Context, owner string) ([]navi.Position, error) {
	if f.posErr != nil {
		return nil, f.posErr
	}
	return f.positions, nil
}

type fakeChain struct {
	balances map[string]string
	coins    map[string][]navi.Coin
}

func (f *fakeChain) Balance(ctx context.Context, owner, coinType string) (string, error) {
	if b, ok := f.balances[coinType]; ok {
		return b, nil
	}
	return "0", nil
}

func (f *fakeChain) Coins(ctx context.Context, owner, coinType string) ([]navi.Coin, error) {
	return f.coins[coinType], nil
}

type captureSigner struct {
	req *tx.Request
	err error
}

func (c *captureSigner) SignAndExecute(ctx context.Context, req *tx.Request) (tx.Receipt, error) {
	c.req = req
	if c.err != nil {
		return tx.Receipt{}, c.err
	}
	return tx.Receipt{Digest: "0xdigest"}, nil
}

func newTestService(lending *fakeLending, chain *fakeChain, signer tx.Signer) *Service {
	cache := navi.NewPoolCache(lending)
	return NewService(cache, chain, lending, navi.NewMoveCallBuilder(navi.EnvProd), signer)
}

func findMoveCall(t *testing.T, req *tx.Request, target string) tx.Command {
	t.Helper()
	for _, cmd := range req.Commands {
		if cmd.Kind == tx.KindMoveCall && cmd.Target == target {
			return cmd
		}
	}
	t.Fatalf("no move call targeting %q in %+v", target, req.Commands)
	return tx.Command{}
}

func TestWithdrawHalfOfSupply(t *testing.T) {
	lending := &fakeLending{
		pools: marketPools,
		positions: []navi.Position{
			{PoolID: 0, Symbol: "SUI", SupplyBalance: "100000000000", BorrowBalance: "0"},
		},
	}
	signer := &captureSigner{}
	svc := newTestService(lending, &fakeChain{}, signer)

	result, err := svc.Withdraw(context.Background(), LendingParams{
		Sender:   sender,
		PoolID:   PoolIDNone,
		Symbol:   "SUI",
		Quantity: "50",
		Unit:     amount.UnitPercent,
	})
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if result.Units.String() != "50000000000" {
		t.Fatalf("withdrew %s mist, want 50000000000", result.Units)
	}
	if result.Display != "50" || result.Digest != "0xdigest" {
		t.Fatalf("unexpected result: %+v", result)
	}

	call := findMoveCall(t, signer.req, "navi::incentive_v3::withdraw")
	if call.Args[0].Pure != "0x2::sui::SUI" || call.Args[1].Pure != "50000000000" {
		t.Fatalf("unexpected withdraw args: %+v", call.Args)
	}
	// The withdrawn coin goes back to the sender.
	last := signer.req.Commands[len(signer.req.Commands)-1]
	if last.Kind != tx.KindTransferObjects || last.Recipient != sender {
		t.Fatalf("withdrawn coin not transferred to sender: %+v", last)
	}
}

func TestWithdrawClampsToSupply(t *testing.T) {
	lending := &fakeLending{
		pools: marketPools,
		positions: []navi.Position{
			{PoolID: 0, Symbol: "SUI", SupplyBalance: "1000000000"},
		},
	}
	signer := &captureSigner{}
	svc := newTestService(lending, &fakeChain{}, signer)

	result, err := svc.Withdraw(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "SUI", Quantity: "5", Unit: amount.UnitSymbol,
	})
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if result.Units.String() != "1000000000" {
		t.Fatalf("expected clamp to supplied balance, got %s", result.Units)
	}
}

func TestWithdrawNothingSupplied(t *testing.T) {
	lending := &fakeLending{pools: marketPools}
	svc := newTestService(lending, &fakeChain{}, &captureSigner{})
	_, err := svc.Withdraw(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "SUI", Quantity: "1", Unit: amount.UnitSymbol,
	})
	if !agerr.HasCode(err, agerr.CodeNothingToSettle) {
		t.Fatalf("expected CodeNothingToSettle, got %v", err)
	}
}

func TestWithdrawUsesCoinTypeHint(t *testing.T) {
	lending := &fakeLending{
		pools:     marketPools,
		positions: []navi.Position{{PoolID: 7, Symbol: "USDC", SupplyBalance: "5000000"}},
	}
	signer := &captureSigner{}
	svc := newTestService(lending, &fakeChain{}, signer)

	_, err := svc.Withdraw(context.Background(), LendingParams{
		Sender: sender, PoolID: 7, Symbol: SymbolNone,
		Quantity: "1", Unit: amount.UnitSymbol,
		CoinTypeHint: "beef::wusdc::WUSDC",
	})
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	call := findMoveCall(t, signer.req, "navi::incentive_v3::withdraw")
	if call.Args[0].Pure != "0xbeef::wusdc::WUSDC" {
		t.Fatalf("coin type hint not honored: %+v", call.Args)
	}
}

func TestDepositTenDollarsOfUSDC(t *testing.T) {
	lending := &fakeLending{pools: marketPools}
	chain := &fakeChain{coins: map[string][]navi.Coin{
		"0xdead::usdc::USDC": {{ObjectID: "0xc1", Balance: "20000000"}},
	}}
	signer := &captureSigner{}
	svc := newTestService(lending, chain, signer)

	result, err := svc.Deposit(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "USDC", Quantity: "10", Unit: amount.UnitUSD,
	})
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	// round(10 / 1.0002 * 1e6)
	if result.Units.String() != "9998000" {
		t.Fatalf("deposited %s units, want 9998000", result.Units)
	}

	call := findMoveCall(t, signer.req, "navi::incentive_v3::entry_deposit")
	if call.Args[0].Pure != "0xdead::usdc::USDC" || !call.Args[1].IsResult() {
		t.Fatalf("unexpected deposit args: %+v", call.Args)
	}
}

func TestRepayPercentOverHundredRejectedBeforeConversion(t *testing.T) {
	lending := &fakeLending{
		pools:     marketPools,
		positions: []navi.Position{{PoolID: 7, Symbol: "USDC", BorrowBalance: "1000"}},
	}
	signer := &captureSigner{}
	svc := newTestService(lending, &fakeChain{}, signer)

	_, err := svc.Repay(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "USDC", Quantity: "101", Unit: amount.UnitPercent,
	})
	if !agerr.HasCode(err, agerr.CodeInvalidAmount) {
		t.Fatalf("expected CodeInvalidAmount, got %v", err)
	}
	if signer.req != nil {
		t.Fatal("rejected repay must never reach the signer")
	}
}

func TestRepayClampsOneUnitOvershoot(t *testing.T) {
	lending := &fakeLending{
		pools:     marketPools,
		positions: []navi.Position{{PoolID: 7, Symbol: "USDC", BorrowBalance: "2499999"}},
	}
	chain := &fakeChain{coins: map[string][]navi.Coin{
		"0xdead::usdc::USDC": {{ObjectID: "0xc1", Balance: "10000000"}},
	}}
	svc := newTestService(lending, chain, &captureSigner{})

	// 2.5 USDC converts to 2500000 units, one above the outstanding balance.
	result, err := svc.Repay(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "USDC", Quantity: "2.5", Unit: amount.UnitSymbol,
	})
	if err != nil {
		t.Fatalf("Repay failed: %v", err)
	}
	if result.Units.String() != "2499999" {
		t.Fatalf("expected clamp to 2499999, got %s", result.Units)
	}
}

func TestRepayLargeOvershootRejected(t *testing.T) {
	lending := &fakeLending{
		pools:     marketPools,
		positions: []navi.Position{{PoolID: 7, Symbol: "USDC", BorrowBalance: "1000000"}},
	}
	svc := newTestService(lending, &fakeChain{}, &captureSigner{})
	_, err := svc.Repay(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "USDC", Quantity: "5", Unit: amount.UnitSymbol,
	})
	if !agerr.HasCode(err, agerr.CodeInvalidAmount) {
		t.Fatalf("expected CodeInvalidAmount, got %v", err)
	}
}

func TestRepayWithNoBorrow(t *testing.T) {
	lending := &fakeLending{pools: marketPools}
	svc := newTestService(lending, &fakeChain{}, &captureSigner{})
	_, err := svc.Repay(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "USDC", Quantity: "1", Unit: amount.UnitSymbol,
	})
	if !agerr.HasCode(err, agerr.CodeNothingToSettle) {
		t.Fatalf("expected CodeNothingToSettle, got %v", err)
	}
}

func TestBorrowRejectsPercent(t *testing.T) {
	svc := newTestService(&fakeLending{pools: marketPools}, &fakeChain{}, &captureSigner{})
	_, err := svc.Borrow(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "USDC", Quantity: "50", Unit: amount.UnitPercent,
	})
	if !agerr.HasCode(err, agerr.CodeInvalidAmount) {
		t.Fatalf("expected CodeInvalidAmount, got %v", err)
	}
}

func TestBorrowTransfersProceedsToSender(t *testing.T) {
	signer := &captureSigner{}
	svc := newTestService(&fakeLending{pools: marketPools}, &fakeChain{}, signer)

	result, err := svc.Borrow(context.Background(), LendingParams{
		Sender: sender, PoolID: 7, Symbol: SymbolNone, Quantity: "100", Unit: amount.UnitSymbol,
		AccountCap: "0xcafe",
	})
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	if result.Units.String() != "100000000" {
		t.Fatalf("borrowed %s units", result.Units)
	}
	call := findMoveCall(t, signer.req, "navi::incentive_v3::borrow")
	if len(call.Args) != 3 || call.Args[2].Object != "0xcafe" {
		t.Fatalf("account cap not passed: %+v", call.Args)
	}
	last := signer.req.Commands[len(signer.req.Commands)-1]
	if last.Kind != tx.KindTransferObjects || last.Recipient != sender {
		t.Fatalf("borrow proceeds not sent to sender: %+v", last)
	}
}

func TestTransferNativeSplitsGas(t *testing.T) {
	chain := &fakeChain{balances: map[string]string{"0x2::sui::SUI": "10000000000"}}
	signer := &captureSigner{}
	svc := newTestService(&fakeLending{pools: marketPools}, chain, signer)

	result, err := svc.Transfer(context.Background(), TransferParams{
		Sender: sender, Recipient: recipient, Symbol: "SUI", Quantity: "1.5", Unit: amount.UnitSymbol,
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if result.Units.String() != "1500000000" {
		t.Fatalf("transferred %s mist", result.Units)
	}
	if signer.req.Commands[0].Kind != tx.KindSplitGas {
		t.Fatalf("native transfer should split gas: %+v", signer.req.Commands)
	}
	last := signer.req.Commands[len(signer.req.Commands)-1]
	if last.Kind != tx.KindTransferObjects || last.Recipient != recipient {
		t.Fatalf("coin not transferred to recipient: %+v", last)
	}
}

func TestTransferWorksOnColdCacheForNative(t *testing.T) {
	// No pools at all: the native asset still resolves.
	lending := &fakeLending{}
	chain := &fakeChain{balances: map[string]string{"0x2::sui::SUI": "10000000000"}}
	svc := newTestService(lending, chain, &captureSigner{})

	if _, err := svc.Transfer(context.Background(), TransferParams{
		Sender: sender, Recipient: recipient, Symbol: "SUI", Quantity: "1", Unit: amount.UnitSymbol,
	}); err != nil {
		t.Fatalf("Transfer failed on cold cache: %v", err)
	}
}

func TestTransferRejectsBadRecipient(t *testing.T) {
	svc := newTestService(&fakeLending{pools: marketPools}, &fakeChain{}, &captureSigner{})
	_, err := svc.Transfer(context.Background(), TransferParams{
		Sender: sender, Recipient: "0xnope", Symbol: "SUI", Quantity: "1", Unit: amount.UnitSymbol,
	})
	if !agerr.HasCode(err, agerr.CodeUsage) {
		t.Fatalf("expected CodeUsage, got %v", err)
	}
}

func TestUnknownAssetSurfaces(t *testing.T) {
	svc := newTestService(&fakeLending{pools: marketPools}, &fakeChain{}, &captureSigner{})
	_, err := svc.Deposit(context.Background(), LendingParams{
		Sender: sender, PoolID: PoolIDNone, Symbol: "DOGE", Quantity: "1", Unit: amount.UnitSymbol,
	})
	if !agerr.HasCode(err, agerr.CodeUnknownAsset) {
		t.Fatalf("expected CodeUnknownAsset, got %v", err)
	}
}

func TestSignerDeclineKeepsCode(t *testing.T) {
	signer := &captureSigner{err: tx.Declined("user closed the wallet")}
	chain := &fakeChain{balances: map[string]string{"0x2::sui::SUI": "10000000000"}}
	svc := newTestService(&fakeLending{pools: marketPools}, chain, signer)

	_, err := svc.Transfer(context.Background(), TransferParams{
		Sender: sender, Recipient: recipient, Symbol: "SUI", Quantity: "1", Unit: amount.UnitSymbol,
	})
	if !agerr.HasCode(err, agerr.CodeSignerDeclined) {
		t.Fatalf("expected CodeSignerDeclined, got %v", err)
	}
}

func TestSignerFailureWrapped(t *testing.T) {
	signer := &captureSigner{err: agerr.New(agerr.CodeInternal, "wallet crashed")}
	chain := &fakeChain{balances: map[string]string{"0x2::sui::SUI": "10000000000"}}
	svc := newTestService(&fakeLending{pools: marketPools}, chain, signer)

	_, err := svc.Transfer(context.Background(), TransferParams{
		Sender: sender, Recipient: recipient, Symbol: "SUI", Quantity: "1", Unit: amount.UnitSymbol,
	})
	if !agerr.HasCode(err, agerr.CodeSigner) {
		t.Fatalf("expected CodeSigner, got %v", err)
	}
}

func TestBalanceQuery(t *testing.T) {
	chain := &fakeChain{balances: map[string]string{"0xdead::usdc::USDC": "9998000"}}
	svc := newTestService(&fakeLending{pools: marketPools}, chain, &captureSigner{})

	result, err := svc.Balance(context.Background(), sender, "usdc")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if result.Display != "9.998" || result.Symbol != "USDC" {
		t.Fatalf("unexpected balance result: %+v", result)
	}
}

func TestPoolsQuery(t *testing.T) {
	svc := newTestService(&fakeLending{pools: marketPools}, &fakeChain{}, &captureSigner{})
	summaries, err := svc.Pools(context.Background())
	if err != nil {
		t.Fatalf("Pools failed: %v", err)
	}
	if len(summaries) != 2 || summaries[1].Symbol != "USDC" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}
