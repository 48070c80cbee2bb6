package navi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/httpx"
)

const testOwner = "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

func newLendingTestClient(t *testing.T, handler http.HandlerFunc) (*LendingClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewLendingClient(httpx.New(2*time.Second, 0), EnvProd)
	client.SetEndpoint(server.URL)
	return client, server
}

func TestPoolsMapsOpenAPIPayload(t *testing.T) {
	client, _ := newLendingTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pools" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("env"); got != "prod" {
			t.Errorf("env = %q, want prod", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":0,
			 "token":{"symbol":"sui","decimals":9,"coinType":"0x2::sui::SUI"},
			 "oracle":{"price":"3.52"},
			 "borrowIncentiveApyInfo":{"apy":"9.1"},
			 "supplyIncentiveApyInfo":{"apy":"4.2"},
			 "availableBorrow":"120000","totalSupplyAmount":"900000",
			 "borrowedAmount":"300000","ltv":"0.75",
			 "lastUpdateTimestamp":1700000000000},
			{"id":7,
			 "token":{"symbol":"usdc","decimals":6},
			 "coinType":"dead::usdc::USDC",
			 "oracle":{"price":"1.0002"},
			 "isIsolated":true}
		]}`))
	})

	pools, err := client.Pools(context.Background())
	if err != nil {
		t.Fatalf("Pools failed: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("got %d pools", len(pools))
	}

	sui := pools[0]
	if sui.Symbol != "SUI" || sui.CoinType != "0x2::sui::SUI" || sui.Decimals != 9 {
		t.Fatalf("unexpected SUI pool: %+v", sui)
	}
	if sui.Price != "3.52" || sui.BorrowAPY != "9.1" || sui.SupplyAPY != "4.2" {
		t.Fatalf("unexpected SUI rates: %+v", sui)
	}
	if !sui.LastUpdated.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("LastUpdated = %v", sui.LastUpdated)
	}

	// Top-level coinType is the fallback and gets the 0x prefix.
	usdc := pools[1]
	if usdc.Symbol != "USDC" || usdc.CoinType != "0xdead::usdc::USDC" {
		t.Fatalf("unexpected USDC pool: %+v", usdc)
	}
	if !usdc.IsIsolated {
		t.Fatal("IsIsolated not carried over")
	}
}

func TestPoolByKeyNotFound(t *testing.T) {
	client, _ := newLendingTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":null}`))
	})
	_, err := client.PoolByKey(context.Background(), "99")
	if !agerr.HasCode(err, agerr.CodePoolNotFound) {
		t.Fatalf("expected CodePoolNotFound, got %v", err)
	}
}

func TestPositionsMapsPortfolio(t *testing.T) {
	client, _ := newLendingTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/portfolio/0x") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"pool":{"id":0,"token":{"symbol":"sui"}},"supplyBalance":"100000000000","borrowBalance":""},
			{"pool":{"id":7,"token":{"symbol":"usdc"}},"supplyBalance":"","borrowBalance":"2500000"}
		]}`))
	})

	positions, err := client.Positions(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("got %d positions", len(positions))
	}
	if positions[0].Symbol != "SUI" || positions[0].SupplyBalance != "100000000000" || positions[0].BorrowBalance != "0" {
		t.Fatalf("unexpected SUI position: %+v", positions[0])
	}
	if positions[1].BorrowUnits().Int64() != 2500000 {
		t.Fatalf("unexpected USDC borrow units: %+v", positions[1])
	}
}

func TestPositionsRejectsBadAddress(t *testing.T) {
	client := NewLendingClient(httpx.New(time.Second, 0), EnvProd)
	_, err := client.Positions(context.Background(), "0x123")
	if !agerr.HasCode(err, agerr.CodeUsage) {
		t.Fatalf("expected CodeUsage, got %v", err)
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func newSuiTestClient(t *testing.T, handler http.HandlerFunc) *SuiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewSuiClient(httpx.New(2*time.Second, 0), server.URL)
}

func TestBalanceCallsGetBalance(t *testing.T) {
	client := newSuiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		if req.Method != "suix_getBalance" {
			t.Errorf("method = %q", req.Method)
		}
		if len(req.Params) != 2 || req.Params[1] != "0x2::sui::SUI" {
			t.Errorf("params = %v", req.Params)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"totalBalance":"123456789"}}`))
	})

	balance, err := client.Balance(context.Background(), testOwner, "0x2::sui::SUI")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != "123456789" {
		t.Fatalf("balance = %q", balance)
	}
}

func TestBalanceSurfacesRPCError(t *testing.T) {
	client := newSuiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid coin type"}}`))
	})
	_, err := client.Balance(context.Background(), testOwner, "bogus")
	if !agerr.HasCode(err, agerr.CodeRPC) {
		t.Fatalf("expected CodeRPC, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid coin type") {
		t.Fatalf("error lost rpc message: %v", err)
	}
}

func TestCoinsFollowsCursorPagination(t *testing.T) {
	var calls int
	client := newSuiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		if req.Method != "suix_getCoins" {
			t.Errorf("method = %q", req.Method)
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch calls {
		case 1:
			if req.Params[2] != nil {
				t.Errorf("first page cursor = %v, want null", req.Params[2])
			}
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{
				"data":[{"coinObjectId":"0xc1","balance":"10"},{"coinObjectId":"0xc2","balance":"20"}],
				"nextCursor":"0xc2","hasNextPage":true}}`))
		case 2:
			if req.Params[2] != "0xc2" {
				t.Errorf("second page cursor = %v, want 0xc2", req.Params[2])
			}
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{
				"data":[{"coinObjectId":"0xc3","balance":"5"}],
				"nextCursor":null,"hasNextPage":false}}`))
		default:
			t.Errorf("unexpected extra page request %d", calls)
		}
	})

	coins, err := client.Coins(context.Background(), testOwner, "0x2::sui::SUI")
	if err != nil {
		t.Fatalf("Coins failed: %v", err)
	}
	if len(coins) != 3 {
		t.Fatalf("got %d coins", len(coins))
	}
	if coins[2].ObjectID != "0xc3" || coins[2].Units().Int64() != 5 {
		t.Fatalf("unexpected last coin: %+v", coins[2])
	}
	if calls != 2 {
		t.Fatalf("expected 2 rpc calls, got %d", calls)
	}
}
