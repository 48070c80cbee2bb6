package navi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/httpx"
)

// LendingAPI is the lending-protocol collaborator: pool listing and
// per-address positions. Implementations are black boxes to the flows.
type LendingAPI interface {
	Pools(ctx context.Context) ([]Pool, error)
	PoolByKey(ctx context.Context, idOrCoinType string) (*Pool, error)
	Positions(ctx context.Context, owner string) ([]Position, error)
}

// ChainAPI is the chain RPC collaborator: balances and coin objects.
type ChainAPI interface {
	Balance(ctx context.Context, owner, coinType string) (string, error)
	Coins(ctx context.Context, owner, coinType string) ([]Coin, error)
}

const defaultLendingEndpoint = "https://open-api.naviprotocol.io/api/navi"

// LendingClient talks to the Navi open API.
type LendingClient struct {
	http     *httpx.Client
	endpoint string
	env      Env
	now      func() time.Time
}

func NewLendingClient(httpClient *httpx.Client, env Env) *LendingClient {
	return &LendingClient{http: httpClient, endpoint: defaultLendingEndpoint, env: env, now: time.Now}
}

// SetEndpoint overrides the API base URL (tests, self-hosted mirrors).
func (c *LendingClient) SetEndpoint(endpoint string) {
	c.endpoint = strings.TrimRight(endpoint, "/")
}

type poolPayload struct {
	ID    int `json:"id"`
	Token struct {
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
		CoinType string `json:"coinType"`
	} `json:"token"`
	CoinType string `json:"coinType"`
	Oracle   struct {
		Price string `json:"price"`
	} `json:"oracle"`
	BorrowIncentiveAPYInfo struct {
		APY string `json:"apy"`
	} `json:"borrowIncentiveApyInfo"`
	SupplyIncentiveAPYInfo struct {
		APY string `json:"apy"`
	} `json:"supplyIncentiveApyInfo"`
	AvailableBorrow   string `json:"availableBorrow"`
	TotalSupplyAmount string `json:"totalSupplyAmount"`
	BorrowedAmount    string `json:"borrowedAmount"`
	LTV               string `json:"ltv"`
	IsIsolated        bool   `json:"isIsolated"`
	LastUpdateMillis  int64  `json:"lastUpdateTimestamp"`
}

func (c *LendingClient) mapPool(p poolPayload) Pool {
	coinType := p.Token.CoinType
	if coinType == "" {
		coinType = p.CoinType
	}
	updated := c.now()
	if p.LastUpdateMillis > 0 {
		updated = time.UnixMilli(p.LastUpdateMillis)
	}
	return Pool{
		ID:                p.ID,
		Symbol:            strings.ToUpper(p.Token.Symbol),
		CoinType:          NormalizeCoinType(coinType),
		Decimals:          p.Token.Decimals,
		Price:             p.Oracle.Price,
		BorrowAPY:         p.BorrowIncentiveAPYInfo.APY,
		SupplyAPY:         p.SupplyIncentiveAPYInfo.APY,
		AvailableToBorrow: p.AvailableBorrow,
		TotalSupplied:     p.TotalSupplyAmount,
		TotalBorrowed:     p.BorrowedAmount,
		LoanToValue:       p.LTV,
		IsIsolated:        p.IsIsolated,
		LastUpdated:       updated,
	}
}

func (c *LendingClient) Pools(ctx context.Context) ([]Pool, error) {
	var resp struct {
		Data []poolPayload `json:"data"`
	}
	u := fmt.Sprintf("%s/pools?env=%s", c.endpoint, c.env)
	if _, err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	pools := make([]Pool, 0, len(resp.Data))
	for _, p := range resp.Data {
		pools = append(pools, c.mapPool(p))
	}
	return pools, nil
}

func (c *LendingClient) PoolByKey(ctx context.Context, idOrCoinType string) (*Pool, error) {
	key := strings.TrimSpace(idOrCoinType)
	if key == "" {
		return nil, agerr.New(agerr.CodePoolNotFound, "empty pool key")
	}
	var resp struct {
		Data *poolPayload `json:"data"`
	}
	u := fmt.Sprintf("%s/pools/%s?env=%s", c.endpoint, url.PathEscape(key), c.env)
	if _, err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, agerr.Newf(agerr.CodePoolNotFound, "no pool for %q", key)
	}
	pool := c.mapPool(*resp.Data)
	return &pool, nil
}

type positionPayload struct {
	Pool struct {
		ID    int `json:"id"`
		Token struct {
			Symbol string `json:"symbol"`
		} `json:"token"`
	} `json:"pool"`
	SupplyBalance string `json:"supplyBalance"`
	BorrowBalance string `json:"borrowBalance"`
}

func (c *LendingClient) Positions(ctx context.Context, owner string) ([]Position, error) {
	if err := AssertAddress(owner); err != nil {
		return nil, err
	}
	var resp struct {
		Data []positionPayload `json:"data"`
	}
	u := fmt.Sprintf("%s/portfolio/%s?env=%s", c.endpoint, url.PathEscape(owner), c.env)
	if _, err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(resp.Data))
	for _, p := range resp.Data {
		positions = append(positions, Position{
			PoolID:        p.Pool.ID,
			Symbol:        strings.ToUpper(p.Pool.Token.Symbol),
			SupplyBalance: zeroWhenEmpty(p.SupplyBalance),
			BorrowBalance: zeroWhenEmpty(p.BorrowBalance),
		})
	}
	return positions, nil
}

func zeroWhenEmpty(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "0"
	}
	return raw
}

// SuiClient speaks Sui JSON-RPC for balances and coin objects.
type SuiClient struct {
	http   *httpx.Client
	rpcURL string
}

func NewSuiClient(httpClient *httpx.Client, rpcURL string) *SuiClient {
	return &SuiClient{http: httpClient, rpcURL: rpcURL}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *SuiClient) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return agerr.Wrap(agerr.CodeInternal, "encode rpc request", err)
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if _, err := c.http.PostJSON(ctx, c.rpcURL, body, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return agerr.Newf(agerr.CodeRPC, "%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return agerr.Wrap(agerr.CodeRPC, "decode rpc result", err)
		}
	}
	return nil
}

func (c *SuiClient) Balance(ctx context.Context, owner, coinType string) (string, error) {
	if err := AssertAddress(owner); err != nil {
		return "", err
	}
	var result struct {
		TotalBalance string `json:"totalBalance"`
	}
	err := c.call(ctx, "suix_getBalance", []any{owner, NormalizeCoinType(coinType)}, &result)
	if err != nil {
		return "", err
	}
	return zeroWhenEmpty(result.TotalBalance), nil
}

func (c *SuiClient) Coins(ctx context.Context, owner, coinType string) ([]Coin, error) {
	if err := AssertAddress(owner); err != nil {
		return nil, err
	}
	var all []Coin
	var cursor *string
	for {
		params := []any{owner, NormalizeCoinType(coinType), cursor, nil}
		var result struct {
			Data        []Coin  `json:"data"`
			NextCursor  *string `json:"nextCursor"`
			HasNextPage bool    `json:"hasNextPage"`
		}
		if err := c.call(ctx, "suix_getCoins", params, &result); err != nil {
			return nil, err
		}
		all = append(all, result.Data...)
		if !result.HasNextPage || result.NextCursor == nil {
			return all, nil
		}
		cursor = result.NextCursor
	}
}

var (
	_ LendingAPI = (*LendingClient)(nil)
	_ ChainAPI   = (*SuiClient)(nil)
)
