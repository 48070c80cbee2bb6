package agent

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaiwenluo/suilend-agent/internal/ops"
)

// Pass-2 payloads. Amounts decode as json.Number so the model's numeric
// output never passes through float64 on its way to the converter.

type balanceParams struct {
	Address      string `json:"address"`
	Coin         string `json:"coin"`
	IsValid      bool   `json:"isValid"`
	ErrorMessage string `json:"errorMessage"`
}

func (p balanceParams) valid() bool {
	return p.IsValid && strings.TrimSpace(p.Coin) != ""
}

type transferParams struct {
	FromAddress  string      `json:"fromAddress"`
	ToAddress    string      `json:"toAddress"`
	Amount       json.Number `json:"amount"`
	Coin         string      `json:"coin"`
	Unit         string      `json:"unit"`
	Memo         string      `json:"memo"`
	IsValid      bool        `json:"isValid"`
	ErrorMessage string      `json:"errorMessage"`
}

func (p transferParams) valid(session Session) bool {
	if !p.IsValid || p.ToAddress == "" || p.Amount.String() == "" || p.Coin == "" {
		return false
	}
	// A stated sender must be the connected wallet.
	if p.FromAddress != "" && !strings.EqualFold(p.FromAddress, session.Address) {
		return false
	}
	return true
}

// unitLabel normalizes the model's unit field: anything that is not a
// dollar or percent marker is the asset symbol, meaning a plain token
// amount.
func unitLabel(raw string) string {
	switch unit := strings.ToUpper(strings.TrimSpace(raw)); unit {
	case "USD", "$", "PERCENT", "%":
		return unit
	default:
		return ""
	}
}

func (p transferParams) unitLabel() string { return unitLabel(p.Unit) }

type lendingParams struct {
	Address      string      `json:"address"`
	ID           json.Number `json:"id"`
	Symbol       string      `json:"symbol"`
	CoinType     string      `json:"coinType"`
	Amount       json.Number `json:"amount"`
	Unit         string      `json:"unit"`
	AccountCapID string      `json:"accountCapId"`
	IsValid      bool        `json:"isValid"`
	ErrorMessage string      `json:"errorMessage"`
	Reasoning    string      `json:"reasoning"`
}

func (p lendingParams) valid() bool {
	if !p.IsValid || p.Amount.String() == "" {
		return false
	}
	return p.poolID() != ops.PoolIDNone || (p.Symbol != "" && !strings.EqualFold(p.Symbol, ops.SymbolNone))
}

// poolID tolerates the id arriving as a number, a quoted number, or any of
// the "unknown" spellings; everything unusable reads as the sentinel.
func (p lendingParams) poolID() int {
	raw := strings.Trim(strings.TrimSpace(p.ID.String()), `"`)
	if raw == "" || strings.EqualFold(raw, "unknown") {
		return ops.PoolIDNone
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return ops.PoolIDNone
	}
	return id
}

func (p lendingParams) unitLabel() string { return unitLabel(p.Unit) }
