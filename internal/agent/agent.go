// Package agent runs the two-pass conversation protocol: classify the user's
// intent, extract typed parameters for that intent, execute the matching
// flow, and phrase the outcome. The raw parsed JSON never travels past this
// boundary; every intent has its own validated parameter struct.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaiwenluo/suilend-agent/internal/amount"
	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
	"github.com/kaiwenluo/suilend-agent/internal/extract"
	"github.com/kaiwenluo/suilend-agent/internal/llm"
	"github.com/kaiwenluo/suilend-agent/internal/ops"
	"github.com/rs/zerolog"
)

type Intent string

const (
	IntentQueryBalance   Intent = "query_balance"
	IntentQueryPools     Intent = "query_pools"
	IntentQueryPortfolio Intent = "query_portfolio"
	IntentTransfer       Intent = "transfer"
	IntentDeposit        Intent = "deposit"
	IntentBorrow         Intent = "borrow"
	IntentRepay          Intent = "repay"
	IntentWithdraw       Intent = "withdraw"
	IntentChat           Intent = "normal_chat"
	IntentUnknown        Intent = "unknown"
)

// minConfidence is the classification floor: anything below it is treated
// as ordinary conversation rather than acted on.
const minConfidence = 0.3

const (
	msgConnectWallet = "Please connect your wallet to use the assistant's on-chain features."
	msgRetryLater    = "Something went wrong talking to the network. Please try again in a moment."
	msgPoolsFailed   = "Failed to fetch pool information. Please try again later."
	msgEmptyReply    = "(empty reply)"
)

// Classification is the pass-1 result.
type Classification struct {
	Intent         Intent  `json:"intent"`
	Confidence     float64 `json:"confidence"`
	RequiresWallet bool    `json:"requiresWallet"`
	Reasoning      string  `json:"reasoning"`
}

// Session carries the caller's wallet state for one conversation turn.
type Session struct {
	WalletConnected bool
	Address         string
}

// Orchestrator routes a conversation turn to a flow or to plain chat.
type Orchestrator struct {
	model llm.Client
	ops   *ops.Service
	log   zerolog.Logger
}

func New(model llm.Client, service *ops.Service) *Orchestrator {
	return &Orchestrator{model: model, ops: service, log: zerolog.Nop()}
}

func (o *Orchestrator) WithLogger(log zerolog.Logger) *Orchestrator {
	o.log = log
	return o
}

// Handle processes the latest user turn of the conversation and returns the
// assistant's reply. The wallet gate runs before any model call: on-chain
// features are unavailable without a connected wallet.
func (o *Orchestrator) Handle(ctx context.Context, session Session, history []llm.Message) (string, error) {
	if len(history) == 0 {
		return "", agerr.New(agerr.CodeUsage, "no messages to process")
	}
	if !session.WalletConnected {
		return msgConnectWallet, nil
	}

	last := history[len(history)-1].Content
	if len(strings.TrimSpace(last)) < 2 {
		return o.chat(ctx, history, "")
	}

	classification := o.classify(ctx, history)
	o.log.Debug().
		Str("intent", string(classification.Intent)).
		Float64("confidence", classification.Confidence).
		Msg("intent classified")

	switch classification.Intent {
	case IntentQueryPools:
		return o.queryPools(ctx, history)
	case IntentQueryBalance:
		return o.queryBalance(ctx, session, history)
	case IntentQueryPortfolio:
		return o.queryPortfolio(ctx, session, history)
	case IntentTransfer:
		return o.transfer(ctx, session, history)
	case IntentDeposit:
		return o.deposit(ctx, session, history)
	case IntentBorrow:
		return o.borrow(ctx, session, history)
	case IntentRepay:
		return o.repay(ctx, session, history)
	case IntentWithdraw:
		return o.withdraw(ctx, session, history)
	default:
		return o.chat(ctx, history, classification.Reasoning)
	}
}

// classify runs pass 1. A model failure or unparseable reply downgrades to
// chat instead of failing the turn.
func (o *Orchestrator) classify(ctx context.Context, history []llm.Message) Classification {
	reply, err := o.model.Chat(ctx, []string{llm.SystemPrompt(), llm.ClassifyPrompt()}, history)
	if err != nil {
		o.log.Warn().Err(err).Msg("classification call failed")
		return Classification{Intent: IntentChat, Confidence: 0.1}
	}
	var c Classification
	if err := extract.Decode(reply, &c); err != nil {
		o.log.Warn().Err(err).Msg("classification reply unparseable")
		return Classification{Intent: IntentChat, Confidence: 0.1}
	}
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	if c.Confidence < minConfidence {
		c.Intent = IntentChat
		c.RequiresWallet = false
	}
	return c
}

func (o *Orchestrator) chat(ctx context.Context, history []llm.Message, hint string) (string, error) {
	messages := history
	if hint != "" {
		messages = append(append([]llm.Message{}, history...), llm.Message{Role: llm.RoleUser, Content: hint})
	}
	reply, err := o.model.Chat(ctx, []string{llm.SystemPrompt()}, messages)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return msgEmptyReply, nil
	}
	return reply, nil
}

// extractParams runs one pass-2 extraction against the intent prompt.
func (o *Orchestrator) extractParams(ctx context.Context, prompt string, history []llm.Message, out any) error {
	reply, err := o.model.Chat(ctx, []string{prompt}, history)
	if err != nil {
		return err
	}
	return extract.Decode(reply, out)
}

// clarify asks the model to request the missing pieces of an unclear
// instruction, seeding it with the extractor's own error message.
func (o *Orchestrator) clarify(ctx context.Context, topic, reason string, history []llm.Message) (string, error) {
	messages := append(append([]llm.Message{}, history...), llm.Message{
		Role:    llm.RoleUser,
		Content: orDefault(reason, "Reply based on the user's last input."),
	})
	reply, err := o.model.Chat(ctx, []string{llm.ClarifyPrompt(topic)}, messages)
	if err != nil || reply == "" {
		return orDefault(reason, msgEmptyReply), nil
	}
	return reply, nil
}

// present phrases a finished result through one more model call, falling
// back to the plain result text when the call fails.
func (o *Orchestrator) present(ctx context.Context, prompt, fallback string) (string, error) {
	reply, err := o.model.Chat(ctx, []string{prompt}, nil)
	if err != nil || reply == "" {
		return fallback, nil
	}
	return reply, nil
}

// explain maps a flow error to user-facing text: recoverable validation and
// conversion failures carry their own message, boundary failures become a
// generic retry suggestion.
func (o *Orchestrator) explain(err error) string {
	if agerr.Recoverable(err) {
		if e, ok := agerr.As(err); ok {
			return "That request cannot be executed: " + e.Message + "."
		}
	}
	o.log.Error().Err(err).Msg("flow failed")
	return msgRetryLater
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func (o *Orchestrator) queryPools(ctx context.Context, history []llm.Message) (string, error) {
	summaries, err := o.ops.Pools(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("pool query failed")
		return msgPoolsFailed, nil
	}
	encoded, err := json.Marshal(summaries)
	if err != nil {
		return msgPoolsFailed, nil
	}
	reply, err := o.model.Chat(ctx, []string{llm.PoolsResultPrompt(string(encoded))}, history)
	if err != nil {
		return msgPoolsFailed, nil
	}
	return reply, nil
}

func (o *Orchestrator) queryBalance(ctx context.Context, session Session, history []llm.Message) (string, error) {
	var params balanceParams
	if err := o.extractParams(ctx, llm.BalancePrompt(session.Address), history, &params); err != nil {
		return "", err
	}
	if !params.valid() {
		return o.clarify(ctx, "balance query", params.ErrorMessage, history)
	}
	address := orDefault(params.Address, session.Address)
	result, err := o.ops.Balance(ctx, address, params.Coin)
	if err != nil {
		return o.explain(err), nil
	}
	summary := fmt.Sprintf("Address %s holds %s %s (%s minimal units).",
		shortAddress(address), result.Display, result.Symbol, result.Units)
	return o.present(ctx, llm.QueryResultPrompt(summary), summary)
}

func (o *Orchestrator) queryPortfolio(ctx context.Context, session Session, history []llm.Message) (string, error) {
	positions, err := o.ops.Portfolio(ctx, session.Address)
	if err != nil {
		return o.explain(err), nil
	}
	encoded, err := json.Marshal(positions)
	if err != nil {
		return msgRetryLater, nil
	}
	summary := "Current positions: " + string(encoded)
	return o.present(ctx, llm.QueryResultPrompt(summary), summary)
}

func (o *Orchestrator) transfer(ctx context.Context, session Session, history []llm.Message) (string, error) {
	var params transferParams
	if err := o.extractParams(ctx, llm.TransferPrompt(session.Address), history, &params); err != nil {
		return "", err
	}
	if !params.valid(session) {
		return o.clarify(ctx, "transfer", params.ErrorMessage, history)
	}
	unit, err := amount.ParseUnit(params.unitLabel())
	if err != nil {
		return o.explain(err), nil
	}
	result, err := o.ops.Transfer(ctx, ops.TransferParams{
		Sender:    session.Address,
		Recipient: params.ToAddress,
		Symbol:    params.Coin,
		Quantity:  params.Amount.String(),
		Unit:      unit,
	})
	if err != nil {
		return o.explain(err), nil
	}
	fallback := fmt.Sprintf("Transfer submitted, digest: %s. You can inspect it on https://suiscan.xyz/.", result.Digest)
	return o.present(ctx, llm.TxResultPrompt(result.Digest), fallback)
}

func (o *Orchestrator) deposit(ctx context.Context, session Session, history []llm.Message) (string, error) {
	var params lendingParams
	if err := o.extractParams(ctx, llm.DepositPrompt(session.Address), history, &params); err != nil {
		return "", err
	}
	if !params.valid() {
		return o.clarify(ctx, "deposit", params.ErrorMessage, history)
	}
	return o.runLending(ctx, "deposit", params, session, o.ops.Deposit)
}

func (o *Orchestrator) borrow(ctx context.Context, session Session, history []llm.Message) (string, error) {
	var params lendingParams
	if err := o.extractParams(ctx, llm.BorrowPrompt(session.Address), history, &params); err != nil {
		return "", err
	}
	if !params.valid() {
		return o.clarify(ctx, "borrow", params.ErrorMessage, history)
	}
	return o.runLending(ctx, "borrow", params, session, o.ops.Borrow)
}

func (o *Orchestrator) repay(ctx context.Context, session Session, history []llm.Message) (string, error) {
	var params lendingParams
	if err := o.extractParams(ctx, llm.RepayPrompt(session.Address), history, &params); err != nil {
		return "", err
	}
	if !params.valid() {
		return o.clarify(ctx, "repay", params.ErrorMessage, history)
	}
	return o.runLending(ctx, "repay", params, session, o.ops.Repay)
}

func (o *Orchestrator) withdraw(ctx context.Context, session Session, history []llm.Message) (string, error) {
	var params lendingParams
	if err := o.extractParams(ctx, llm.WithdrawPrompt(session.Address), history, &params); err != nil {
		return "", err
	}
	if !params.valid() {
		return o.clarify(ctx, "withdraw", params.ErrorMessage, history)
	}
	return o.runLending(ctx, "withdraw", params, session, o.ops.Withdraw)
}

func (o *Orchestrator) runLending(
	ctx context.Context,
	flow string,
	params lendingParams,
	session Session,
	run func(context.Context, ops.LendingParams) (*ops.Result, error),
) (string, error) {
	unit, err := amount.ParseUnit(params.unitLabel())
	if err != nil {
		return o.explain(err), nil
	}
	result, err := run(ctx, ops.LendingParams{
		Sender:       session.Address,
		PoolID:       params.poolID(),
		Symbol:       params.Symbol,
		Quantity:     params.Amount.String(),
		Unit:         unit,
		AccountCap:   params.AccountCapID,
		CoinTypeHint: params.CoinType,
	})
	if err != nil {
		return o.explain(err), nil
	}
	fallback := fmt.Sprintf("The %s of %s %s was submitted, digest: %s.",
		flow, result.Display, result.Symbol, result.Digest)
	return o.present(ctx, llm.TxResultPrompt(result.Digest), fallback)
}
