// Package tx models the chain-specific instruction sequence a flow hands to
// the external signer. The request is an ordered command list with a
// designated sender; commands may reference objects by id or the result of
// an earlier command, mirroring programmable-transaction semantics.
package tx

import (
	"context"
	"math/big"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
)

type CommandKind string

const (
	KindSplitGas        CommandKind = "split_gas"
	KindSplitCoins      CommandKind = "split_coins"
	KindMergeCoins      CommandKind = "merge_coins"
	KindTransferObjects CommandKind = "transfer_objects"
	KindMoveCall        CommandKind = "move_call"
)

// Arg references a command input: an owned object, the result of a previous
// command, or a pure value. Exactly one field is meaningful.
type Arg struct {
	Object string `json:"object,omitempty"`
	Result int    `json:"result,omitempty"`
	Pure   string `json:"pure,omitempty"`

	isResult bool
}

func ObjectArg(id string) Arg   { return Arg{Object: id} }
func PureArg(value string) Arg  { return Arg{Pure: value} }
func resultArg(index int) Arg   { return Arg{Result: index, isResult: true} }
func (a Arg) IsResult() bool    { return a.isResult }
func (a Arg) ResultIndex() int  { return a.Result }
func (a Arg) IsZero() bool      { return !a.isResult && a.Object == "" && a.Pure == "" }

type Command struct {
	Kind      CommandKind `json:"kind"`
	Target    string      `json:"target,omitempty"`
	Args      []Arg       `json:"args,omitempty"`
	Amounts   []string    `json:"amounts,omitempty"`
	Recipient string      `json:"recipient,omitempty"`
}

// Request is an assembled, not yet signed transaction. It is owned by the
// flow that builds it until handed to the signer.
type Request struct {
	Sender   string    `json:"sender"`
	Commands []Command `json:"commands"`
}

func NewRequest(sender string) *Request {
	return &Request{Sender: sender}
}

func (r *Request) append(cmd Command) Arg {
	r.Commands = append(r.Commands, cmd)
	return resultArg(len(r.Commands) - 1)
}

// SplitGas splits the given minimal-unit amount off the gas coin and returns
// a reference to the produced coin.
func (r *Request) SplitGas(amount *big.Int) Arg {
	return r.append(Command{Kind: KindSplitGas, Amounts: []string{amount.String()}})
}

// SplitCoins splits amount off the referenced coin.
func (r *Request) SplitCoins(coin Arg, amount *big.Int) Arg {
	return r.append(Command{Kind: KindSplitCoins, Args: []Arg{coin}, Amounts: []string{amount.String()}})
}

// MergeCoins merges the source coins into primary. The merged balance stays
// on primary; sources are consumed.
func (r *Request) MergeCoins(primary Arg, sources []Arg) {
	args := append([]Arg{primary}, sources...)
	r.append(Command{Kind: KindMergeCoins, Args: args})
}

// TransferObjects sends the referenced objects to recipient.
func (r *Request) TransferObjects(objects []Arg, recipient string) {
	r.append(Command{Kind: KindTransferObjects, Args: objects, Recipient: recipient})
}

// MoveCall appends a protocol call and returns a reference to its result.
func (r *Request) MoveCall(target string, args ...Arg) Arg {
	return r.append(Command{Kind: KindMoveCall, Target: target, Args: args})
}

// Receipt is what the signer returns for a submitted transaction.
type Receipt struct {
	Digest string `json:"digest,omitempty"`
}

// Signer executes an assembled request. Implementations live outside this
// core (wallet adapters, test fakes); a rejection should carry
// CodeSignerDeclined, any other failure CodeSigner.
type Signer interface {
	SignAndExecute(ctx context.Context, req *Request) (Receipt, error)
}

// Declined builds the canonical rejection error for signer adapters.
func Declined(reason string) error {
	if reason == "" {
		reason = "signature request declined"
	}
	return agerr.New(agerr.CodeSignerDeclined, reason)
}
