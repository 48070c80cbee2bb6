package tx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	agerr "github.com/kaiwenluo/suilend-agent/internal/errors"
)

// DryRunSigner never touches a wallet: it derives a deterministic digest
// from the request contents. Used by the CLI's --dry-run mode and by tests.
type DryRunSigner struct{}

func (DryRunSigner) SignAndExecute(_ context.Context, req *Request) (Receipt, error) {
	if req == nil || req.Sender == "" {
		return Receipt{}, agerr.New(agerr.CodeSigner, "request has no sender")
	}
	buf, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, agerr.Wrap(agerr.CodeSigner, "encode request", err)
	}
	sum := sha256.Sum256(buf)
	return Receipt{Digest: "0x" + hex.EncodeToString(sum[:])}, nil
}
