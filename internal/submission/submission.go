// Package submission implements the Submission Pipeline (SP):
// broadcasting a built transaction log to the network and driving its
// Built→Pending and Built/Pending→Failed transitions, modeled on the
// teacher's broadcast-then-poll shape in its swap funding/status RPC
// handlers.
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/walleterr"
	"github.com/google/uuid"
)

// Pipeline submits built transaction logs and records the outcome.
type Pipeline struct {
	pl     *persist.Store
	source ledger.LedgerSource
	net    NetworkInfo
}

// NetworkInfo is the subset of the ledger sync engine the pipeline
// needs to stamp submitted_block_index with the current network tip.
type NetworkInfo interface {
	NetworkStatus() ledger.NetworkStatus
}

// New builds a submission pipeline over a persistence handle, the
// network submit path, and the sync engine's network status.
func New(pl *persist.Store, source ledger.LedgerSource, net NetworkInfo) *Pipeline {
	return &Pipeline{pl: pl, source: source, net: net}
}

// NewIdempotencyKey returns a fresh key callers can pass to Submit to
// make a client-side retry of the same submit request a no-op replay
// instead of a second broadcast.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// Submit implements spec.md §4.8: hands a transaction log's raw bytes
// to the LedgerSource. On success the log transitions Built→Pending.
// On a source-reported validation rejection the log transitions to
// Failed. On a transport failure the log is left Built and the error
// is returned for the caller to retry — the idempotency key makes
// that retry safe.
func (p *Pipeline) Submit(ctx context.Context, transactionLogID string, idempotencyKey string) (*persist.TransactionLog, error) {
	keyBound := false
	if idempotencyKey != "" {
		if existing, err := p.pl.LookupIdempotencyKey(idempotencyKey); err == nil {
			bound, err := p.pl.GetTransactionLog(existing)
			if err != nil || existing != transactionLogID || bound.SubmittedBlockIndex != nil || bound.Failed {
				return bound, err
			}
			// A transport failure left the bound log Built: submit it again.
			keyBound = true
		} else if !errors.Is(err, persist.ErrIdempotencyKeyNotFound) {
			return nil, err
		}
	}

	log, err := p.pl.GetTransactionLog(transactionLogID)
	if err != nil {
		return nil, err
	}
	if log.SubmittedBlockIndex != nil {
		return log, nil // already submitted; nothing to do
	}

	if idempotencyKey != "" && !keyBound {
		if err := p.pl.ReserveIdempotencyKey(idempotencyKey, transactionLogID); err != nil {
			return nil, err
		}
	}

	if err := p.source.Submit(ctx, log.RawTransaction); err != nil {
		var rejected *ledger.SubmitRejected
		if errors.As(err, &rejected) {
			if failErr := p.pl.MarkFailed(transactionLogID); failErr != nil {
				return nil, failErr
			}
			return nil, walleterr.New(walleterr.InvalidParams, fmt.Sprintf("rejected: %s", rejected.Reason))
		}
		return nil, walleterr.Wrap(walleterr.NetworkUnavailable, err)
	}

	status := p.net.NetworkStatus()
	if err := p.pl.MarkSubmitted(transactionLogID, status.NetworkBlockHeight); err != nil {
		return nil, err
	}
	return p.pl.GetTransactionLog(transactionLogID)
}
