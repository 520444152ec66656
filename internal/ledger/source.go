package ledger

import "context"

// LedgerSource is the abstract upstream the wallet core consumes: the
// RPC protocol to consensus peers and the tx-source archive fetch
// (spec.md §1, explicitly out of scope) collapse to this interface. A
// production implementation fans out across multiple consensus peers
// and tx-source archive URLs, or proxies through a single trusted
// validator endpoint; the core never distinguishes between them.
// Concrete implementations live in internal/ledgersource.
type LedgerSource interface {
	// PeekBlock returns a block without blocking on it becoming
	// available; it returns ErrBlockNotYetAvailable if index exceeds
	// the source's current tip.
	PeekBlock(ctx context.Context, index uint64) (*Block, error)
	// FetchBlock returns a block, suspending on the network call.
	FetchBlock(ctx context.Context, index uint64) (*Block, error)
	// NetworkBlockHeight is the highest block index the source
	// currently advertises.
	NetworkBlockHeight(ctx context.Context) (uint64, error)
	// AdvertisedFees is the current per-token_id minimum fee map.
	AdvertisedFees(ctx context.Context) (map[uint64]uint64, error)
	// AdvertisedBlockVersion is the most recently observed block
	// format version.
	AdvertisedBlockVersion(ctx context.Context) (uint32, error)
	// Submit hands a fully assembled transaction's opaque bytes to the
	// network. A returned *SubmitRejected is a terminal, consensus-level
	// rejection (e.g. a spent key image); any other error is assumed
	// transport-level and retryable.
	Submit(ctx context.Context, txBytes []byte) error
}

// SubmitRejected wraps a LedgerSource-reported validation failure
// distinct from a transport error — the Submission Pipeline treats it
// as terminal (transaction log -> Failed) rather than retryable.
type SubmitRejected struct {
	Reason string
}

func (e *SubmitRejected) Error() string { return "ledger source rejected transaction: " + e.Reason }

// notAvailableError backs ErrBlockNotYetAvailable.
type notAvailableError struct{}

func (*notAvailableError) Error() string { return "block not yet available" }

// ErrBlockNotYetAvailable is returned by PeekBlock when index is past
// the source's current tip; it is not an error condition the caller
// should log loudly, only a "come back later" signal.
var ErrBlockNotYetAvailable = &notAvailableError{}
