// Package ledgersource provides concrete implementations of
// ledger.LedgerSource: the upstream peer transport the Ledger Sync
// Engine pulls blocks from and the Submission Pipeline submits
// finalized transactions to. The wire protocol to consensus peers and
// the tx-source archive fetch are explicitly out of scope (spec.md
// §1); this package only supplies a test double and the seam a real
// transport would implement against.
package ledgersource

import (
	"context"
	"fmt"
	"sync"

	"github.com/duskledger/walletd/internal/ledger"
)

// Memory is an in-process ledger.LedgerSource backed by a slice of
// blocks appended by test code, standing in for a consensus-peer or
// validator-proxy transport. Submit records submitted transactions for
// assertions rather than doing anything with them.
type Memory struct {
	mu           sync.RWMutex
	blocks       []*ledger.Block
	fees         map[uint64]uint64
	blockVersion uint32
	submitted    [][]byte
	rejectNext   *ledger.SubmitRejected
}

// NewMemory builds an empty in-memory source with the given fee
// schedule and block version advertised to callers.
func NewMemory(fees map[uint64]uint64, blockVersion uint32) *Memory {
	return &Memory{fees: fees, blockVersion: blockVersion}
}

// AppendBlock adds a block to the source's advertised chain, for test
// setup; it does not validate contiguity the way ledger.Store does.
func (m *Memory) AppendBlock(b *ledger.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, b)
}

// RejectNextSubmit arranges for the next Submit call to fail with a
// terminal rejection instead of succeeding.
func (m *Memory) RejectNextSubmit(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectNext = &ledger.SubmitRejected{Reason: reason}
}

func (m *Memory) PeekBlock(_ context.Context, index uint64) (*ledger.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index >= uint64(len(m.blocks)) {
		return nil, ledger.ErrBlockNotYetAvailable
	}
	return m.blocks[index], nil
}

func (m *Memory) FetchBlock(ctx context.Context, index uint64) (*ledger.Block, error) {
	return m.PeekBlock(ctx, index)
}

func (m *Memory) NetworkBlockHeight(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocks) == 0 {
		return 0, fmt.Errorf("no blocks available")
	}
	return uint64(len(m.blocks) - 1), nil
}

func (m *Memory) AdvertisedFees(_ context.Context) (map[uint64]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uint64]uint64, len(m.fees))
	for k, v := range m.fees {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) AdvertisedBlockVersion(_ context.Context) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockVersion, nil
}

func (m *Memory) Submit(_ context.Context, txBytes []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejectNext != nil {
		rej := m.rejectNext
		m.rejectNext = nil
		return rej
	}
	m.submitted = append(m.submitted, txBytes)
	return nil
}

// Submitted returns every transaction accepted by Submit, for test
// assertions.
func (m *Memory) Submitted() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.submitted))
	copy(out, m.submitted)
	return out
}
