package ledger

import (
	"bytes"
	"context"
	gosync "sync"
	"time"

	"github.com/duskledger/walletd/internal/walleterr"
	"github.com/duskledger/walletd/pkg/logging"
)

const (
	minBackoff   = 500 * time.Millisecond
	maxBackoff   = 30 * time.Second
	fetchBatch   = 8
	pollInterval = 2 * time.Second
)

// NetworkStatus is the point-in-time snapshot get_network_status
// reads: the source's advertised tip versus the store's own tail, plus
// the most recently observed fee schedule and block format version.
type NetworkStatus struct {
	NetworkBlockHeight uint64
	LocalBlockHeight   uint64
	Fees               map[uint64]uint64
	BlockVersion       uint32
}

// SyncEngine is the Ledger Sync Engine: a single poller goroutine that
// pulls contiguous blocks from a LedgerSource, validates them, and
// appends them to a Store, the way the teacher's internal/sync.OrderSync
// runs a single background goroutine under a context.Context it owns.
type SyncEngine struct {
	store  *Store
	source LedgerSource
	log    *logging.Logger

	notify chan uint64 // buffered 1; signaled after every successful append

	mu           gosync.RWMutex
	networkTip   uint64
	fees         map[uint64]uint64
	blockVersion uint32
	haltErr      error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncEngine constructs a sync engine over store and source. Call
// Start to begin polling.
func NewSyncEngine(store *Store, source LedgerSource) *SyncEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncEngine{
		store:  store,
		source: source,
		log:    logging.GetDefault().Component("ledgersync"),
		notify: make(chan uint64, 1),
		fees:   make(map[uint64]uint64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the poller goroutine.
func (e *SyncEngine) Start() {
	go e.run()
}

// Stop cancels the poller and waits for it to exit.
func (e *SyncEngine) Stop() {
	e.cancel()
	<-e.done
}

// Notify returns a channel signaled with the new tail index after
// every successful append, the hook the Scanner listens on instead of
// polling the store directly.
func (e *SyncEngine) Notify() <-chan uint64 {
	return e.notify
}

// NetworkStatus reports the engine's last observed view of the source.
func (e *SyncEngine) NetworkStatus() NetworkStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	local, _ := e.store.TailIndex()
	fees := make(map[uint64]uint64, len(e.fees))
	for k, v := range e.fees {
		fees[k] = v
	}
	return NetworkStatus{
		NetworkBlockHeight: e.networkTip,
		LocalBlockHeight:   local + 1,
		Fees:               fees,
		BlockVersion:       e.blockVersion,
	}
}

// Halted reports whether the engine has stopped polling after a
// permanent validation failure, and the error that caused it.
func (e *SyncEngine) Halted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.haltErr
}

func (e *SyncEngine) run() {
	defer close(e.done)
	backoff := minBackoff
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}

		if err := e.refreshNetworkInfo(); err != nil {
			e.log.Warn("refresh network info failed", "error", err)
		}

		advanced, err := e.pollOnce()
		if err != nil {
			if walleterr.Is(err, walleterr.LedgerValidationFailed) || walleterr.Is(err, walleterr.NonContiguousAppend) {
				e.mu.Lock()
				e.haltErr = err
				e.mu.Unlock()
				e.log.Error("halting ledger sync after validation failure", "error", err)
				return
			}
			e.log.Warn("ledger poll failed, backing off", "error", err, "backoff", backoff)
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff
		if advanced {
			continue
		}
	}
}

// pollOnce fetches and appends up to fetchBatch contiguous blocks
// starting at the store's current tail+1. It returns true if at least
// one block was appended.
func (e *SyncEngine) pollOnce() (bool, error) {
	advanced := false
	for i := 0; i < fetchBatch; i++ {
		next := uint64(0)
		if tail, ok := e.store.TailIndex(); ok {
			next = tail + 1
		}

		block, err := e.source.PeekBlock(e.ctx, next)
		if err != nil {
			if err == ErrBlockNotYetAvailable {
				return advanced, nil
			}
			return advanced, err
		}

		if err := validateBlockContents(block); err != nil {
			return advanced, err
		}

		if err := e.store.AppendBlock(block); err != nil {
			return advanced, err
		}
		advanced = true

		select {
		case e.notify <- block.Index:
		default:
			select {
			case <-e.notify:
			default:
			}
			e.notify <- block.Index
		}
	}
	return advanced, nil
}

// validateBlockContents recomputes the block's contents hash from its
// outputs and key images and compares it to the header, catching a
// source that serves tampered or truncated block bodies before they
// ever reach the Store.
func validateBlockContents(block *Block) error {
	expected := computeContentsHash(block)
	if !bytes.Equal(expected, block.ContentsHash) {
		return walleterr.New(walleterr.LedgerValidationFailed, "block contents hash mismatch")
	}
	return nil
}

func (e *SyncEngine) refreshNetworkInfo() error {
	tip, err := e.source.NetworkBlockHeight(e.ctx)
	if err != nil {
		return err
	}
	fees, err := e.source.AdvertisedFees(e.ctx)
	if err != nil {
		return err
	}
	version, err := e.source.AdvertisedBlockVersion(e.ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.networkTip = tip
	e.fees = fees
	e.blockVersion = version
	e.mu.Unlock()
	return nil
}
