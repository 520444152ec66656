// Package txo implements the TXO Store (TS): the derived-status read
// model layered over internal/persist's raw TXO rows, plus the
// balance and max-spendable queries the API facade exposes.
package txo

import (
	"github.com/duskledger/walletd/internal/account"
	"github.com/duskledger/walletd/internal/persist"
)

// Status is one of the six derived TXO lifecycle states. It is never
// stored; Derive computes it fresh from a persist.Txo's primitive
// fields on every read.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusUnspent    Status = "unspent"
	StatusPending    Status = "pending"
	StatusSpent      Status = "spent"
	StatusOrphaned   Status = "orphaned"
	StatusSecreted   Status = "secreted"
)

// Txo is one TXO as the API facade and transaction builder see it: the
// persisted row plus its computed Status.
type Txo struct {
	*persist.Txo
	Status Status
}

// Store wraps the persistence layer with the derived-status and
// balance computations described in spec.md §4.5.
type Store struct {
	pl *persist.Store
	as *account.Store
}

// New wraps a persistence layer and account store handle.
func New(pl *persist.Store, as *account.Store) *Store {
	return &Store{pl: pl, as: as}
}

// Derive computes a TXO's status from its primitive fields, whether
// its recovered subaddress index has actually been assigned yet, the
// account's view_only flag, and whether it is currently referenced by
// an open (Built or Pending) transaction log.
//
// subaddressAssigned must be false whenever t.SubaddressIndex is nil
// or names an index the scanner matched ahead of the account's
// next_subaddress_index (spec.md §4.4 orphan recovery) — the scanner
// always records a non-nil index for any match within its gap-limit
// window, so a nil index can no longer be relied on to signal this.
func Derive(t *persist.Txo, subaddressAssigned bool, viewOnly bool, pendingSpend bool) Status {
	switch {
	case t.IsSecreted:
		return StatusSecreted
	case t.SpentBlockIndex != nil:
		return StatusSpent
	case pendingSpend:
		return StatusPending
	case !subaddressAssigned:
		return StatusOrphaned
	case viewOnly && t.KeyImage == nil:
		return StatusUnverified
	default:
		return StatusUnspent
	}
}

func (s *Store) decorate(t *persist.Txo) (*Txo, error) {
	acc, err := s.as.GetAccount(t.AccountID)
	if err != nil {
		return nil, err
	}
	pending := false
	if !t.IsSecreted && t.SpentBlockIndex == nil {
		pending, err = s.pl.TxoReferencedByOpenLog(t.TxoID)
		if err != nil {
			return nil, err
		}
	}
	assigned := t.SubaddressIndex != nil && *t.SubaddressIndex < acc.NextSubaddressIndex
	status := Derive(t, assigned, acc.Kind == persist.AccountKindViewOnly, pending)
	return &Txo{Txo: t, Status: status}, nil
}

func (s *Store) decorateAll(rows []*persist.Txo) ([]*Txo, error) {
	out := make([]*Txo, 0, len(rows))
	for _, r := range rows {
		d, err := s.decorate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Get fetches one TXO by id.
func (s *Store) Get(txoID string) (*Txo, error) {
	t, err := s.pl.GetTxo(txoID)
	if err != nil {
		return nil, err
	}
	return s.decorate(t)
}

// GetByPublicKey fetches one TXO by its published one-time tx public key.
func (s *Store) GetByPublicKey(publicKey []byte) (*Txo, error) {
	t, err := s.pl.GetTxoByPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	return s.decorate(t)
}

// ListFilter narrows a List call; a nil field means "no filter on this
// dimension."
type ListFilter struct {
	TokenID  *uint64
	Status   *Status
	MinBlock *uint64
	MaxBlock *uint64
	Limit    int
	Offset   int
}

// List returns an account's TXOs, applying status/token/block filters
// and pagination after status derivation (status isn't a SQL column,
// so that filter is applied in Go).
func (s *Store) List(accountID string, f ListFilter) ([]*Txo, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	// Over-fetch past the page boundary since status/block filtering
	// happens after the SQL LIMIT/OFFSET would otherwise have applied;
	// conservative but correct for this service's account-scale data.
	rows, err := s.pl.ListTxosByAccount(accountID, f.TokenID, 1<<20, 0)
	if err != nil {
		return nil, err
	}
	decorated, err := s.decorateAll(rows)
	if err != nil {
		return nil, err
	}

	var filtered []*Txo
	for _, t := range decorated {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.MinBlock != nil && (t.BlockIndex == nil || *t.BlockIndex < *f.MinBlock) {
			continue
		}
		if f.MaxBlock != nil && (t.BlockIndex == nil || *t.BlockIndex > *f.MaxBlock) {
			continue
		}
		filtered = append(filtered, t)
	}

	start := f.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], nil
}

// Balance is the per-token breakdown get_account_status reports.
type Balance struct {
	Unspent    uint64
	Pending    uint64
	Spent      uint64
	Orphaned   uint64
	Unverified uint64
	Secreted   uint64
}

// BalancePerToken sums every status bucket per token_id for an account.
func (s *Store) BalancePerToken(accountID string) (map[uint64]*Balance, error) {
	rows, err := s.pl.ListTxosByAccount(accountID, nil, 1<<20, 0)
	if err != nil {
		return nil, err
	}
	decorated, err := s.decorateAll(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]*Balance)
	for _, t := range decorated {
		b, ok := out[t.TokenID]
		if !ok {
			b = &Balance{}
			out[t.TokenID] = b
		}
		switch t.Status {
		case StatusUnspent:
			b.Unspent += t.Value
		case StatusPending:
			b.Pending += t.Value
		case StatusSpent:
			b.Spent += t.Value
		case StatusOrphaned:
			b.Orphaned += t.Value
		case StatusUnverified:
			b.Unverified += t.Value
		case StatusSecreted:
			b.Secreted += t.Value
		}
	}
	return out, nil
}

// MaxSpendable computes the largest amount of tokenID this account
// could send in a single transaction: the sum of its 16 largest
// Unspent TXOs of that token, minus fee, clamped to 0.
func (s *Store) MaxSpendable(accountID string, tokenID uint64, fee uint64) (uint64, error) {
	spendable, err := s.SpendableCandidates(accountID, tokenID)
	if err != nil {
		return 0, err
	}
	if len(spendable) > 16 {
		spendable = spendable[:16]
	}
	var sum uint64
	for _, t := range spendable {
		sum += t.Value
	}
	if sum < fee {
		return 0, nil
	}
	return sum - fee, nil
}

// SpendableCandidates returns an account's Unspent TXOs of a token not
// referenced by any open transaction log, largest-first — the
// candidate pool both MaxSpendable and internal/txbuilder's input
// selection draw from. Orphaned TXOs are excluded; for a view-only
// account, TXOs still Unverified (no key image yet) are included.
func (s *Store) SpendableCandidates(accountID string, tokenID uint64) ([]*persist.Txo, error) {
	acc, err := s.as.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pl.SpendableTxos(accountID, tokenID)
	if err != nil {
		return nil, err
	}
	var out []*persist.Txo
	for _, t := range rows {
		if t.SubaddressIndex == nil || *t.SubaddressIndex >= acc.NextSubaddressIndex {
			continue // Orphaned: its subaddress is not assigned yet
		}
		pending, err := s.pl.TxoReferencedByOpenLog(t.TxoID)
		if err != nil {
			return nil, err
		}
		if pending {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
