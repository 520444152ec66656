package persist

import (
	"database/sql"
	"errors"
	"fmt"
)

// Memo kinds mirror the tagged-sum variants spec.md §9 describes;
// stored normalized per-variant rather than as an opaque blob.
const (
	MemoKindAuthenticatedSender                    = "authenticated_sender"
	MemoKindAuthenticatedSenderWithPaymentIntentID  = "authenticated_sender_with_payment_intent_id"
	MemoKindAuthenticatedSenderWithPaymentRequestID = "authenticated_sender_with_payment_request_id"
	MemoKindDestination                             = "destination"
)

// Memo is one composed memo attached to a built output, normalized
// per-variant: only the fields a given Kind uses are populated.
type Memo struct {
	TxoID            string
	Kind             string
	AddressHash      []byte
	PaymentIntentID  *uint64
	PaymentRequestID *uint64
	NumRecipients    *uint64
	Fee              *uint64
	TotalOutlay      *uint64
	HMAC             []byte
}

// InsertMemo persists one output's composed memo.
func (s *Store) InsertMemo(m Memo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO memos (
			txo_id, kind, address_hash, payment_intent_id, payment_request_id,
			num_recipients, fee, total_outlay, hmac
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.TxoID, m.Kind, nullableBytes(m.AddressHash), nullableU64Ptr(m.PaymentIntentID), nullableU64Ptr(m.PaymentRequestID),
		nullableU64Ptr(m.NumRecipients), nullableU64Ptr(m.Fee), nullableU64Ptr(m.TotalOutlay), nullableBytes(m.HMAC),
	)
	if err != nil {
		return fmt.Errorf("insert memo: %w", err)
	}
	return nil
}

// GetMemoByTxo fetches the memo attached to a TXO, or (nil, nil) if
// the output carries none — memo composition is best-effort per
// spec.md §4.7 step 5, so its absence is not an error condition.
func (s *Store) GetMemoByTxo(txoID string) (*Memo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m Memo
	var addressHash, hmacValue sql.NullString
	var paymentIntentID, paymentRequestID, numRecipients, fee, totalOutlay sql.NullInt64

	err := s.db.QueryRow(`
		SELECT txo_id, kind, address_hash, payment_intent_id, payment_request_id,
			num_recipients, fee, total_outlay, hmac
		FROM memos WHERE txo_id = ?
	`, txoID).Scan(&m.TxoID, &m.Kind, &addressHash, &paymentIntentID, &paymentRequestID,
		&numRecipients, &fee, &totalOutlay, &hmacValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memo: %w", err)
	}

	if addressHash.Valid {
		m.AddressHash = []byte(addressHash.String)
	}
	if hmacValue.Valid {
		m.HMAC = []byte(hmacValue.String)
	}
	if paymentIntentID.Valid {
		v := uint64(paymentIntentID.Int64)
		m.PaymentIntentID = &v
	}
	if paymentRequestID.Valid {
		v := uint64(paymentRequestID.Int64)
		m.PaymentRequestID = &v
	}
	if numRecipients.Valid {
		v := uint64(numRecipients.Int64)
		m.NumRecipients = &v
	}
	if fee.Valid {
		v := uint64(fee.Int64)
		m.Fee = &v
	}
	if totalOutlay.Valid {
		v := uint64(totalOutlay.Int64)
		m.TotalOutlay = &v
	}
	return &m, nil
}
