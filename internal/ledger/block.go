// Package ledger implements the append-only Ledger Store (LS) and the
// Ledger Sync Engine (LSE) that drives it from a LedgerSource.
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
)

// TxOutput is one minted output inside a block, carrying everything
// the scanner needs for view-key matching plus the opaque
// cryptographic material (commitment, range proof, encrypted fog hint)
// the wallet core never interprets directly.
type TxOutput struct {
	PublicKey        []byte // R, the per-output ephemeral tx public key
	TargetKey        []byte // P, the one-time output key
	Commitment       []byte // Pedersen commitment to (value, token_id)
	MaskedValue      uint64
	MaskedTokenID    uint64
	EncryptedFogHint []byte
	Memo             []byte // opaque memo bytes; the ledger store never interprets them
}

// Block is one validated, appended ledger entry. Index is contiguous
// from 0; ID is a content hash of the block header; ContentsHash is a
// content hash of Outputs+KeyImages, checked by the sync engine against
// the header before the block is trusted.
type Block struct {
	Index              uint64
	ID                 []byte
	Version             uint32
	ParentID            []byte
	CumulativeTxoCount  uint64
	MerkleRoot          []byte
	ContentsHash        []byte
	KeyImages           [][]byte
	Outputs             []TxOutput
}

// computeContentsHash derives the hash the sync engine checks against
// a block's advertised ContentsHash before trusting it: a digest of
// every output and key image, in order. It deliberately excludes the
// header fields (Index, ParentID, MerkleRoot); Index and ParentID are
// checked separately by contiguity validation, and MerkleRoot is not
// checked.
func computeContentsHash(block *Block) []byte {
	h := sha256.New()
	for _, ki := range block.KeyImages {
		h.Write(ki)
	}
	for _, o := range block.Outputs {
		h.Write(o.PublicKey)
		h.Write(o.TargetKey)
		h.Write(o.Commitment)
		var buf [16]byte
		binary.BigEndian.PutUint64(buf[0:8], o.MaskedValue)
		binary.BigEndian.PutUint64(buf[8:16], o.MaskedTokenID)
		h.Write(buf[:])
		h.Write(o.EncryptedFogHint)
		h.Write(o.Memo)
	}
	return h.Sum(nil)
}
