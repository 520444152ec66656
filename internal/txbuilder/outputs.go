package txbuilder

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/duskledger/walletd/internal/cryptoiface"
	"github.com/duskledger/walletd/internal/ledger"
	"github.com/duskledger/walletd/internal/persist"
	"github.com/duskledger/walletd/internal/walleterr"
)

// builtOutput is one fully-constructed output: its one-time key
// material, masked amount and the TXO id it will be persisted under.
type builtOutput struct {
	txoID        string
	txPublicKey  []byte
	targetKey    []byte
	commitment   *cryptoiface.Commitment
	blinding     *cryptoiface.Scalar
	maskedAmount cryptoiface.MaskedAmount
	sharedSecret []byte
	confirmation []byte
	memo         *persist.Memo
}

// memoParams carries the per-build context buildOutputs needs to
// compose memos without threading the whole *persist.Account and
// BuildParams through: the sending account's own spend public key and
// its main public address (for the Authenticated Sender Memo's address
// hash), plus the outlay totals the Destination Memo records.
type memoParams struct {
	senderSpendPublic *cryptoiface.Point
	senderAddressB58  string
	numRecipients     uint64
	fee               uint64
	totalOutlay       uint64
}

// buildOutputs implements spec.md §4.7 step 5: derive a one-time
// output per planned recipient, mask its amount, commit to it, produce
// an aggregate range proof over every output commitment, and compose
// an Authenticated Sender Memo per payload output plus a Destination
// Memo on the change output (spec.md §9's memo tagged sums).
func (b *Builder) buildOutputs(tokenID uint64, planned []plannedOutput, mp memoParams) ([]builtOutput, *cryptoiface.RangeProof, error) {
	built := make([]builtOutput, len(planned))
	blindings := make([]*cryptoiface.Scalar, len(planned))
	amounts := make([]uint64, len(planned))
	primaryRecipientB58 := primaryRecipient(planned)

	for i, p := range planned {
		subSpendPublic, err := cryptoiface.NewPointFromBytes(p.recipient.SpendPublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decode recipient spend key: %w", err)
		}
		subViewPublic, err := cryptoiface.NewPointFromBytes(p.recipient.ViewPublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decode recipient view key: %w", err)
		}

		oto, err := cryptoiface.DeriveOneTimeOutput(subSpendPublic, subViewPublic)
		if err != nil {
			return nil, nil, err
		}

		blinding, err := randomScalar()
		if err != nil {
			return nil, nil, err
		}
		commitment, err := b.commitments.Commit(p.value, tokenID, blinding)
		if err != nil {
			return nil, nil, err
		}

		masked := b.amountMasker.Mask(p.value, tokenID, oto.SharedSecret)

		var memo *persist.Memo
		if p.isChange {
			numRecipients := mp.numRecipients
			fee := mp.fee
			totalOutlay := mp.totalOutlay
			memo = &persist.Memo{
				Kind:          persist.MemoKindDestination,
				AddressHash:   cryptoiface.AddressHash(primaryRecipientB58),
				NumRecipients: &numRecipients,
				Fee:           &fee,
				TotalOutlay:   &totalOutlay,
			}
		} else {
			memo = &persist.Memo{
				Kind:        persist.MemoKindAuthenticatedSender,
				AddressHash: cryptoiface.AddressHash(mp.senderAddressB58),
				HMAC:        cryptoiface.ComposeSenderMemoHMAC(oto.SharedSecret, mp.senderSpendPublic),
			}
		}

		built[i] = builtOutput{
			txoID:        txoIDFromPublicKey(oto.TxPublicKey.Bytes()),
			txPublicKey:  oto.TxPublicKey.Bytes(),
			targetKey:    oto.TargetKey.Bytes(),
			commitment:   commitment,
			blinding:     blinding,
			maskedAmount: masked,
			sharedSecret: oto.SharedSecret.Bytes(),
			confirmation: cryptoiface.ConfirmationNumber(oto.SharedSecret, oto.TargetKey.Bytes()),
			memo:         memo,
		}
		blindings[i] = blinding
		amounts[i] = p.value
	}

	proof, err := b.rangeProver.Prove(amounts, blindings, tokenID)
	if err != nil {
		return nil, nil, err
	}
	return built, proof, nil
}

// primaryRecipient returns the first non-change planned output's
// recipient address, the one the Destination Memo's address hash
// names per spec.md §Glossary.
func primaryRecipient(planned []plannedOutput) string {
	for _, p := range planned {
		if !p.isChange {
			return p.recipientB58
		}
	}
	return ""
}

func randomScalar() (*cryptoiface.Scalar, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return cryptoiface.NewScalarFromBytes(buf)
}

// ring is one input's full anonymity set: the real input's index
// within it plus every member's one-time public key.
type ring struct {
	members   []*cryptoiface.Point
	realIndex int
}

// buildRings implements spec.md §4.7 step 4: for each selected input,
// sample RingSize-1 decoys from the ledger's candidate pool at or
// before the current network height, insert the real input at a
// random position, and fail closed if the pool can't fill a ring.
func (b *Builder) buildRings(inputs []*persist.Txo, networkHeight uint64) ([]ring, error) {
	candidates, err := b.ls.RingCandidatesAtOrBefore(networkHeight)
	if err != nil {
		return nil, err
	}

	rings := make([]ring, len(inputs))
	for i, in := range inputs {
		pool := make([]ledger.RingCandidate, 0, len(candidates))
		for _, c := range candidates {
			if string(c.PublicKey) == string(in.PublicKey) {
				continue
			}
			pool = append(pool, c)
		}
		if len(pool) < RingSize-1 {
			return nil, walleterr.New(walleterr.RingConstructionExhausted, fmt.Sprintf("need %d decoys, have %d", RingSize-1, len(pool)))
		}

		decoys := sampleDistinct(pool, RingSize-1)
		realKey, err := cryptoiface.NewPointFromBytes(in.TargetKey)
		if err != nil {
			return nil, err
		}
		realIndex := secureIndex(RingSize)
		members := make([]*cryptoiface.Point, 0, RingSize)
		di := 0
		for j := 0; j < RingSize; j++ {
			if j == realIndex {
				members = append(members, realKey)
				continue
			}
			p, err := cryptoiface.NewPointFromBytes(decoys[di].TargetKey)
			if err != nil {
				return nil, err
			}
			members = append(members, p)
			di++
		}
		rings[i] = ring{members: members, realIndex: realIndex}
	}
	return rings, nil
}

func sampleDistinct(pool []ledger.RingCandidate, n int) []ledger.RingCandidate {
	shuffled := make([]ledger.RingCandidate, len(pool))
	copy(shuffled, pool)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := secureIndex(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

func secureIndex(n int) int {
	if n <= 1 {
		return 0
	}
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return int(v % uint32(n))
}

// rawTransaction is the serialized wire form the builder emits for a
// full account and internal/signer accepts back from a view-only
// account's external co-process.
type rawTransaction struct {
	ProposalID  string            `json:"proposal_id"`
	Rings       [][][]byte        `json:"rings"`
	RealIndexes []int             `json:"real_indexes"`
	KeyImages   [][]byte          `json:"key_images"`
	Signatures  []*cryptoiface.RingSignature `json:"signatures"`
	Outputs     []rawOutput       `json:"outputs"`
	RangeProof  []byte            `json:"range_proof"`
	Fee         uint64            `json:"fee"`
	TokenID     uint64            `json:"token_id"`
}

type rawOutput struct {
	TxPublicKey  []byte `json:"tx_public_key"`
	TargetKey    []byte `json:"target_key"`
	Commitment   []byte `json:"commitment"`
	MaskedValue  uint64 `json:"masked_value"`
	MaskedToken  uint64 `json:"masked_token_id"`
}

// UnsignedInput is one ring-signing job a view-only account's proposal
// hands to the external signer: the ring it must sign over, the real
// member's position, and the subaddress/shared-secret pair identifying
// which of the signer's own spend keys completes it. None of this
// reveals anything the signer doesn't already derive from its own full
// account key material plus the wallet's public scan results.
type UnsignedInput struct {
	SubaddressIndex uint64   `json:"subaddress_index"`
	SharedSecret    []byte   `json:"shared_secret"`
	RingMembers     [][]byte `json:"ring_members"`
	RealIndex       int      `json:"real_index"`
}

// UnsignedOutput mirrors rawOutput; duplicated as its own exported type
// so internal/signer depends on a stable wire shape rather than this
// package's internal rawTransaction encoding.
type UnsignedOutput struct {
	TxPublicKey []byte `json:"tx_public_key"`
	TargetKey   []byte `json:"target_key"`
	Commitment  []byte `json:"commitment"`
	MaskedValue uint64 `json:"masked_value"`
	MaskedToken uint64 `json:"masked_token_id"`
}

// UnsignedTransaction is everything build_unsigned_transaction emits
// for a view-only account's proposal per spec.md §4.7 step 6: the full
// transaction minus the ring signatures and key images, which only the
// holder of the spend private key (the signer co-process) can produce.
type UnsignedTransaction struct {
	ProposalID string           `json:"proposal_id"`
	Fee        uint64           `json:"fee"`
	TokenID    uint64           `json:"token_id"`
	RangeProof []byte           `json:"range_proof"`
	Inputs     []UnsignedInput  `json:"inputs"`
	Outputs    []UnsignedOutput `json:"outputs"`
}

// buildUnsignedTransaction assembles a view-only account's proposal up
// to but excluding signing, per spec.md §4.7 step 6 and §9's "do not
// carry a runtime-nullable private key" design note: rather than a
// Proposal with a nil signature slot, the view-only path produces a
// distinctly-typed payload the signer co-process completes.
func buildUnsignedTransaction(proposalID string, inputs []*persist.Txo, rings []ring, outputs []builtOutput, proof *cryptoiface.RangeProof, fee, tokenID uint64) ([]byte, error) {
	unsigned := UnsignedTransaction{
		ProposalID: proposalID,
		Fee:        fee,
		TokenID:    tokenID,
		RangeProof: proof.Proof,
	}

	for i, in := range inputs {
		if in.SubaddressIndex == nil || in.SharedSecret == nil {
			return nil, walleterr.New(walleterr.AmbiguousSubaddress, "selected input has no recovered subaddress")
		}
		var ringBytes [][]byte
		for _, m := range rings[i].members {
			ringBytes = append(ringBytes, m.Bytes())
		}
		unsigned.Inputs = append(unsigned.Inputs, UnsignedInput{
			SubaddressIndex: *in.SubaddressIndex,
			SharedSecret:    in.SharedSecret,
			RingMembers:     ringBytes,
			RealIndex:       rings[i].realIndex,
		})
	}

	for _, o := range outputs {
		unsigned.Outputs = append(unsigned.Outputs, UnsignedOutput{
			TxPublicKey: o.txPublicKey,
			TargetKey:   o.targetKey,
			Commitment:  o.commitment.Point.Bytes(),
			MaskedValue: o.maskedAmount.MaskedValue,
			MaskedToken: o.maskedAmount.MaskedTokenID,
		})
	}

	return json.Marshal(unsigned)
}

// SpendKeyFunc resolves the spend private scalar for one subaddress
// index, the capability only a Full account (or, for view-only
// proposals, the external signer co-process holding the real spend
// private key) possesses.
type SpendKeyFunc func(subaddressIndex uint64) (*cryptoiface.Scalar, error)

// CompleteSignature implements the signer co-process's "sign-transaction"
// operation (spec.md §6): given the unsigned payload
// build_unsigned_transaction produced, resolve each input's spend key
// via spendKey and produce the final signed, submittable transaction
// bytes in the same wire shape the Full-account builder path emits.
func CompleteSignature(unsignedBytes []byte, spendKey SpendKeyFunc) ([]byte, error) {
	var unsigned UnsignedTransaction
	if err := json.Unmarshal(unsignedBytes, &unsigned); err != nil {
		return nil, fmt.Errorf("decode unsigned transaction: %w", err)
	}

	message := []byte(unsigned.ProposalID)
	signer := cryptoiface.NewRingSigner()

	raw := rawTransaction{
		ProposalID: unsigned.ProposalID,
		Fee:        unsigned.Fee,
		TokenID:    unsigned.TokenID,
		RangeProof: unsigned.RangeProof,
	}

	for _, in := range unsigned.Inputs {
		sk, err := spendKey(in.SubaddressIndex)
		if err != nil {
			return nil, err
		}
		shared, err := cryptoiface.NewPointFromBytes(in.SharedSecret)
		if err != nil {
			return nil, fmt.Errorf("decode input shared secret: %w", err)
		}
		oneTimeSpend := cryptoiface.OneTimeSpendKey(sk, shared)

		members := make([]*cryptoiface.Point, len(in.RingMembers))
		for i, m := range in.RingMembers {
			p, err := cryptoiface.NewPointFromBytes(m)
			if err != nil {
				return nil, fmt.Errorf("decode ring member: %w", err)
			}
			members[i] = p
		}

		sig, err := signer.Sign(message, members, in.RealIndex, oneTimeSpend)
		if err != nil {
			return nil, err
		}

		raw.Rings = append(raw.Rings, in.RingMembers)
		raw.RealIndexes = append(raw.RealIndexes, in.RealIndex)
		raw.KeyImages = append(raw.KeyImages, sig.KeyImage)
		raw.Signatures = append(raw.Signatures, sig)
	}

	for _, o := range unsigned.Outputs {
		raw.Outputs = append(raw.Outputs, rawOutput{
			TxPublicKey: o.TxPublicKey,
			TargetKey:   o.TargetKey,
			Commitment:  o.Commitment,
			MaskedValue: o.MaskedValue,
			MaskedToken: o.MaskedToken,
		})
	}

	return json.Marshal(raw)
}

// sign implements spec.md §4.7 step 6: for a full account, recover
// each input's one-time spend key from its recorded subaddress and
// shared secret (the same recomputation internal/txo/orphan.go uses
// for key images), sign its ring, and serialize the result.
func (b *Builder) sign(acc *persist.Account, inputs []*persist.Txo, rings []ring, outputs []builtOutput, proof *cryptoiface.RangeProof, fee, tokenID uint64, proposalID string) ([]byte, error) {
	message := []byte(proposalID)

	raw := rawTransaction{
		ProposalID: proposalID,
		Fee:        fee,
		TokenID:    tokenID,
		RangeProof: proof.Proof,
	}

	for i, in := range inputs {
		if in.SubaddressIndex == nil || in.SharedSecret == nil {
			return nil, walleterr.New(walleterr.AmbiguousSubaddress, "selected input has no recovered subaddress")
		}
		keys, err := b.as.DeriveSubaddressKeys(acc.AccountID, *in.SubaddressIndex)
		if err != nil {
			return nil, err
		}
		if keys.SpendPrivate == nil {
			return nil, walleterr.New(walleterr.ViewOnlyOperationNotPermitted, "cannot sign without a spend private key")
		}
		shared, err := cryptoiface.NewPointFromBytes(in.SharedSecret)
		if err != nil {
			return nil, err
		}
		oneTimeSpend := cryptoiface.OneTimeSpendKey(keys.SpendPrivate, shared)

		sig, err := b.ringSigner.Sign(message, rings[i].members, rings[i].realIndex, oneTimeSpend)
		if err != nil {
			return nil, err
		}

		var ringBytes [][]byte
		for _, m := range rings[i].members {
			ringBytes = append(ringBytes, m.Bytes())
		}
		raw.Rings = append(raw.Rings, ringBytes)
		raw.RealIndexes = append(raw.RealIndexes, rings[i].realIndex)
		raw.KeyImages = append(raw.KeyImages, sig.KeyImage)
		raw.Signatures = append(raw.Signatures, sig)
	}

	for _, o := range outputs {
		raw.Outputs = append(raw.Outputs, rawOutput{
			TxPublicKey: o.txPublicKey,
			TargetKey:   o.targetKey,
			Commitment:  o.commitment.Point.Bytes(),
			MaskedValue: o.maskedAmount.MaskedValue,
			MaskedToken: o.maskedAmount.MaskedTokenID,
		})
	}

	return json.Marshal(raw)
}
