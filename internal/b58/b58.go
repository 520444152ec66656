// Package b58 implements the base58-check wire codec used for every
// user-facing identifier that leaves the JSON-RPC boundary as a single
// opaque string: public addresses, payment requests, gift codes and
// gift-code transfer payloads.
package b58

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/duskledger/walletd/internal/walleterr"
)

// WireType tags the payload a base58-check string decodes to, so a
// client can call check_b58_type before attempting a type-specific
// decode.
type WireType byte

const (
	TypePublicAddress   WireType = 0
	TypePaymentRequest  WireType = 1
	TypeGiftCode        WireType = 2
	TypeTransferPayload WireType = 3
)

func (t WireType) String() string {
	switch t {
	case TypePublicAddress:
		return "PublicAddress"
	case TypePaymentRequest:
		return "PaymentRequest"
	case TypeGiftCode:
		return "GiftCode"
	case TypeTransferPayload:
		return "TransferPayload"
	default:
		return "Unknown"
	}
}

// PublicAddress is the recipient-facing key material a subaddress
// encodes: a view/spend public key pair, plus optional fog routing
// info for fog-enabled recipients.
type PublicAddress struct {
	ViewPublicKey  []byte `json:"view_public_key"`
	SpendPublicKey []byte `json:"spend_public_key"`
	FogReportURL   string `json:"fog_report_url,omitempty"`
	FogReportID    string `json:"fog_report_id,omitempty"`
	FogAuthoritySig []byte `json:"fog_authority_sig,omitempty"`
}

// PaymentRequest bundles a recipient address with a requested amount.
type PaymentRequest struct {
	Address     PublicAddress `json:"address"`
	Value       uint64        `json:"value"`
	TokenID     uint64        `json:"token_id"`
	Memo        string        `json:"memo,omitempty"`
}

// GiftCode is the self-contained bearer instrument produced by
// build_gift_code: the one-time root entropy needed to spend the
// gift-code TXO, that TXO's public key, and an optional memo. It
// carries no amount; check_gift_code_status reads the value from the
// wallet.
type GiftCode struct {
	RootEntropy []byte `json:"root_entropy"`
	TxoPublicKey []byte `json:"txo_public_key"`
	Memo        string `json:"memo,omitempty"`
}

// TransferPayload is the legacy single-use transfer code: the same
// bearer material as GiftCode without the memo.
type TransferPayload struct {
	RootEntropy []byte `json:"root_entropy"`
	TxoPublicKey []byte `json:"txo_public_key"`
}

const checksumLen = 4

func checksum(typeAndPayload []byte) []byte {
	first := sha256.Sum256(typeAndPayload)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}

func encode(t WireType, payload []byte) string {
	body := append([]byte{byte(t)}, payload...)
	full := append(body, checksum(body)...)
	return base58.Encode(full)
}

func decode(s string) (WireType, []byte, error) {
	full, err := base58.Decode(s)
	if err != nil {
		return 0, nil, walleterr.Wrap(walleterr.B58Decode, err)
	}
	if len(full) < 1+checksumLen {
		return 0, nil, walleterr.New(walleterr.B58Decode, "payload too short")
	}
	body := full[:len(full)-checksumLen]
	sum := full[len(full)-checksumLen:]
	want := checksum(body)
	if !bytesEqual(sum, want) {
		return 0, nil, walleterr.New(walleterr.B58Decode, "checksum mismatch")
	}
	return WireType(body[0]), body[1:], nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CheckType decodes only the wire type tag of s, the check_b58_type
// RPC's implementation.
func CheckType(s string) (WireType, error) {
	t, _, err := decode(s)
	return t, err
}

// EncodePublicAddress renders addr as a base58-check string.
func EncodePublicAddress(addr PublicAddress) (string, error) {
	payload, err := json.Marshal(addr)
	if err != nil {
		return "", fmt.Errorf("marshal public address: %w", err)
	}
	return encode(TypePublicAddress, payload), nil
}

// DecodePublicAddress parses s, requiring it to carry TypePublicAddress
// (the verify_address RPC's implementation).
func DecodePublicAddress(s string) (PublicAddress, error) {
	var addr PublicAddress
	t, payload, err := decode(s)
	if err != nil {
		return addr, err
	}
	if t != TypePublicAddress {
		return addr, walleterr.New(walleterr.B58WrongType, fmt.Sprintf("expected PublicAddress, got %s", t))
	}
	if err := json.Unmarshal(payload, &addr); err != nil {
		return addr, fmt.Errorf("unmarshal public address: %w", err)
	}
	return addr, nil
}

// VerifyAddress reports whether s is a structurally valid
// PublicAddress string, without returning the decoded error detail.
func VerifyAddress(s string) bool {
	_, err := DecodePublicAddress(s)
	return err == nil
}

// EncodePaymentRequest renders req as a base58-check string.
func EncodePaymentRequest(req PaymentRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal payment request: %w", err)
	}
	return encode(TypePaymentRequest, payload), nil
}

// DecodePaymentRequest parses s, requiring TypePaymentRequest.
func DecodePaymentRequest(s string) (PaymentRequest, error) {
	var req PaymentRequest
	t, payload, err := decode(s)
	if err != nil {
		return req, err
	}
	if t != TypePaymentRequest {
		return req, walleterr.New(walleterr.B58WrongType, fmt.Sprintf("expected PaymentRequest, got %s", t))
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("unmarshal payment request: %w", err)
	}
	return req, nil
}

// EncodeGiftCode renders gc as a base58-check string.
func EncodeGiftCode(gc GiftCode) (string, error) {
	payload, err := json.Marshal(gc)
	if err != nil {
		return "", fmt.Errorf("marshal gift code: %w", err)
	}
	return encode(TypeGiftCode, payload), nil
}

// DecodeGiftCode parses s, requiring TypeGiftCode.
func DecodeGiftCode(s string) (GiftCode, error) {
	var gc GiftCode
	t, payload, err := decode(s)
	if err != nil {
		return gc, err
	}
	if t != TypeGiftCode {
		return gc, walleterr.New(walleterr.B58WrongType, fmt.Sprintf("expected GiftCode, got %s", t))
	}
	if err := json.Unmarshal(payload, &gc); err != nil {
		return gc, fmt.Errorf("unmarshal gift code: %w", err)
	}
	return gc, nil
}

// EncodeTransferPayload renders tp as a base58-check string.
func EncodeTransferPayload(tp TransferPayload) (string, error) {
	payload, err := json.Marshal(tp)
	if err != nil {
		return "", fmt.Errorf("marshal transfer payload: %w", err)
	}
	return encode(TypeTransferPayload, payload), nil
}

// DecodeTransferPayload parses s, requiring TypeTransferPayload.
func DecodeTransferPayload(s string) (TransferPayload, error) {
	var tp TransferPayload
	t, payload, err := decode(s)
	if err != nil {
		return tp, err
	}
	if t != TypeTransferPayload {
		return tp, walleterr.New(walleterr.B58WrongType, fmt.Sprintf("expected TransferPayload, got %s", t))
	}
	if err := json.Unmarshal(payload, &tp); err != nil {
		return tp, fmt.Errorf("unmarshal transfer payload: %w", err)
	}
	return tp, nil
}
