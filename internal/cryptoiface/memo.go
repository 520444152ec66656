package cryptoiface

import (
	"crypto/hmac"
	"crypto/sha256"
)

// AddressHash is the short fingerprint a memo carries in place of a
// full public address, the same domain-separated hash pattern
// ConfirmationNumber uses for output authorship proofs.
func AddressHash(publicAddressB58 string) []byte {
	h := sha256.Sum256(append([]byte("mc-memo-address"), []byte(publicAddressB58)...))
	return h[:16]
}

// ComposeSenderMemoHMAC authenticates an Authenticated Sender Memo: an
// HMAC over the sending account's spend public key, keyed by the
// output's shared secret. The recipient recovers the same shared
// secret from its own view private key and the output's published tx
// public key (see RecoverSharedSecret), so it can verify a claimed
// sender's spend public key without the sender's further cooperation.
func ComposeSenderMemoHMAC(sharedSecret *Point, senderSpendPublic *Point) []byte {
	mac := hmac.New(sha256.New, sharedSecret.Bytes())
	mac.Write([]byte("mc-memo-sender"))
	mac.Write(senderSpendPublic.Bytes())
	return mac.Sum(nil)
}

// VerifySenderMemoHMAC recomputes ComposeSenderMemoHMAC for a claimed
// sender and reports whether it matches the memo's stored HMAC.
func VerifySenderMemoHMAC(sharedSecret *Point, claimedSenderSpendPublic *Point, hmacValue []byte) bool {
	expected := ComposeSenderMemoHMAC(sharedSecret, claimedSenderSpendPublic)
	return hmac.Equal(expected, hmacValue)
}
