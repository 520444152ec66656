// Package walleterr defines the typed error kinds shared across the
// wallet service and the JSON-RPC translation each carries.
package walleterr

import "fmt"

// Kind identifies one of the error kinds from the service's error
// handling design. Kind values are stable wire identifiers: renaming
// one is a breaking API change.
type Kind string

const (
	AccountNotFound             Kind = "AccountNotFound"
	AccountAlreadyExists        Kind = "AccountAlreadyExists"
	SubaddressNotAssigned       Kind = "SubaddressNotAssigned"
	TxoNotFound                 Kind = "TxoNotFound"
	TxoAlreadySpent             Kind = "TxoAlreadySpent"
	TransactionLogNotFound      Kind = "TransactionLogNotFound"
	InsufficientFunds           Kind = "InsufficientFunds"
	FeeBelowMinimum             Kind = "FeeBelowMinimum"
	UnknownToken                Kind = "UnknownToken"
	MixedTokenOutlays           Kind = "MixedTokenOutlays"
	TombstoneExpired            Kind = "TombstoneExpired"
	AmbiguousSubaddress         Kind = "AmbiguousSubaddress"
	RingConstructionExhausted   Kind = "RingConstructionExhausted"
	GiftCodeNotFound            Kind = "GiftCodeNotFound"
	GiftCodeAlreadyExists       Kind = "GiftCodeAlreadyExists"
	GiftCodeAlreadyClaimed      Kind = "GiftCodeAlreadyClaimed"
	IdempotentReplay            Kind = "IdempotentReplay"
	B58Decode                   Kind = "B58Decode"
	B58WrongType                Kind = "B58WrongType"
	InvalidMnemonic             Kind = "InvalidMnemonic"
	ViewOnlyOperationNotPermitted Kind = "ViewOnlyOperationNotPermitted"
	DatabaseLocked              Kind = "DatabaseLocked"
	DatabaseBusy                Kind = "DatabaseBusy"
	NetworkUnavailable          Kind = "NetworkUnavailable"
	LedgerValidationFailed      Kind = "LedgerValidationFailed"
	NonContiguousAppend         Kind = "NonContiguousAppend"
	SignerProtocolError         Kind = "SignerProtocolError"
	InvalidParams               Kind = "InvalidParams"
)

// Error is the typed error every component surfaces to its caller.
// Details carries structured remediation data (e.g. InsufficientFunds'
// {available, required, token_id}) that internal/rpc flattens into the
// JSON-RPC error envelope's "details" field.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// WithDetails attaches structured remediation data and returns e for
// chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Is reports whether err (or any error it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var we *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			we = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return we != nil && we.Kind == k
}
