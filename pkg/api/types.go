package api

import "strings"

// PaymentHeader is the request header that carries the encoded payment
// authorization.
const PaymentHeader = "X-Payment"

// A PriceRequirement describes what a protected route costs: an amount in the
// currency's smallest unit, the settlement network and the address payment
// must be sent to.  Requirements are static route configuration and never
// change once the gate is constructed.
type PriceRequirement struct {
	// Amount is a base-unit decimal string (e.g. "1000000" for 1 USDC).
	Amount string `json:"amount"`
	// Currency is the currency symbol, e.g. "USDC".
	Currency string `json:"currency"`
	// Network identifies the settlement network, e.g. "base-sepolia".
	Network string `json:"network"`
	// Recipient is the seller address payment must be made out to.
	Recipient string `json:"recipient"`
}

// Complete reports whether the requirement carries everything a payer needs
// to construct a payment.
func (r PriceRequirement) Complete() bool {
	return r.Amount != "" && r.Currency != "" && r.Network != "" && r.Recipient != ""
}

// PaymentRequiredResponse is the body of a 402 response emitted by the access
// gate: the price requirement plus a machine-readable reason the request was
// not admitted.
type PaymentRequiredResponse struct {
	Error string `json:"error,omitempty"`

	PriceRequirement
}

// A DenyReason explains why the verifier refused an authorization.  Reasons
// are machine-readable and stable; clients branch on them to decide whether
// to pay, retry or give up.
type DenyReason string

const (
	DenyReasonNoAuthorization    DenyReason = "no_authorization"
	DenyReasonMalformedHeader    DenyReason = "malformed_payment_header"
	DenyReasonSchemeMismatch     DenyReason = "scheme_mismatch"
	DenyReasonNetworkMismatch    DenyReason = "network_mismatch"
	DenyReasonRecipientMismatch  DenyReason = "recipient_mismatch"
	DenyReasonAmountMismatch     DenyReason = "amount_mismatch"
	DenyReasonInvalidAmount      DenyReason = "invalid_amount"
	DenyReasonInvalidTimeWindow  DenyReason = "invalid_time_window"
	DenyReasonNotYetValid        DenyReason = "authorization_not_yet_valid"
	DenyReasonExpired            DenyReason = "authorization_expired"
	DenyReasonReused             DenyReason = "authorization_reused"
	DenyReasonConfigurationError DenyReason = "configuration_error"
)

// EqualAddress compares two hex addresses ignoring EIP-55 checksum casing.
func EqualAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
