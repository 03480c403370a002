package orchestrator

// State is one step of the payment flow.  Transitions are strictly forward:
// Initial → Requesting → (SwitchingNetwork) → Processing → Verifying →
// Completed, with Failed absorbing from any step.
type State string

const (
	StateInitial          State = "initial"
	StateRequesting       State = "requesting"
	StateSwitchingNetwork State = "switching_network"
	StateProcessing       State = "processing"
	StateVerifying        State = "verifying"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// A FailureReason tells the caller which retry action applies: an unpaid
// requirement, a rejected payment and a broken backend each need different
// handling.
type FailureReason string

const (
	// FailureWrongNetwork: the wallet could not be moved to the payment
	// network.
	FailureWrongNetwork FailureReason = "wrong_network"

	// FailureUserRejected: the user declined the signature prompt.  No
	// payment was submitted.
	FailureUserRejected FailureReason = "user_rejected"

	// FailureWalletTimeout: a wallet prompt hung past the configured
	// bound.
	FailureWalletTimeout FailureReason = "wallet_timeout"

	// FailureVerificationRejected: payment was submitted but the server
	// answered payment-required again.
	FailureVerificationRejected FailureReason = "verification_rejected"

	// FailurePaymentDeclined: the authorization could not be built or
	// signed.
	FailurePaymentDeclined FailureReason = "payment_declined"

	// FailureBadResponse: the payment-required body could not be parsed
	// into a requirement.
	FailureBadResponse FailureReason = "bad_response"

	// FailureRequestFailed: a transport error or unexpected status.
	FailureRequestFailed FailureReason = "request_failed"
)
