package facilitator

import "encoding/json"

// RequestBody is the envelope posted to the verify and settle operations.
type RequestBody struct {
	X402Version         int             `json:"x402Version"`
	PaymentPayload      json.RawMessage `json:"paymentPayload"`
	PaymentRequirements json.RawMessage `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's answer to a verify call.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	Payer         string `json:"payer,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleResponse is the facilitator's answer to a settle call.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// SupportedKind is one scheme/network pair the facilitator can settle.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is the facilitator's answer to a supported call.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// ListedResource is one entry in the facilitator's resource directory.
type ListedResource struct {
	Resource    string `json:"resource"`
	Type        string `json:"type,omitempty"`
	X402Version int    `json:"x402Version"`
}

// ListResponse is the facilitator's answer to a list call.
type ListResponse struct {
	Items []ListedResource `json:"items"`
}
