// Package x402gate gates HTTP resources behind x402 pay-per-access and
// teaches http.Client how to pay for them.
//
// On the server side, NewGate builds middleware that answers unauthenticated
// requests to priced routes with 402 Payment Required and a price
// requirement, verifies the signed transfer authorization on resubmission
// and admits exactly-matching payments.  On the client side, ClientForSigner
// and friends wrap a standard http.Client so a 402 response is paid and
// retried transparently, while pkg/orchestrator exposes the same flow as an
// observable state machine for interactive wallets.
//
// It is anticipated that the client side will commonly be used to allow AI
// agents to pay for the services they need.  When allowing automated
// payments on your behalf, care should be taken to limit your financial
// exposure.
//
// Defaults
//
//   - If the WithClient option is not specified, the http.DefaultClient
//     is used with the http.DefaultTransport.
//   - If the WithLogger Option is not specified, a No-Op logger is used.
package x402gate
