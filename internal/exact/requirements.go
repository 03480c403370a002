package exact

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coinbase/x402/go/pkg/types"

	"github.com/antidote-labs/x402-gate/pkg/api"
)

// ErrUnrecognizedBody is returned when a 402 body matches no known form.
var ErrUnrecognizedBody = errors.New("payment-required body matches no known form")

// Requirements expands a flat price requirement into full x402 payment
// requirements, filling the asset and EIP-712 domain from the token
// registry.  The window bounds how long a signed authorization stays valid.
func Requirements(price api.PriceRequirement, window time.Duration) (types.PaymentRequirements, error) {
	tok, ok := Network(price.Network)
	if !ok {
		return types.PaymentRequirements{}, fmt.Errorf("unknown network: %s", price.Network)
	}

	extra, err := json.Marshal(map[string]string{
		"name":    tok.Name,
		"version": tok.Version,
	})
	if err != nil {
		return types.PaymentRequirements{}, err
	}

	raw := json.RawMessage(extra)

	return types.PaymentRequirements{
		Scheme:            string(api.SchemeExact),
		Network:           price.Network,
		MaxAmountRequired: price.Amount,
		PayTo:             price.Recipient,
		Asset:             tok.Asset,
		MaxTimeoutSeconds: int(window.Seconds()),
		Extra:             &raw,
	}, nil
}

// ParsePaymentRequired decodes a 402 body into concrete payment
// requirements.  Two forms exist on the wire: the flat requirement body the
// access gate emits, and the x402 "accepts" array emitted by generic
// sellers.  Each is parsed exhaustively into the same variant; anything else
// is ErrUnrecognizedBody, not a guess.
func ParsePaymentRequired(body []byte, window time.Duration) (types.PaymentRequirements, api.PriceRequirement, error) {
	var flat api.PaymentRequiredResponse
	if err := json.Unmarshal(body, &flat); err == nil && flat.Complete() {
		reqs, err := Requirements(flat.PriceRequirement, window)

		return reqs, flat.PriceRequirement, err
	}

	var accepts api.PaymentRequest
	if err := json.Unmarshal(body, &accepts); err == nil && len(accepts.Accepts) > 0 {
		reqs := accepts.Accepts[0]

		tok, ok := Network(reqs.Network)
		if !ok {
			return types.PaymentRequirements{}, api.PriceRequirement{}, fmt.Errorf("unknown network: %s", reqs.Network)
		}

		return reqs, api.PriceRequirement{
			Amount:    reqs.MaxAmountRequired,
			Currency:  tok.Symbol,
			Network:   reqs.Network,
			Recipient: reqs.PayTo,
		}, nil
	}

	return types.PaymentRequirements{}, api.PriceRequirement{}, ErrUnrecognizedBody
}
