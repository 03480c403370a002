package x402gate

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/antidote-labs/x402-gate/internal/codec"
	"github.com/antidote-labs/x402-gate/internal/exact"
	"github.com/antidote-labs/x402-gate/internal/exact/evm"
	"github.com/antidote-labs/x402-gate/pkg/api"
)

var _ http.RoundTripper = (*Transport)(nil)

// Transport is a headless buyer: an http.RoundTripper that answers 402
// responses by signing a transfer authorization with the configured signer
// and retrying the request once with the payment attached.
//
// There is no human in this loop.  Interactive flows with a wallet prompt
// belong to pkg/orchestrator.
type Transport struct {
	config

	next  http.RoundTripper
	payer api.Payer
}

// NewTransport wraps next with payment handling.  The WithClient option is
// ignored here; pass the wrapped transport's client instead.
func NewTransport(next http.RoundTripper, signer api.EVMSigner, opts ...Option) (*Transport, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Transport{
		config: *cfg,

		next:  next,
		payer: evm.NewExactEvm(signer, time.Now, api.DefaultNonce, cfg.log),
	}, nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The body can only be read once and a payment costs us a second
	// round-trip, so buffer the bytes and give each attempt a fresh reader.

	var (
		body []byte
		err  error
	)

	if req.Body != nil {
		defer req.Body.Close()

		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}

		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	if req.Body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	return t.handlePaymentRequired(req, resp)
}

func (t *Transport) handlePaymentRequired(req *http.Request, resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	t.log.Debug("Payment request body", slog.String("json", string(body)))

	requirements, price, err := exact.ParsePaymentRequired(body, defaultPaymentWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment request: %w", err)
	}

	payment, err := t.payer.Pay(requirements)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	header, err := codec.Encode(payment)
	if err != nil {
		return nil, err
	}

	req.Header.Set(api.PaymentHeader, header)

	t.log.Info("paying for resource",
		slog.String("url", req.URL.String()),
		slog.String("amount", price.Amount),
		slog.String("currency", price.Currency),
		slog.String("network", price.Network),
	)

	return t.next.RoundTrip(req)
}
