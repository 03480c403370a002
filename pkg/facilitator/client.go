// Package facilitator wraps the settlement/compliance service.
//
// The facilitator is an untrusted, optional collaborator: every method mints
// a fresh credential token, and any failure (missing credentials, minting
// failure, network error) surfaces as an error the caller is expected to
// degrade on.  The gate's grant/deny decision never depends on this package
// succeeding.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coinbase/x402/go/pkg/types"

	"github.com/antidote-labs/x402-gate/internal/credential"
	"github.com/antidote-labs/x402-gate/internal/observability"
)

// DefaultBaseURL is the hosted facilitator endpoint.
const DefaultBaseURL = "https://api.cdp.coinbase.com"

const basePath = "/platform/v2/x402"

// ErrNoCredentials is returned when no API credentials are configured.
// Callers treat it as "no compliance data available".
var ErrNoCredentials = errors.New("no facilitator credentials configured")

// Client calls the facilitator's four operations: verify, settle, supported
// and list.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	signer  *credential.Signer
	log     *slog.Logger
}

type config struct {
	baseURL string
	client  *http.Client
	signer  *credential.Signer
	log     *slog.Logger
}

// Option alters the default configuration of a Client.
type Option func(*config) error

// WithBaseURL points the client at a facilitator other than the hosted
// default.
func WithBaseURL(baseURL string) Option {
	return func(c *config) error {
		c.baseURL = baseURL

		return nil
	}
}

// WithCredentials configures the API key used to authenticate to the
// facilitator.  Without credentials every call reports ErrNoCredentials.
func WithCredentials(keyID, secret string) Option {
	return func(c *config) error {
		signer, err := credential.NewSigner(keyID, secret, nil)
		if err != nil {
			return err
		}

		c.signer = signer

		return nil
	}
}

// WithHTTPClient substitutes the http.Client used for facilitator calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) error {
		c.client = client

		return nil
	}
}

// WithLogger provides an slog.Logger for degraded-mode events.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) error {
		c.log = log

		return nil
	}
}

func New(opts ...Option) (*Client, error) {
	cfg := &config{
		baseURL: DefaultBaseURL,
		client:  http.DefaultClient,
		log:     slog.New(observability.NewNoopHandler()),
	}

	var errs error

	for _, opt := range opts {
		errs = errors.Join(errs, opt(cfg))
	}

	if errs != nil {
		return nil, errs
	}

	u, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid facilitator base URL: %w", err)
	}

	return &Client{
		baseURL: u,
		client:  cfg.client,
		signer:  cfg.signer,
		log:     cfg.log,
	}, nil
}

// Verify asks the facilitator whether the payment authorization would settle.
func (c *Client) Verify(ctx context.Context, payload *types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyResponse, error) {
	body, err := envelope(payload, requirements)
	if err != nil {
		return nil, err
	}

	out := new(VerifyResponse)
	if err := c.call(ctx, http.MethodPost, basePath+"/verify", body, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Settle asks the facilitator to submit the authorization on-chain.
func (c *Client) Settle(ctx context.Context, payload *types.PaymentPayload, requirements types.PaymentRequirements) (*SettleResponse, error) {
	body, err := envelope(payload, requirements)
	if err != nil {
		return nil, err
	}

	out := new(SettleResponse)
	if err := c.call(ctx, http.MethodPost, basePath+"/settle", body, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Supported lists the scheme/network pairs the facilitator can settle.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	out := new(SupportedResponse)
	if err := c.call(ctx, http.MethodGet, basePath+"/supported", nil, out); err != nil {
		return nil, err
	}

	return out, nil
}

// List retrieves the facilitator's resource directory.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	out := new(ListResponse)
	if err := c.call(ctx, http.MethodGet, basePath+"/discovery/resources", nil, out); err != nil {
		return nil, err
	}

	return out, nil
}

func envelope(payload *types.PaymentPayload, requirements types.PaymentRequirements) ([]byte, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment payload: %w", err)
	}

	rawRequirements, err := json.Marshal(requirements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment requirements: %w", err)
	}

	return json.Marshal(RequestBody{
		X402Version:         1,
		PaymentPayload:      rawPayload,
		PaymentRequirements: rawRequirements,
	})
}

// call mints a fresh credential token, issues the request and decodes the
// response.  Tokens are never reused across calls.
func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	if c.signer == nil {
		return ErrNoCredentials
	}

	token, err := c.signer.Mint(method, c.baseURL.Host, path)
	if err != nil {
		return fmt.Errorf("failed to mint credential token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CDP-API-KEY", c.signer.KeyID())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		c.log.Debug("facilitator returned non-200",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(data)),
		)

		return fmt.Errorf("facilitator returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}

	return nil
}
