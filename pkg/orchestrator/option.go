package orchestrator

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/antidote-labs/x402-gate/pkg/access"
	"github.com/antidote-labs/x402-gate/pkg/api"
)

// DefaultWalletTimeout bounds every wallet suspension point.  A hung wallet
// prompt otherwise blocks the flow indefinitely.
const DefaultWalletTimeout = 60 * time.Second

// DefaultAuthorizationWindow is how long a signed transfer authorization
// stays acceptable to the seller.
const DefaultAuthorizationWindow = 10 * time.Minute

type config struct {
	client        *http.Client
	log           *slog.Logger
	grants        *access.Cache
	walletTimeout time.Duration
	window        time.Duration
	nowFunc       api.NowFunc
	nonceFunc     api.NonceFunc
	listener      func(State)
}

// Option alters the default configuration of an Orchestrator.
type Option func(*config) error

// WithHTTPClient substitutes the http.Client used for the probe and the paid
// resubmission.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) error {
		if client == nil {
			return errors.New("nil http client")
		}

		c.client = client

		return nil
	}
}

// WithLogger provides an slog.Logger observing each state transition.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) error {
		c.log = log

		return nil
	}
}

// WithGrantCache records completed payments in the given cache so the host
// can skip re-prompting for an address that already paid.
func WithGrantCache(grants *access.Cache) Option {
	return func(c *config) error {
		c.grants = grants

		return nil
	}
}

// WithWalletTimeout bounds how long the flow waits on a wallet prompt before
// failing the attempt.
func WithWalletTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.New("wallet timeout must be positive")
		}

		c.walletTimeout = d

		return nil
	}
}

// WithAuthorizationWindow sets the validBefore bound on signed
// authorizations.
func WithAuthorizationWindow(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.New("authorization window must be positive")
		}

		c.window = d

		return nil
	}
}

// WithStateListener registers a callback invoked on every state transition,
// in order, from the goroutine running the flow.
func WithStateListener(listener func(State)) Option {
	return func(c *config) error {
		c.listener = listener

		return nil
	}
}

// WithNowFunc and WithNonceFunc inject deterministic time and nonces for
// tests.
func WithNowFunc(nowFunc api.NowFunc) Option {
	return func(c *config) error {
		c.nowFunc = nowFunc

		return nil
	}
}

func WithNonceFunc(nonceFunc api.NonceFunc) Option {
	return func(c *config) error {
		c.nonceFunc = nonceFunc

		return nil
	}
}
