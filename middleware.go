package x402gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/coinbase/x402/go/pkg/types"

	"github.com/antidote-labs/x402-gate/internal/codec"
	"github.com/antidote-labs/x402-gate/internal/exact"
	"github.com/antidote-labs/x402-gate/internal/observability"
	"github.com/antidote-labs/x402-gate/internal/replay"
	"github.com/antidote-labs/x402-gate/internal/verify"
	"github.com/antidote-labs/x402-gate/pkg/api"
	"github.com/antidote-labs/x402-gate/pkg/facilitator"
)

// Payment describes a payment the gate admitted.  Handlers behind the gate
// retrieve it with PaymentFromContext.
type Payment struct {
	// Payer is the address the authorization was signed by.
	Payer string
	// VerifiedAt is the gate's admission timestamp.
	VerifiedAt time.Time
	// Requirement is the price the payment satisfied.
	Requirement api.PriceRequirement
}

type paymentContextKey struct{}

// PaymentFromContext returns the verified payment attached to a request that
// passed through a Gate.  The second return is false for requests that never
// passed a gate, such as handlers mounted outside the protected routes.
func PaymentFromContext(ctx context.Context) (Payment, bool) {
	payment, ok := ctx.Value(paymentContextKey{}).(Payment)

	return payment, ok
}

type gateConfig struct {
	routes      map[string]string
	spent       replay.Store
	now         api.NowFunc
	log         *slog.Logger
	facilitator *facilitator.Client
	window      time.Duration
}

// defaultPaymentWindow is the authorization validity window advertised in
// 402 responses when WithPaymentWindow is not given.
const defaultPaymentWindow = 10 * time.Minute

// A GateOption alters the default configuration of a Gate.
type GateOption func(*gateConfig) error

// WithRoutePrice overrides the gate's default amount for one route.  The
// path is matched exactly against the request's URL path.
func WithRoutePrice(path, amount string) GateOption {
	return func(c *gateConfig) error {
		if _, ok := new(big.Int).SetString(amount, 10); !ok {
			return fmt.Errorf("route %q price %q is not a base-unit integer", path, amount)
		}

		c.routes[path] = amount

		return nil
	}
}

// WithReplayDatabase persists spent authorization nonces to a SQLite
// database at the given path, so replay protection survives restarts.
//
// Without this option spent nonces are tracked in memory only.
func WithReplayDatabase(path string) GateOption {
	return func(c *gateConfig) error {
		store, err := replay.OpenSQLiteStore(path)
		if err != nil {
			return err
		}

		c.spent = store

		return nil
	}
}

// WithClock substitutes the clock used for validity-window checks.  Useful
// in tests.
func WithClock(now api.NowFunc) GateOption {
	return func(c *gateConfig) error {
		c.now = now

		return nil
	}
}

// WithFacilitator attaches a facilitator client.  After each grant the gate
// asks the facilitator, off the request path, whether the authorization
// would settle, and logs the answer.  Facilitator failures never affect the
// grant.
func WithFacilitator(client *facilitator.Client) GateOption {
	return func(c *gateConfig) error {
		c.facilitator = client

		return nil
	}
}

// WithGateLogger provides an slog.Logger for the gate.  Under normal
// operation the gate writes one INFO record per admitted payment; denials
// log at DEBUG.
func WithGateLogger(log *slog.Logger) GateOption {
	return func(c *gateConfig) error {
		c.log = log

		return nil
	}
}

// WithPaymentWindow sets the validity window used when the gate expands its
// price into full payment requirements for the facilitator.
func WithPaymentWindow(window time.Duration) GateOption {
	return func(c *gateConfig) error {
		if window <= 0 {
			return fmt.Errorf("payment window must be positive, got %s", window)
		}

		c.window = window

		return nil
	}
}

// A Gate is seller-side HTTP middleware that admits a request only when it
// carries a valid payment authorization for the route's price.  Requests
// without one receive a 402 response whose body states the price.
type Gate struct {
	price       api.PriceRequirement
	routes      map[string]api.PriceRequirement
	verifier    *verify.Verifier
	log         *slog.Logger
	facilitator *facilitator.Client
	window      time.Duration
}

// NewGate constructs a Gate protecting routes at the given price.  The
// requirement must be complete and its network known, otherwise NewGate
// returns an error: a misconfigured gate refuses to start rather than
// admitting unpaid requests.
func NewGate(price api.PriceRequirement, opts ...GateOption) (*Gate, error) {
	cfg := &gateConfig{
		routes: map[string]string{},
		spent:  replay.NewMemoryStore(),
		now:    time.Now,
		log:    slog.New(observability.NewNoopHandler()),
		window: defaultPaymentWindow,
	}

	var errs error

	for _, opt := range opts {
		errs = errors.Join(errs, opt(cfg))
	}

	if errs != nil {
		return nil, errs
	}

	if !price.Complete() {
		return nil, fmt.Errorf("incomplete price requirement: amount, currency, network and recipient are all required")
	}

	if _, ok := new(big.Int).SetString(price.Amount, 10); !ok {
		return nil, fmt.Errorf("price amount %q is not a base-unit integer", price.Amount)
	}

	if _, ok := exact.Network(price.Network); !ok {
		return nil, fmt.Errorf("unknown network: %s", price.Network)
	}

	routes := make(map[string]api.PriceRequirement, len(cfg.routes))
	for path, amount := range cfg.routes {
		requirement := price
		requirement.Amount = amount
		routes[path] = requirement
	}

	return &Gate{
		price:       price,
		routes:      routes,
		verifier:    verify.New(cfg.now, cfg.spent),
		log:         cfg.log,
		facilitator: cfg.facilitator,
		window:      cfg.window,
	}, nil
}

// Requirement returns the price for the given request path.
func (g *Gate) Requirement(path string) api.PriceRequirement {
	if requirement, ok := g.routes[path]; ok {
		return requirement
	}

	return g.price
}

// Middleware wraps next so it only runs for requests carrying a valid
// payment authorization.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requirement := g.Requirement(r.URL.Path)

		header := r.Header.Get(api.PaymentHeader)
		if header == "" {
			g.deny(w, requirement, api.DenyReasonNoAuthorization)

			return
		}

		payload, err := codec.Decode(header)
		if err != nil {
			g.log.Debug("rejected undecodable payment header",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			g.deny(w, requirement, api.DenyReasonMalformedHeader)

			return
		}

		result, err := g.verifier.Verify(r.Context(), payload, requirement)
		if err != nil {
			g.log.Error("payment verification failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			g.fail(w, requirement)

			return
		}

		if !result.Granted {
			g.log.Debug("denied payment authorization",
				slog.String("path", r.URL.Path),
				slog.String("reason", string(result.Reason)),
			)
			g.deny(w, requirement, result.Reason)

			return
		}

		g.log.Info("admitted paid request",
			slog.String("path", r.URL.Path),
			slog.String("payer", result.Payer),
			slog.String("amount", requirement.Amount),
			slog.String("network", requirement.Network),
		)

		if g.facilitator != nil {
			go g.report(payload, requirement)
		}

		w.Header().Set("X-Payment-Verified", "true")
		w.Header().Set("X-Payment-Timestamp", result.VerifiedAt.UTC().Format(time.RFC3339))

		payment := Payment{
			Payer:       result.Payer,
			VerifiedAt:  result.VerifiedAt,
			Requirement: result.Requirement,
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), paymentContextKey{}, payment)))
	})
}

func (g *Gate) deny(w http.ResponseWriter, requirement api.PriceRequirement, reason api.DenyReason) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Payment-Required", "true")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusPaymentRequired)

	_ = json.NewEncoder(w).Encode(api.PaymentRequiredResponse{
		Error:            string(reason),
		PriceRequirement: requirement,
	})
}

// fail answers an internal verification fault.  The request is refused, but
// with a retryable status so a well-behaved payer does not burn an
// authorization against a broken gate.
func (g *Gate) fail(w http.ResponseWriter, requirement api.PriceRequirement) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)

	_ = json.NewEncoder(w).Encode(api.PaymentRequiredResponse{
		Error:            string(api.DenyReasonConfigurationError),
		PriceRequirement: requirement,
	})
}

// report asks the facilitator, off the request path, whether an admitted
// authorization would settle.  The answer is advisory and only logged.
func (g *Gate) report(payload *types.PaymentPayload, price api.PriceRequirement) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requirements, err := exact.Requirements(price, g.window)
	if err != nil {
		g.log.Debug("skipped facilitator report", slog.String("error", err.Error()))

		return
	}

	resp, err := g.facilitator.Verify(ctx, payload, requirements)
	if err != nil {
		g.log.Debug("facilitator verify unavailable", slog.String("error", err.Error()))

		return
	}

	if !resp.IsValid {
		g.log.Warn("facilitator disputed admitted authorization",
			slog.String("reason", resp.InvalidReason),
		)
	}
}
