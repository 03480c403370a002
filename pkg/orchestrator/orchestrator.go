// Package orchestrator drives the client side of the payment-gated access
// protocol: probe the protected route, read back the price requirement,
// move the wallet to the payment network, sign a transfer authorization and
// resubmit the request with payment attached.
//
// The flow is a single-threaded state machine.  Each transition suspends on
// exactly one external event (a network response, a network-switch
// confirmation or a signature) and every wallet suspension point is bounded
// by a timeout.  Nothing retries automatically: a failed attempt terminates
// in StateFailed and retry is an explicit new Start.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coinbase/x402/go/pkg/types"
	"github.com/oklog/ulid/v2"

	"github.com/antidote-labs/x402-gate/internal/codec"
	"github.com/antidote-labs/x402-gate/internal/exact"
	"github.com/antidote-labs/x402-gate/internal/exact/evm"
	"github.com/antidote-labs/x402-gate/internal/observability"
	"github.com/antidote-labs/x402-gate/pkg/api"
)

// ErrAlreadyRunning is returned by Start while a previous attempt is still
// in flight.  Only one attempt may be active per orchestrator.
var ErrAlreadyRunning = errors.New("a payment attempt is already in flight")

// Result is the terminal outcome of one attempt.  The success payload is
// delivered here exactly once; it is not retained by the orchestrator.
type Result struct {
	AttemptID string
	State     State
	Reason    FailureReason
	Err       error

	// Status and Body are the final HTTP status and response body.
	Status int
	Body   []byte

	// Paid reports whether a signed authorization was submitted.
	Paid bool

	// Requirement is the price requirement the server quoted, when one
	// was received.
	Requirement api.PriceRequirement
}

// Orchestrator runs payment attempts for a single wallet.
type Orchestrator struct {
	wallet api.Wallet
	cfg    config

	running atomic.Bool
	state   atomic.Value
}

func New(wallet api.Wallet, opts ...Option) (*Orchestrator, error) {
	if wallet == nil {
		return nil, errors.New("nil wallet")
	}

	cfg := config{
		client:        http.DefaultClient,
		log:           slog.New(observability.NewNoopHandler()),
		walletTimeout: DefaultWalletTimeout,
		window:        DefaultAuthorizationWindow,
		nowFunc:       time.Now,
		nonceFunc:     api.DefaultNonce,
	}

	var errs error

	for _, opt := range opts {
		errs = errors.Join(errs, opt(&cfg))
	}

	if errs != nil {
		return nil, errs
	}

	o := &Orchestrator{
		wallet: wallet,
		cfg:    cfg,
	}
	o.state.Store(StateInitial)

	return o, nil
}

// State returns the current state of the in-flight or last attempt.
func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

// Start runs one payment attempt against the protected resource.  It blocks
// until the attempt reaches a terminal state.  Starting while another
// attempt is in flight returns ErrAlreadyRunning without touching the
// running attempt.
func (o *Orchestrator) Start(ctx context.Context, method, url string, body []byte) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)

	attempt := ulid.Make().String()
	log := o.cfg.log.With(slog.String("attempt", attempt))

	o.state.Store(StateInitial)

	res := o.run(ctx, log, attempt, method, url, body)

	o.transition(log, res.State)

	return res, nil
}

func (o *Orchestrator) transition(log *slog.Logger, next State) {
	o.state.Store(next)
	log.Debug("state transition", slog.String("state", string(next)))

	if o.cfg.listener != nil {
		o.cfg.listener(next)
	}
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, attempt, method, url string, body []byte) *Result {
	fail := func(reason FailureReason, status int, err error) *Result {
		log.Info("payment attempt failed",
			slog.String("reason", string(reason)),
			slog.Any("error", err),
		)

		return &Result{
			AttemptID: attempt,
			State:     StateFailed,
			Reason:    reason,
			Status:    status,
			Err:       err,
		}
	}

	o.transition(log, StateRequesting)

	status, respBody, err := o.send(ctx, method, url, body, "")
	if err != nil {
		return fail(FailureRequestFailed, 0, err)
	}

	if status != http.StatusPaymentRequired {
		if status >= 200 && status < 300 {
			// Free for this caller; nothing to pay.
			return &Result{
				AttemptID: attempt,
				State:     StateCompleted,
				Status:    status,
				Body:      respBody,
			}
		}

		return fail(FailureRequestFailed, status, fmt.Errorf("unexpected status %d", status))
	}

	requirements, price, err := exact.ParsePaymentRequired(respBody, o.cfg.window)
	if err != nil {
		return fail(FailureBadResponse, status, err)
	}

	log.Debug("payment required",
		slog.String("amount", price.Amount),
		slog.String("currency", price.Currency),
		slog.String("network", price.Network),
		slog.String("recipient", price.Recipient),
	)

	if err := o.ensureNetwork(ctx, log, price.Network); err != nil {
		res := fail(FailureWrongNetwork, 0, err)
		res.Requirement = price

		return res
	}

	o.transition(log, StateProcessing)

	header, err := o.signPayment(ctx, log, requirements)
	if err != nil {
		res := failureForWalletErr(fail, err)
		res.Requirement = price

		return res
	}

	o.transition(log, StateVerifying)

	status, respBody, err = o.send(ctx, method, url, body, header)

	switch {
	case err != nil:
		res := fail(FailureRequestFailed, 0, err)
		res.Requirement = price
		res.Paid = true

		return res
	case status == http.StatusPaymentRequired:
		res := fail(FailureVerificationRejected, status, errors.New("payment was rejected by the server"))
		res.Requirement = price
		res.Paid = true

		return res
	case status < 200 || status >= 300:
		res := fail(FailureRequestFailed, status, fmt.Errorf("unexpected status %d", status))
		res.Requirement = price
		res.Paid = true

		return res
	}

	if o.cfg.grants != nil {
		o.cfg.grants.Record(o.wallet.Address().Hex(), price.Network)
	}

	log.Info("payment accepted",
		slog.String("network", price.Network),
		slog.String("amount", price.Amount),
	)

	return &Result{
		AttemptID:   attempt,
		State:       StateCompleted,
		Status:      status,
		Body:        respBody,
		Paid:        true,
		Requirement: price,
	}
}

// failureForWalletErr maps a signing failure onto the reason the host UI
// needs: rejection, timeout and everything else each prompt a different
// retry action.
func failureForWalletErr(fail func(FailureReason, int, error) *Result, err error) *Result {
	switch {
	case errors.Is(err, api.ErrUserRejected):
		return fail(FailureUserRejected, 0, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fail(FailureWalletTimeout, 0, err)
	default:
		return fail(FailurePaymentDeclined, 0, err)
	}
}

// ensureNetwork moves the wallet to the requirement's network, if it is not
// there already.
func (o *Orchestrator) ensureNetwork(ctx context.Context, log *slog.Logger, network string) error {
	target, ok := exact.ChainID(network)
	if !ok {
		return fmt.Errorf("unknown network: %s", network)
	}

	walletCtx, cancel := context.WithTimeout(ctx, o.cfg.walletTimeout)
	defer cancel()

	current, err := o.wallet.ChainID(walletCtx)
	if err != nil {
		return fmt.Errorf("failed to read wallet chain: %w", err)
	}

	if current == target {
		return nil
	}

	o.transition(log, StateSwitchingNetwork)

	if err := o.wallet.SwitchChain(walletCtx, target); err != nil {
		return fmt.Errorf("failed to switch to chain %d: %w", target, err)
	}

	current, err = o.wallet.ChainID(walletCtx)
	if err != nil {
		return fmt.Errorf("failed to confirm wallet chain: %w", err)
	}

	if current != target {
		return fmt.Errorf("wallet is on chain %d, payment requires %d", current, target)
	}

	return nil
}

// signPayment builds the transfer authorization, asks the wallet to sign it
// and encodes the result into a payment header value.
func (o *Orchestrator) signPayment(ctx context.Context, log *slog.Logger, requirements types.PaymentRequirements) (string, error) {
	walletCtx, cancel := context.WithTimeout(ctx, o.cfg.walletTimeout)
	defer cancel()

	payer := evm.NewExactEvm(api.NewWalletSigner(walletCtx, o.wallet), o.cfg.nowFunc, o.cfg.nonceFunc, log)

	payload, err := payer.Pay(requirements)
	if err != nil {
		return "", err
	}

	return codec.Encode(payload)
}

// send issues one HTTP round trip, optionally attaching a payment header,
// and drains the response.
func (o *Orchestrator) send(ctx context.Context, method, url string, body []byte, paymentHeader string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if paymentHeader != "" {
		req.Header.Set(api.PaymentHeader, paymentHeader)
	}

	resp, err := o.cfg.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, respBody, nil
}
