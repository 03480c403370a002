package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402gate "github.com/antidote-labs/x402-gate"
	"github.com/antidote-labs/x402-gate/pkg/access"
	"github.com/antidote-labs/x402-gate/pkg/api"
	"github.com/antidote-labs/x402-gate/pkg/api/apitest"
	"github.com/antidote-labs/x402-gate/pkg/orchestrator"
)

const (
	recipient           = "0x8d6Efb97F6E3d218647eD74AF418d47489550Ae2"
	baseChainID         = 8453
	baseSepoliaChainID  = 84532
	protectedRouteReply = `{"joke":"a premium programming joke"}`
)

// gateServer runs a real access gate in front of a canned handler, counting
// how many requests arrived with a payment header attached.
func gateServer(t *testing.T, amount string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	gate, err := x402gate.NewGate(api.PriceRequirement{
		Amount:    amount,
		Currency:  "USDC",
		Network:   "base-sepolia",
		Recipient: recipient,
	})
	require.NoError(t, err)

	var paid atomic.Int32

	counter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(api.PaymentHeader) != "" {
			paid.Add(1)
		}

		gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(protectedRouteReply))
		})).ServeHTTP(w, r)
	})

	server := httptest.NewServer(counter)
	t.Cleanup(server.Close)

	return server, &paid
}

func TestStartPaysForAccess(t *testing.T) {
	t.Parallel()

	server, _ := gateServer(t, "1000000")

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)
	grants := access.NewCache()

	var states []orchestrator.State

	o, err := orchestrator.New(wallet,
		orchestrator.WithGrantCache(grants),
		orchestrator.WithStateListener(func(s orchestrator.State) {
			states = append(states, s)
		}),
	)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateCompleted, result.State)
	assert.True(t, result.Paid)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.JSONEq(t, protectedRouteReply, string(result.Body))
	assert.Equal(t, "1000000", result.Requirement.Amount)
	assert.NotEmpty(t, result.AttemptID)

	assert.Equal(t, []orchestrator.State{
		orchestrator.StateRequesting,
		orchestrator.StateProcessing,
		orchestrator.StateVerifying,
		orchestrator.StateCompleted,
	}, states)

	assert.True(t, grants.Granted(wallet.Address().Hex()))
	assert.Equal(t, 1, wallet.Signed())
	assert.Empty(t, wallet.Switches())
	assert.Equal(t, orchestrator.StateCompleted, o.State())
}

func TestStartFreeRoute(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("free"))
	}))
	t.Cleanup(server.Close)

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)

	o, err := orchestrator.New(wallet)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateCompleted, result.State)
	assert.False(t, result.Paid)
	assert.Equal(t, "free", string(result.Body))
	assert.Equal(t, 0, wallet.Signed())
}

func TestStartSwitchesNetwork(t *testing.T) {
	t.Parallel()

	server, _ := gateServer(t, "1000000")

	wallet := apitest.NewFakeWallet(t, baseChainID)

	var states []orchestrator.State

	o, err := orchestrator.New(wallet,
		orchestrator.WithStateListener(func(s orchestrator.State) {
			states = append(states, s)
		}),
	)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateCompleted, result.State)
	assert.Equal(t, []int64{baseSepoliaChainID}, wallet.Switches())
	assert.Contains(t, states, orchestrator.StateSwitchingNetwork)
}

func TestStartSwitchRejected(t *testing.T) {
	t.Parallel()

	server, paid := gateServer(t, "1000000")

	wallet := apitest.NewFakeWallet(t, baseChainID)
	wallet.RejectSwitch = true

	o, err := orchestrator.New(wallet)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateFailed, result.State)
	assert.Equal(t, orchestrator.FailureWrongNetwork, result.Reason)
	assert.False(t, result.Paid)
	assert.Equal(t, int32(0), paid.Load())
}

func TestStartUserRejectsSignature(t *testing.T) {
	t.Parallel()

	server, paid := gateServer(t, "1000000")

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)
	wallet.RejectSign = true

	o, err := orchestrator.New(wallet)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateFailed, result.State)
	assert.Equal(t, orchestrator.FailureUserRejected, result.Reason)
	assert.ErrorIs(t, result.Err, api.ErrUserRejected)
	assert.False(t, result.Paid)

	// A refused signature must never turn into a request with payment.
	assert.Equal(t, int32(0), paid.Load())
}

func TestStartWalletTimeout(t *testing.T) {
	t.Parallel()

	server, _ := gateServer(t, "1000000")

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)
	wallet.SignDelay = time.Second

	o, err := orchestrator.New(wallet,
		orchestrator.WithWalletTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateFailed, result.State)
	assert.Equal(t, orchestrator.FailureWalletTimeout, result.Reason)
}

func TestStartVerificationRejected(t *testing.T) {
	t.Parallel()

	// A gate priced above what the 402 body advertises: the signed amount
	// never matches, so the resubmission is rejected.
	gate, err := x402gate.NewGate(api.PriceRequirement{
		Amount:    "2000000",
		Currency:  "USDC",
		Network:   "base-sepolia",
		Recipient: recipient,
	})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(api.PaymentHeader) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(api.PaymentRequiredResponse{
				PriceRequirement: api.PriceRequirement{
					Amount:    "1000000",
					Currency:  "USDC",
					Network:   "base-sepolia",
					Recipient: recipient,
				},
			})

			return
		}

		gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)

	o, err := orchestrator.New(wallet)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateFailed, result.State)
	assert.Equal(t, orchestrator.FailureVerificationRejected, result.Reason)
	assert.True(t, result.Paid)
}

func TestStartBadResponseBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("Payment Required"))
	}))
	t.Cleanup(server.Close)

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)

	o, err := orchestrator.New(wallet)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateFailed, result.State)
	assert.Equal(t, orchestrator.FailureBadResponse, result.Reason)
}

func TestStartRequestFailed(t *testing.T) {
	t.Parallel()

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)

	o, err := orchestrator.New(wallet)
	require.NoError(t, err)

	result, err := o.Start(context.Background(), http.MethodGet, "http://127.0.0.1:1/unreachable", nil)
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StateFailed, result.State)
	assert.Equal(t, orchestrator.FailureRequestFailed, result.Reason)
}

func TestStartSingleFlight(t *testing.T) {
	t.Parallel()

	server, _ := gateServer(t, "1000000")

	wallet := apitest.NewFakeWallet(t, baseSepoliaChainID)
	wallet.SignDelay = 500 * time.Millisecond

	o, err := orchestrator.New(wallet)
	require.NoError(t, err)

	done := make(chan *orchestrator.Result, 1)

	go func() {
		result, err := o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
		assert.NoError(t, err)

		done <- result
	}()

	// Wait until the first attempt is suspended on the wallet prompt.
	require.Eventually(t, func() bool {
		return o.State() == orchestrator.StateProcessing
	}, 2*time.Second, 10*time.Millisecond)

	_, err = o.Start(context.Background(), http.MethodGet, server.URL+"/premium", nil)
	require.ErrorIs(t, err, orchestrator.ErrAlreadyRunning)

	result := <-done
	assert.Equal(t, orchestrator.StateCompleted, result.State)
}

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, orchestrator.StateCompleted.Terminal())
	assert.True(t, orchestrator.StateFailed.Terminal())
	assert.False(t, orchestrator.StateRequesting.Terminal())
	assert.False(t, orchestrator.StateProcessing.Terminal())
}
