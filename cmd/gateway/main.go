// Command gateway runs a minimal paid-content server: every route under
// /premium is protected by the x402 access gate and priced from the
// environment.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lmittmann/tint"

	x402gate "github.com/antidote-labs/x402-gate"
	"github.com/antidote-labs/x402-gate/pkg/api"
	"github.com/antidote-labs/x402-gate/pkg/facilitator"
)

const (
	sellerAddressEnvVar  = "X402_SELLER_ADDRESS"
	networkEnvVar        = "X402_NETWORK"
	amountEnvVar         = "X402_AMOUNT"
	listenEnvVar         = "X402_LISTEN_ADDRESS"
	replayDBEnvVar       = "X402_REPLAY_DB_PATH"
	facilitatorURLEnvVar = "X402_FACILITATOR_URL"
	apiKeyIDEnvVar       = "CDP_API_KEY_ID"
	apiKeySecretEnvVar   = "CDP_API_KEY_SECRET" //nolint:gosec
)

func main() {
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelDebug,
	}))

	recipient, ok := os.LookupEnv(sellerAddressEnvVar)
	if !ok {
		log.Error("failed to look up seller address environment variable")
		os.Exit(1)
	}

	price := api.PriceRequirement{
		Amount:    envOr(amountEnvVar, "10000"),
		Currency:  "USDC",
		Network:   envOr(networkEnvVar, "base-sepolia"),
		Recipient: recipient,
	}

	opts := []x402gate.GateOption{
		x402gate.WithGateLogger(log),
	}

	if path, ok := os.LookupEnv(replayDBEnvVar); ok {
		opts = append(opts, x402gate.WithReplayDatabase(path))
	}

	if keyID, ok := os.LookupEnv(apiKeyIDEnvVar); ok {
		client, err := facilitator.New(
			facilitator.WithBaseURL(envOr(facilitatorURLEnvVar, facilitator.DefaultBaseURL)),
			facilitator.WithCredentials(keyID, os.Getenv(apiKeySecretEnvVar)),
			facilitator.WithLogger(log),
		)
		if err != nil {
			log.Error("failed to create facilitator client", tint.Err(err))
			os.Exit(1)
		}

		opts = append(opts, x402gate.WithFacilitator(client))
	}

	gate, err := x402gate.NewGate(price, opts...)
	if err != nil {
		log.Error("failed to create access gate", tint.Err(err))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/premium/", gate.Middleware(http.HandlerFunc(premium)))

	addr := envOr(listenEnvVar, ":8080")

	log.Info("gateway listening",
		slog.String("address", addr),
		slog.String("network", price.Network),
		slog.String("amount", price.Amount),
		slog.String("recipient", price.Recipient),
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		log.Error("server stopped", tint.Err(err))
		os.Exit(1)
	}
}

func premium(w http.ResponseWriter, r *http.Request) {
	payment, _ := x402gate.PaymentFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]any{
		"message":     "thanks for your payment",
		"payer":       payment.Payer,
		"verified_at": payment.VerifiedAt.UTC().Format(time.RFC3339),
	})
}

func envOr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}

	return fallback
}
