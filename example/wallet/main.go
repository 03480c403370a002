// An interactive-style buyer: runs the payment flow through the
// orchestrator, observing each state transition the way a UI would, and
// keeps a grant cache so the second request skips straight through.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	x402gate "github.com/antidote-labs/x402-gate"
	"github.com/antidote-labs/x402-gate/pkg/access"
	"github.com/antidote-labs/x402-gate/pkg/orchestrator"
)

const baseSepoliaChainID = 84532

func main() {
	const (
		privateKeyEnvVar = "X402_BUYER_PRIVATE_KEY"
		urlEnvVar        = "X402_RESOURCE_URL"
	)

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: slog.LevelDebug,
	}))

	url, ok := os.LookupEnv(urlEnvVar)
	if !ok {
		url = "http://localhost:8080/premium/content"
	}

	privHex, ok := os.LookupEnv(privateKeyEnvVar)
	if !ok {
		log.Error("failed to look up private key environment variable")
		os.Exit(1)
	}

	wallet, err := x402gate.WalletForPrivateKeyHex(privHex, baseSepoliaChainID)
	if err != nil {
		log.Error("failed to load private key", tint.Err(err))
		os.Exit(1)
	}

	grants := access.NewCache()

	o, err := orchestrator.New(wallet,
		orchestrator.WithLogger(log),
		orchestrator.WithGrantCache(grants),
		orchestrator.WithStateListener(func(s orchestrator.State) {
			log.Info("payment flow", slog.String("state", string(s)))
		}),
	)
	if err != nil {
		log.Error("failed to create orchestrator", tint.Err(err))
		os.Exit(1)
	}

	result, err := o.Start(context.Background(), "GET", url, nil)
	if err != nil {
		log.Error("failed to start payment attempt", tint.Err(err))
		os.Exit(1)
	}

	if result.State != orchestrator.StateCompleted {
		log.Error("payment attempt failed",
			slog.String("reason", string(result.Reason)),
			slog.Any("error", result.Err),
		)
		os.Exit(1)
	}

	log.Info("access granted",
		slog.Bool("paid", result.Paid),
		slog.Bool("cached", grants.Granted(wallet.Address().Hex())),
		slog.String("body", string(result.Body)),
	)
}
