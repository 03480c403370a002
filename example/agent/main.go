// A headless buyer: fetches a paid URL with an http.Client that settles 402
// responses automatically from a private key held in the environment.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	x402gate "github.com/antidote-labs/x402-gate"
)

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

	client, err := x402gate.ClientForPrivateKeyHexFromEnv(privateKeyEnvVar, x402gate.WithLogger(log))
	if err != nil {
		log.Error("failed to create client", tint.Err(err))
		os.Exit(1)
	}

	resp, err := client.Get(url)
	if err != nil {
		log.Error("failed to make HTTP request", tint.Err(err))
		os.Exit(1)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Error("failed to close response body", tint.Err(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", tint.Err(err))
		os.Exit(1)
	}

	log.Info("HTTP response", slog.String("body", string(body)), slog.Int("code", resp.StatusCode))
}
