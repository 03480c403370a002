// Package credential mints the short-lived bearer tokens the gate uses to
// authenticate itself to the facilitator service.
//
// A token is a three-segment EdDSA JWT whose subject is the API key ID and
// whose uri claim binds it to a single METHOD/host/path.  Tokens live for
// two minutes and are minted fresh for every outbound call, never cached:
// that per-call freshness plus the random header nonce is the replay
// resistance for facilitator traffic.
package credential

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/antidote-labs/x402-gate/pkg/api"
)

const (
	// Issuer is the fixed issuer tag the facilitator expects.
	Issuer = "cdp"

	// TokenTTL is the fixed token lifetime.  Enforcement belongs to the
	// relying service; this component only stamps the expiry.
	TokenTTL = 120 * time.Second
)

// ErrInvalidKey is returned when the configured signing key cannot be parsed
// as an Ed25519 private key.  Construction fails loudly rather than minting
// tokens no verifier would ever accept.
var ErrInvalidKey = errors.New("credential signing key is not a valid Ed25519 key")

type claims struct {
	jwt.RegisteredClaims

	URI string `json:"uri"`
}

// Signer mints credential tokens for a single named API key.
type Signer struct {
	keyID string
	key   ed25519.PrivateKey
	now   api.NowFunc
}

// NewSigner parses the key secret and returns a ready Signer.  The secret
// may be the base64 form issued with CDP API keys (a 64-byte Ed25519 private
// key, or its 32-byte seed) or a PEM-encoded PKCS#8 private key.
func NewSigner(keyID, secret string, now api.NowFunc) (*Signer, error) {
	key, err := parseKey(secret)
	if err != nil {
		return nil, err
	}

	if now == nil {
		now = time.Now
	}

	return &Signer{
		keyID: keyID,
		key:   key,
		now:   now,
	}, nil
}

func parseKey(secret string) (ed25519.PrivateKey, error) {
	if strings.HasPrefix(strings.TrimSpace(secret), "-----BEGIN") {
		return parsePEMKey(secret)
	}

	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKey, len(raw))
	}
}

func parsePEMKey(secret string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(secret))
	if block == nil {
		return nil, fmt.Errorf("%w: invalid PEM", ErrInvalidKey)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an Ed25519 key", ErrInvalidKey)
	}

	return key, nil
}

// KeyID returns the API key identifier the signer mints for.
func (s *Signer) KeyID() string {
	return s.keyID
}

// Public returns the verifying key, used by tests and relying services.
func (s *Signer) Public() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Mint produces a fresh token bound to the given request target.  Each call
// generates a new header nonce, so two tokens minted within the same second
// for the same target still differ.
func (s *Signer) Mint(method, host, path string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate token nonce: %w", err)
	}

	now := s.now()

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   s.keyID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		URI: fmt.Sprintf("%s %s%s", method, host, path),
	})
	tok.Header["kid"] = s.keyID
	tok.Header["nonce"] = hex.EncodeToString(nonce)

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential token: %w", err)
	}

	return signed, nil
}
