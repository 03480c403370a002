package evm

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coinbase/x402/go/pkg/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/antidote-labs/x402-gate/internal/exact"
	"github.com/antidote-labs/x402-gate/pkg/api"
)

var _ api.Payer = (*ExactEvm)(nil)

// ExactEvm is an api.Payer that satisfies "exact" scheme payment requirements
// on EVM-compatible networks by signing an ERC-3009
// TransferWithAuthorization message.
type ExactEvm struct {
	signer    api.EVMSigner
	nowFunc   api.NowFunc
	nonceFunc api.NonceFunc
	log       *slog.Logger
}

func NewExactEvm(signer api.EVMSigner, nowFunc api.NowFunc, nonceFunc api.NonceFunc, log *slog.Logger) *ExactEvm {
	return &ExactEvm{
		signer:    signer,
		nowFunc:   nowFunc,
		nonceFunc: nonceFunc,
		log:       log,
	}
}

// Pay implements api.Payer.
func (e *ExactEvm) Pay(requirements types.PaymentRequirements) (*types.PaymentPayload, error) {
	switch requirements.Scheme {
	case string(api.SchemeExact):
		return e.createPaymentExactEvm(requirements)
	default:
		return nil, fmt.Errorf("unknown payment scheme : %w, %s", http.ErrNotSupported, requirements.Scheme)
	}
}

// Scheme implements api.Payer.
func (e *ExactEvm) Scheme() api.Scheme {
	return api.SchemeExact
}

// domain resolves the EIP-712 domain name/version for the requirement, from
// the requirement's extra field when the seller provides one, otherwise from
// the token registry.
func domain(requirements types.PaymentRequirements) (name, version string, err error) {
	if requirements.Extra != nil {
		var extra struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}

		if err := json.Unmarshal([]byte(*requirements.Extra), &extra); err != nil {
			return "", "", fmt.Errorf("invalid requirement extra: %w", err)
		}

		if extra.Name != "" && extra.Version != "" {
			return extra.Name, extra.Version, nil
		}
	}

	tok, ok := exact.Network(requirements.Network)
	if !ok {
		return "", "", fmt.Errorf("unknown network: %s", requirements.Network)
	}

	return tok.Name, tok.Version, nil
}

func (e *ExactEvm) createPaymentExactEvm(requirements types.PaymentRequirements) (*types.PaymentPayload, error) {
	payload, err := e.preparePaymentHeader(requirements)
	if err != nil {
		return nil, err
	}

	chainID, ok := exact.ChainID(requirements.Network)
	if !ok {
		return nil, fmt.Errorf("unknown network: %s", requirements.Network)
	}

	name, version, err := domain(requirements)
	if err != nil {
		return nil, err
	}

	typedData := TransferWithAuthorization(
		name, version, math.NewHexOrDecimal256(chainID), requirements.Asset,
		apitypes.TypedDataMessage{
			"from":        payload.Payload.Authorization.From,
			"to":          payload.Payload.Authorization.To,
			"value":       payload.Payload.Authorization.Value,
			"validAfter":  payload.Payload.Authorization.ValidAfter,
			"validBefore": payload.Payload.Authorization.ValidBefore,
			"nonce":       payload.Payload.Authorization.Nonce,
		},
	)

	hash, data, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, err
	}

	e.log.Debug("ERC-3009 hash", slog.String("hex", hexutil.Encode(hash)))
	e.log.Debug("ERC-3009 message", slog.String("hex", hexutil.Encode([]byte(data))))

	sig, err := e.signer.Sign(hash)
	if err != nil {
		return nil, err
	}

	sig[64] += 27

	e.log.Debug("Signature", slog.String("hex", hex.EncodeToString(sig)))

	payload.Payload.Signature = hexutil.Encode(sig)

	sig[64] -= 27

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}

	addr := crypto.PubkeyToAddress(*pubKey)

	e.log.Debug("Recovered address", slog.String("hex", addr.Hex()))

	e.log.Info(
		"x402 payment authorized",
		slog.String("from", payload.Payload.Authorization.From),
		slog.String("to", payload.Payload.Authorization.To),
		slog.String("value", payload.Payload.Authorization.Value),
		slog.String("scheme", requirements.Scheme),
		slog.String("network", requirements.Network),
	)

	return payload, nil
}

func (e *ExactEvm) preparePaymentHeader(details types.PaymentRequirements) (*types.PaymentPayload, error) {
	nonce := e.nonceFunc()

	validAfter := strconv.FormatInt(e.nowFunc().Add(-10*time.Minute).Unix(), 10)
	validBefore := strconv.FormatInt(e.nowFunc().Add(time.Duration(details.MaxTimeoutSeconds)*time.Second).Unix(), 10)

	return &types.PaymentPayload{
		X402Version: 1,
		Scheme:      details.Scheme,
		Network:     details.Network,
		Payload: &types.ExactEvmPayload{
			Signature: "",
			Authorization: &types.ExactEvmPayloadAuthorization{
				From:        e.signer.Address().Hex(),
				To:          details.PayTo,
				Value:       details.MaxAmountRequired,
				ValidAfter:  validAfter,
				ValidBefore: validBefore,
				Nonce:       hexutil.Encode(nonce),
			},
		},
	}, nil
}

// TransferWithAuthorization assembles the ERC-3009 typed data structure for
// the given domain and message.  Shared by the payer above and the verifier,
// which recomputes the same hash to recover the signing address.
func TransferWithAuthorization(name, version string, chainID *math.HexOrDecimal256, asset string, message apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           chainID,
			VerifyingContract: asset,
		},
		Message: message,
	}
}
