package transport

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"net/http"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// Request headers consumed by the auth gate. The nonce is the exact UTF-8
// string that was signed; the public key is base58 per ecosystem convention.
const (
	HeaderSignature = "X-Solana-Signature"
	HeaderNonce     = "X-Solana-Nonce"
	HeaderPublicKey = "X-Solana-PublicKey"
)

// SubscriptionLedger is the external read-only capability consulted after a
// signature verifies. Implementations talk to the on-chain subscription
// program; the gate only cares about the boolean.
type SubscriptionLedger interface {
	HasActiveSubscription(ctx context.Context, userKey, agentKey string) (bool, error)
}

// AuthGate verifies a signed nonce from request headers and, when a ledger
// and agent identity are configured, checks the caller's subscription.
// All rejections map to the same error code; callers respond HTTP 403.
type AuthGate struct {
	logger   *zap.Logger
	agentKey string
	ledger   SubscriptionLedger // nil disables the ledger check
}

// NewAuthGate creates the gate. ledger may be nil; agentKey may be empty,
// in which case only the signature is checked.
func NewAuthGate(logger *zap.Logger, agentKey string, ledger SubscriptionLedger) *AuthGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthGate{
		logger:   logger.Named("auth-gate"),
		agentKey: agentKey,
		ledger:   ledger,
	}
}

// Verify checks the three auth headers and the optional subscription.
// A nil return means the request may proceed to dispatch.
func (g *AuthGate) Verify(ctx context.Context, r *http.Request) *a2aSchema.A2AError {
	signatureB64 := r.Header.Get(HeaderSignature)
	nonce := r.Header.Get(HeaderNonce)
	publicKeyB58 := r.Header.Get(HeaderPublicKey)

	if signatureB64 == "" || nonce == "" || publicKeyB58 == "" {
		return a2aSchema.NewAuthFailedError("missing authentication headers")
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		g.logger.Debug("Malformed signature header", zap.Error(err))
		return a2aSchema.NewAuthFailedError("malformed signature")
	}
	publicKey, err := base58.Decode(publicKeyB58)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		g.logger.Debug("Malformed public key header", zap.Error(err))
		return a2aSchema.NewAuthFailedError("malformed public key")
	}

	if !ed25519.Verify(ed25519.PublicKey(publicKey), []byte(nonce), signature) {
		g.logger.Warn("Signature verification failed", zap.String("publicKey", publicKeyB58))
		return a2aSchema.NewAuthFailedError("signature verification failed")
	}

	if g.ledger != nil && g.agentKey != "" {
		active, err := g.ledger.HasActiveSubscription(ctx, publicKeyB58, g.agentKey)
		if err != nil {
			g.logger.Error("Subscription ledger lookup failed", zap.Error(err))
			return a2aSchema.NewAuthFailedError("subscription check failed")
		}
		if !active {
			g.logger.Warn("No active subscription", zap.String("publicKey", publicKeyB58))
			return a2aSchema.NewAuthFailedError("no active subscription")
		}
	}
	return nil
}
