package client

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/mr-tron/base58"
)

// Auth header names understood by servers running the signed-nonce gate.
const (
	headerSignature = "X-Solana-Signature"
	headerNonce     = "X-Solana-Nonce"
	headerPublicKey = "X-Solana-PublicKey"
)

// SignedNonceHeaders builds the three auth headers from a keypair and a
// nonce: the nonce itself, its ed25519 signature in base64, and the public
// key in base58. Merge the result into Client.Headers to authenticate every
// call.
func SignedNonceHeaders(priv ed25519.PrivateKey, nonce string) map[string]string {
	pub := priv.Public().(ed25519.PublicKey)
	return map[string]string{
		headerSignature: base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(nonce))),
		headerNonce:     nonce,
		headerPublicKey: base58.Encode(pub),
	}
}

// UseSignedNonce installs signed-nonce auth headers on the client.
func (c *Client) UseSignedNonce(priv ed25519.PrivateKey, nonce string) {
	for key, value := range SignedNonceHeaders(priv, nonce) {
		c.Headers[key] = value
	}
}
