// Package sign provides the signing capability used to answer the handshake
// request some debug adapters send before accepting a client.
package sign

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Signer produces a signature over a handshake value.
type Signer interface {
	Sign(ctx context.Context, value string) (string, error)
}

// ErrNoKey is returned by an HMAC signer without a key.
var ErrNoKey = errors.New("signing key is empty")

// HMAC signs values with HMAC-SHA256 and hex encodes the result.
type HMAC struct {
	key []byte
}

// NewHMAC creates a signer for key.
func NewHMAC(key string) *HMAC {
	return &HMAC{key: []byte(key)}
}

func (h *HMAC) Sign(ctx context.Context, value string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(h.key) == 0 {
		return "", ErrNoKey
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature is the HMAC of value under the signer's key.
func (h *HMAC) Verify(value, signature string) bool {
	want, err := h.Sign(context.Background(), value)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}

// Func adapts a function to Signer.
type Func func(ctx context.Context, value string) (string, error)

func (f Func) Sign(ctx context.Context, value string) (string, error) {
	return f(ctx, value)
}
