// Package identity produces short-lived attestation tokens proving the
// request originates from an enrolled device. Remote backends require a
// fresh token per privileged call.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	arcotel "github.com/sriscode/MobileArc/internal/otel"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/identity")

// ErrAttestation is returned when a token cannot be produced.
var ErrAttestation = errors.New("identity: attestation failed")

// Token is a bearer attestation credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token is past (or within margin of) expiry.
func (t Token) Expired(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(t.ExpiresAt)
}

// Prover mints attestation tokens.
type Prover interface {
	Prove(ctx context.Context) (Token, error)
}

// tokenTTL is how long device-minted tokens remain valid.
const tokenTTL = 5 * time.Minute

// refreshMargin triggers re-proving before a cached token actually lapses,
// so an in-flight remote call never carries a token that expires mid-request.
const refreshMargin = 30 * time.Second

// DeviceProver mints tokens from local device state. The production build
// delegates to the platform keystore; this implementation generates opaque
// random credentials with the same lifecycle.
type DeviceProver struct {
	deviceID string
	now      func() time.Time
}

// NewDeviceProver creates a prover bound to a device identifier.
func NewDeviceProver(deviceID string) *DeviceProver {
	return &DeviceProver{deviceID: deviceID, now: time.Now}
}

// Prove mints a fresh token.
func (p *DeviceProver) Prove(ctx context.Context) (Token, error) {
	_, span := tracer.Start(ctx, "identity.prove")
	defer span.End()

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrAttestation, err)
	}
	return Token{
		Value:     p.deviceID + "." + hex.EncodeToString(buf),
		ExpiresAt: p.now().Add(tokenTTL),
	}, nil
}

// CachingProver wraps a Prover and reuses tokens until they near expiry.
// Safe for concurrent use.
type CachingProver struct {
	inner Prover
	now   func() time.Time

	mu     sync.Mutex
	cached Token
}

// NewCachingProver wraps inner with token reuse.
func NewCachingProver(inner Prover) *CachingProver {
	return &CachingProver{inner: inner, now: time.Now}
}

// Prove returns the cached token, re-proving when it is absent or near expiry.
func (p *CachingProver) Prove(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.Value != "" && !p.cached.Expired(p.now(), refreshMargin) {
		return p.cached, nil
	}
	tok, err := p.inner.Prove(ctx)
	if err != nil {
		return Token{}, err
	}
	p.cached = tok
	return tok, nil
}

// Invalidate discards the cached token so the next Prove mints a fresh one.
// Called after a remote rejects a token as stale.
func (p *CachingProver) Invalidate() {
	p.mu.Lock()
	p.cached = Token{}
	p.mu.Unlock()
}
