// Package codes provides the credential primitives for gatepass: opaque static
// codes, HMAC-signed QR payloads, and time-based rolling codes. All three
// derive from crypto/rand or keyed hashing; nothing in this package touches
// the database, so it stays trivially testable.
package codes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// qrKeyIterations is the PBKDF2 iteration count for deriving the QR
	// signing key from the configured passphrase
	qrKeyIterations = 100000

	// qrKeyContext is the PBKDF2 salt; a fixed context label rather than a
	// random salt because the derivation must be deterministic across
	// replicas sharing one configured secret
	qrKeyContext = "gatepass-qr-signing-v1"
)

// Generator mints and verifies access credentials
type Generator struct {
	qrKey     []byte
	codeBytes int
	step      time.Duration
	digits    int
}

// NewGenerator creates a Generator. signingSecret is the operator-configured
// QR signing passphrase; codeBytes is the entropy of a static code in bytes
// (minimum 16 = 128 bits); step and digits parametrise rolling codes.
func NewGenerator(signingSecret string, codeBytes int, step time.Duration, digits int) (*Generator, error) {
	if signingSecret == "" {
		return nil, fmt.Errorf("codes: QR signing secret must not be empty")
	}
	if codeBytes < 16 {
		return nil, fmt.Errorf("codes: static codes need at least 16 random bytes, got %d", codeBytes)
	}
	if step <= 0 {
		return nil, fmt.Errorf("codes: rolling step must be positive")
	}
	if digits < 6 || digits > 10 {
		return nil, fmt.Errorf("codes: rolling digits must be between 6 and 10, got %d", digits)
	}

	key := pbkdf2.Key([]byte(signingSecret), []byte(qrKeyContext), qrKeyIterations, 32, sha256.New)

	return &Generator{
		qrKey:     key,
		codeBytes: codeBytes,
		step:      step,
		digits:    digits,
	}, nil
}

// NewStaticCode creates a cryptographically random opaque code. Uniqueness is
// enforced by the store's unique constraint on insert; on a collision the
// caller retries with a fresh value.
func (g *Generator) NewStaticCode() (string, error) {
	randomBytes := make([]byte, g.codeBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// Step returns the configured rolling-code time step.
func (g *Generator) Step() time.Duration {
	return g.step
}
