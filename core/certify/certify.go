// Package certify validates CFIC certificate artifacts. Validation steps run
// in a fixed order and short-circuit on the first failure: structural parse,
// temporal window, then signature over the certificate body. An absent
// certificate is a different input than an invalid one; callers keep the two
// apart because present-but-untrustworthy is evidence of compromise.
package certify

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	observe "github.com/crovia/wedge/core/schema/v1/observe"
	"github.com/crovia/wedge/core/schema/validate"
	"github.com/crovia/wedge/core/sign"
)

const (
	ReasonMalformed        = "malformed"
	ReasonExpired          = "expired"
	ReasonNotYetValid      = "not_yet_valid"
	ReasonSignatureInvalid = "signature_invalid"
)

type document struct {
	Schema          string          `json:"schema"`
	Certificate     json.RawMessage `json:"certificate"`
	Signature       sign.Signature  `json:"signature"`
	SignerPublicKey string          `json:"signer_public_key"`
}

type body struct {
	Issuer    string `json:"issuer"`
	Subject   string `json:"subject"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

// Options control signature trust. When TrustedKey is set it overrides the
// key embedded in the certificate document; otherwise the embedded key is
// used and key trust stays an external concern.
type Options struct {
	Now        time.Time
	TrustedKey ed25519.PublicKey
}

// Validate parses and checks raw certificate bytes. It always returns a
// Certificate value; an invalid one carries only the failure reason tag.
func Validate(raw []byte, opts Options) observe.Certificate {
	now := opts.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := validate.Certificate(raw); err != nil {
		return observe.Certificate{Valid: false, Reason: ReasonMalformed}
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return observe.Certificate{Valid: false, Reason: ReasonMalformed}
	}
	var fields body
	if err := json.Unmarshal(doc.Certificate, &fields); err != nil {
		return observe.Certificate{Valid: false, Reason: ReasonMalformed}
	}
	issuedAt, err := time.Parse(time.RFC3339, fields.IssuedAt)
	if err != nil {
		return observe.Certificate{Valid: false, Reason: ReasonMalformed}
	}
	expiresAt, err := time.Parse(time.RFC3339, fields.ExpiresAt)
	if err != nil {
		return observe.Certificate{Valid: false, Reason: ReasonMalformed}
	}

	if now.Before(issuedAt) {
		return observe.Certificate{Valid: false, Reason: ReasonNotYetValid}
	}
	if now.After(expiresAt) {
		return observe.Certificate{Valid: false, Reason: ReasonExpired}
	}

	publicKey := opts.TrustedKey
	if publicKey == nil {
		parsed, parseErr := sign.ParsePublicKeyBase64(doc.SignerPublicKey)
		if parseErr != nil {
			return observe.Certificate{Valid: false, Reason: ReasonSignatureInvalid}
		}
		publicKey = parsed
	}
	ok, err := sign.VerifyJSON(publicKey, doc.Signature, doc.Certificate)
	if err != nil || !ok {
		return observe.Certificate{Valid: false, Reason: ReasonSignatureInvalid}
	}

	return observe.Certificate{
		Valid:     true,
		Issuer:    fields.Issuer,
		Subject:   fields.Subject,
		IssuedAt:  issuedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
}

// Issue builds a signed certificate document. Kept alongside Validate so the
// two sides of the format evolve together; wedge itself only issues
// certificates in tests and fixtures.
func Issue(issuer, subject string, issuedAt, expiresAt time.Time, key ed25519.PrivateKey) ([]byte, error) {
	certBody := body{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  issuedAt.UTC().Format(time.RFC3339),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}
	bodyJSON, err := json.Marshal(certBody)
	if err != nil {
		return nil, fmt.Errorf("marshal certificate body: %w", err)
	}
	signature, err := sign.SignJSON(key, bodyJSON)
	if err != nil {
		return nil, fmt.Errorf("sign certificate body: %w", err)
	}
	publicKey := key.Public().(ed25519.PublicKey)
	doc := map[string]any{
		"schema":            "crovia.cfic.v1",
		"certificate":       json.RawMessage(bodyJSON),
		"signature":         signature,
		"signer_public_key": base64.StdEncoding.EncodeToString(publicKey),
	}
	return json.MarshalIndent(doc, "", "  ")
}
