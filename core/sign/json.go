package sign

import (
	"crypto/ed25519"
	"fmt"

	"github.com/crovia/wedge/core/canon"
)

// DigestJSON returns the canonical (RFC 8785) sha256 digest of a JSON body.
func DigestJSON(input []byte) (string, error) {
	return canon.Digest(input)
}

func SignJSON(priv ed25519.PrivateKey, input []byte) (Signature, error) {
	digest, err := DigestJSON(input)
	if err != nil {
		return Signature{}, err
	}
	return SignDigestHex(priv, digest)
}

func VerifyJSON(pub ed25519.PublicKey, sig Signature, input []byte) (bool, error) {
	digest, err := DigestJSON(input)
	if err != nil {
		return false, err
	}
	if sig.SignedDigest == "" {
		return false, fmt.Errorf("missing signed_digest")
	}
	if sig.SignedDigest != digest {
		return false, fmt.Errorf("signed_digest mismatch")
	}
	return VerifyDigestHex(pub, sig)
}
