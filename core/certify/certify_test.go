package certify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/crovia/wedge/core/sign"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func issueTestCertificate(t *testing.T, issuedAt, expiresAt time.Time) ([]byte, sign.KeyPair) {
	t.Helper()
	kp, err := sign.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	raw, err := Issue("CFIC Authority", "example/repo", issuedAt, expiresAt, kp.Private)
	if err != nil {
		t.Fatalf("issue certificate: %v", err)
	}
	return raw, kp
}

func TestValidateAcceptsWellFormedCertificate(t *testing.T) {
	raw, _ := issueTestCertificate(t, testNow.AddDate(0, -1, 0), testNow.AddDate(1, 0, 0))
	cert := Validate(raw, Options{Now: testNow})
	if !cert.Valid {
		t.Fatalf("expected valid certificate, reason=%s", cert.Reason)
	}
	if cert.Issuer != "CFIC Authority" || cert.Subject != "example/repo" {
		t.Fatalf("unexpected metadata: %+v", cert)
	}
}

func TestValidateMalformedShortCircuits(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"schema":"crovia.cfic.v1"}`),
		[]byte(`{"schema":"other.schema","certificate":{},"signature":{},"signer_public_key":"x"}`),
	}
	for i, raw := range cases {
		cert := Validate(raw, Options{Now: testNow})
		if cert.Valid {
			t.Fatalf("case %d: expected invalid", i)
		}
		if cert.Reason != ReasonMalformed {
			t.Fatalf("case %d: expected malformed, got %s", i, cert.Reason)
		}
		if cert.Issuer != "" || cert.Subject != "" {
			t.Fatalf("case %d: invalid certificate must not carry metadata", i)
		}
	}
}

func TestValidateTemporalWindow(t *testing.T) {
	expired, _ := issueTestCertificate(t, testNow.AddDate(-2, 0, 0), testNow.AddDate(-1, 0, 0))
	cert := Validate(expired, Options{Now: testNow})
	if cert.Valid || cert.Reason != ReasonExpired {
		t.Fatalf("expected expired, got valid=%v reason=%s", cert.Valid, cert.Reason)
	}

	future, _ := issueTestCertificate(t, testNow.AddDate(1, 0, 0), testNow.AddDate(2, 0, 0))
	cert = Validate(future, Options{Now: testNow})
	if cert.Valid || cert.Reason != ReasonNotYetValid {
		t.Fatalf("expected not_yet_valid, got valid=%v reason=%s", cert.Valid, cert.Reason)
	}
}

func TestValidateTamperedBodyFailsSignature(t *testing.T) {
	raw, _ := issueTestCertificate(t, testNow.AddDate(0, -1, 0), testNow.AddDate(1, 0, 0))
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var certBody map[string]any
	if err := json.Unmarshal(doc["certificate"], &certBody); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	certBody["subject"] = "attacker/repo"
	tampered, err := json.Marshal(certBody)
	if err != nil {
		t.Fatalf("marshal tampered body: %v", err)
	}
	doc["certificate"] = tampered
	rawTampered, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal tampered doc: %v", err)
	}

	cert := Validate(rawTampered, Options{Now: testNow})
	if cert.Valid || cert.Reason != ReasonSignatureInvalid {
		t.Fatalf("expected signature_invalid, got valid=%v reason=%s", cert.Valid, cert.Reason)
	}
}

func TestValidateTrustedKeyOverridesEmbedded(t *testing.T) {
	raw, _ := issueTestCertificate(t, testNow.AddDate(0, -1, 0), testNow.AddDate(1, 0, 0))
	other, err := sign.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}
	cert := Validate(raw, Options{Now: testNow, TrustedKey: other.Public})
	if cert.Valid || cert.Reason != ReasonSignatureInvalid {
		t.Fatalf("expected signature_invalid under pinned foreign key, got valid=%v reason=%s", cert.Valid, cert.Reason)
	}
}
