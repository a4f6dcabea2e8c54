package auth

import (
	"testing"
	"time"
)

func TestVerifyDevToken(t *testing.T) {
	v := NewVerifier("", "")
	p, err := v.Verify("ops:Admin")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Subject != "ops" || p.Role != RoleAdmin {
		t.Fatalf("unexpected principal %+v", p)
	}
	if _, err := v.Verify("nocolon"); err == nil {
		t.Fatalf("expected error for malformed dev token")
	}
}

func TestVerifyHMAC(t *testing.T) {
	v := NewVerifier("hmac", "s3cret-key")
	tok, err := v.Issue("ops", RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Subject != "ops" || p.Role != RoleAdmin {
		t.Fatalf("unexpected principal %+v", p)
	}

	other := NewVerifier("hmac", "another-key")
	if _, err := other.Verify(tok); err == nil {
		t.Fatalf("expected signature mismatch")
	}
	expired, _ := v.Issue("ops", RoleAdmin, -time.Minute)
	if _, err := v.Verify(expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerifyUnknownMode(t *testing.T) {
	if _, err := NewVerifier("jwks", "").Verify("x"); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}
