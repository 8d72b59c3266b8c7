package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Secret:         "super-secret-key",
		AccessTokenTTL: time.Minute,
		Issuer:         "backend-pos",
		Audience:       "pos-clients",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestIssueAndParse(t *testing.T) {
	svc := newTestService(t)
	fixed := time.Now()
	svc.WithNow(func() time.Time { return fixed })

	token, expiresAt, err := svc.Issue("user-id", "ADMIN")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.Equal(fixed.Add(time.Minute)) {
		t.Fatalf("unexpected expiry: %v", expiresAt)
	}
	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-id" || claims.Role != "ADMIN" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t)
	issuedAt := time.Now()
	svc.WithNow(func() time.Time { return issuedAt })
	token, _, err := svc.Issue("user-id", "STAFF")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.WithNow(func() time.Time { return issuedAt.Add(2 * time.Minute) })
	if _, err := svc.Parse(token); err == nil {
		t.Fatal("expected expired token error")
	}
}

func TestParseRejectsForeignSecretAndAlgorithm(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService(Config{Secret: "another-secret", Issuer: "backend-pos", Audience: "pos-clients"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	token, _, err := other.Issue("user-id", "ADMIN")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Parse(token); err == nil {
		t.Fatal("expected signature error")
	}

	now := time.Now()
	built, err := jwt.NewBuilder().
		Subject("user-id").
		Issuer(svc.issuer).
		Audience([]string{svc.audience}).
		IssuedAt(now).
		Expiration(now.Add(time.Minute)).
		Claim(roleClaim, "ADMIN").
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS384, svc.secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.Parse(string(signed)); err == nil {
		t.Fatal("expected algorithm mismatch error")
	}
	if _, err := svc.Parse("not-a-token"); err == nil {
		t.Fatal("expected malformed token error")
	}
}
