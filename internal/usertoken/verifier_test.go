package usertoken

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewVerifierRequiresLongSecret(t *testing.T) {
	if _, err := NewVerifier(Config{Secret: "short"}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := v.Issue("user-a", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	subject, err := v.VerifySubject(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "user-a" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestVerifyRejectsInvalidTokens(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: testSecret, Issuer: "iss", Audience: "aud"})
	other, _ := NewVerifier(Config{Secret: testSecret, Issuer: "iss", Audience: "someone-else"})
	wrongKey, _ := NewVerifier(Config{Secret: testSecret + "x", Issuer: "iss", Audience: "aud"})

	expired, _ := v.Issue("user-a", time.Now().Add(-3*time.Hour))
	wrongAudience, _ := other.Issue("user-a", time.Now())
	wrongSecret, _ := wrongKey.Issue("user-a", time.Now())
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "iss",
		Audience:  jwt.ClaimStrings{"aud"},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testSecret))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "user-a",
		Issuer:   "iss",
		Audience: jwt.ClaimStrings{"aud"},
	}).SignedString([]byte(testSecret))

	cases := map[string]string{
		"expired":        expired,
		"wrong audience": wrongAudience,
		"wrong secret":   wrongSecret,
		"no subject":     noSubject,
		"no expiry":      noExpiry,
		"garbage":        "not-a-token",
	}
	for name, token := range cases {
		if _, err := v.VerifySubject(token); err == nil {
			t.Fatalf("%s: expected verification to fail", name)
		}
	}
	if _, err := v.VerifySubject(noSubject); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := BearerToken(req); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	req.Header.Set("Authorization", "bearer abc.def")
	token, err := BearerToken(req)
	if err != nil || token != "abc.def" {
		t.Fatalf("unexpected token %q / %v", token, err)
	}
	req.Header.Set("Authorization", "Basic abc")
	if _, err := BearerToken(req); err == nil {
		t.Fatalf("expected non-bearer scheme to fail")
	}
}
