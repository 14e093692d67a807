package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	a, err := New("secret", WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, expires, err := a.GenerateToken(" alice ", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiration, got %v", expires)
	}
	claims, err := a.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "alice" || claims.Issuer != "test-issuer" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if id, err := a.Identity(token); err != nil || id != "alice" {
		t.Fatalf("Identity = %q, %v", id, err)
	}
}

func TestRejectsForeignAndExpiredTokens(t *testing.T) {
	a, _ := New("secret")
	other, _ := New("other-secret")
	token, _, err := other.GenerateToken("alice", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	stale, _ := New("secret", WithNow(func() time.Time { return past }))
	token, _, err = stale.GenerateToken("alice", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice", Issuer: defaultIssuer})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := a.ParseAndValidate(unsigned); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for unsigned token, got %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := BearerToken(tc.header)
		if got != tc.token || ok != tc.ok {
			t.Fatalf("BearerToken(%q) = %q, %v", tc.header, got, ok)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithUser(context.Background(), " bob ")
	if id, ok := UserIDFromContext(ctx); !ok || id != "bob" {
		t.Fatalf("UserIDFromContext = %q, %v", id, ok)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
	ctx = ContextWithToken(ctx, "tok")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "tok" {
		t.Fatalf("TokenFromContext = %q, %v", tok, ok)
	}
}
