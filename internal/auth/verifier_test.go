package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Brownie44l1/formtagger-api/internal/apperr"
)

const testSecret = "test-secret"

func signWith(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testSecret)

	tests := []struct {
		name       string
		token      string
		authorized bool
	}{
		{
			name:       "correct secret and claim",
			token:      signWith(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"key": "PLAINTEXT"}),
			authorized: true,
		},
		{
			name:       "different secret",
			token:      signWith(t, jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{"key": "PLAINTEXT"}),
			authorized: false,
		},
		{
			name:       "wrong claim value",
			token:      signWith(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"key": "plaintext"}),
			authorized: false,
		},
		{
			name:       "missing claim",
			token:      signWith(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "someone"}),
			authorized: false,
		},
		{
			name:       "non-string claim",
			token:      signWith(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"key": 42}),
			authorized: false,
		},
		{
			name:       "other HMAC algorithm",
			token:      signWith(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"key": "PLAINTEXT"}),
			authorized: false,
		},
		{
			name:       "unsigned none algorithm",
			token:      signWith(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"key": "PLAINTEXT"}),
			authorized: false,
		},
		{
			name:       "expired",
			token:      signWith(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"key": "PLAINTEXT", "exp": time.Now().Add(-time.Hour).Unix()}),
			authorized: false,
		},
		{
			name:       "unexpired",
			token:      signWith(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"key": "PLAINTEXT", "exp": time.Now().Add(time.Hour).Unix()}),
			authorized: true,
		},
		{
			name:       "malformed token",
			token:      "not.a.token",
			authorized: false,
		},
		{
			name:       "empty token",
			token:      "",
			authorized: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.token)
			if tt.authorized && err != nil {
				t.Fatalf("Expected authorized, got %v", err)
			}
			if !tt.authorized {
				if err == nil {
					t.Fatal("Expected denial, got nil")
				}
				if apperr.CodeOf(err) != apperr.Unauthorized {
					t.Errorf("Expected code %s, got %s", apperr.Unauthorized, apperr.CodeOf(err))
				}
				if apperr.PublicMessage(err) != "Could not validate credentials" {
					t.Errorf("Unexpected public message %q", apperr.PublicMessage(err))
				}
			}
		})
	}
}

func TestIssueRoundTrip(t *testing.T) {
	token, err := Issue(testSecret, ExpectedClaim)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := NewVerifier(testSecret).Verify(token); err != nil {
		t.Errorf("Expected issued token to verify, got %v", err)
	}
	if err := NewVerifier("another").Verify(token); err == nil {
		t.Error("Expected token to fail under a different secret")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header   string
		expected string
		ok       bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := BearerToken(tt.header)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("BearerToken(%q) = (%q, %v), expected (%q, %v)", tt.header, got, ok, tt.expected, tt.ok)
			}
		})
	}
}
