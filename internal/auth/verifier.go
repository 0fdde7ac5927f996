// Package auth verifies bearer credentials presented to the inference endpoint.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Brownie44l1/formtagger-api/internal/apperr"
)

const (
	// Algorithm is the only signing method accepted.
	Algorithm = "HS256"
	// ClaimName is the claim compared against the expected value.
	ClaimName = "key"
	// ExpectedClaim is the value the "key" claim must carry.
	ExpectedClaim = "PLAINTEXT"
)

var errClaimMismatch = errors.New("claim mismatch")

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret   []byte
	expected string
	parser   *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		expected: ExpectedClaim,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{Algorithm})),
	}
}

// Verify returns nil when the token is authorized. Every failure, whether a
// malformed token, a bad signature or a wrong claim, is the same Unauthorized
// error; the cause is kept for logs only.
func (v *Verifier) Verify(token string) error {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.keyFunc); err != nil {
		return apperr.NewUnauthorized(err)
	}

	value, ok := claims[ClaimName].(string)
	if !ok || value != v.expected {
		return apperr.NewUnauthorized(errClaimMismatch)
	}

	return nil
}

func (v *Verifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// Issue signs a token carrying the given "key" claim.
func Issue(secret, key string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{ClaimName: key})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme match is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, credentials, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return "", false
	}
	return credentials, true
}
