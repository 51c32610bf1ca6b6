package testutils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTSecret is a dedicated test-only secret for signing JWTs.
// This must never be used in production.
const TestJWTSecret = "test-jwt-secret-that-is-32-chars-long"

// IssueJWT signs an HS256 token for subject that expires after ttl. A
// non-positive ttl produces a token without an exp claim.
func IssueJWT(t testing.TB, subject string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("sign test JWT: %v", err)
	}
	return signed
}

// BearerSubject parses a "Bearer <jwt>" header issued by IssueJWT and
// returns its subject. ok is false for missing, foreign or expired tokens.
func BearerSubject(header string) (subject string, ok bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	tok, err := jwt.Parse(header[len(prefix):], func(*jwt.Token) (any, error) {
		return []byte(TestJWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", false
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
