package utils // package utils provides helper functions for staff token handling

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NewStaffToken builds and signs an HS256 JWT for a staff member.  Token
// issuing normally belongs to the platform's auth service; this helper
// exists for local tooling and tests that need a valid token against the
// same secret the middleware verifies with.  The JWT carries the standard
// claims: subject (sub), role, expiration (exp) and issued at (iat).
func NewStaffToken(secret string, staffID uint64, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  staffID,
		"role": "STAFF",
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
