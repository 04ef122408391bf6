// Package auth is the identity gate: it turns a caller-supplied bearer
// credential into a user id or refuses it.
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthenticationFailed is returned for a missing, malformed, expired or
// wrongly signed credential, and for tokens that carry no usable user id.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Verifier checks HS256 access tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses raw and returns the user id found in the "sub" claim, or
// in "userId" for tokens minted by the older account service.
func (v *Verifier) Verify(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrAuthenticationFailed
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAuthenticationFailed
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return 0, ErrAuthenticationFailed
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrAuthenticationFailed
	}
	for _, name := range []string{"sub", "userId"} {
		if id, ok := userIDFromClaim(claims[name]); ok {
			return id, nil
		}
	}
	return 0, ErrAuthenticationFailed
}

// userIDFromClaim accepts the encodings seen in practice: JSON numbers
// decode as float64, some issuers write the id as a string.
func userIDFromClaim(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		if err != nil || n == 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// TokenFromRequest extracts the raw credential from the Authorization
// header.  Browsers cannot set headers on a websocket handshake, so the
// "token" query parameter is accepted as a fallback.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
