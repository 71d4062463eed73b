package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a session token is malformed, has a bad
	// signature, or fails claim validation.
	ErrInvalidToken = errors.New("invalid token")
)

// SessionClaims holds JWT claims for a signed session token. The session ID
// travels in the sid claim; Subject carries the user ID.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	DeviceID  string `json:"did,omitempty"`
}

// TokenProvider issues and resolves signed session tokens using HS256. The
// authentication surface hands the token to clients; the session manager
// resolves it back to a session ID on validation.
type TokenProvider struct {
	secret []byte
	issuer string
}

// NewTokenProvider returns a TokenProvider signing with the given secret.
// issuer is set on claims and validated on resolve.
func NewTokenProvider(secret, issuer string) *TokenProvider {
	return &TokenProvider{secret: []byte(secret), issuer: issuer}
}

// Issue mints a session token for the given session, user, and device bound to
// expiresAt. Returns the signed token string.
func (p *TokenProvider) Issue(sessionID, userID, deviceID string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		DeviceID:  deviceID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Resolve parses and verifies a session token and returns its claims.
// Expired or otherwise invalid tokens return ErrInvalidToken; the caller
// still consults live session state, so token validity alone never admits.
func (p *TokenProvider) Resolve(token string) (*SessionClaims, error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
