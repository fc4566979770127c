package stream

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds how long an interrupted transfer stays
// resumable.
const DefaultTokenTTL = 24 * time.Hour

// resumeClaims is the signed content of a resume token. The offset and
// sequence pin the exact position a producer may continue from.
type resumeClaims struct {
	TenantID     string `json:"tid"`
	StreamID     string `json:"sid"`
	Offset       int64  `json:"ofs"`
	LastSequence int64  `json:"seq"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HMAC-signed resume tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// ResumePosition is the verified content of a resume token.
type ResumePosition struct {
	TenantID     string
	StreamID     string
	Offset       int64
	LastSequence int64
}

// NewTokenIssuer creates an issuer. A zero ttl uses DefaultTokenTTL.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl, clock: time.Now}
}

// WithClock overrides the time source for expiry tests.
func (t *TokenIssuer) WithClock(clock func() time.Time) *TokenIssuer {
	t.clock = clock
	return t
}

// Issue mints a token for the stream's current position.
func (t *TokenIssuer) Issue(state *State) (string, error) {
	now := t.clock()
	claims := resumeClaims{
		TenantID:     state.TenantID,
		StreamID:     state.StreamID,
		Offset:       state.Offset,
		LastSequence: state.LastSequence,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a resume token.
func (t *TokenIssuer) Verify(token string) (*ResumePosition, error) {
	var claims resumeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock),
	)
	if err != nil || !parsed.Valid {
		return nil, errors.New("resume token rejected")
	}
	if claims.StreamID == "" {
		return nil, errors.New("resume token missing stream id")
	}
	return &ResumePosition{
		TenantID:     claims.TenantID,
		StreamID:     claims.StreamID,
		Offset:       claims.Offset,
		LastSequence: claims.LastSequence,
	}, nil
}
