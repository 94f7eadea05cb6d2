package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller identity. The user id travels in the subject.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 bearer tokens issued by the identity
// provider that fronts this service.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for userID. Used by tooling and tests.
func (t *Tokens) Issue(userID, name, role string) (string, error) {
	now := t.now()
	claims := Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the identity.
func (t *Tokens) Parse(token string) (AuthContext, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, t.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return AuthContext{}, ErrInvalidToken
	}
	return AuthContext{UserID: claims.Subject, DisplayName: claims.Name, Role: claims.Role}, nil
}

func (t *Tokens) key(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return t.secret, nil
}
