package server

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/creastat/assistant"
)

const (
	// stateTTL bounds how long a Drive connect link stays usable.
	stateTTL      = 10 * time.Minute
	stateAudience = "drive-connect"
)

var errInvalidState = errors.New("invalid oauth state")

// stateSigner issues and checks OAuth state values. A state is an HS256
// token whose subject is the tenant slug and whose id is a random nonce.
type stateSigner struct {
	secret []byte
	now    func() time.Time
}

// newStateSigner uses secret, or a random per-process key when secret is empty.
func newStateSigner(secret []byte) *stateSigner {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	return &stateSigner{secret: secret, now: time.Now}
}

func (s *stateSigner) Sign(slug string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   slug,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the slug carried by state.
func (s *stateSigner) Verify(state string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", errors.Join(errInvalidState, err)
	}
	if claims.ID == "" || !assistant.ValidSlug(claims.Subject) {
		return "", errInvalidState
	}
	return claims.Subject, nil
}
