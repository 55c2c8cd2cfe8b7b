package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/theapemachine/a2a-core/pkg/errors"
)

/*
Verifier validates bearer tokens presented by clients and resolves them to
a principal. Transports run every Authorization header through it; the
handler decides which operations actually require a principal.
*/
type Verifier struct {
	signingKey []byte
	limiter    *RateLimiter
}

func NewVerifier(signingKey []byte) *Verifier {
	return &Verifier{
		signingKey: signingKey,
		limiter:    NewRateLimiter(100, time.Minute),
	}
}

func (verifier *Verifier) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return verifier.signingKey, nil
}

/*
Verify checks the Authorization header and returns the subject claim of the
token it carries.
*/
func (verifier *Verifier) Verify(authHeader string) (string, *errors.RpcError) {
	if !verifier.limiter.Allow() {
		return "", errors.ErrUnauthorized.WithMessagef("rate limit exceeded")
	}

	if authHeader == "" {
		return "", errors.ErrUnauthorized.WithMessagef("missing authorization header")
	}

	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenStr, verifier.keyFunc)

	if err != nil || !token.Valid {
		return "", errors.ErrUnauthorized.WithMessagef("invalid token")
	}

	subject, err := token.Claims.GetSubject()

	if err != nil || subject == "" {
		return "", errors.ErrUnauthorized.WithMessagef("token carries no subject")
	}

	return subject, nil
}

// IssueToken mints a token for principal, mainly for tests and tooling.
func (verifier *Verifier) IssueToken(principal string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": principal,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})

	return token.SignedString(verifier.signingKey)
}
