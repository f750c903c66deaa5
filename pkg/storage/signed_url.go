package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates short-lived tokens granting access to
// the raw bytes of one artifact.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token bound to the artifact id.
func (s *SignedURLSigner) Generate(artifactID string) (string, time.Time, error) {
	if artifactID == "" {
		return "", time.Time{}, fmt.Errorf("artifact id required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	token := exp + "." + s.sign(artifactID, exp)
	return token, expiresAt, nil
}

// Verify checks that the token was issued for artifactID and has not expired.
func (s *SignedURLSigner) Verify(artifactID, token string) error {
	exp, signature, ok := strings.Cut(token, ".")
	if !ok || exp == "" || signature == "" {
		return fmt.Errorf("invalid token format")
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp")
	}
	expected := s.sign(artifactID, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid token signature")
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return fmt.Errorf("token expired")
	}
	return nil
}

func (s *SignedURLSigner) sign(artifactID, exp string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(artifactID + "|" + exp))
	return hex.EncodeToString(mac.Sum(nil))
}
