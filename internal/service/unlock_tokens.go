package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const unlockAudience = "imgdrop-unlock"

// UnlockConfig configures unlock token issuance.
type UnlockConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type unlockClaims struct {
	// Fingerprint binds the token to the password hash it was issued for.
	Fingerprint string `json:"pwf"`
	jwt.RegisteredClaims
}

// UnlockTokens issues and verifies the short-lived tokens a viewer receives
// after entering a correct password.
type UnlockTokens struct {
	config UnlockConfig
	now    func() time.Time
}

// NewUnlockTokens constructs the issuer.
func NewUnlockTokens(cfg UnlockConfig) *UnlockTokens {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "imgdrop"
	}
	return &UnlockTokens{config: cfg, now: time.Now}
}

// Issue signs a token granting access to sid.
func (u *UnlockTokens) Issue(sid, passwordHash string) (string, time.Time, error) {
	if u.config.Secret == "" {
		return "", time.Time{}, fmt.Errorf("unlock secret missing")
	}
	issuedAt := u.now().UTC()
	expiresAt := issuedAt.Add(u.config.TTL)
	claims := &unlockClaims{
		Fingerprint: fingerprint(passwordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    u.config.Issuer,
			Subject:   sid,
			Audience:  jwt.ClaimStrings{unlockAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(u.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify reports whether token grants access to sid under its current password.
func (u *UnlockTokens) Verify(token, sid, passwordHash string) bool {
	if token == "" || u.config.Secret == "" {
		return false
	}
	parsed, err := jwt.ParseWithClaims(token, &unlockClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(u.config.Secret), nil
	},
		jwt.WithAudience(unlockAudience),
		jwt.WithIssuer(u.config.Issuer),
		jwt.WithSubject(sid),
		jwt.WithTimeFunc(u.now),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(*unlockClaims)
	if !ok {
		return false
	}
	return claims.Fingerprint == fingerprint(passwordHash)
}

func fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}
