package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCapability = errors.New("invalid capability")
	ErrScopeMismatch     = errors.New("capability does not cover qr")
)

// CapabilityClaims bind a doctor to exactly one QR token.
type CapabilityClaims struct {
	QRID     string `json:"qr"`
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// CapabilityIssuer signs and verifies QR-scoped doctor capabilities.
type CapabilityIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewCapabilityIssuer(secret string) *CapabilityIssuer {
	return &CapabilityIssuer{
		secret: []byte(secret),
		issuer: "qrcare",
		now:    time.Now,
	}
}

// WithClock overrides the time source used for issuing and verifying.
func (i *CapabilityIssuer) WithClock(now func() time.Time) *CapabilityIssuer {
	i.now = now
	return i
}

func (i *CapabilityIssuer) Issue(doctorID int64, username, qrID string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := CapabilityClaims{
		QRID:     qrID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(doctorID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign capability: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and that the capability covers qrID.
func (i *CapabilityIssuer) Verify(tokenString, qrID string) (*CapabilityClaims, error) {
	claims := &CapabilityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapability, err)
	}

	if claims.QRID != qrID {
		return nil, ErrScopeMismatch
	}
	return claims, nil
}
