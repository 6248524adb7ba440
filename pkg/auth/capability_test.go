package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityRoundTrip(t *testing.T) {
	issuer := NewCapabilityIssuer("s3cret")

	token, err := issuer.Issue(7, "drwho", "BRESCAN-0001", time.Hour)
	require.NoError(t, err)

	claims, err := issuer.Verify(token, "BRESCAN-0001")
	require.NoError(t, err)
	assert.Equal(t, "BRESCAN-0001", claims.QRID)
	assert.Equal(t, "drwho", claims.Username)
	assert.Equal(t, "7", claims.Subject)
}

func TestCapabilityScopedToOneQR(t *testing.T) {
	issuer := NewCapabilityIssuer("s3cret")

	token, err := issuer.Issue(7, "drwho", "BRESCAN-0001", time.Hour)
	require.NoError(t, err)

	_, err = issuer.Verify(token, "BRESCAN-0002")
	assert.ErrorIs(t, err, ErrScopeMismatch)
}

func TestCapabilityExpires(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer := NewCapabilityIssuer("s3cret").WithClock(func() time.Time { return now })

	token, err := issuer.Issue(7, "drwho", "Q1", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = issuer.Verify(token, "Q1")
	assert.ErrorIs(t, err, ErrInvalidCapability)
}

func TestCapabilityRejectsForeignSignature(t *testing.T) {
	token, err := NewCapabilityIssuer("other").Issue(7, "drwho", "Q1", time.Hour)
	require.NoError(t, err)

	_, err = NewCapabilityIssuer("s3cret").Verify(token, "Q1")
	assert.ErrorIs(t, err, ErrInvalidCapability)
}
