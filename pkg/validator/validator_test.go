package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type form struct {
	QR        string `form:"qr_id" validate:"required,qrtoken"`
	BloodType string `form:"blood_type" validate:"bloodtype"`
	Birthdate string `form:"birthdate" validate:"isodate"`
}

func newValidate(t *testing.T) *validator.Validate {
	v := validator.New()
	require.NoError(t, Register(v))
	return v
}

func TestCustomTags(t *testing.T) {
	v := newValidate(t)

	assert.NoError(t, v.Struct(form{QR: "BRESCAN-0001", BloodType: "ab+", Birthdate: "1990-04-12"}))
	assert.NoError(t, v.Struct(form{QR: "Q1"}))

	err := v.Struct(form{QR: "../etc/passwd"})
	assert.Equal(t, "qr_id is not a valid QR code", Describe(err))

	err = v.Struct(form{QR: "Q1", BloodType: "Z"})
	assert.Equal(t, "blood_type must be one of A+, A-, B+, B-, AB+, AB-, O+, O-", Describe(err))

	err = v.Struct(form{QR: "Q1", Birthdate: "12/04/1990"})
	assert.Equal(t, "birthdate must be a date in YYYY-MM-DD format", Describe(err))

	err = v.Struct(form{})
	assert.Equal(t, "qr_id is required", Describe(err))
}

func TestDescribeUnknownError(t *testing.T) {
	assert.Equal(t, "invalid form submission", Describe(errors.New("boom")))
}

func TestIsQRToken(t *testing.T) {
	assert.True(t, IsQRToken("BRESCAN-0001"))
	assert.False(t, IsQRToken(""))
	assert.False(t, IsQRToken("a/b"))
	assert.False(t, IsQRToken("a b"))
}
