package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientAge(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		birthdate string
		want      *int
	}{
		{"unknown", "", nil},
		{"birthday passed", "1990-06-01", intPtr(34)},
		{"birthday today", "1990-06-15", intPtr(34)},
		{"birthday upcoming", "1990-06-16", intPtr(33)},
		{"future", "2030-01-01", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseDate(tt.birthdate)
			require.NoError(t, err)
			p := &Patient{Birthdate: b}
			assert.Equal(t, tt.want, p.Age(now))
		})
	}
}

func TestPillProgress(t *testing.T) {
	assert.Equal(t, 0, (&Patient{}).PillProgress())
	assert.Equal(t, 90, (&Patient{MonthlyPills: 30}).PillProgress())
	assert.Equal(t, 100, (&Patient{MonthlyPills: 60}).PillProgress())
}

func TestGuestViewOmitsPrivateFields(t *testing.T) {
	p := &Patient{
		QRID:             "Q1",
		Username:         "alice",
		PasswordHash:     "$2a$hash",
		Name:             "Alice",
		Medications:      "metformin",
		ChronicDiseases:  "diabetes",
		EmergencyContact: "Bob 555",
		BloodType:        "O+",
	}

	raw, err := json.Marshal(p.Guest(time.Now()))
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, `"name":"Alice"`)
	assert.Contains(t, body, `"chronic_diseases":"diabetes"`)
	assert.NotContains(t, body, "metformin")
	assert.NotContains(t, body, "alice")
	assert.NotContains(t, body, "hash")
}

func TestQRStatus(t *testing.T) {
	var missing *QRCode
	assert.Equal(t, QRNotFound, missing.Status())
	assert.Equal(t, QRUnassigned, (&QRCode{}).Status())
	assert.Equal(t, QRAssigned, (&QRCode{Assigned: true}).Status())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 29, d.Day())

	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)
}

func intPtr(i int) *int { return &i }
