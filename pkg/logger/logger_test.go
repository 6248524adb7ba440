package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(Config{Level: "debug", Output: &buf})

	l.Info().Str("qr_id", "Q1").Msg("registered")

	assert.Contains(t, buf.String(), `"qr_id":"Q1"`)
	assert.Contains(t, buf.String(), `"service":"qrcare"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "nonsense", Output: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestFromContextCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "info", Output: &buf})

	ctx := WithRequestID(context.Background(), "req-123")
	FromContext(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestFromContextWithoutLogger(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}
