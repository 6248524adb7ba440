package qr

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository/memory"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
	"github.com/jwalitptl/qrcare/pkg/metrics"
)

func TestResolveLifecycleIsMonotonic(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.QR, metrics.NewNop())
	ctx := context.Background()

	status, err := svc.Resolve(ctx, "Q1", "anonymous")
	require.NoError(t, err)
	assert.Equal(t, model.QRNotFound, status)

	_, err = svc.Seed(ctx, "Q1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		status, err = svc.Resolve(ctx, "Q1", "anonymous")
		require.NoError(t, err)
		assert.Equal(t, model.QRUnassigned, status)
	}

	require.NoError(t, store.Patients.CreateWithAssignment(ctx, &model.Patient{QRID: "Q1", Username: "alice"}, nil))

	for i := 0; i < 3; i++ {
		status, err = svc.Resolve(ctx, "Q1", "patient:alice")
		require.NoError(t, err)
		assert.Equal(t, model.QRAssigned, status)
	}

	qr, err := svc.Get(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), qr.ScanCount)
}

func TestConcurrentResolveCountsEveryScan(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.QR, metrics.NewNop())
	ctx := context.Background()
	_, err := svc.Seed(ctx, "Q1")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Resolve(ctx, "Q1", "anonymous")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	qr, err := svc.Get(ctx, "Q1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), qr.ScanCount)
}

func TestSeedValidatesToken(t *testing.T) {
	svc := NewService(memory.NewStore().QR, metrics.NewNop())

	_, err := svc.Seed(context.Background(), "bad token/")
	assert.ErrorIs(t, err, apperrors.ValidationErr)

	created, err := svc.Seed(context.Background(), "  Q1 ")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Seed(context.Background(), "Q1")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestGenerateContinuesNumbering(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.QR, metrics.NewNop())
	ctx := context.Background()

	for _, id := range []string{"BRESCAN-0007", "BRESCAN-0002", "BRESCAN-XYZ", "OTHER-0100"} {
		_, err := store.QR.Seed(ctx, id)
		require.NoError(t, err)
	}

	ids, err := svc.Generate(ctx, "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"BRESCAN-0008", "BRESCAN-0009", "BRESCAN-0010"}, ids)

	ids, err = svc.Generate(ctx, "OTHER", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"OTHER-0101"}, ids)
}

func TestGenerateValidatesCount(t *testing.T) {
	svc := NewService(memory.NewStore().QR, metrics.NewNop())

	_, err := svc.Generate(context.Background(), "BRESCAN", 0)
	assert.ErrorIs(t, err, apperrors.ValidationErr)
	_, err = svc.Generate(context.Background(), "BRESCAN", MaxBatch+1)
	assert.ErrorIs(t, err, apperrors.ValidationErr)
}

func TestNextIndex(t *testing.T) {
	assert.Equal(t, 1, NextIndex("BRESCAN", nil))
	assert.Equal(t, 10000, NextIndex("BRESCAN", []string{"BRESCAN-9999"}))
	assert.Equal(t, 1, NextIndex("A.B", []string{"AxB-0005"}))
}
