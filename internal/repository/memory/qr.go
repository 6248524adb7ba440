package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

type qrRepository struct {
	*db
}

func (r *qrRepository) Seed(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.qrCodes[id]; ok {
		return false, nil
	}
	r.qrCodes[id] = &model.QRCode{ID: id, CreatedAt: time.Now().UTC()}
	return true, nil
}

func (r *qrRepository) Get(_ context.Context, id string) (*model.QRCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	qr, ok := r.qrCodes[id]
	if !ok {
		return nil, apperrors.NotFound("qr code", nil)
	}
	c := *qr
	return &c, nil
}

func (r *qrRepository) RecordScan(_ context.Context, id, scannedBy string, at time.Time) (*model.QRCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	qr, ok := r.qrCodes[id]
	if !ok {
		return nil, apperrors.NotFound("qr code", nil)
	}
	qr.ScanCount++
	r.scanEvents = append(r.scanEvents, model.ScanEvent{
		ID:        r.nextID(),
		QRID:      id,
		ScannedBy: scannedBy,
		ScannedAt: at,
	})
	c := *qr
	return &c, nil
}

func (r *qrRepository) ListIDsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id := range r.qrCodes {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
