package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
)

type qrRepository struct {
	BaseRepository
}

func NewQRRepository(base BaseRepository) repository.QRRepository {
	return &qrRepository{base}
}

func (r *qrRepository) Seed(ctx context.Context, id string) (bool, error) {
	query := `INSERT INTO qr_codes (qr_id) VALUES ($1) ON CONFLICT (qr_id) DO NOTHING`
	res, err := r.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return false, classify(fmt.Errorf("failed to seed qr code: %w", err), "qr code")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err, "qr code")
	}
	return n == 1, nil
}

func (r *qrRepository) Get(ctx context.Context, id string) (*model.QRCode, error) {
	query := `SELECT qr_id, assigned, scan_count, created_at FROM qr_codes WHERE qr_id = $1`
	var qr model.QRCode
	if err := r.GetDB().GetContext(ctx, &qr, query, id); err != nil {
		return nil, classify(err, "qr code")
	}
	return &qr, nil
}

func (r *qrRepository) RecordScan(ctx context.Context, id, scannedBy string, at time.Time) (*model.QRCode, error) {
	var qr model.QRCode
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE qr_codes SET scan_count = scan_count + 1
			WHERE qr_id = $1
			RETURNING qr_id, assigned, scan_count, created_at
		`
		if err := tx.GetContext(ctx, &qr, query, id); err != nil {
			return classify(err, "qr code")
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO scan_events (qr_id, scanned_by, scanned_at) VALUES ($1, $2, $3)`,
			id, scannedBy, at,
		)
		if err != nil {
			return classify(fmt.Errorf("failed to record scan event: %w", err), "scan event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

func (r *qrRepository) ListIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT qr_id FROM qr_codes WHERE qr_id LIKE $1 ESCAPE '\' ORDER BY qr_id`
	var ids []string
	if err := r.GetDB().SelectContext(ctx, &ids, query, escapeLike(prefix)+"%"); err != nil {
		return nil, classify(err, "qr code")
	}
	return ids, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
