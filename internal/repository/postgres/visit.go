package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/qrcare/internal/model"
	"github.com/jwalitptl/qrcare/internal/repository"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

type visitRepository struct {
	BaseRepository
}

func NewVisitRepository(base BaseRepository) repository.VisitRepository {
	return &visitRepository{base}
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) error {
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = time.Now().UTC()
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM patients WHERE qr_id = $1)`, visit.QRID); err != nil {
			return apperrors.Storage(err)
		}
		if !exists {
			return apperrors.NotFound("patient", nil)
		}

		query := `
			INSERT INTO visits (qr_id, visit_date, diagnosis, treatment, medicines, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`
		err := tx.GetContext(ctx, &visit.ID, query,
			visit.QRID, visit.VisitDate, visit.Diagnosis, visit.Treatment,
			visit.Medicines, visit.CreatedBy, visit.CreatedAt,
		)
		if err != nil {
			return apperrors.Storage(fmt.Errorf("failed to create visit: %w", err))
		}

		for _, lab := range visit.Attachments {
			lab.QRID = visit.QRID
			lab.VisitID = &visit.ID
			lab.Kind = model.AttachmentVisit
			if err := insertLab(ctx, tx, lab); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *visitRepository) ListByQR(ctx context.Context, qrID string) ([]*model.Visit, error) {
	query := `
		SELECT id, qr_id, visit_date, diagnosis, treatment, medicines, created_by, created_at
		FROM visits
		WHERE qr_id = $1
		ORDER BY visit_date DESC, id DESC
	`
	var visits []*model.Visit
	if err := r.GetDB().SelectContext(ctx, &visits, query, qrID); err != nil {
		return nil, classify(fmt.Errorf("failed to list visits: %w", err), "visit")
	}
	if len(visits) == 0 {
		return visits, nil
	}

	labQuery := `
		SELECT id, qr_id, visit_id, kind, file_name, uploaded_by, uploaded_at
		FROM lab_attachments
		WHERE qr_id = $1 AND visit_id IS NOT NULL
		ORDER BY id
	`
	var labs []*model.LabAttachment
	if err := r.GetDB().SelectContext(ctx, &labs, labQuery, qrID); err != nil {
		return nil, classify(fmt.Errorf("failed to list visit attachments: %w", err), "lab attachment")
	}

	byVisit := make(map[int64]*model.Visit, len(visits))
	for _, v := range visits {
		byVisit[v.ID] = v
	}
	for _, lab := range labs {
		if v, ok := byVisit[*lab.VisitID]; ok {
			v.Attachments = append(v.Attachments, lab)
		}
	}
	return visits, nil
}
