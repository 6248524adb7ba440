package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jwalitptl/qrcare/internal/model"
	apperrors "github.com/jwalitptl/qrcare/pkg/errors"
)

type visitRepository struct {
	*db
}

func (r *visitRepository) Create(_ context.Context, visit *model.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[visit.QRID]; !ok {
		return apperrors.NotFound("patient", nil)
	}

	now := time.Now().UTC()
	visit.ID = r.nextID()
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = now
	}
	for _, lab := range visit.Attachments {
		id := visit.ID
		lab.QRID = visit.QRID
		lab.VisitID = &id
		lab.Kind = model.AttachmentVisit
		r.insertLab(lab, now)
	}

	stored := *visit
	stored.Attachments = nil
	r.visits = append(r.visits, &stored)
	return nil
}

func (r *visitRepository) ListByQR(_ context.Context, qrID string) ([]*model.Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.Visit{}
	byID := make(map[int64]*model.Visit)
	for _, v := range r.visits {
		if v.QRID != qrID {
			continue
		}
		c := *v
		out = append(out, &c)
		byID[c.ID] = &c
	}
	for _, l := range r.labs {
		if l.VisitID == nil {
			continue
		}
		if v, ok := byID[*l.VisitID]; ok {
			v.Attachments = append(v.Attachments, cloneLab(l))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].VisitDate.Equal(out[j].VisitDate) {
			return out[i].VisitDate.After(out[j].VisitDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
