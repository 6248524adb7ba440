package model

import (
	"io"
	"time"
)

type Visit struct {
	Base
	QRID        string           `db:"qr_id" json:"qr_id"`
	VisitDate   time.Time        `db:"visit_date" json:"visit_date"`
	Diagnosis   string           `db:"diagnosis" json:"diagnosis"`
	Treatment   string           `db:"treatment" json:"treatment"`
	Medicines   string           `db:"medicines" json:"medicines"`
	CreatedBy   string           `db:"created_by" json:"created_by"`
	Attachments []*LabAttachment `db:"-" json:"attachments,omitempty"`
}

// NewVisit is the input to the visit ledger.
type NewVisit struct {
	QRID        string
	VisitDate   *time.Time
	Diagnosis   string
	Treatment   string
	Medicines   string
	CreatedBy   string
	Attachments []*Upload
}

type AttachmentKind string

const (
	AttachmentRegistration AttachmentKind = "registration"
	AttachmentVisit        AttachmentKind = "visit"
)

type LabAttachment struct {
	ID         int64          `db:"id" json:"id"`
	QRID       string         `db:"qr_id" json:"qr_id"`
	VisitID    *int64         `db:"visit_id" json:"visit_id,omitempty"`
	Kind       AttachmentKind `db:"kind" json:"kind"`
	FileName   string         `db:"file_name" json:"file_name"`
	UploadedBy string         `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt time.Time      `db:"uploaded_at" json:"uploaded_at"`
}

// Upload is a file received from a form, before it is stored.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// TimelineEntry is one item of the merged patient history.
type TimelineEntry struct {
	Date  time.Time      `json:"date"`
	Kind  string         `json:"kind"`
	Visit *Visit         `json:"visit,omitempty"`
	Lab   *LabAttachment `json:"lab,omitempty"`
}
