package model

import "time"

type QRCode struct {
	ID        string    `db:"qr_id" json:"qr_id"`
	Assigned  bool      `db:"assigned" json:"assigned"`
	ScanCount int64     `db:"scan_count" json:"scan_count"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QRStatus is the outcome of resolving a token.
type QRStatus string

const (
	QRNotFound   QRStatus = "not_found"
	QRUnassigned QRStatus = "unassigned"
	QRAssigned   QRStatus = "assigned"
)

// Status reports the lifecycle state of the code.
func (q *QRCode) Status() QRStatus {
	if q == nil {
		return QRNotFound
	}
	if q.Assigned {
		return QRAssigned
	}
	return QRUnassigned
}

// ScanEvent is an append-only audit row written on every resolution.
type ScanEvent struct {
	ID        int64     `db:"id" json:"id"`
	QRID      string    `db:"qr_id" json:"qr_id"`
	ScannedBy string    `db:"scanned_by" json:"scanned_by"`
	ScannedAt time.Time `db:"scanned_at" json:"scanned_at"`
}
