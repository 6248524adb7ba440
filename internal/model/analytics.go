package model

// Analytics is the operator rollup. Keys match the /api/analytics document.
type Analytics struct {
	TotalPatients         int64            `json:"total_patients"`
	TotalVisits           int64            `json:"total_visits"`
	TotalScans            int64            `json:"total_scans"`
	TotalOperators        int64            `json:"total_operators"`
	TotalDoctors          int64            `json:"total_doctors"`
	RecentVisits          int64            `json:"recent_visits"`
	MonthlyTrends         []MonthCount     `json:"monthly_trends"`
	TopOperators          []OperatorCount  `json:"top_operators"`
	GenderDistribution    []GenderCount    `json:"gender_distribution"`
	BloodTypeDistribution []BloodTypeCount `json:"blood_type_distribution"`
	TopQRCodes            []QRScanCount    `json:"top_qr_codes"`
	RecentPatients        []RecentPatient  `json:"recent_patients"`
}

type MonthCount struct {
	Month string `db:"month" json:"month"`
	Count int64  `db:"count" json:"count"`
}

type OperatorCount struct {
	Operator string `db:"operator" json:"operator"`
	Visits   int64  `db:"visits" json:"visits"`
}

type GenderCount struct {
	Gender string `db:"gender" json:"gender"`
	Count  int64  `db:"count" json:"count"`
}

type BloodTypeCount struct {
	Type  string `db:"type" json:"type"`
	Count int64  `db:"count" json:"count"`
}

type QRScanCount struct {
	QRID  string `db:"qr_id" json:"qr_id"`
	Scans int64  `db:"scans" json:"scans"`
}

type RecentPatient struct {
	Name   string `db:"name" json:"name"`
	QRID   string `db:"qr_id" json:"qr_id"`
	Phone  string `db:"phone" json:"phone"`
	Visits int64  `db:"visits" json:"visits"`
}

// QuickTotals feed the operator dashboard header.
type QuickTotals struct {
	Patients int64 `db:"patients" json:"patients"`
	Scans    int64 `db:"scans" json:"scans"`
	Visits   int64 `db:"visits" json:"visits"`
}
