package model

import (
	"time"
)

type Patient struct {
	Base
	QRID             string     `db:"qr_id" json:"qr_id"`
	Username         string     `db:"username" json:"username"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	Name             string     `db:"name" json:"name"`
	Phone            string     `db:"phone" json:"phone"`
	Email            string     `db:"email" json:"email"`
	Birthdate        *time.Time `db:"birthdate" json:"birthdate,omitempty"`
	Gender           string     `db:"gender" json:"gender"`
	BloodType        string     `db:"blood_type" json:"blood_type"`
	MonthlyPills     int        `db:"monthly_pills" json:"monthly_pills"`
	Medications      string     `db:"medications" json:"medications"`
	ChronicDiseases  string     `db:"chronic_diseases" json:"chronic_diseases"`
	EmergencyContact string     `db:"emergency_contact" json:"emergency_contact"`
	OtherInfo        string     `db:"other_info" json:"other_info"`
	PhotoFile        string     `db:"photo_file" json:"photo_file"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Age returns whole years between the birthdate and now, or nil if unknown.
func (p *Patient) Age(now time.Time) *int {
	if p.Birthdate == nil || p.Birthdate.After(now) {
		return nil
	}
	b := *p.Birthdate
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	return &age
}

// PillProgress is the dashboard indicator for the monthly pill supply, 0..100.
func (p *Patient) PillProgress() int {
	v := p.MonthlyPills * 3
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

// Guest returns the public projection of the record.
func (p *Patient) Guest(now time.Time) *GuestView {
	return &GuestView{
		QRID:             p.QRID,
		Name:             p.Name,
		Age:              p.Age(now),
		ChronicDiseases:  p.ChronicDiseases,
		EmergencyContact: p.EmergencyContact,
		BloodType:        p.BloodType,
		PhotoFile:        p.PhotoFile,
	}
}

// GuestView is what unauthenticated scanners see. It deliberately has no
// credentials, medications or visit history.
type GuestView struct {
	QRID             string `json:"qr_id"`
	Name             string `json:"name"`
	Age              *int   `json:"age,omitempty"`
	ChronicDiseases  string `json:"chronic_diseases"`
	EmergencyContact string `json:"emergency_contact"`
	BloodType        string `json:"blood_type"`
	PhotoFile        string `json:"photo_file,omitempty"`
}

// PatientSummary is a row of the operator search listing.
type PatientSummary struct {
	QRID       string `db:"qr_id" json:"qr_id"`
	Name       string `db:"name" json:"name"`
	Phone      string `db:"phone" json:"phone"`
	BloodType  string `db:"blood_type" json:"blood_type"`
	VisitCount int64  `db:"visit_count" json:"visit_count"`
}

// Registration carries everything needed to create a patient for a QR token.
type Registration struct {
	QRID             string
	Username         string
	Password         string
	Name             string
	Phone            string
	Email            string
	Birthdate        *time.Time
	Gender           string
	BloodType        string
	MonthlyPills     int
	Medications      string
	ChronicDiseases  string
	EmergencyContact string
	OtherInfo        string
	Photo            *Upload
	Labs             []*Upload
}

// ClinicalUpdate is the operator/doctor-editable subset of the record.
type ClinicalUpdate struct {
	ChronicDiseases  string
	Medications      string
	EmergencyContact string
	OtherInfo        string
}

// ContactUpdate is the patient-editable subset of the record.
type ContactUpdate struct {
	Phone            string
	Email            string
	EmergencyContact string
}

// PatientFilter narrows operator searches.
type PatientFilter struct {
	Query string
	Limit int
}
