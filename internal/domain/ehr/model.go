// Package ehr holds the patient-maintained health record: medical records
// with optional files, vital signs, medications, immunizations and allergies.
package ehr

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

// -- Medical Record --

type RecordType string

const (
	RecordLabResult    RecordType = "lab_result"
	RecordImaging      RecordType = "imaging"
	RecordPrescription RecordType = "prescription"
	RecordConsultation RecordType = "consultation"
	RecordProcedure    RecordType = "procedure"
	RecordVaccination  RecordType = "vaccination"
	RecordOther        RecordType = "other"
)

var validRecordTypes = map[RecordType]bool{
	RecordLabResult: true, RecordImaging: true, RecordPrescription: true, RecordConsultation: true,
	RecordProcedure: true, RecordVaccination: true, RecordOther: true,
}

type MedicalRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"-"`
	RecordType  RecordType `db:"record_type" json:"record_type"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Date        time.Time  `db:"date" json:"date"`
	Provider    string     `db:"provider" json:"provider"`
	FileKey     string     `db:"file_key" json:"-"`
	Notes       string     `db:"notes" json:"notes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	FileURL     *string    `db:"-" json:"file_url"`
}

func (r *MedicalRecord) MarshalJSON() ([]byte, error) {
	type alias MedicalRecord
	return json.Marshal(struct {
		*alias
		Date string `json:"date"`
	}{(*alias)(r), r.Date.Format(DateLayout)})
}

// -- Vital Signs --

type VitalSigns struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	PatientID              uuid.UUID `db:"patient_id" json:"-"`
	Date                   time.Time `db:"date" json:"date"`
	BloodPressureSystolic  *int      `db:"blood_pressure_systolic" json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int      `db:"blood_pressure_diastolic" json:"blood_pressure_diastolic"`
	HeartRate              *int      `db:"heart_rate" json:"heart_rate"`
	Temperature            *float64  `db:"temperature" json:"temperature"`
	RespiratoryRate        *int      `db:"respiratory_rate" json:"respiratory_rate"`
	OxygenSaturation       *float64  `db:"oxygen_saturation" json:"oxygen_saturation"`
	Weight                 *float64  `db:"weight" json:"weight"`
	Height                 *float64  `db:"height" json:"height"`
	Notes                  string    `db:"notes" json:"notes"`
	RecordedBy             string    `db:"recorded_by" json:"recorded_by"`
}

// BMI is weight (kg) over height (cm) squared, rounded to one decimal.
func (v *VitalSigns) BMI() *float64 {
	if v.Height == nil || v.Weight == nil || *v.Height <= 0 || *v.Weight <= 0 {
		return nil
	}
	m := *v.Height / 100
	bmi := math.Round(*v.Weight/(m*m)*10) / 10
	return &bmi
}

func (v *VitalSigns) MarshalJSON() ([]byte, error) {
	type alias VitalSigns
	return json.Marshal(struct {
		*alias
		BMI *float64 `json:"bmi"`
	}{(*alias)(v), v.BMI()})
}

// -- Medication --

type MedicationStatus string

const (
	MedicationActive       MedicationStatus = "active"
	MedicationDiscontinued MedicationStatus = "discontinued"
	MedicationCompleted    MedicationStatus = "completed"
)

var validMedicationStatuses = map[MedicationStatus]bool{
	MedicationActive: true, MedicationDiscontinued: true, MedicationCompleted: true,
}

type Medication struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	PatientID    uuid.UUID        `db:"patient_id" json:"-"`
	Name         string           `db:"name" json:"name"`
	Dosage       string           `db:"dosage" json:"dosage"`
	Frequency    string           `db:"frequency" json:"frequency"`
	StartDate    time.Time        `db:"start_date" json:"start_date"`
	EndDate      *time.Time       `db:"end_date" json:"end_date"`
	PrescribedBy string           `db:"prescribed_by" json:"prescribed_by"`
	Status       MedicationStatus `db:"status" json:"status"`
	SideEffects  string           `db:"side_effects" json:"side_effects"`
	Notes        string           `db:"notes" json:"notes"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

func (m *Medication) MarshalJSON() ([]byte, error) {
	type alias Medication
	return json.Marshal(struct {
		*alias
		StartDate string  `json:"start_date"`
		EndDate   *string `json:"end_date"`
	}{(*alias)(m), m.StartDate.Format(DateLayout), formatDate(m.EndDate)})
}

// -- Immunization --

type Immunization struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"-"`
	VaccineName      string     `db:"vaccine_name" json:"vaccine_name"`
	DateAdministered time.Time  `db:"date_administered" json:"date_administered"`
	NextDueDate      *time.Time `db:"next_due_date" json:"next_due_date"`
	AdministeredBy   string     `db:"administered_by" json:"administered_by"`
	LotNumber        string     `db:"lot_number" json:"lot_number"`
	Notes            string     `db:"notes" json:"notes"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

func (im *Immunization) MarshalJSON() ([]byte, error) {
	type alias Immunization
	return json.Marshal(struct {
		*alias
		DateAdministered string  `json:"date_administered"`
		NextDueDate      *string `json:"next_due_date"`
	}{(*alias)(im), im.DateAdministered.Format(DateLayout), formatDate(im.NextDueDate)})
}

// -- Allergy --

type Severity string

const (
	SeverityMild            Severity = "mild"
	SeverityModerate        Severity = "moderate"
	SeveritySevere          Severity = "severe"
	SeverityLifeThreatening Severity = "life_threatening"
)

var validSeverities = map[Severity]bool{
	SeverityMild: true, SeverityModerate: true, SeveritySevere: true, SeverityLifeThreatening: true,
}

type Allergy struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"-"`
	Allergen  string     `db:"allergen" json:"allergen"`
	Reaction  string     `db:"reaction" json:"reaction"`
	Severity  Severity   `db:"severity" json:"severity"`
	OnsetDate *time.Time `db:"onset_date" json:"onset_date"`
	Notes     string     `db:"notes" json:"notes"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

func (a *Allergy) MarshalJSON() ([]byte, error) {
	type alias Allergy
	return json.Marshal(struct {
		*alias
		OnsetDate *string `json:"onset_date"`
	}{(*alias)(a), formatDate(a.OnsetDate)})
}
