package ehr

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medconnect/medconnect/internal/platform/db"
)

// listByPatient runs query with the patient id and scans every row.
func listByPatient[T any](ctx context.Context, conn db.DBTX, query string, patientID uuid.UUID, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	rows, err := conn.Query(ctx, query, patientID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*T, error) {
		return scan(row)
	})
}

// =========== Medical Record Repository ===========

type recordRepoPG struct{ pool db.DBTX }

func NewMedicalRecordRepoPG(pool db.DBTX) MedicalRecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const recordCols = `id, patient_id, record_type, title, description, date, provider,
	file_key, notes, created_at, updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.PatientID, &m.RecordType, &m.Title, &m.Description, &m.Date, &m.Provider,
		&m.FileKey, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err, "Medical record")
	}
	return &m, nil
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record (id, patient_id, record_type, title, description, date, provider, file_key, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		m.ID, m.PatientID, m.RecordType, m.Title, m.Description, m.Date, m.Provider, m.FileKey, m.Notes,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return db.Translate(err, "Medical record")
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM medical_record WHERE id = $1`, id))
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_record WHERE id = $1`, id)
	return err
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicalRecord, error) {
	return listByPatient(ctx, r.conn(ctx), `
		SELECT `+recordCols+` FROM medical_record
		WHERE patient_id = $1
		ORDER BY date DESC, created_at DESC`, patientID, scanRecord)
}

// =========== Vital Signs Repository ===========

type vitalsRepoPG struct{ pool db.DBTX }

func NewVitalSignsRepoPG(pool db.DBTX) VitalSignsRepository {
	return &vitalsRepoPG{pool: pool}
}

func (r *vitalsRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const vitalsCols = `id, patient_id, date, blood_pressure_systolic, blood_pressure_diastolic, heart_rate,
	temperature, respiratory_rate, oxygen_saturation, weight, height, notes, recorded_by`

func scanVitals(row pgx.Row) (*VitalSigns, error) {
	var v VitalSigns
	err := row.Scan(&v.ID, &v.PatientID, &v.Date, &v.BloodPressureSystolic, &v.BloodPressureDiastolic, &v.HeartRate,
		&v.Temperature, &v.RespiratoryRate, &v.OxygenSaturation, &v.Weight, &v.Height, &v.Notes, &v.RecordedBy)
	if err != nil {
		return nil, db.Translate(err, "Vital signs")
	}
	return &v, nil
}

func (r *vitalsRepoPG) Create(ctx context.Context, v *VitalSigns) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vital_signs (id, patient_id, date, blood_pressure_systolic, blood_pressure_diastolic,
			heart_rate, temperature, respiratory_rate, oxygen_saturation, weight, height, notes, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		v.ID, v.PatientID, v.Date, v.BloodPressureSystolic, v.BloodPressureDiastolic,
		v.HeartRate, v.Temperature, v.RespiratoryRate, v.OxygenSaturation, v.Weight, v.Height, v.Notes, v.RecordedBy)
	return db.Translate(err, "Vital signs")
}

func (r *vitalsRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*VitalSigns, error) {
	return listByPatient(ctx, r.conn(ctx), `
		SELECT `+vitalsCols+` FROM vital_signs
		WHERE patient_id = $1
		ORDER BY date DESC`, patientID, scanVitals)
}

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool db.DBTX }

func NewMedicationRepoPG(pool db.DBTX) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const medicationCols = `id, patient_id, name, dosage, frequency, start_date, end_date,
	prescribed_by, status, side_effects, notes, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.Frequency, &m.StartDate, &m.EndDate,
		&m.PrescribedBy, &m.Status, &m.SideEffects, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err, "Medication")
	}
	return &m, nil
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication (id, patient_id, name, dosage, frequency, start_date, end_date,
			prescribed_by, status, side_effects, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		m.ID, m.PatientID, m.Name, m.Dosage, m.Frequency, m.StartDate, m.EndDate,
		m.PrescribedBy, m.Status, m.SideEffects, m.Notes,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return db.Translate(err, "Medication")
}

func (r *medicationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error) {
	return listByPatient(ctx, r.conn(ctx), `
		SELECT `+medicationCols+` FROM medication
		WHERE patient_id = $1
		ORDER BY start_date DESC`, patientID, scanMedication)
}

// =========== Immunization Repository ===========

type immunizationRepoPG struct{ pool db.DBTX }

func NewImmunizationRepoPG(pool db.DBTX) ImmunizationRepository {
	return &immunizationRepoPG{pool: pool}
}

func (r *immunizationRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const immunizationCols = `id, patient_id, vaccine_name, date_administered, next_due_date,
	administered_by, lot_number, notes, created_at`

func scanImmunization(row pgx.Row) (*Immunization, error) {
	var im Immunization
	err := row.Scan(&im.ID, &im.PatientID, &im.VaccineName, &im.DateAdministered, &im.NextDueDate,
		&im.AdministeredBy, &im.LotNumber, &im.Notes, &im.CreatedAt)
	if err != nil {
		return nil, db.Translate(err, "Immunization")
	}
	return &im, nil
}

func (r *immunizationRepoPG) Create(ctx context.Context, im *Immunization) error {
	im.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO immunization (id, patient_id, vaccine_name, date_administered, next_due_date,
			administered_by, lot_number, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		im.ID, im.PatientID, im.VaccineName, im.DateAdministered, im.NextDueDate,
		im.AdministeredBy, im.LotNumber, im.Notes,
	).Scan(&im.CreatedAt)
	return db.Translate(err, "Immunization")
}

func (r *immunizationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Immunization, error) {
	return listByPatient(ctx, r.conn(ctx), `
		SELECT `+immunizationCols+` FROM immunization
		WHERE patient_id = $1
		ORDER BY date_administered DESC`, patientID, scanImmunization)
}

// =========== Allergy Repository ===========

type allergyRepoPG struct{ pool db.DBTX }

func NewAllergyRepoPG(pool db.DBTX) AllergyRepository {
	return &allergyRepoPG{pool: pool}
}

func (r *allergyRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const allergyCols = `id, patient_id, allergen, reaction, severity, onset_date, notes, created_at`

func scanAllergy(row pgx.Row) (*Allergy, error) {
	var a Allergy
	err := row.Scan(&a.ID, &a.PatientID, &a.Allergen, &a.Reaction, &a.Severity, &a.OnsetDate, &a.Notes, &a.CreatedAt)
	if err != nil {
		return nil, db.Translate(err, "Allergy")
	}
	return &a, nil
}

func (r *allergyRepoPG) Create(ctx context.Context, a *Allergy) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO allergy (id, patient_id, allergen, reaction, severity, onset_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		a.ID, a.PatientID, a.Allergen, a.Reaction, a.Severity, a.OnsetDate, a.Notes,
	).Scan(&a.CreatedAt)
	return db.Translate(err, "Allergy")
}

func (r *allergyRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Allergy, error) {
	return listByPatient(ctx, r.conn(ctx), `
		SELECT `+allergyCols+` FROM allergy
		WHERE patient_id = $1
		ORDER BY created_at DESC`, patientID, scanAllergy)
}
