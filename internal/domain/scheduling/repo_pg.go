package scheduling

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

type appointmentRepoPG struct{ pool db.DBTX }

func NewAppointmentRepoPG(pool db.DBTX) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const appointmentCols = `a.id, a.patient_id, a.study_id, a.doctor_name, a.doctor_specialization,
	a.appointment_date, a.address, a.reason, a.notes, a.status, a.created_at, a.updated_at`

func (a *Appointment) scanDest() []interface{} {
	return []interface{}{&a.ID, &a.PatientID, &a.StudyID, &a.DoctorName, &a.DoctorSpecialization,
		&a.AppointmentDate, &a.Address, &a.Reason, &a.Notes, &a.Status, &a.CreatedAt, &a.UpdatedAt}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(a.scanDest()...); err != nil {
		return nil, db.Translate(err, "Appointment")
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, study_id, doctor_name, doctor_specialization,
			appointment_date, address, reason, notes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.StudyID, a.DoctorName, a.DoctorSpecialization,
		a.AppointmentDate, a.Address, a.Reason, a.Notes, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.Translate(err, "Appointment")
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment a WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET doctor_name = $2, doctor_specialization = $3, appointment_date = $4,
			address = $5, reason = $6, notes = $7, status = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DoctorName, a.DoctorSpecialization, a.AppointmentDate,
		a.Address, a.Reason, a.Notes, a.Status,
	).Scan(&a.UpdatedAt)
	return db.Translate(err, "Appointment")
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment a
		WHERE a.patient_id = $1
		ORDER BY a.appointment_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*StudyAppointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`, p.first_name, p.last_name, p.username
		FROM appointment a
		JOIN profile p ON p.id = a.patient_id
		WHERE a.study_id = $1
		ORDER BY a.appointment_date DESC`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StudyAppointment
	for rows.Next() {
		var (
			a                   Appointment
			first, last, handle string
		)
		if err := rows.Scan(append(a.scanDest(), &first, &last, &handle)...); err != nil {
			return nil, err
		}
		items = append(items, &StudyAppointment{Appointment: &a, PatientName: DisplayName(first, last, handle)})
	}
	return items, rows.Err()
}
