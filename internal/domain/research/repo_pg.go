package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

// =========== Study Repository ===========

type studyRepoPG struct{ pool db.DBTX }

func NewStudyRepoPG(pool db.DBTX) StudyRepository {
	return &studyRepoPG{pool: pool}
}

func (r *studyRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const studyCols = `id, title, description, phase, sponsor, location,
	eligibility_criteria, primary_endpoint, estimated_enrollment, current_enrollment,
	start_date, estimated_completion_date, status, compensation,
	contact_name, contact_email, contact_phone, created_by, created_at, updated_at`

func scanStudy(row pgx.Row) (*Study, error) {
	var s Study
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.Phase, &s.Sponsor, &s.Location,
		&s.EligibilityCriteria, &s.PrimaryEndpoint, &s.EstimatedEnrollment, &s.CurrentEnrollment,
		&s.StartDate, &s.EstimatedCompletionDate, &s.Status, &s.Compensation,
		&s.ContactName, &s.ContactEmail, &s.ContactPhone, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err, "Study")
	}
	return &s, nil
}

func (r *studyRepoPG) Create(ctx context.Context, s *Study) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO research_study (id, title, description, phase, sponsor, location,
			eligibility_criteria, primary_endpoint, estimated_enrollment, current_enrollment,
			start_date, estimated_completion_date, status, compensation,
			contact_name, contact_email, contact_phone, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		s.ID, s.Title, s.Description, s.Phase, s.Sponsor, s.Location,
		s.EligibilityCriteria, s.PrimaryEndpoint, s.EstimatedEnrollment, s.CurrentEnrollment,
		s.StartDate, s.EstimatedCompletionDate, s.Status, s.Compensation,
		s.ContactName, s.ContactEmail, s.ContactPhone, s.CreatedBy,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return db.Translate(err, "Study")
}

func (r *studyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Study, error) {
	return scanStudy(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM research_study WHERE id = $1`, id))
}

func (r *studyRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Study, error) {
	return scanStudy(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM research_study WHERE id = $1 FOR UPDATE`, id))
}

func (r *studyRepoPG) List(ctx context.Context, f StudyFilter, limit, offset int) ([]*Study, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Phase != "" {
		where += fmt.Sprintf(` AND phase = $%d`, idx)
		args = append(args, f.Phase)
		idx++
	}
	if f.Query != "" {
		where += fmt.Sprintf(` AND title ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, f.Query)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM research_study`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + studyCols + ` FROM research_study` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Study
	for rows.Next() {
		s, err := scanStudy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *studyRepoPG) ListOwned(ctx context.Context, ownerID uuid.UUID) ([]*OwnedStudySummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+studyCols+`,
			(SELECT COUNT(*) FROM study_participation sp
			 WHERE sp.study_id = research_study.id AND sp.status IN ('screening', 'enrolled'))
		FROM research_study
		WHERE created_by = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*OwnedStudySummary
	for rows.Next() {
		var s Study
		var accepted int
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.Phase, &s.Sponsor, &s.Location,
			&s.EligibilityCriteria, &s.PrimaryEndpoint, &s.EstimatedEnrollment, &s.CurrentEnrollment,
			&s.StartDate, &s.EstimatedCompletionDate, &s.Status, &s.Compensation,
			&s.ContactName, &s.ContactEmail, &s.ContactPhone, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
			&accepted); err != nil {
			return nil, err
		}
		items = append(items, &OwnedStudySummary{Study: &s, AcceptedCount: accepted})
	}
	return items, rows.Err()
}

func (r *studyRepoPG) AdjustEnrollment(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE research_study
		SET current_enrollment = current_enrollment + $2, updated_at = NOW()
		WHERE id = $1 AND current_enrollment + $2 >= 0
		RETURNING current_enrollment`, id, delta).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.Conflict("Study enrollment cannot go below zero")
	}
	if err != nil {
		return 0, db.Translate(err, "Study")
	}
	return n, nil
}

// =========== Participation Repository ===========

type participationRepoPG struct{ pool db.DBTX }

func NewParticipationRepoPG(pool db.DBTX) ParticipationRepository {
	return &participationRepoPG{pool: pool}
}

func (r *participationRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const participationCols = `id, study_id, patient_id, status, applied_date, enrolled_date, notes`

func scanParticipation(row pgx.Row) (*Participation, error) {
	var p Participation
	err := row.Scan(&p.ID, &p.StudyID, &p.PatientID, &p.Status, &p.AppliedDate, &p.EnrolledDate, &p.Notes)
	if err != nil {
		return nil, db.Translate(err, "Participation")
	}
	return &p, nil
}

func (r *participationRepoPG) Create(ctx context.Context, p *Participation) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO study_participation (id, study_id, patient_id, status, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING applied_date`,
		p.ID, p.StudyID, p.PatientID, p.Status, p.Notes,
	).Scan(&p.AppliedDate)
	return db.Translate(err, "Participation")
}

func (r *participationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Participation, error) {
	return scanParticipation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+participationCols+` FROM study_participation WHERE id = $1`, id))
}

func (r *participationRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Participation, error) {
	return scanParticipation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+participationCols+` FROM study_participation WHERE id = $1 FOR UPDATE`, id))
}

func (r *participationRepoPG) Update(ctx context.Context, p *Participation) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE study_participation SET status = $2, enrolled_date = $3, notes = $4
		WHERE id = $1`,
		p.ID, p.Status, p.EnrolledDate, p.Notes)
	return db.Translate(err, "Participation")
}

func (r *participationRepoPG) ListApplicants(ctx context.Context, studyID uuid.UUID) ([]*Applicant, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT sp.id, sp.study_id, sp.patient_id, sp.status, sp.applied_date, sp.enrolled_date, sp.notes,
			COALESCE(NULLIF(TRIM(p.first_name || ' ' || p.last_name), ''), p.username)
		FROM study_participation sp
		JOIN profile p ON p.id = sp.patient_id
		WHERE sp.study_id = $1
		ORDER BY sp.applied_date DESC`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Applicant
	for rows.Next() {
		var p Participation
		var name string
		if err := rows.Scan(&p.ID, &p.StudyID, &p.PatientID, &p.Status, &p.AppliedDate,
			&p.EnrolledDate, &p.Notes, &name); err != nil {
			return nil, err
		}
		items = append(items, &Applicant{Participation: &p, PatientName: name})
	}
	return items, rows.Err()
}

func (r *participationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientStudy, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT sp.status, sp.applied_date, `+prefixed("s", studyCols)+`
		FROM study_participation sp
		JOIN research_study s ON s.id = sp.study_id
		WHERE sp.patient_id = $1
		ORDER BY sp.applied_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PatientStudy
	for rows.Next() {
		var ps PatientStudy
		var s Study
		if err := rows.Scan(&ps.Participation, &ps.AppliedDate,
			&s.ID, &s.Title, &s.Description, &s.Phase, &s.Sponsor, &s.Location,
			&s.EligibilityCriteria, &s.PrimaryEndpoint, &s.EstimatedEnrollment, &s.CurrentEnrollment,
			&s.StartDate, &s.EstimatedCompletionDate, &s.Status, &s.Compensation,
			&s.ContactName, &s.ContactEmail, &s.ContactPhone, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		ps.Study = &s
		items = append(items, &ps)
	}
	return items, rows.Err()
}

// =========== Document Repository ===========

type documentRepoPG struct{ pool db.DBTX }

func NewDocumentRepoPG(pool db.DBTX) DocumentRepository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const documentCols = `id, study_id, uploaded_by, file_key, name, doc_type, uploaded_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.StudyID, &d.UploadedBy, &d.FileKey, &d.Name, &d.DocType, &d.UploadedAt)
	if err != nil {
		return nil, db.Translate(err, "Document")
	}
	return &d, nil
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO study_document (id, study_id, uploaded_by, file_key, name, doc_type)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING uploaded_at`,
		d.ID, d.StudyID, d.UploadedBy, d.FileKey, d.Name, d.DocType,
	).Scan(&d.UploadedAt)
	return db.Translate(err, "Document")
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+documentCols+` FROM study_document WHERE id = $1`, id))
}

func (r *documentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM study_document WHERE id = $1`, id)
	return err
}

func (r *documentRepoPG) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+documentCols+` FROM study_document
		WHERE study_id = $1
		ORDER BY uploaded_at DESC`, studyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// prefixed qualifies each column in a comma separated list with alias.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
