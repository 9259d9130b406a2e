package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

// =========== Profile Repository ===========

type profileRepoPG struct{ pool db.DBTX }

func NewProfileRepoPG(pool db.DBTX) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const profileCols = `id, username, email, password_hash, role, first_name, last_name,
	profile_picture, bio, address, emergency_contact_name, emergency_contact_phone,
	emergency_contact_relationship, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Role, &p.FirstName, &p.LastName,
		&p.ProfilePicture, &p.Bio, &p.Address, &p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.EmergencyContactRelationship, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err, "Profile")
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profile (id, username, email, password_hash, role, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.Username, p.Email, p.PasswordHash, p.Role, p.FirstName, p.LastName,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Translate(err, "Profile")
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profile WHERE id = $1`, id))
}

func (r *profileRepoPG) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profile WHERE username = $1`, username))
}

func (r *profileRepoPG) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return scanProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+profileCols+` FROM profile WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *profileRepoPG) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var ok bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (`+query+`)`, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *profileRepoPG) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM profile WHERE username = $1`, username)
}

func (r *profileRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM profile WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *profileRepoPG) ExistsWithRole(ctx context.Context, id uuid.UUID, role string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM profile WHERE id = $1 AND role = $2`, id, role)
}

func (r *profileRepoPG) Update(ctx context.Context, p *Profile) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE profile SET first_name = $2, last_name = $3, bio = $4, address = $5,
			emergency_contact_name = $6, emergency_contact_phone = $7,
			emergency_contact_relationship = $8, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Bio, p.Address,
		p.EmergencyContactName, p.EmergencyContactPhone, p.EmergencyContactRelationship)
	if err != nil {
		return db.Translate(err, "Profile")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Profile not found")
	}
	return nil
}

func (r *profileRepoPG) SetPicture(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE profile SET profile_picture = $2, updated_at = NOW() WHERE id = $1`, id, key)
	return db.Translate(err, "Profile")
}

// =========== Patient Profile Repository ===========

type patientRepoPG struct{ pool db.DBTX }

func NewPatientProfileRepoPG(pool db.DBTX) PatientProfileRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const patientCols = `profile_id, date_of_birth, gender, cancer_type, phone_number, blood_type,
	height, weight, allergies, medical_conditions, family_history, insurance_provider, insurance_number`

func scanPatient(row pgx.Row) (*PatientProfile, error) {
	var pp PatientProfile
	err := row.Scan(&pp.ProfileID, &pp.DateOfBirth, &pp.Gender, &pp.CancerType, &pp.PhoneNumber, &pp.BloodType,
		&pp.Height, &pp.Weight, &pp.Allergies, &pp.MedicalConditions, &pp.FamilyHistory,
		&pp.InsuranceProvider, &pp.InsuranceNumber)
	if err != nil {
		return nil, db.Translate(err, "Patient profile")
	}
	return &pp, nil
}

func (r *patientRepoPG) Create(ctx context.Context, pp *PatientProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_profile (profile_id, date_of_birth, gender, cancer_type, phone_number)
		VALUES ($1, $2, $3, $4, $5)`,
		pp.ProfileID, pp.DateOfBirth, pp.Gender, pp.CancerType, pp.PhoneNumber)
	return db.Translate(err, "Patient profile")
}

func (r *patientRepoPG) Get(ctx context.Context, profileID uuid.UUID) (*PatientProfile, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient_profile WHERE profile_id = $1`, profileID))
}

func (r *patientRepoPG) Update(ctx context.Context, pp *PatientProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_profile SET blood_type = $2, height = $3, weight = $4, allergies = $5,
			medical_conditions = $6, family_history = $7, insurance_provider = $8, insurance_number = $9
		WHERE profile_id = $1`,
		pp.ProfileID, pp.BloodType, pp.Height, pp.Weight, pp.Allergies,
		pp.MedicalConditions, pp.FamilyHistory, pp.InsuranceProvider, pp.InsuranceNumber)
	return db.Translate(err, "Patient profile")
}

func (r *patientRepoPG) Search(ctx context.Context, q PatientSearch) ([]*PatientProfile, error) {
	query := `SELECT ` + patientCols + ` FROM patient_profile WHERE 1=1`
	var args []interface{}
	idx := 1

	if q.Condition != "" {
		query += fmt.Sprintf(` AND (cancer_type ILIKE '%%' || $%d || '%%'
			OR medical_conditions ILIKE '%%' || $%d || '%%'
			OR allergies ILIKE '%%' || $%d || '%%')`, idx, idx, idx)
		args = append(args, q.Condition)
		idx++
	}
	if q.Gender != "" {
		query += fmt.Sprintf(` AND LOWER(gender) = LOWER($%d)`, idx)
		args = append(args, q.Gender)
		idx++
	}
	if q.BornAfter != nil {
		query += fmt.Sprintf(` AND date_of_birth >= $%d`, idx)
		args = append(args, *q.BornAfter)
		idx++
	}
	if q.BornBefore != nil {
		query += fmt.Sprintf(` AND date_of_birth <= $%d`, idx)
		args = append(args, *q.BornBefore)
		idx++
	}
	query += fmt.Sprintf(` ORDER BY profile_id LIMIT $%d`, idx)
	args = append(args, q.Limit)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PatientProfile
	for rows.Next() {
		pp, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, pp)
	}
	return items, rows.Err()
}

// =========== Researcher Profile Repository ===========

type researcherRepoPG struct{ pool db.DBTX }

func NewResearcherProfileRepoPG(pool db.DBTX) ResearcherProfileRepository {
	return &researcherRepoPG{pool: pool}
}

func (r *researcherRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const researcherCols = `profile_id, title, institution, specialization, phone_number,
	license_number, years_of_experience, education, certifications`

func scanResearcher(row pgx.Row) (*ResearcherProfile, error) {
	var rp ResearcherProfile
	err := row.Scan(&rp.ProfileID, &rp.Title, &rp.Institution, &rp.Specialization, &rp.PhoneNumber,
		&rp.LicenseNumber, &rp.YearsOfExperience, &rp.Education, &rp.Certifications)
	if err != nil {
		return nil, db.Translate(err, "Researcher profile")
	}
	return &rp, nil
}

func (r *researcherRepoPG) Create(ctx context.Context, rp *ResearcherProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO researcher_profile (profile_id, title, institution, specialization, phone_number)
		VALUES ($1, $2, $3, $4, $5)`,
		rp.ProfileID, rp.Title, rp.Institution, rp.Specialization, rp.PhoneNumber)
	return db.Translate(err, "Researcher profile")
}

func (r *researcherRepoPG) Get(ctx context.Context, profileID uuid.UUID) (*ResearcherProfile, error) {
	return scanResearcher(r.conn(ctx).QueryRow(ctx,
		`SELECT `+researcherCols+` FROM researcher_profile WHERE profile_id = $1`, profileID))
}

func (r *researcherRepoPG) Update(ctx context.Context, rp *ResearcherProfile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE researcher_profile SET license_number = $2, years_of_experience = $3,
			education = $4, certifications = $5
		WHERE profile_id = $1`,
		rp.ProfileID, rp.LicenseNumber, rp.YearsOfExperience, rp.Education, rp.Certifications)
	return db.Translate(err, "Researcher profile")
}

func (r *researcherRepoPG) Search(ctx context.Context, q ResearcherSearch) ([]*ResearcherHit, error) {
	query := `
		SELECT rp.profile_id, rp.title, rp.institution, rp.specialization, rp.phone_number,
			rp.license_number, rp.years_of_experience, rp.education, rp.certifications,
			p.first_name, p.last_name,
			(SELECT COUNT(*) FROM research_study s WHERE s.created_by = rp.profile_id)
		FROM researcher_profile rp
		JOIN profile p ON p.id = rp.profile_id
		WHERE 1=1`
	var args []interface{}
	idx := 1

	if q.Condition != "" {
		query += fmt.Sprintf(` AND (rp.specialization ILIKE '%%' || $%d || '%%'
			OR p.first_name ILIKE '%%' || $%d || '%%'
			OR p.last_name ILIKE '%%' || $%d || '%%')`, idx, idx, idx)
		args = append(args, q.Condition)
		idx++
	}
	if q.Location != "" {
		query += fmt.Sprintf(` AND rp.institution ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, q.Location)
		idx++
	}
	if q.StudyPhase != "" {
		query += fmt.Sprintf(` AND rp.specialization ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, q.StudyPhase)
		idx++
	}
	query += fmt.Sprintf(` ORDER BY p.last_name, p.first_name LIMIT $%d`, idx)
	args = append(args, q.Limit)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResearcherHit
	for rows.Next() {
		var rp ResearcherProfile
		hit := ResearcherHit{ResearcherProfile: &rp}
		if err := rows.Scan(&rp.ProfileID, &rp.Title, &rp.Institution, &rp.Specialization, &rp.PhoneNumber,
			&rp.LicenseNumber, &rp.YearsOfExperience, &rp.Education, &rp.Certifications,
			&hit.FirstName, &hit.LastName, &hit.ActiveStudies); err != nil {
			return nil, err
		}
		items = append(items, &hit)
	}
	return items, rows.Err()
}
