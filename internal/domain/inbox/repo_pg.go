package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

// =========== Contact Request Repository ===========

type contactRequestRepoPG struct{ pool db.DBTX }

func NewContactRequestRepoPG(pool db.DBTX) ContactRequestRepository {
	return &contactRequestRepoPG{pool: pool}
}

func (r *contactRequestRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

const contactCols = `id, researcher_id, patient_id, message, status, created_at, updated_at`

func scanContact(row pgx.Row) (*ContactRequest, error) {
	var cr ContactRequest
	err := row.Scan(&cr.ID, &cr.ResearcherID, &cr.PatientID, &cr.Message, &cr.Status,
		&cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		return nil, db.Translate(err, "contact request")
	}
	return &cr, nil
}

func (r *contactRequestRepoPG) Create(ctx context.Context, cr *ContactRequest) error {
	cr.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO contact_request (id, researcher_id, patient_id, message, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		cr.ID, cr.ResearcherID, cr.PatientID, cr.Message, cr.Status,
	).Scan(&cr.CreatedAt, &cr.UpdatedAt)
	return db.Translate(err, "contact request")
}

func (r *contactRequestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ContactRequest, error) {
	return scanContact(r.conn(ctx).QueryRow(ctx,
		`SELECT `+contactCols+` FROM contact_request WHERE id = $1`, id))
}

func (r *contactRequestRepoPG) Upsert(ctx context.Context, researcherID, patientID uuid.UUID, message string, status ContactStatus) (*ContactRequest, error) {
	return scanContact(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO contact_request (id, researcher_id, patient_id, message, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (researcher_id, patient_id)
		DO UPDATE SET message = EXCLUDED.message, status = EXCLUDED.status, updated_at = NOW()
		RETURNING `+contactCols,
		uuid.New(), researcherID, patientID, message, status))
}

func (r *contactRequestRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status ContactStatus) (*ContactRequest, error) {
	return scanContact(r.conn(ctx).QueryRow(ctx, `
		UPDATE contact_request SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+contactCols,
		id, status))
}

func (r *contactRequestRepoPG) ListBySender(ctx context.Context, researcherID uuid.UUID) ([]*ContactRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.researcher_id, c.patient_id, c.message, c.status, c.created_at, c.updated_at,
			TRIM(p.first_name || ' ' || p.last_name)
		FROM contact_request c
		JOIN profile p ON p.id = c.patient_id
		WHERE c.researcher_id = $1
		ORDER BY c.updated_at DESC`, researcherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ContactRequest
	for rows.Next() {
		var cr ContactRequest
		if err := rows.Scan(&cr.ID, &cr.ResearcherID, &cr.PatientID, &cr.Message, &cr.Status,
			&cr.CreatedAt, &cr.UpdatedAt, &cr.PatientName); err != nil {
			return nil, err
		}
		items = append(items, &cr)
	}
	return items, rows.Err()
}

func (r *contactRequestRepoPG) ListByRecipient(ctx context.Context, patientID uuid.UUID) ([]*ContactRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.researcher_id, c.patient_id, c.message, c.status, c.created_at, c.updated_at,
			TRIM(p.first_name || ' ' || p.last_name)
		FROM contact_request c
		JOIN profile p ON p.id = c.researcher_id
		WHERE c.patient_id = $1
		ORDER BY c.updated_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ContactRequest
	for rows.Next() {
		var cr ContactRequest
		if err := rows.Scan(&cr.ID, &cr.ResearcherID, &cr.PatientID, &cr.Message, &cr.Status,
			&cr.CreatedAt, &cr.UpdatedAt, &cr.ResearcherName); err != nil {
			return nil, err
		}
		items = append(items, &cr)
	}
	return items, rows.Err()
}

// =========== Notification Repository ===========

type notificationRepoPG struct{ pool db.DBTX }

func NewNotificationRepoPG(pool db.DBTX) NotificationRepository {
	return &notificationRepoPG{pool: pool}
}

func (r *notificationRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.pool)
}

func (r *notificationRepoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notification (id, patient_id, researcher_id, kind, message)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		n.ID, n.PatientID, n.ResearcherID, n.Kind, n.Message,
	).Scan(&n.CreatedAt)
	return db.Translate(err, "patient")
}

func (r *notificationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	where := `WHERE patient_id = $1`
	if unreadOnly {
		where += ` AND read_at IS NULL`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notification `+where, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, researcher_id, kind, message, read_at, created_at
		FROM notification `+where+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.PatientID, &n.ResearcherID, &n.Kind, &n.Message,
			&n.ReadAt, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &n)
	}
	return items, total, rows.Err()
}

func (r *notificationRepoPG) MarkRead(ctx context.Context, patientID, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notification SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND patient_id = $2`, id, patientID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Notification not found")
	}
	return nil
}

func (r *notificationRepoPG) MarkAllRead(ctx context.Context, patientID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notification SET read_at = $2
		WHERE patient_id = $1 AND read_at IS NULL`, patientID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
