package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ContactRequestRepository interface {
	Create(ctx context.Context, cr *ContactRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ContactRequest, error)
	// Upsert writes message and status onto the (researcher, patient) row,
	// creating it when absent.
	Upsert(ctx context.Context, researcherID, patientID uuid.UUID, message string, status ContactStatus) (*ContactRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ContactStatus) (*ContactRequest, error)
	ListBySender(ctx context.Context, researcherID uuid.UUID) ([]*ContactRequest, error)
	ListByRecipient(ctx context.Context, patientID uuid.UUID) ([]*ContactRequest, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	MarkRead(ctx context.Context, patientID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, patientID uuid.UUID, at time.Time) (int64, error)
}

// PatientDirectory answers whether a profile id belongs to a patient.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}
