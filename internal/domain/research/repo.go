package research

import (
	"context"

	"github.com/google/uuid"
)

type StudyRepository interface {
	Create(ctx context.Context, s *Study) error
	GetByID(ctx context.Context, id uuid.UUID) (*Study, error)
	// GetForUpdate locks the study row for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Study, error)
	List(ctx context.Context, f StudyFilter, limit, offset int) ([]*Study, int, error)
	ListOwned(ctx context.Context, ownerID uuid.UUID) ([]*OwnedStudySummary, error)
	// AdjustEnrollment moves current_enrollment by delta in one statement
	// and returns the new value. It refuses to go below zero.
	AdjustEnrollment(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

type ParticipationRepository interface {
	Create(ctx context.Context, p *Participation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Participation, error)
	// GetForUpdate locks the participation row for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Participation, error)
	Update(ctx context.Context, p *Participation) error
	ListApplicants(ctx context.Context, studyID uuid.UUID) ([]*Applicant, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientStudy, error)
}

type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*Document, error)
}
