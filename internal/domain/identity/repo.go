package identity

import (
	"context"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByUsername(ctx context.Context, username string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, p *Profile) error
	SetPicture(ctx context.Context, id uuid.UUID, key string) error
	ExistsWithRole(ctx context.Context, id uuid.UUID, role string) (bool, error)
}

type PatientProfileRepository interface {
	Create(ctx context.Context, pp *PatientProfile) error
	Get(ctx context.Context, profileID uuid.UUID) (*PatientProfile, error)
	Update(ctx context.Context, pp *PatientProfile) error
	Search(ctx context.Context, q PatientSearch) ([]*PatientProfile, error)
}

type ResearcherProfileRepository interface {
	Create(ctx context.Context, rp *ResearcherProfile) error
	Get(ctx context.Context, profileID uuid.UUID) (*ResearcherProfile, error)
	Update(ctx context.Context, rp *ResearcherProfile) error
	Search(ctx context.Context, q ResearcherSearch) ([]*ResearcherHit, error)
}
