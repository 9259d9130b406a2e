package ehr

import (
	"context"

	"github.com/google/uuid"
)

type MedicalRecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*MedicalRecord, error)
}

type VitalSignsRepository interface {
	Create(ctx context.Context, v *VitalSigns) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*VitalSigns, error)
}

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Medication, error)
}

type ImmunizationRepository interface {
	Create(ctx context.Context, im *Immunization) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Immunization, error)
}

type AllergyRepository interface {
	Create(ctx context.Context, a *Allergy) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Allergy, error)
}
