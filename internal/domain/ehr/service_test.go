package ehr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
)

// ── Mock Repositories ──

type mockRecordRepo struct {
	data    map[uuid.UUID]*MedicalRecord
	failErr error
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	if m.failErr != nil {
		return m.failErr
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.data[r.ID] = r
	return nil
}
func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	if r, ok := m.data[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, apperr.NotFound("Medical record not found")
}
func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.data, id)
	return nil
}
func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*MedicalRecord, error) {
	var out []*MedicalRecord
	for _, r := range m.data {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockVitalsRepo struct{ data []*VitalSigns }

func (m *mockVitalsRepo) Create(_ context.Context, v *VitalSigns) error {
	v.ID = uuid.New()
	m.data = append(m.data, v)
	return nil
}
func (m *mockVitalsRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*VitalSigns, error) {
	var out []*VitalSigns
	for _, v := range m.data {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockMedicationRepo struct{ data []*Medication }

func (m *mockMedicationRepo) Create(_ context.Context, med *Medication) error {
	med.ID = uuid.New()
	m.data = append(m.data, med)
	return nil
}
func (m *mockMedicationRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Medication, error) {
	var out []*Medication
	for _, med := range m.data {
		if med.PatientID == patientID {
			out = append(out, med)
		}
	}
	return out, nil
}

type mockImmunizationRepo struct{ data []*Immunization }

func (m *mockImmunizationRepo) Create(_ context.Context, im *Immunization) error {
	im.ID = uuid.New()
	m.data = append(m.data, im)
	return nil
}
func (m *mockImmunizationRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Immunization, error) {
	var out []*Immunization
	for _, im := range m.data {
		if im.PatientID == patientID {
			out = append(out, im)
		}
	}
	return out, nil
}

type mockAllergyRepo struct{ data []*Allergy }

func (m *mockAllergyRepo) Create(_ context.Context, a *Allergy) error {
	a.ID = uuid.New()
	m.data = append(m.data, a)
	return nil
}
func (m *mockAllergyRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Allergy, error) {
	var out []*Allergy
	for _, a := range m.data {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

type testEnv struct {
	svc           *Service
	records       *mockRecordRepo
	vitals        *mockVitalsRepo
	medications   *mockMedicationRepo
	immunizations *mockImmunizationRepo
	allergies     *mockAllergyRepo
	blobs         *blobstore.MemoryStore
	patient       auth.Principal
	today         time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		records:       &mockRecordRepo{data: make(map[uuid.UUID]*MedicalRecord)},
		vitals:        &mockVitalsRepo{},
		medications:   &mockMedicationRepo{},
		immunizations: &mockImmunizationRepo{},
		allergies:     &mockAllergyRepo{},
		blobs:         blobstore.NewMemoryStore(),
		patient:       auth.Principal{ProfileID: uuid.New(), Role: auth.RolePatient, Username: "sam"},
		today:         time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(env.records, env.vitals, env.medications, env.immunizations, env.allergies,
		env.blobs, zerolog.Nop())
	env.svc.now = func() time.Time { return env.today.Add(15 * time.Hour) }
	return env
}

// -- Medical Records --

func TestService_CreateRecord_Defaults(t *testing.T) {
	env := newTestEnv()
	rec, err := env.svc.CreateRecord(context.Background(), env.patient, RecordInput{Title: "  "}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.RecordType != RecordOther || rec.Title != "Untitled Record" || rec.Provider != "Unknown" {
		t.Errorf("defaults not applied: %+v", rec)
	}
	if !rec.Date.Equal(env.today) {
		t.Errorf("expected date %v, got %v", env.today, rec.Date)
	}
	if rec.FileURL != nil || rec.PatientID != env.patient.ProfileID {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestService_CreateRecord_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.CreateRecord(ctx, env.patient, RecordInput{Date: "14/03/2026"}, nil)
	if msg, _ := apperr.Message(err); msg != "Invalid date format. Expected YYYY-MM-DD" {
		t.Errorf("unexpected error %v", err)
	}
	_, err = env.svc.CreateRecord(ctx, env.patient, RecordInput{RecordType: "xray"}, nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for record_type, got %v", err)
	}
	if len(env.records.data) != 0 {
		t.Error("invalid input created a record")
	}
}

func TestService_CreateRecord_StoreFailureDropsBlob(t *testing.T) {
	env := newTestEnv()
	env.records.failErr = errors.New("insert failed")
	fh := formFile(t, "scan.png", pngBytes)

	if _, err := env.svc.CreateRecord(context.Background(), env.patient, RecordInput{}, fh); err == nil {
		t.Fatal("expected error")
	}
	if env.blobs.Len() != 0 {
		t.Errorf("expected blob to be removed, %d left", env.blobs.Len())
	}
}

func TestService_DeleteRecord(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	rec, err := env.svc.CreateRecord(ctx, env.patient, RecordInput{Title: "MRI"}, formFile(t, "mri.png", pngBytes))
	if err != nil {
		t.Fatal(err)
	}

	other := auth.Principal{ProfileID: uuid.New(), Role: auth.RolePatient}
	err = env.svc.DeleteRecord(ctx, other, rec.ID)
	if msg, _ := apperr.Message(err); !errors.Is(err, apperr.ErrNotFound) || msg != "Medical record not found or not authorized" {
		t.Fatalf("expected not found for another patient, got %v", err)
	}
	if len(env.records.data) != 1 {
		t.Fatal("record deleted by another patient")
	}

	if err := env.svc.DeleteRecord(ctx, env.patient, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.records.data) != 0 || env.blobs.Len() != 0 {
		t.Error("record or blob left behind")
	}

	if err := env.svc.DeleteRecord(ctx, env.patient, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- Vital Signs --

func TestService_RecordVitalSigns(t *testing.T) {
	env := newTestEnv()
	hr, weight, height := 72, 80.0, 180.0
	v, err := env.svc.RecordVitalSigns(context.Background(), env.patient, VitalSignsInput{
		Date: "2026-03-14T08:30:00", HeartRate: &hr, Weight: &weight, Height: &height,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Date.Hour() != 8 || *v.HeartRate != 72 {
		t.Errorf("unexpected vitals %+v", v)
	}
	if bmi := v.BMI(); bmi == nil || *bmi != 24.7 {
		t.Errorf("expected bmi 24.7, got %v", bmi)
	}
}

func TestService_RecordVitalSigns_Invalid(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	neg := -5
	for name, in := range map[string]VitalSignsInput{
		"missing date":   {},
		"bad date":       {Date: "yesterday"},
		"negative value": {Date: "2026-03-14T08:30:00Z", HeartRate: &neg},
	} {
		if _, err := env.svc.RecordVitalSigns(ctx, env.patient, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
	if len(env.vitals.data) != 0 {
		t.Error("invalid vitals stored")
	}
}

// -- Medications --

func TestService_AddMedication(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	in := MedicationInput{
		Name: "Tamoxifen", Dosage: "20mg", Frequency: "daily",
		StartDate: "2026-01-01", PrescribedBy: "Dr. Lee",
	}
	m, err := env.svc.AddMedication(ctx, env.patient, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != MedicationActive || m.EndDate != nil {
		t.Errorf("unexpected medication %+v", m)
	}

	bad := in
	bad.Status = "paused"
	if _, err := env.svc.AddMedication(ctx, env.patient, bad); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for status, got %v", err)
	}

	bad = in
	bad.EndDate = "2025-12-01"
	if _, err := env.svc.AddMedication(ctx, env.patient, bad); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for end_date, got %v", err)
	}

	bad = in
	bad.Dosage = ""
	_, err = env.svc.AddMedication(ctx, env.patient, bad)
	if msg, _ := apperr.Message(err); msg != "dosage is required" {
		t.Errorf("unexpected error %v", err)
	}
}

// -- Immunizations / Allergies --

func TestService_AddImmunization(t *testing.T) {
	env := newTestEnv()
	im, err := env.svc.AddImmunization(context.Background(), env.patient, ImmunizationInput{
		VaccineName: "Influenza", DateAdministered: "2025-10-02", NextDueDate: "2026-10-02", AdministeredBy: "CVS",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if im.NextDueDate == nil || im.NextDueDate.Year() != 2026 {
		t.Errorf("unexpected next due date %v", im.NextDueDate)
	}

	_, err = env.svc.AddImmunization(context.Background(), env.patient, ImmunizationInput{VaccineName: "Influenza"})
	if msg, _ := apperr.Message(err); msg != "date_administered is required" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestService_AddAllergy_Severity(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	in := AllergyInput{Allergen: "Penicillin", Reaction: "hives", Severity: "life_threatening"}
	if _, err := env.svc.AddAllergy(ctx, env.patient, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in.Severity = "extreme"
	if _, err := env.svc.AddAllergy(ctx, env.patient, in); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	items, _ := env.svc.Allergies(ctx, env.patient)
	if len(items) != 1 {
		t.Errorf("expected 1 allergy, got %d", len(items))
	}
}

func TestService_ListsAreScopedToPatient(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.svc.CreateRecord(ctx, env.patient, RecordInput{Title: "Mine"}, nil)
	other := auth.Principal{ProfileID: uuid.New(), Role: auth.RolePatient}
	env.svc.CreateRecord(ctx, other, RecordInput{Title: "Theirs"}, nil)

	items, err := env.svc.Records(ctx, env.patient)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "Mine" {
		t.Errorf("unexpected records %+v", items)
	}
}
