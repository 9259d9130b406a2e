package ehr

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
)

type Service struct {
	records       MedicalRecordRepository
	vitals        VitalSignsRepository
	medications   MedicationRepository
	immunizations ImmunizationRepository
	allergies     AllergyRepository
	blobs         blobstore.BlobStore
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(
	records MedicalRecordRepository,
	vitals VitalSignsRepository,
	medications MedicationRepository,
	immunizations ImmunizationRepository,
	allergies AllergyRepository,
	blobs blobstore.BlobStore,
	logger zerolog.Logger,
) *Service {
	return &Service{
		records:       records,
		vitals:        vitals,
		medications:   medications,
		immunizations: immunizations,
		allergies:     allergies,
		blobs:         blobs,
		logger:        logger.With().Str("component", "ehr").Logger(),
		now:           time.Now,
	}
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Validation("%s is required", name)
	}
	return nil
}

// parseDate reads an optional YYYY-MM-DD value. Empty input yields nil.
func parseDate(name, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil, apperr.Validation("Invalid %s format. Expected YYYY-MM-DD", name)
	}
	return &t, nil
}

// -- Medical Records --

// RecordPrefix scopes medical record files by patient id.
const RecordPrefix = "medical-records"

type RecordInput struct {
	RecordType  string `json:"record_type" form:"record_type"`
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Provider    string `json:"provider" form:"provider"`
	Notes       string `json:"notes" form:"notes"`
	Date        string `json:"date" form:"date"`
}

func (s *Service) Records(ctx context.Context, p auth.Principal) ([]*MedicalRecord, error) {
	items, err := s.records.ListByPatient(ctx, p.ProfileID)
	if err != nil {
		return nil, err
	}
	for _, r := range items {
		setFileURL(r)
	}
	return items, nil
}

func setFileURL(r *MedicalRecord) {
	if r.FileKey != "" {
		url := blobstore.URL(r.FileKey)
		r.FileURL = &url
	}
}

// CreateRecord stores a medical record and its optional file. Missing
// fields fall back to record_type other, "Untitled Record", provider
// "Unknown" and today's date.
func (s *Service) CreateRecord(ctx context.Context, p auth.Principal, in RecordInput, fh *multipart.FileHeader) (*MedicalRecord, error) {
	rt := RecordType(strings.TrimSpace(in.RecordType))
	if rt == "" {
		rt = RecordOther
	}
	if !validRecordTypes[rt] {
		return nil, apperr.Validation("invalid record_type: %s", in.RecordType)
	}
	date, err := parseDate("date", in.Date)
	if err != nil {
		return nil, err
	}
	if date == nil {
		today := s.now().UTC().Truncate(24 * time.Hour)
		date = &today
	}

	rec := &MedicalRecord{
		PatientID:   p.ProfileID,
		RecordType:  rt,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Date:        *date,
		Provider:    strings.TrimSpace(in.Provider),
		Notes:       strings.TrimSpace(in.Notes),
	}
	if rec.Title == "" {
		rec.Title = "Untitled Record"
	}
	if rec.Provider == "" {
		rec.Provider = "Unknown"
	}

	if fh != nil {
		obj, err := blobstore.PutFormFile(ctx, s.blobs, RecordPrefix+"/"+p.ProfileID.String(), fh)
		if err != nil {
			return nil, blobstore.UploadError(err)
		}
		rec.FileKey = obj.Key
	}
	if err := s.records.Create(ctx, rec); err != nil {
		if rec.FileKey != "" {
			s.dropBlob(ctx, rec.FileKey)
		}
		return nil, err
	}
	setFileURL(rec)
	return rec, nil
}

var errRecordNotFound = apperr.NotFound("Medical record not found or not authorized")

// DeleteRecord removes one of the caller's records and its file.
func (s *Service) DeleteRecord(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	rec, err := s.records.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return errRecordNotFound
	}
	if err != nil {
		return err
	}
	if rec.PatientID != p.ProfileID {
		return errRecordNotFound
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	if rec.FileKey != "" {
		s.dropBlob(ctx, rec.FileKey)
	}
	return nil
}

func (s *Service) dropBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("key", key).Msg("medical record blob not removed")
	}
}

// -- Vital Signs --

type VitalSignsInput struct {
	Date                   string   `json:"date"`
	BloodPressureSystolic  *int     `json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int     `json:"blood_pressure_diastolic"`
	HeartRate              *int     `json:"heart_rate"`
	Temperature            *float64 `json:"temperature"`
	RespiratoryRate        *int     `json:"respiratory_rate"`
	OxygenSaturation       *float64 `json:"oxygen_saturation"`
	Weight                 *float64 `json:"weight"`
	Height                 *float64 `json:"height"`
	Notes                  string   `json:"notes"`
	RecordedBy             string   `json:"recorded_by"`
}

// vitalsDateLayouts are the accepted forms of a vital signs timestamp.
var vitalsDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range vitalsDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Service) VitalSigns(ctx context.Context, p auth.Principal) ([]*VitalSigns, error) {
	return s.vitals.ListByPatient(ctx, p.ProfileID)
}

func (s *Service) RecordVitalSigns(ctx context.Context, p auth.Principal, in VitalSignsInput) (*VitalSigns, error) {
	if err := required("date", in.Date); err != nil {
		return nil, err
	}
	date, ok := parseTimestamp(in.Date)
	if !ok {
		return nil, apperr.Validation("Invalid date format. Expected YYYY-MM-DDTHH:MM:SS")
	}
	for name, v := range map[string]*int{
		"blood_pressure_systolic":  in.BloodPressureSystolic,
		"blood_pressure_diastolic": in.BloodPressureDiastolic,
		"heart_rate":               in.HeartRate,
		"respiratory_rate":         in.RespiratoryRate,
	} {
		if v != nil && *v < 0 {
			return nil, apperr.Validation("%s must not be negative", name)
		}
	}

	v := &VitalSigns{
		PatientID:              p.ProfileID,
		Date:                   date,
		BloodPressureSystolic:  in.BloodPressureSystolic,
		BloodPressureDiastolic: in.BloodPressureDiastolic,
		HeartRate:              in.HeartRate,
		Temperature:            in.Temperature,
		RespiratoryRate:        in.RespiratoryRate,
		OxygenSaturation:       in.OxygenSaturation,
		Weight:                 in.Weight,
		Height:                 in.Height,
		Notes:                  strings.TrimSpace(in.Notes),
		RecordedBy:             strings.TrimSpace(in.RecordedBy),
	}
	if err := s.vitals.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// -- Medications --

type MedicationInput struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	PrescribedBy string `json:"prescribed_by"`
	Status       string `json:"status"`
	SideEffects  string `json:"side_effects"`
	Notes        string `json:"notes"`
}

func (s *Service) Medications(ctx context.Context, p auth.Principal) ([]*Medication, error) {
	return s.medications.ListByPatient(ctx, p.ProfileID)
}

func (s *Service) AddMedication(ctx context.Context, p auth.Principal, in MedicationInput) (*Medication, error) {
	for _, f := range [][2]string{
		{"name", in.Name}, {"dosage", in.Dosage}, {"frequency", in.Frequency},
		{"start_date", in.StartDate}, {"prescribed_by", in.PrescribedBy},
	} {
		if err := required(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	start, err := parseDate("start_date", in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", in.EndDate)
	if err != nil {
		return nil, err
	}
	if end != nil && end.Before(*start) {
		return nil, apperr.Validation("end_date must not be before start_date")
	}
	status := MedicationStatus(strings.TrimSpace(in.Status))
	if status == "" {
		status = MedicationActive
	}
	if !validMedicationStatuses[status] {
		return nil, apperr.Validation("invalid status: %s", in.Status)
	}

	m := &Medication{
		PatientID:    p.ProfileID,
		Name:         strings.TrimSpace(in.Name),
		Dosage:       strings.TrimSpace(in.Dosage),
		Frequency:    strings.TrimSpace(in.Frequency),
		StartDate:    *start,
		EndDate:      end,
		PrescribedBy: strings.TrimSpace(in.PrescribedBy),
		Status:       status,
		SideEffects:  strings.TrimSpace(in.SideEffects),
		Notes:        strings.TrimSpace(in.Notes),
	}
	if err := s.medications.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// -- Immunizations --

type ImmunizationInput struct {
	VaccineName      string `json:"vaccine_name"`
	DateAdministered string `json:"date_administered"`
	NextDueDate      string `json:"next_due_date"`
	AdministeredBy   string `json:"administered_by"`
	LotNumber        string `json:"lot_number"`
	Notes            string `json:"notes"`
}

func (s *Service) Immunizations(ctx context.Context, p auth.Principal) ([]*Immunization, error) {
	return s.immunizations.ListByPatient(ctx, p.ProfileID)
}

func (s *Service) AddImmunization(ctx context.Context, p auth.Principal, in ImmunizationInput) (*Immunization, error) {
	for _, f := range [][2]string{
		{"vaccine_name", in.VaccineName}, {"date_administered", in.DateAdministered}, {"administered_by", in.AdministeredBy},
	} {
		if err := required(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	given, err := parseDate("date_administered", in.DateAdministered)
	if err != nil {
		return nil, err
	}
	due, err := parseDate("next_due_date", in.NextDueDate)
	if err != nil {
		return nil, err
	}

	im := &Immunization{
		PatientID:        p.ProfileID,
		VaccineName:      strings.TrimSpace(in.VaccineName),
		DateAdministered: *given,
		NextDueDate:      due,
		AdministeredBy:   strings.TrimSpace(in.AdministeredBy),
		LotNumber:        strings.TrimSpace(in.LotNumber),
		Notes:            strings.TrimSpace(in.Notes),
	}
	if err := s.immunizations.Create(ctx, im); err != nil {
		return nil, err
	}
	return im, nil
}

// -- Allergies --

type AllergyInput struct {
	Allergen  string `json:"allergen"`
	Reaction  string `json:"reaction"`
	Severity  string `json:"severity"`
	OnsetDate string `json:"onset_date"`
	Notes     string `json:"notes"`
}

func (s *Service) Allergies(ctx context.Context, p auth.Principal) ([]*Allergy, error) {
	return s.allergies.ListByPatient(ctx, p.ProfileID)
}

func (s *Service) AddAllergy(ctx context.Context, p auth.Principal, in AllergyInput) (*Allergy, error) {
	for _, f := range [][2]string{{"allergen", in.Allergen}, {"reaction", in.Reaction}, {"severity", in.Severity}} {
		if err := required(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	severity := Severity(strings.TrimSpace(in.Severity))
	if !validSeverities[severity] {
		return nil, apperr.Validation("invalid severity: %s", in.Severity)
	}
	onset, err := parseDate("onset_date", in.OnsetDate)
	if err != nil {
		return nil, err
	}

	a := &Allergy{
		PatientID: p.ProfileID,
		Allergen:  strings.TrimSpace(in.Allergen),
		Reaction:  strings.TrimSpace(in.Reaction),
		Severity:  severity,
		OnsetDate: onset,
		Notes:     strings.TrimSpace(in.Notes),
	}
	if err := s.allergies.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
