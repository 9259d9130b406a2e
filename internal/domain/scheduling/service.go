package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/domain/inbox"
	"github.com/medconnect/medconnect/internal/domain/research"
	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
)

// StudyAccess resolves studies owned by the caller and their participations.
type StudyAccess interface {
	OwnedStudy(ctx context.Context, p auth.Principal, studyID uuid.UUID) (*research.Study, error)
	ParticipationInStudy(ctx context.Context, studyID, participationID uuid.UUID) (*research.Participation, error)
}

// PatientDirectory answers whether a profile id belongs to a patient.
type PatientDirectory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Notifier delivers a notice to a patient.
type Notifier interface {
	Notify(ctx context.Context, n inbox.Notice) error
}

type Service struct {
	appointments AppointmentRepository
	studies      StudyAccess
	patients     PatientDirectory
	notifier     Notifier
	logger       zerolog.Logger
}

func NewService(
	appointments AppointmentRepository,
	studies StudyAccess,
	patients PatientDirectory,
	notifier Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appointments: appointments,
		studies:      studies,
		patients:     patients,
		notifier:     notifier,
		logger:       logger.With().Str("component", "scheduling").Logger(),
	}
}

var (
	errAppointmentNotFound = apperr.NotFound("Appointment not found")
	errInvalidDate         = apperr.Validation("Invalid appointment_date format")
)

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Validation("%s is required", name)
	}
	return nil
}

// -- Patient Appointments --

type CreateInput struct {
	DoctorName           string `json:"doctor_name"`
	DoctorSpecialization string `json:"doctor_specialization"`
	AppointmentDate      string `json:"appointment_date"`
	Address              string `json:"address"`
	Reason               string `json:"reason"`
	Notes                string `json:"notes"`
}

func (s *Service) Appointments(ctx context.Context, p auth.Principal) ([]*Appointment, error) {
	return s.appointments.ListByPatient(ctx, p.ProfileID)
}

func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*Appointment, error) {
	for _, f := range [][2]string{
		{"doctor_name", in.DoctorName}, {"address", in.Address},
		{"reason", in.Reason}, {"appointment_date", in.AppointmentDate},
	} {
		if err := required(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	date, ok := parseAppointmentDate(in.AppointmentDate)
	if !ok {
		return nil, errInvalidDate
	}

	a := &Appointment{
		PatientID:            p.ProfileID,
		DoctorName:           strings.TrimSpace(in.DoctorName),
		DoctorSpecialization: strings.TrimSpace(in.DoctorSpecialization),
		AppointmentDate:      date,
		Address:              strings.TrimSpace(in.Address),
		Reason:               strings.TrimSpace(in.Reason),
		Notes:                strings.TrimSpace(in.Notes),
		Status:               StatusScheduled,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateInput is a partial update; nil fields are left unchanged. Present
// doctor_name, appointment_date, address and reason must not be empty.
type UpdateInput struct {
	DoctorName           *string `json:"doctor_name"`
	DoctorSpecialization *string `json:"doctor_specialization"`
	AppointmentDate      *string `json:"appointment_date"`
	Address              *string `json:"address"`
	Reason               *string `json:"reason"`
	Notes                *string `json:"notes"`
	Status               *string `json:"status"`
}

// own loads an appointment of the caller. Someone else's appointment is
// reported as missing.
func (s *Service) own(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.PatientID != p.ProfileID {
		return nil, errAppointmentNotFound
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateInput) (*Appointment, error) {
	a, err := s.own(ctx, p, id)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		src  *string
		dst  *string
	}{
		{"doctor_name", in.DoctorName, &a.DoctorName},
		{"address", in.Address, &a.Address},
		{"reason", in.Reason, &a.Reason},
	} {
		if f.src == nil {
			continue
		}
		if err := required(f.name, *f.src); err != nil {
			return nil, err
		}
		*f.dst = strings.TrimSpace(*f.src)
	}
	if in.AppointmentDate != nil {
		if err := required("appointment_date", *in.AppointmentDate); err != nil {
			return nil, err
		}
		date, ok := parseAppointmentDate(*in.AppointmentDate)
		if !ok {
			return nil, errInvalidDate
		}
		a.AppointmentDate = date
	}
	if in.DoctorSpecialization != nil {
		a.DoctorSpecialization = strings.TrimSpace(*in.DoctorSpecialization)
	}
	if in.Notes != nil {
		a.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.Status != nil {
		st := Status(strings.TrimSpace(*in.Status))
		if !validStatuses[st] {
			return nil, apperr.Validation("invalid status: %s", *in.Status)
		}
		a.Status = st
	}

	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if _, err := s.own(ctx, p, id); err != nil {
		return err
	}
	return s.appointments.Delete(ctx, id)
}

// -- Study Appointments --

func (s *Service) StudyAppointments(ctx context.Context, p auth.Principal, studyID uuid.UUID) ([]*StudyAppointment, error) {
	if _, err := s.studies.OwnedStudy(ctx, p, studyID); err != nil {
		return nil, err
	}
	return s.appointments.ListByStudy(ctx, studyID)
}

// StudyAppointmentInput books an appointment for a study patient, named by
// participation_id or patient_id. participation_id wins when both are set.
type StudyAppointmentInput struct {
	CreateInput
	PatientID       *uuid.UUID `json:"patient_id"`
	ParticipationID *uuid.UUID `json:"participation_id"`
}

// resolvePatient returns the patient an appointment is booked for.
func (s *Service) resolvePatient(ctx context.Context, studyID uuid.UUID, in StudyAppointmentInput) (uuid.UUID, error) {
	switch {
	case in.ParticipationID != nil:
		part, err := s.studies.ParticipationInStudy(ctx, studyID, *in.ParticipationID)
		if err != nil {
			return uuid.Nil, err
		}
		return part.PatientID, nil
	case in.PatientID != nil:
		ok, err := s.patients.PatientExists(ctx, *in.PatientID)
		if err != nil {
			return uuid.Nil, err
		}
		if !ok {
			return uuid.Nil, apperr.NotFound("Patient not found")
		}
		return *in.PatientID, nil
	}
	return uuid.Nil, apperr.Validation("Provide patient_id or participation_id")
}

// CreateStudyAppointment books an appointment within a study the caller owns
// and tells the patient about it. A failed notification is logged only.
func (s *Service) CreateStudyAppointment(ctx context.Context, p auth.Principal, studyID uuid.UUID, in StudyAppointmentInput) (*Appointment, error) {
	study, err := s.studies.OwnedStudy(ctx, p, studyID)
	if err != nil {
		return nil, err
	}
	patientID, err := s.resolvePatient(ctx, studyID, in)
	if err != nil {
		return nil, err
	}
	date, ok := parseAppointmentDate(in.AppointmentDate)
	if !ok {
		return nil, errInvalidDate
	}

	a := &Appointment{
		PatientID:            patientID,
		StudyID:              &study.ID,
		DoctorName:           strings.TrimSpace(in.DoctorName),
		DoctorSpecialization: strings.TrimSpace(in.DoctorSpecialization),
		AppointmentDate:      date,
		Address:              strings.TrimSpace(in.Address),
		Reason:               strings.TrimSpace(in.Reason),
		Notes:                strings.TrimSpace(in.Notes),
		Status:               StatusScheduled,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("study_id", study.ID.String()).
		Msg("study appointment scheduled")

	s.notify(ctx, study, a)
	return a, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func appointmentMessage(studyTitle string, a *Appointment) string {
	return fmt.Sprintf("Appointment scheduled for study '%s' on %s. Doctor: %s. Address: %s.",
		studyTitle, a.AppointmentDate.Format(time.RFC3339), orNA(a.DoctorName), orNA(a.Address))
}

func (s *Service) notify(ctx context.Context, study *research.Study, a *Appointment) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, inbox.Notice{
		ResearcherID: study.CreatedBy,
		PatientID:    a.PatientID,
		Kind:         inbox.KindAppointmentScheduled,
		Message:      appointmentMessage(study.Title, a),
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("study_id", study.ID.String()).
			Msg("patient notification failed")
	}
}
