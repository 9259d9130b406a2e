package research

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/domain/inbox"
	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
	"github.com/medconnect/medconnect/internal/platform/metrics"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier delivers a notice to a patient.
type Notifier interface {
	Notify(ctx context.Context, n inbox.Notice) error
}

type Service struct {
	studies        StudyRepository
	participations ParticipationRepository
	documents      DocumentRepository
	tx             TxRunner
	blobs          blobstore.BlobStore
	notifier       Notifier
	metrics        *metrics.WorkflowMetrics
	logger         zerolog.Logger
	now            func() time.Time
}

func NewService(
	studies StudyRepository,
	participations ParticipationRepository,
	documents DocumentRepository,
	tx TxRunner,
	blobs blobstore.BlobStore,
	notifier Notifier,
	m *metrics.WorkflowMetrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		studies:        studies,
		participations: participations,
		documents:      documents,
		tx:             tx,
		blobs:          blobs,
		notifier:       notifier,
		metrics:        m,
		logger:         logger.With().Str("component", "research").Logger(),
		now:            time.Now,
	}
}

// -- Studies --

// CreateStudyInput carries the fields a researcher may set on a new study.
// Dates are YYYY-MM-DD; unparseable or missing dates default to today.
type CreateStudyInput struct {
	Title                   string `json:"title"`
	Description             string `json:"description"`
	Phase                   string `json:"phase"`
	Sponsor                 string `json:"sponsor"`
	Location                string `json:"location"`
	EligibilityCriteria     string `json:"eligibility_criteria"`
	PrimaryEndpoint         string `json:"primary_endpoint"`
	EstimatedEnrollment     int    `json:"estimated_enrollment"`
	StartDate               string `json:"start_date"`
	EstimatedCompletionDate string `json:"estimated_completion_date"`
	Compensation            string `json:"compensation"`
	ContactName             string `json:"contact_name"`
	ContactEmail            string `json:"contact_email"`
	ContactPhone            string `json:"contact_phone"`
}

func (s *Service) CreateStudy(ctx context.Context, p auth.Principal, in CreateStudyInput) (*Study, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.EstimatedEnrollment < 0 {
		return nil, apperr.Validation("estimated_enrollment must not be negative")
	}
	phase := strings.TrimSpace(in.Phase)
	if phase == "" {
		phase = DefaultPhase
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	st := &Study{
		Title:                   title,
		Description:             strings.TrimSpace(in.Description),
		Phase:                   phase,
		Sponsor:                 strings.TrimSpace(in.Sponsor),
		Location:                strings.TrimSpace(in.Location),
		EligibilityCriteria:     in.EligibilityCriteria,
		PrimaryEndpoint:         in.PrimaryEndpoint,
		EstimatedEnrollment:     in.EstimatedEnrollment,
		CurrentEnrollment:       0,
		StartDate:               parseDateOr(in.StartDate, today),
		EstimatedCompletionDate: parseDateOr(in.EstimatedCompletionDate, today),
		Status:                  StudyRecruiting,
		Compensation:            in.Compensation,
		ContactName:             in.ContactName,
		ContactEmail:            in.ContactEmail,
		ContactPhone:            in.ContactPhone,
		CreatedBy:               p.ProfileID,
	}
	if err := s.studies.Create(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func parseDateOr(s string, fallback time.Time) time.Time {
	if t, err := time.Parse(DateLayout, strings.TrimSpace(s)); err == nil {
		return t
	}
	return fallback
}

func (s *Service) GetStudy(ctx context.Context, id uuid.UUID) (*Study, error) {
	return s.studies.GetByID(ctx, id)
}

func (s *Service) ListStudies(ctx context.Context, f StudyFilter, limit, offset int) ([]*Study, int, error) {
	if f.Status != "" && !validStudyStatuses[f.Status] {
		return nil, 0, apperr.Validation("invalid status: %s", f.Status)
	}
	return s.studies.List(ctx, f, limit, offset)
}

// OwnedStudy loads a study and checks that p created it.
func (s *Service) OwnedStudy(ctx context.Context, p auth.Principal, studyID uuid.UUID) (*Study, error) {
	st, err := s.studies.GetByID(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if !st.OwnedBy(p.ProfileID) {
		return nil, apperr.Forbidden("Not authorized for this study")
	}
	return st, nil
}

func (s *Service) OwnedStudies(ctx context.Context, p auth.Principal) ([]*OwnedStudySummary, error) {
	return s.studies.ListOwned(ctx, p.ProfileID)
}

func (s *Service) PatientStudies(ctx context.Context, p auth.Principal) ([]*PatientStudy, error) {
	return s.participations.ListByPatient(ctx, p.ProfileID)
}

// -- Participations --

// Apply records a patient's application to a study with status applied.
func (s *Service) Apply(ctx context.Context, p auth.Principal, studyID uuid.UUID) (*Participation, error) {
	if _, err := s.studies.GetByID(ctx, studyID); err != nil {
		return nil, err
	}
	part := &Participation{StudyID: studyID, PatientID: p.ProfileID, Status: StatusApplied}
	if err := s.participations.Create(ctx, part); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Validation("Already applied to this study")
		}
		return nil, err
	}
	return part, nil
}

func (s *Service) Applicants(ctx context.Context, p auth.Principal, studyID uuid.UUID) ([]*Applicant, error) {
	if _, err := s.OwnedStudy(ctx, p, studyID); err != nil {
		return nil, err
	}
	return s.participations.ListApplicants(ctx, studyID)
}

// ParticipationInStudy returns the participation only when it belongs to studyID.
func (s *Service) ParticipationInStudy(ctx context.Context, studyID, participationID uuid.UUID) (*Participation, error) {
	part, err := s.participations.GetByID(ctx, participationID)
	if err != nil || part.StudyID != studyID {
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.NotFound("Participation not found for this study")
	}
	return part, nil
}

// TransitionInput is a researcher decision. A non-nil Notes replaces the
// participation notes whatever the action.
type TransitionInput struct {
	Action string
	Notes  *string
}

// Transition applies a researcher decision to a participation. The
// participation and its study are locked for the duration of the write so
// concurrent decisions on one study serialize on the enrollment counter.
// The patient notification runs after commit and its failure is logged only.
func (s *Service) Transition(ctx context.Context, p auth.Principal, participationID uuid.UUID, in TransitionInput) (*Participation, error) {
	action, err := ParseAction(in.Action)
	if err != nil {
		return nil, err
	}
	if !p.Role.IsResearcher() {
		s.metrics.ObserveTransition(string(action), "forbidden")
		return nil, apperr.Forbidden("Only researchers can manage applicants")
	}

	var (
		part    *Participation
		study   *Study
		outcome Outcome
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		part, err = s.participations.GetForUpdate(ctx, participationID)
		if err != nil {
			return err
		}
		study, err = s.studies.GetForUpdate(ctx, part.StudyID)
		if err != nil {
			return err
		}
		if !study.OwnedBy(p.ProfileID) {
			return apperr.Forbidden("Not authorized for this study")
		}

		outcome = transition(part, action, study.CurrentEnrollment, s.now())
		if in.Notes != nil {
			part.Notes = *in.Notes
		}
		if outcome.Changed() || in.Notes != nil {
			if err := s.participations.Update(ctx, part); err != nil {
				return err
			}
		}
		if outcome.EnrollmentDelta != 0 {
			n, err := s.studies.AdjustEnrollment(ctx, study.ID, outcome.EnrollmentDelta)
			if err != nil {
				return err
			}
			study.CurrentEnrollment = n
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition(string(action), resultLabel(err))
		return nil, err
	}
	s.metrics.ObserveTransition(string(action), "ok")

	s.logger.Info().
		Str("participation_id", part.ID.String()).
		Str("study_id", study.ID.String()).
		Str("action", string(action)).
		Str("from", string(outcome.From)).
		Str("to", string(outcome.To)).
		Int("current_enrollment", study.CurrentEnrollment).
		Msg("participation transitioned")

	if outcome.Notify != "" {
		s.notify(ctx, study, part, outcome.Notify)
	}
	return part, nil
}

func (s *Service) notify(ctx context.Context, study *Study, part *Participation, kind inbox.Kind) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, inbox.Notice{
		ResearcherID: study.CreatedBy,
		PatientID:    part.PatientID,
		Kind:         kind,
		Message:      noticeMessage(kind, study.Title),
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("participation_id", part.ID.String()).
			Str("study_id", study.ID.String()).
			Str("kind", string(kind)).
			Msg("patient notification failed")
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	}
	return "error"
}

// -- Documents --

// DocumentPrefix scopes study documents by study id.
const DocumentPrefix = "study-documents"

func (s *Service) Documents(ctx context.Context, p auth.Principal, studyID uuid.UUID) ([]*Document, error) {
	if _, err := s.OwnedStudy(ctx, p, studyID); err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		d.URL = blobstore.URL(d.FileKey)
	}
	return docs, nil
}

// DocumentAccess admits only the study owner to files stored under the
// study id scope.
func (s *Service) DocumentAccess(ctx context.Context, p auth.Principal, scope string) error {
	studyID, err := uuid.Parse(scope)
	if err != nil {
		return apperr.NotFound("file not found")
	}
	_, err = s.OwnedStudy(ctx, p, studyID)
	return err
}

// UploadDocument stores fh in the blob store and records it against the study.
// name defaults to the uploaded file name.
func (s *Service) UploadDocument(ctx context.Context, p auth.Principal, studyID uuid.UUID, name, docType string, fh *multipart.FileHeader) (*Document, error) {
	if _, err := s.OwnedStudy(ctx, p, studyID); err != nil {
		return nil, err
	}
	if fh == nil {
		return nil, apperr.Validation("No file provided")
	}
	dt, ok := ParseDocType(docType)
	if !ok {
		return nil, apperr.Validation("invalid doc_type: %s", docType)
	}
	if strings.TrimSpace(name) == "" {
		name = fh.Filename
	}

	obj, err := blobstore.PutFormFile(ctx, s.blobs, DocumentPrefix+"/"+studyID.String(), fh)
	if err != nil {
		return nil, blobstore.UploadError(err)
	}

	uploader := p.ProfileID
	doc := &Document{
		StudyID:    studyID,
		UploadedBy: &uploader,
		FileKey:    obj.Key,
		Name:       strings.TrimSpace(name),
		DocType:    dt,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(ctx, obj.Key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", obj.Key).Msg("orphaned study document blob")
		}
		return nil, err
	}
	doc.URL = blobstore.URL(doc.FileKey)
	return doc, nil
}

func (s *Service) DeleteDocument(ctx context.Context, p auth.Principal, documentID uuid.UUID) error {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if _, err := s.OwnedStudy(ctx, p, doc.StudyID); err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, documentID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.FileKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("key", doc.FileKey).Msg("study document blob not removed")
	}
	return nil
}
