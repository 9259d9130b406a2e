package research

import (
	"time"

	"github.com/google/uuid"
)

type StudyStatus string

const (
	StudyRecruiting StudyStatus = "recruiting"
	StudyInProgress StudyStatus = "in_progress"
	StudyCompleted  StudyStatus = "completed"
	StudyCancelled  StudyStatus = "cancelled"
)

var validStudyStatuses = map[StudyStatus]bool{
	StudyRecruiting: true, StudyInProgress: true,
	StudyCompleted: true, StudyCancelled: true,
}

const DefaultPhase = "Phase I"

// DateLayout is the wire format of study dates.
const DateLayout = "2006-01-02"

// Study is a research study owned by the researcher in CreatedBy.
// CurrentEnrollment only moves through the participation workflow.
type Study struct {
	ID                      uuid.UUID   `db:"id" json:"id"`
	Title                   string      `db:"title" json:"title"`
	Description             string      `db:"description" json:"description"`
	Phase                   string      `db:"phase" json:"phase"`
	Sponsor                 string      `db:"sponsor" json:"sponsor"`
	Location                string      `db:"location" json:"location"`
	EligibilityCriteria     string      `db:"eligibility_criteria" json:"eligibility_criteria"`
	PrimaryEndpoint         string      `db:"primary_endpoint" json:"primary_endpoint"`
	EstimatedEnrollment     int         `db:"estimated_enrollment" json:"estimated_enrollment"`
	CurrentEnrollment       int         `db:"current_enrollment" json:"current_enrollment"`
	StartDate               time.Time   `db:"start_date" json:"start_date"`
	EstimatedCompletionDate time.Time   `db:"estimated_completion_date" json:"estimated_completion_date"`
	Status                  StudyStatus `db:"status" json:"status"`
	Compensation            string      `db:"compensation" json:"compensation"`
	ContactName             string      `db:"contact_name" json:"contact_name"`
	ContactEmail            string      `db:"contact_email" json:"contact_email"`
	ContactPhone            string      `db:"contact_phone" json:"contact_phone"`
	CreatedBy               uuid.UUID   `db:"created_by" json:"created_by"`
	CreatedAt               time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at" json:"updated_at"`
}

func (s *Study) OwnedBy(profileID uuid.UUID) bool { return s.CreatedBy == profileID }

// StudyFilter narrows study listings. Empty fields match everything.
type StudyFilter struct {
	Status StudyStatus
	Phase  string
	Query  string
}

// OwnedStudySummary is a researcher's study with its live accepted count
// (participations in screening or enrolled).
type OwnedStudySummary struct {
	*Study
	AcceptedCount int `json:"accepted_count"`
}

type ParticipationStatus string

const (
	StatusInterested ParticipationStatus = "interested"
	StatusApplied    ParticipationStatus = "applied"
	StatusScreening  ParticipationStatus = "screening"
	StatusEnrolled   ParticipationStatus = "enrolled"
	StatusCompleted  ParticipationStatus = "completed"
	StatusWithdrawn  ParticipationStatus = "withdrawn"
	StatusRejected   ParticipationStatus = "rejected"
)

// Participation links one patient to one study.
type Participation struct {
	ID           uuid.UUID           `db:"id" json:"id"`
	StudyID      uuid.UUID           `db:"study_id" json:"study_id"`
	PatientID    uuid.UUID           `db:"patient_id" json:"patient_id"`
	Status       ParticipationStatus `db:"status" json:"status"`
	AppliedDate  time.Time           `db:"applied_date" json:"applied_date"`
	EnrolledDate *time.Time          `db:"enrolled_date" json:"enrolled_date,omitempty"`
	Notes        string              `db:"notes" json:"notes"`
}

// Applicant is a participation as shown to the owning researcher.
type Applicant struct {
	*Participation
	PatientName string `json:"patient_name"`
}

// PatientStudy is one of a patient's participations with its study.
type PatientStudy struct {
	Study         *Study              `json:"study"`
	Participation ParticipationStatus `json:"participation_status"`
	AppliedDate   time.Time           `json:"applied_date"`
}

type DocType string

const (
	DocConsent   DocType = "consent"
	DocProtocol  DocType = "protocol"
	DocGuideline DocType = "guideline"
	DocOther     DocType = "other"
)

func ParseDocType(s string) (DocType, bool) {
	switch DocType(s) {
	case "":
		return DocOther, true
	case DocConsent, DocProtocol, DocGuideline, DocOther:
		return DocType(s), true
	}
	return "", false
}

// Document is a file attached to a study by its owner.
type Document struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	StudyID    uuid.UUID  `db:"study_id" json:"study_id"`
	UploadedBy *uuid.UUID `db:"uploaded_by" json:"uploaded_by,omitempty"`
	FileKey    string     `db:"file_key" json:"-"`
	Name       string     `db:"name" json:"name"`
	DocType    DocType    `db:"doc_type" json:"doc_type"`
	UploadedAt time.Time  `db:"uploaded_at" json:"uploaded_at"`
	URL        string     `db:"-" json:"url"`
}
