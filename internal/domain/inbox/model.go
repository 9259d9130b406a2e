package inbox

import (
	"time"

	"github.com/google/uuid"
)

// ContactStatus is the state of a researcher-to-patient contact request.
type ContactStatus string

const (
	ContactPending  ContactStatus = "pending"
	ContactAccepted ContactStatus = "accepted"
	ContactDeclined ContactStatus = "declined"
)

// ContactRequest is the single mailbox record kept per (researcher, patient)
// pair. Workflow notifications overwrite its message and force it accepted.
type ContactRequest struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	ResearcherID uuid.UUID     `db:"researcher_id" json:"researcher_id"`
	PatientID    uuid.UUID     `db:"patient_id" json:"patient_id"`
	Message      string        `db:"message" json:"message"`
	Status       ContactStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`

	// Display name of the other party, filled by list queries.
	ResearcherName string `db:"-" json:"researcher_name,omitempty"`
	PatientName    string `db:"-" json:"patient_name,omitempty"`
}

// Kind classifies a workflow notification.
type Kind string

const (
	KindScreeningAccepted    Kind = "screening_accepted"
	KindEnrolled             Kind = "enrolled"
	KindAppointmentScheduled Kind = "appointment_scheduled"
)

// Notice is a notification to deliver from a researcher to a patient.
type Notice struct {
	ResearcherID uuid.UUID
	PatientID    uuid.UUID
	Kind         Kind
	Message      string
}

// Notification is the append-only record of a delivered Notice.
type Notification struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ResearcherID *uuid.UUID `db:"researcher_id" json:"researcher_id,omitempty"`
	Kind         Kind       `db:"kind" json:"kind"`
	Message      string     `db:"message" json:"message"`
	ReadAt       *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// ParseResponse maps a patient reply ("accept" or "decline") to a status.
func ParseResponse(s string) (ContactStatus, bool) {
	switch s {
	case "accept":
		return ContactAccepted, true
	case "decline":
		return ContactDeclined, true
	}
	return "", false
}
