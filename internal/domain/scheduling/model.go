// Package scheduling manages patient appointments, including appointments a
// researcher books for a patient in the context of one of their studies.
package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true, StatusCompleted: true, StatusCancelled: true, StatusRescheduled: true,
}

type Appointment struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	StudyID              *uuid.UUID `db:"study_id" json:"study_id,omitempty"`
	DoctorName           string     `db:"doctor_name" json:"doctor_name"`
	DoctorSpecialization string     `db:"doctor_specialization" json:"doctor_specialization"`
	AppointmentDate      time.Time  `db:"appointment_date" json:"appointment_date"`
	Address              string     `db:"address" json:"address"`
	Reason               string     `db:"reason" json:"reason"`
	Notes                string     `db:"notes" json:"notes"`
	Status               Status     `db:"status" json:"status"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// StudyAppointment is an appointment as listed to the study owner.
type StudyAppointment struct {
	*Appointment
	PatientName string `json:"patient_name"`
}

// DisplayName is the full name of a profile, or its username when no name is set.
func DisplayName(firstName, lastName, username string) string {
	if name := strings.TrimSpace(firstName + " " + lastName); name != "" {
		return name
	}
	return username
}

// appointmentLayouts are the accepted forms of appointment_date. Values
// without a zone are read as UTC.
var appointmentLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseAppointmentDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range appointmentLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
