package research

import (
	"fmt"
	"time"

	"github.com/medconnect/medconnect/internal/domain/inbox"
	"github.com/medconnect/medconnect/internal/platform/apperr"
)

// Action is a researcher decision on an applicant.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionEnroll   Action = "enroll"
	ActionWithdraw Action = "withdraw"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject, ActionEnroll, ActionWithdraw:
		return Action(s), nil
	}
	return "", apperr.Validation("Invalid action")
}

// Outcome describes the effect of one transition.
type Outcome struct {
	From            ParticipationStatus
	To              ParticipationStatus
	EnrollmentDelta int
	// Notify is the notification owed to the patient, empty for none.
	Notify inbox.Kind
}

// Changed reports whether the participation row must be written.
func (o Outcome) Changed() bool { return o.From != o.To }

// transition applies action to p in place. The current state does not gate
// the action. currentEnrollment is the study counter before the change and
// keeps a withdraw from taking it below zero. Enrolling an already enrolled
// participant changes nothing but still notifies.
func transition(p *Participation, action Action, currentEnrollment int, now time.Time) Outcome {
	out := Outcome{From: p.Status, To: p.Status}

	switch action {
	case ActionApprove:
		out.To = StatusScreening
		out.Notify = inbox.KindScreeningAccepted
	case ActionReject:
		out.To = StatusRejected
	case ActionEnroll:
		out.Notify = inbox.KindEnrolled
		if p.Status != StatusEnrolled {
			out.To = StatusEnrolled
			out.EnrollmentDelta = 1
			enrolled := now
			p.EnrolledDate = &enrolled
		}
	case ActionWithdraw:
		out.To = StatusWithdrawn
		if p.Status == StatusEnrolled && currentEnrollment > 0 {
			out.EnrollmentDelta = -1
		}
	}

	p.Status = out.To
	return out
}

func screeningMessage(title string) string {
	return fmt.Sprintf("🎉 Congratulations! You have been accepted for screening in the clinical trial '%s'. "+
		"The research team will contact you soon for next steps.", title)
}

func enrolledMessage(title string) string {
	return fmt.Sprintf("🎉 Congratulations! You have been officially enrolled in the clinical trial '%s'. "+
		"Welcome to the study!", title)
}

func noticeMessage(kind inbox.Kind, title string) string {
	switch kind {
	case inbox.KindScreeningAccepted:
		return screeningMessage(title)
	case inbox.KindEnrolled:
		return enrolledMessage(title)
	}
	return ""
}
