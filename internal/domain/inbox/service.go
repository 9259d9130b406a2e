package inbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/metrics"
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	contacts      ContactRequestRepository
	notifications NotificationRepository
	patients      PatientDirectory
	tx            TxRunner
	metrics       *metrics.WorkflowMetrics
	now           func() time.Time
}

func NewService(
	contacts ContactRequestRepository,
	notifications NotificationRepository,
	patients PatientDirectory,
	tx TxRunner,
	m *metrics.WorkflowMetrics,
) *Service {
	return &Service{
		contacts:      contacts,
		notifications: notifications,
		patients:      patients,
		tx:            tx,
		metrics:       m,
		now:           time.Now,
	}
}

// -- Contact Requests --

func (s *Service) SendContactRequest(ctx context.Context, p auth.Principal, patientID uuid.UUID, message string) (*ContactRequest, error) {
	ok, err := s.patients.PatientExists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("Patient not found")
	}

	cr := &ContactRequest{
		ResearcherID: p.ProfileID,
		PatientID:    patientID,
		Message:      strings.TrimSpace(message),
		Status:       ContactPending,
	}
	if err := s.contacts.Create(ctx, cr); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Validation("Contact request already sent to this patient")
		}
		return nil, err
	}
	return cr, nil
}

// ListContactRequests returns sent requests for researchers and received
// requests for patients.
func (s *Service) ListContactRequests(ctx context.Context, p auth.Principal) ([]*ContactRequest, error) {
	switch p.Role {
	case auth.RoleResearcher:
		return s.contacts.ListBySender(ctx, p.ProfileID)
	case auth.RolePatient:
		return s.contacts.ListByRecipient(ctx, p.ProfileID)
	}
	return nil, apperr.Validation("Invalid user role")
}

func (s *Service) RespondContactRequest(ctx context.Context, p auth.Principal, id uuid.UUID, response string) (*ContactRequest, error) {
	var out *ContactRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cr, err := s.contacts.GetByID(ctx, id)
		if err != nil || cr.PatientID != p.ProfileID {
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			return apperr.NotFound("Contact request not found")
		}
		if cr.Status != ContactPending {
			return apperr.Validation("Contact request has already been responded to")
		}
		status, ok := ParseResponse(response)
		if !ok {
			return apperr.Validation(`Invalid response. Must be "accept" or "decline"`)
		}
		out, err = s.contacts.UpdateStatus(ctx, id, status)
		return err
	})
	return out, err
}

// -- Notifications --

// Notify upserts the researcher/patient mailbox with the message and appends
// a Notification row, both in one transaction.
func (s *Service) Notify(ctx context.Context, n Notice) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.contacts.Upsert(ctx, n.ResearcherID, n.PatientID, n.Message, ContactAccepted); err != nil {
			return err
		}
		researcherID := n.ResearcherID
		return s.notifications.Create(ctx, &Notification{
			PatientID:    n.PatientID,
			ResearcherID: &researcherID,
			Kind:         n.Kind,
			Message:      n.Message,
		})
	})
	s.metrics.ObserveNotification(string(n.Kind), err)
	return err
}

func (s *Service) ListNotifications(ctx context.Context, p auth.Principal, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.notifications.ListByPatient(ctx, p.ProfileID, unreadOnly, limit, offset)
}

func (s *Service) MarkNotificationRead(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	return s.notifications.MarkRead(ctx, p.ProfileID, id, s.now())
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, p auth.Principal) (int64, error) {
	return s.notifications.MarkAllRead(ctx, p.ProfileID, s.now())
}
