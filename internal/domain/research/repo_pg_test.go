package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
	"github.com/medconnect/medconnect/internal/platform/db"
)

var studyColumns = []string{"id", "title", "description", "phase", "sponsor", "location",
	"eligibility_criteria", "primary_endpoint", "estimated_enrollment", "current_enrollment",
	"start_date", "estimated_completion_date", "status", "compensation",
	"contact_name", "contact_email", "contact_phone", "created_by", "created_at", "updated_at"}

var participationColumns = []string{"id", "study_id", "patient_id", "status", "applied_date", "enrolled_date", "notes"}

func studyRow(id, owner uuid.UUID, enrollment int) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(studyColumns).AddRow(
		id, "CAR-T Trial", "", "Phase I", "", "",
		"", "", 10, enrollment,
		now, now, StudyRecruiting, "",
		"", "", "", owner, now, now)
}

func TestStudyRepo_AdjustEnrollment_BelowZero(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("UPDATE research_study").
		WithArgs(id, -1).
		WillReturnRows(pgxmock.NewRows([]string{"current_enrollment"}))

	_, err = NewStudyRepoPG(mock).AdjustEnrollment(context.Background(), id, -1)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStudyRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM research_study WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(studyColumns))

	_, err = NewStudyRepoPG(mock).GetByID(context.Background(), id)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if msg, _ := apperr.Message(err); msg != "Study not found" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestStudyRepo_List_Filters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	id, owner := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM research_study WHERE 1=1 AND status = \\$1 AND title ILIKE").
		WithArgs(StudyRecruiting, "car").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("ORDER BY created_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(StudyRecruiting, "car", 20, 0).
		WillReturnRows(studyRow(id, owner, 0))

	items, total, err := NewStudyRepoPG(mock).List(context.Background(),
		StudyFilter{Status: StudyRecruiting, Query: "car"}, 20, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != id {
		t.Errorf("unexpected result total=%d items=%v", total, items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// The whole decision runs in one transaction with both rows locked.
func TestTransition_PostgresTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	owner, patient := uuid.New(), uuid.New()
	studyID, partID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM study_participation WHERE id = \\$1 FOR UPDATE").
		WithArgs(partID).
		WillReturnRows(pgxmock.NewRows(participationColumns).
			AddRow(partID, studyID, patient, StatusScreening, time.Now(), (*time.Time)(nil), ""))
	mock.ExpectQuery("FROM research_study WHERE id = \\$1 FOR UPDATE").
		WithArgs(studyID).
		WillReturnRows(studyRow(studyID, owner, 2))
	mock.ExpectExec("UPDATE study_participation SET status").
		WithArgs(partID, StatusEnrolled, pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("UPDATE research_study").
		WithArgs(studyID, 1).
		WillReturnRows(pgxmock.NewRows([]string{"current_enrollment"}).AddRow(3))
	mock.ExpectCommit()

	svc := NewService(NewStudyRepoPG(mock), NewParticipationRepoPG(mock), NewDocumentRepoPG(mock),
		db.NewTxManager(mock), blobstore.NewMemoryStore(), nil, nil, zerolog.Nop())

	researcher := auth.Principal{ProfileID: owner, Role: auth.RoleResearcher}
	part, err := svc.Transition(context.Background(), researcher, partID, TransitionInput{Action: "enroll"})
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if part.Status != StatusEnrolled || part.EnrolledDate == nil {
		t.Errorf("unexpected participation %+v", part)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransition_PostgresRollbackForNonOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	owner, patient := uuid.New(), uuid.New()
	studyID, partID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM study_participation WHERE id = \\$1 FOR UPDATE").
		WithArgs(partID).
		WillReturnRows(pgxmock.NewRows(participationColumns).
			AddRow(partID, studyID, patient, StatusApplied, time.Now(), (*time.Time)(nil), ""))
	mock.ExpectQuery("FROM research_study WHERE id = \\$1 FOR UPDATE").
		WithArgs(studyID).
		WillReturnRows(studyRow(studyID, owner, 0))
	mock.ExpectRollback()

	svc := NewService(NewStudyRepoPG(mock), NewParticipationRepoPG(mock), NewDocumentRepoPG(mock),
		db.NewTxManager(mock), blobstore.NewMemoryStore(), nil, nil, zerolog.Nop())

	stranger := auth.Principal{ProfileID: uuid.New(), Role: auth.RoleResearcher}
	notes := "overwritten?"
	_, err = svc.Transition(context.Background(), stranger, partID, TransitionInput{Action: "approve", Notes: &notes})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
