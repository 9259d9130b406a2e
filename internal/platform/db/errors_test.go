package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medconnect/medconnect/internal/platform/apperr"
)

func TestTranslate(t *testing.T) {
	if Translate(nil, "study") != nil {
		t.Error("nil should stay nil")
	}

	err := Translate(pgx.ErrNoRows, "study")
	if !errors.Is(err, apperr.ErrNotFound) || err.Error() != "study not found" {
		t.Errorf("expected not found, got %v", err)
	}

	err = Translate(&pgconn.PgError{Code: "23505"}, "participation")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	err = Translate(&pgconn.PgError{Code: "23514", ConstraintName: "research_study_current_enrollment_check"}, "study")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict for check violation, got %v", err)
	}

	plain := errors.New("connection reset")
	if Translate(plain, "study") != plain {
		t.Error("unknown errors pass through")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected unique violation")
	}
	if IsUniqueViolation(errors.New("x")) {
		t.Error("plain error is not a unique violation")
	}
}
