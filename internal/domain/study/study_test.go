package study

import (
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

func draftStudy(t *testing.T) *DefinitionAR {
	t.Helper()
	ar, err := NewDefinition("Study_000001", IdentificationVO{
		StudyNumber:   "0001",
		ProjectNumber: "CDISC DEV",
	}, "TST", time.Now())
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	return ar
}

func TestNewDefinition_RequiresNumberOrAcronym(t *testing.T) {
	_, err := NewDefinition("Study_000001", IdentificationVO{}, "TST", time.Now())
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIdentificationVO_StudyID(t *testing.T) {
	v := IdentificationVO{StudyNumber: "0001", ProjectNumber: "CDISC DEV"}
	if got := v.StudyID(); got != "CDISC DEV-0001" {
		t.Fatalf("StudyID = %q", got)
	}
	if got := (IdentificationVO{StudyAcronym: "DUMMY"}).StudyID(); got != "" {
		t.Fatalf("StudyID without number must be empty, got %q", got)
	}
}

func TestDefinitionAR_LockRequiresTitle(t *testing.T) {
	ar := draftStudy(t)
	if err := ar.Lock("TST", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}

	ar.Description.StudyTitle = "A dummy trial"
	if err := ar.Lock("TST", time.Now()); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if ar.Status != StatusLocked {
		t.Fatalf("expected LOCKED got %s", ar.Status)
	}
	if ar.LockedVersionNumber != 1 {
		t.Fatalf("expected locked version 1 got %d", ar.LockedVersionNumber)
	}
}

func TestDefinitionAR_LockedRejectsEdits(t *testing.T) {
	ar := draftStudy(t)
	ar.Description.StudyTitle = "A dummy trial"
	if err := ar.Lock("TST", time.Now()); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	err := ar.EditMetadata(ar.Identification, DescriptionVO{StudyTitle: "changed"}, "TST", time.Now())
	if !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}
	if err := ar.Release("TST", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}
}

func TestDefinitionAR_UnlockAndRelock(t *testing.T) {
	ar := draftStudy(t)
	ar.Description.StudyTitle = "A dummy trial"
	if err := ar.Lock("TST", time.Now()); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := ar.Unlock("TST", time.Now()); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if ar.Status != StatusDraft {
		t.Fatalf("expected DRAFT got %s", ar.Status)
	}
	if err := ar.Lock("TST", time.Now()); err != nil {
		t.Fatalf("second Lock: %v", err)
	}
	if ar.LockedVersionNumber != 2 {
		t.Fatalf("locked version must keep counting, got %d", ar.LockedVersionNumber)
	}
}

func TestDefinitionAR_UnlockRequiresLocked(t *testing.T) {
	ar := draftStudy(t)
	if err := ar.Unlock("TST", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}
}
