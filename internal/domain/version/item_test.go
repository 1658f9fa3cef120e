package version

import (
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

var testLib = LibraryVO{Name: "Sponsor", IsEditable: true}

func newDraftItem(t *testing.T) *Item {
	t.Helper()
	it, err := NewItem("Activity_000001", testLib, "TST", "", time.Now())
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	return it
}

func TestNewItem_StartsAtDraftZeroOne(t *testing.T) {
	it := newDraftItem(t)
	if it.Meta.Status != StatusDraft {
		t.Fatalf("expected Draft got %s", it.Meta.Status)
	}
	if got := it.Meta.Version.String(); got != "0.1" {
		t.Fatalf("expected version 0.1 got %s", got)
	}
	if it.Meta.ChangeDescription != "Initial version" {
		t.Fatalf("expected default change description, got %q", it.Meta.ChangeDescription)
	}
}

func TestNewItem_RejectsNonEditableLibrary(t *testing.T) {
	_, err := NewItem("Activity_000001", LibraryVO{Name: "CDISC"}, "TST", "", time.Now())
	if !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}
}

func TestItem_EditApproveNewVersionFlow(t *testing.T) {
	it := newDraftItem(t)

	if err := it.Edit("TST", "first edit", time.Now()); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if err := it.Edit("TST", "second edit", time.Now()); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got := it.Meta.Version.String(); got != "0.3" {
		t.Fatalf("after two edits expected 0.3 got %s", got)
	}
	if it.Meta.Status != StatusDraft {
		t.Fatalf("expected Draft got %s", it.Meta.Status)
	}

	if err := it.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := it.Meta.Version.String(); got != "1.0" {
		t.Fatalf("after approve expected 1.0 got %s", got)
	}
	if it.Meta.Status != StatusFinal {
		t.Fatalf("expected Final got %s", it.Meta.Status)
	}

	if err := it.NewVersion("TST", "", time.Now()); err != nil {
		t.Fatalf("NewVersion: %v", err)
	}
	if got := it.Meta.Version.String(); got != "1.1" {
		t.Fatalf("after new version expected 1.1 got %s", got)
	}
	if it.Meta.Status != StatusDraft {
		t.Fatalf("expected Draft got %s", it.Meta.Status)
	}
}

func TestItem_SecondApproveBumpsMajorLine(t *testing.T) {
	it := newDraftItem(t)
	if err := it.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := it.NewVersion("TST", "", time.Now()); err != nil {
		t.Fatalf("NewVersion: %v", err)
	}
	if err := it.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := it.Meta.Version.String(); got != "2.0" {
		t.Fatalf("expected 2.0 got %s", got)
	}
}

func TestItem_InactivateReactivateKeepVersion(t *testing.T) {
	it := newDraftItem(t)
	if err := it.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if err := it.Inactivate("TST", "", time.Now()); err != nil {
		t.Fatalf("Inactivate: %v", err)
	}
	if it.Meta.Status != StatusRetired {
		t.Fatalf("expected Retired got %s", it.Meta.Status)
	}
	if got := it.Meta.Version.String(); got != "1.0" {
		t.Fatalf("inactivate must keep version, got %s", got)
	}

	if err := it.Reactivate("TST", "", time.Now()); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if it.Meta.Status != StatusFinal {
		t.Fatalf("expected Final got %s", it.Meta.Status)
	}
	if got := it.Meta.Version.String(); got != "1.0" {
		t.Fatalf("reactivate must keep version, got %s", got)
	}
}

func TestItem_GuardsRejectWrongStatus(t *testing.T) {
	it := newDraftItem(t)

	if err := it.NewVersion("TST", "", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("NewVersion on draft: expected business logic error, got %v", err)
	}
	if err := it.Inactivate("TST", "", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("Inactivate on draft: expected business logic error, got %v", err)
	}
	if err := it.Reactivate("TST", "", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("Reactivate on draft: expected business logic error, got %v", err)
	}

	if err := it.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := it.Edit("TST", "x", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("Edit on final: expected business logic error, got %v", err)
	}
	if err := it.Approve("TST", "", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("Approve on final: expected business logic error, got %v", err)
	}
}

func TestItem_GuardsRejectNonEditableLibrary(t *testing.T) {
	it := newDraftItem(t)
	it.Library = LibraryVO{Name: "CDISC", IsEditable: false}

	if err := it.Edit("TST", "x", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}
	if err := it.Approve("TST", "", time.Now()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}
	if err := it.CanSoftDelete(); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error, got %v", err)
	}
}

func TestItem_CanSoftDelete(t *testing.T) {
	it := newDraftItem(t)
	if err := it.CanSoftDelete(); err != nil {
		t.Fatalf("never-approved draft must be deletable: %v", err)
	}

	if err := it.Approve("TST", "", time.Now()); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := it.CanSoftDelete(); !apierr.IsBusinessLogic(err) {
		t.Fatalf("final item: expected business logic error, got %v", err)
	}

	if err := it.NewVersion("TST", "", time.Now()); err != nil {
		t.Fatalf("NewVersion: %v", err)
	}
	// Draft again, but the 1.x line has been approved before.
	if err := it.CanSoftDelete(); !apierr.IsBusinessLogic(err) {
		t.Fatalf("ever-approved draft: expected business logic error, got %v", err)
	}
}
