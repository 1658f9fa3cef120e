package study

import (
	"fmt"
	"testing"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

func epochAR(t *testing.T, n int) *EpochsAR {
	t.Helper()
	ar := &EpochsAR{StudyUID: "Study_000001"}
	for i := 1; i <= n; i++ {
		_, err := ar.AddEpoch(EpochVO{
			SelectionUID: fmt.Sprintf("StudyEpoch_%06d", i),
			EpochTermUID: "CTTerm_000010",
		})
		if err != nil {
			t.Fatalf("AddEpoch #%d: %v", i, err)
		}
	}
	return ar
}

func assertContiguous(t *testing.T, ar *EpochsAR) {
	t.Helper()
	for i, vo := range ar.Epochs {
		if vo.Order != i+1 {
			t.Fatalf("order gap at index %d: epochs %+v", i, ar.Epochs)
		}
	}
}

func TestEpochsAR_AddAppendsAndNumbers(t *testing.T) {
	ar := epochAR(t, 3)
	assertContiguous(t, ar)
	if got := ar.Epochs[2].SelectionUID; got != "StudyEpoch_000003" {
		t.Fatalf("expected append at tail, got %s", got)
	}
}

func TestEpochsAR_AddAtPositionShiftsTail(t *testing.T) {
	ar := epochAR(t, 3)
	vo, err := ar.AddEpoch(EpochVO{
		SelectionUID: "StudyEpoch_000099",
		EpochTermUID: "CTTerm_000010",
		Order:        2,
	})
	if err != nil {
		t.Fatalf("AddEpoch: %v", err)
	}
	if vo.Order != 2 {
		t.Fatalf("expected order 2 got %d", vo.Order)
	}
	assertContiguous(t, ar)
	if ar.Epochs[1].SelectionUID != "StudyEpoch_000099" {
		t.Fatalf("expected insert at position 2, got %+v", ar.Epochs)
	}
	if ar.Epochs[2].SelectionUID != "StudyEpoch_000002" {
		t.Fatalf("expected old #2 shifted to #3, got %+v", ar.Epochs)
	}
}

func TestEpochsAR_RemoveClosesGap(t *testing.T) {
	ar := epochAR(t, 5)
	if err := ar.RemoveEpoch("StudyEpoch_000003"); err != nil {
		t.Fatalf("RemoveEpoch: %v", err)
	}
	if len(ar.Epochs) != 4 {
		t.Fatalf("expected 4 epochs got %d", len(ar.Epochs))
	}
	assertContiguous(t, ar)
	// Former #4 and #5 moved up.
	if ar.Epochs[2].SelectionUID != "StudyEpoch_000004" || ar.Epochs[3].SelectionUID != "StudyEpoch_000005" {
		t.Fatalf("unexpected tail after delete: %+v", ar.Epochs)
	}
}

func TestEpochsAR_ReorderMovesAndClamps(t *testing.T) {
	ar := epochAR(t, 4)
	if err := ar.ReorderEpoch("StudyEpoch_000004", 1); err != nil {
		t.Fatalf("ReorderEpoch: %v", err)
	}
	assertContiguous(t, ar)
	if ar.Epochs[0].SelectionUID != "StudyEpoch_000004" {
		t.Fatalf("expected #4 at head, got %+v", ar.Epochs)
	}

	if err := ar.ReorderEpoch("StudyEpoch_000001", 99); err != nil {
		t.Fatalf("ReorderEpoch: %v", err)
	}
	assertContiguous(t, ar)
	if ar.Epochs[len(ar.Epochs)-1].SelectionUID != "StudyEpoch_000001" {
		t.Fatalf("expected clamp to tail, got %+v", ar.Epochs)
	}
}

func TestEpochsAR_UnknownSelection(t *testing.T) {
	ar := epochAR(t, 2)
	if err := ar.RemoveEpoch("StudyEpoch_000042"); !apierr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActivitySelectionsAR_DuplicateActivityRejected(t *testing.T) {
	ar := &ActivitySelectionsAR{StudyUID: "Study_000001"}
	_, err := ar.Add(ActivitySelectionVO{
		SelectionUID:          "StudyActivity_000001",
		ActivityUID:           "Activity_000001",
		StudyActivityGroupUID: "StudyActivityGroup_000001",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err = ar.Add(ActivitySelectionVO{
		SelectionUID:          "StudyActivity_000002",
		ActivityUID:           "Activity_000001",
		StudyActivityGroupUID: "StudyActivityGroup_000001",
	})
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error for duplicate grouping, got %v", err)
	}

	// Same activity under a different grouping is allowed.
	_, err = ar.Add(ActivitySelectionVO{
		SelectionUID:          "StudyActivity_000003",
		ActivityUID:           "Activity_000001",
		StudyActivityGroupUID: "StudyActivityGroup_000002",
	})
	if err != nil {
		t.Fatalf("Add with distinct grouping: %v", err)
	}
}

func TestActivityGroupSelectionsAR_AddUpdateRemove(t *testing.T) {
	ar := &ActivityGroupSelectionsAR{StudyUID: "Study_000001"}
	if err := ar.Add(ActivityGroupSelectionVO{
		SelectionUID:         "StudyActivityGroup_000001",
		ActivityGroupUID:     "ActivityGroup_000001",
		ActivityGroupVersion: "1.0",
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := ar.Update(ActivityGroupSelectionVO{
		SelectionUID:         "StudyActivityGroup_000001",
		ActivityGroupUID:     "ActivityGroup_000001",
		ActivityGroupVersion: "2.0",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	vo, err := ar.ByUID("StudyActivityGroup_000001")
	if err != nil {
		t.Fatalf("ByUID: %v", err)
	}
	if vo.ActivityGroupVersion != "2.0" {
		t.Fatalf("expected pinned version 2.0, got %s", vo.ActivityGroupVersion)
	}

	if err := ar.Remove("StudyActivityGroup_000001"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(ar.Selections) != 0 {
		t.Fatalf("expected empty selections, got %+v", ar.Selections)
	}
}
