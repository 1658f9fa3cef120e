package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/concepts"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore/memstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/ctxutil"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

const epochCodelist = "C99079"

type epochFixture struct {
	svc     StudyEpochService
	studies StudyService
}

func newEpochFixture(t *testing.T) (*epochFixture, string) {
	t.Helper()
	ctx := ctxutil.WithAuthor(context.Background(), "JD")
	store := memstore.New()
	log := logger.NewNop()
	c := cache.NewMemory(time.Minute)

	libRepo := repos.NewLibraryRepo(store, log)
	lib, err := libRepo.EnsureLibrary(ctx, "Sponsor", true)
	if err != nil {
		t.Fatalf("ensure library: %v", err)
	}

	termRepo := repos.NewCTTermRepo(store, c, log)
	for uid, vo := range map[string]concepts.CTTermVO{
		"CTTerm_000001": {CatalogueName: "SDTM CT", CodelistUID: epochCodelist, Name: "Screening"},
		"CTTerm_000002": {CatalogueName: "SDTM CT", CodelistUID: "C66767", Name: "Completed"},
	} {
		ar, err := concepts.NewCTTerm(uid, lib, vo, "JD", time.Now().UTC())
		if err != nil {
			t.Fatalf("new term: %v", err)
		}
		if err := termRepo.Save(ctx, ar); err != nil {
			t.Fatalf("save term: %v", err)
		}
		if err := ar.Approve("JD", "", time.Now().UTC()); err != nil {
			t.Fatalf("approve term: %v", err)
		}
		if err := termRepo.Save(ctx, ar); err != nil {
			t.Fatalf("save approved term: %v", err)
		}
	}

	studyRepo := repos.NewStudyRepo(store, c, log)
	epochRepo := repos.NewStudyEpochRepo(store, c, log)
	groupRepo := repos.NewStudyActivityGroupRepo(store, c, log)
	actRepo := repos.NewStudyActivityRepo(store, c, log)

	studies := NewStudyService(log, studyRepo, epochRepo, groupRepo, actRepo)
	st, err := studies.Create(ctx, StudyInput{StudyNumber: "0", ProjectNumber: "CDISC DEV"})
	if err != nil {
		t.Fatalf("create study: %v", err)
	}

	return &epochFixture{
		svc:     NewStudyEpochService(log, epochRepo, termRepo, epochCodelist),
		studies: studies,
	}, st.UID
}

func TestStudyEpochServiceRequiresAuthor(t *testing.T) {
	fix, studyUID := newEpochFixture(t)
	_, err := fix.svc.Create(context.Background(), studyUID, EpochInput{EpochTermUID: "CTTerm_000001"})
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error without author, got %v", err)
	}
}

func TestStudyEpochServiceValidatesCodelist(t *testing.T) {
	fix, studyUID := newEpochFixture(t)
	ctx := ctxutil.WithAuthor(context.Background(), "JD")

	if _, err := fix.svc.Create(ctx, studyUID, EpochInput{EpochTermUID: "CTTerm_000002"}); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error for wrong codelist, got %v", err)
	}
	vo, err := fix.svc.Create(ctx, studyUID, EpochInput{EpochTermUID: "CTTerm_000001"})
	if err != nil {
		t.Fatalf("create epoch: %v", err)
	}
	if vo.Order != 1 {
		t.Fatalf("expected first epoch at order 1, got %d", vo.Order)
	}
}

func TestStudyEpochServiceBatch(t *testing.T) {
	fix, studyUID := newEpochFixture(t)
	ctx := ctxutil.WithAuthor(context.Background(), "JD")

	results, err := fix.svc.Batch(ctx, studyUID, []EpochBatchOperation{
		{Method: http.MethodPost, Content: EpochInput{EpochTermUID: "CTTerm_000001"}},
		{Method: http.MethodPost, Content: EpochInput{EpochTermUID: "CTTerm_000002"}},
		{Method: http.MethodDelete, SelectionUID: "StudyEpoch_999999"},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Code != http.StatusCreated || results[0].Epoch == nil {
		t.Fatalf("expected first op created, got %+v", results[0])
	}
	// Wrong codelist fails its own entry without aborting the batch.
	if results[1].Code != http.StatusBadRequest {
		t.Fatalf("expected second op rejected, got %+v", results[1])
	}
	if results[2].Code != http.StatusNotFound {
		t.Fatalf("expected third op not found, got %+v", results[2])
	}

	snaps, err := fix.svc.List(ctx, studyUID, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected one epoch after batch, got %d", len(snaps))
	}
}

func TestStudySnapshotComposesSelections(t *testing.T) {
	fix, studyUID := newEpochFixture(t)
	ctx := ctxutil.WithAuthor(context.Background(), "JD")

	if _, err := fix.svc.Create(ctx, studyUID, EpochInput{EpochTermUID: "CTTerm_000001"}); err != nil {
		t.Fatalf("create epoch: %v", err)
	}
	snap, err := fix.studies.Snapshot(ctx, studyUID, StudyVersionQuery{})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Study.UID != studyUID {
		t.Fatalf("expected study %s, got %s", studyUID, snap.Study.UID)
	}
	if len(snap.Epochs) != 1 || snap.Epochs[0].TermName != "Screening" {
		t.Fatalf("expected one epoch resolving 'Screening', got %+v", snap.Epochs)
	}
	if len(snap.ActivityGroups) != 0 || len(snap.Activities) != 0 {
		t.Fatalf("expected empty activity selections, got %+v", snap)
	}
}
