package repos

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/concepts"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore/memstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type studyEnv struct {
	lib        version.LibraryVO
	studies    *StudyRepo
	epochs     *StudyEpochRepo
	selGroups  *StudyActivityGroupRepo
	selActs    *StudyActivityRepo
	terms      *CTTermRepo
	groups     *ActivityGroupRepo
	activities *ActivityRepo
	tick       func() time.Time
}

func newStudyEnv(t *testing.T) *studyEnv {
	t.Helper()
	store := memstore.New()
	log := logger.NewNop()
	c := cache.NewMemory(time.Minute)
	lib, err := NewLibraryRepo(store, log).EnsureLibrary(context.Background(), "CDISC", true)
	if err != nil {
		t.Fatalf("ensure library: %v", err)
	}
	return &studyEnv{
		lib:        lib,
		studies:    NewStudyRepo(store, c, log),
		epochs:     NewStudyEpochRepo(store, c, log),
		selGroups:  NewStudyActivityGroupRepo(store, c, log),
		selActs:    NewStudyActivityRepo(store, c, log),
		terms:      NewCTTermRepo(store, c, log),
		groups:     NewActivityGroupRepo(store, c, log),
		activities: NewActivityRepo(store, c, log),
		tick:       testClock(),
	}
}

func (e *studyEnv) newStudy(t *testing.T, uid, number string) *study.DefinitionAR {
	t.Helper()
	ctx := context.Background()
	ar, err := study.NewDefinition(uid, study.IdentificationVO{
		StudyNumber:   number,
		ProjectNumber: "CDISC DEV",
	}, "JD", e.tick())
	if err != nil {
		t.Fatalf("new study: %v", err)
	}
	if err := e.studies.Save(ctx, ar); err != nil {
		t.Fatalf("save study: %v", err)
	}
	return ar
}

func (e *studyEnv) approveTerm(t *testing.T, uid, name string) *concepts.CTTermAR {
	t.Helper()
	ctx := context.Background()
	ar, err := concepts.NewCTTerm(uid, e.lib, concepts.CTTermVO{
		CatalogueName: "SDTM CT",
		CodelistUID:   "C99079",
		Name:          name,
	}, "JD", e.tick())
	if err != nil {
		t.Fatalf("new term: %v", err)
	}
	if err := e.terms.Save(ctx, ar); err != nil {
		t.Fatalf("save term: %v", err)
	}
	if err := ar.Approve("JD", "", e.tick()); err != nil {
		t.Fatalf("approve term: %v", err)
	}
	if err := e.terms.Save(ctx, ar); err != nil {
		t.Fatalf("save approved term: %v", err)
	}
	return ar
}

func (e *studyEnv) approveGroup(t *testing.T, uid, name string) *concepts.ActivityGroupAR {
	t.Helper()
	ctx := context.Background()
	ar, err := concepts.NewActivityGroup(uid, e.lib, concepts.ActivityGroupVO{
		Name:             name,
		NameSentenceCase: name,
	}, "JD", e.tick())
	if err != nil {
		t.Fatalf("new group: %v", err)
	}
	if err := e.groups.Save(ctx, ar); err != nil {
		t.Fatalf("save group: %v", err)
	}
	if err := ar.Approve("JD", "", e.tick()); err != nil {
		t.Fatalf("approve group: %v", err)
	}
	if err := e.groups.Save(ctx, ar); err != nil {
		t.Fatalf("save approved group: %v", err)
	}
	return ar
}

func (e *studyEnv) approveActivity(t *testing.T, uid, name string) *concepts.ActivityAR {
	t.Helper()
	ctx := context.Background()
	ar, err := concepts.NewActivity(uid, e.lib, concepts.ActivityVO{
		Name:             name,
		NameSentenceCase: name,
	}, "JD", e.tick())
	if err != nil {
		t.Fatalf("new activity: %v", err)
	}
	if err := e.activities.Save(ctx, ar); err != nil {
		t.Fatalf("save activity: %v", err)
	}
	if err := ar.Approve("JD", "", e.tick()); err != nil {
		t.Fatalf("approve activity: %v", err)
	}
	if err := e.activities.Save(ctx, ar); err != nil {
		t.Fatalf("save approved activity: %v", err)
	}
	return ar
}

func TestStudyLockUnlockChain(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	ar := env.newStudy(t, "Study_000001", "0")

	if err := ar.EditMetadata(ar.Identification, study.DescriptionVO{
		StudyTitle: "A Phase 1 Study",
	}, "JD", env.tick()); err != nil {
		t.Fatalf("edit metadata: %v", err)
	}
	if err := env.studies.Save(ctx, ar); err != nil {
		t.Fatalf("save metadata: %v", err)
	}

	if err := ar.Lock("JD", env.tick()); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := env.studies.Save(ctx, ar); err != nil {
		t.Fatalf("save lock: %v", err)
	}
	got, err := env.studies.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != study.StatusLocked || got.LockedVersionNumber != 1 {
		t.Fatalf("expected locked v1, got %s v%d", got.Status, got.LockedVersionNumber)
	}

	if err := ar.Unlock("JD", env.tick()); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := env.studies.Save(ctx, ar); err != nil {
		t.Fatalf("save unlock: %v", err)
	}
	if err := ar.EditMetadata(ar.Identification, study.DescriptionVO{
		StudyTitle: "A Phase 1 Study (amended)",
	}, "JD", env.tick()); err != nil {
		t.Fatalf("edit after unlock: %v", err)
	}
	if err := env.studies.Save(ctx, ar); err != nil {
		t.Fatalf("save edit: %v", err)
	}
	if err := ar.Lock("JD", env.tick()); err != nil {
		t.Fatalf("lock again: %v", err)
	}
	if err := env.studies.Save(ctx, ar); err != nil {
		t.Fatalf("save second lock: %v", err)
	}

	v1, err := env.studies.FindByUID(ctx, ar.UID, StudyAtLockedVersion(1))
	if err != nil {
		t.Fatalf("find locked v1: %v", err)
	}
	if v1.Description.StudyTitle != "A Phase 1 Study" {
		t.Fatalf("expected original title at locked v1, got %q", v1.Description.StudyTitle)
	}
	v2, err := env.studies.FindByUID(ctx, ar.UID, StudyAtLockedVersion(2))
	if err != nil {
		t.Fatalf("find locked v2: %v", err)
	}
	if v2.Description.StudyTitle != "A Phase 1 Study (amended)" {
		t.Fatalf("expected amended title at locked v2, got %q", v2.Description.StudyTitle)
	}

	trail, err := env.studies.GetAuditTrail(ctx, ar.UID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	wantOps := []string{"Lock", "Edit", "Unlock", "Lock", "Edit", "Create"}
	if len(trail) != len(wantOps) {
		t.Fatalf("expected %d audit entries, got %d", len(wantOps), len(trail))
	}
	for i, op := range wantOps {
		if trail[i].Operation != op {
			t.Fatalf("expected %s at position %d, got %s", op, i, trail[i].Operation)
		}
	}
}

func TestStudyReleaseKeepsDraftEditable(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	ar := env.newStudy(t, "Study_000001", "0")

	if err := ar.Release("JD", env.tick()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := env.studies.Release(ctx, ar); err != nil {
		t.Fatalf("save release: %v", err)
	}

	got, err := env.studies.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != study.StatusDraft {
		t.Fatalf("expected study still draft after release, got %s", got.Status)
	}

	releases, err := env.studies.ReleasedVersions(ctx, ar.UID)
	if err != nil {
		t.Fatalf("releases: %v", err)
	}
	if len(releases) != 1 || releases[0].Version != "1" {
		t.Fatalf("expected one release numbered 1, got %+v", releases)
	}
}

func TestStudyConcurrentLockConflicts(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	ar := env.newStudy(t, "Study_000001", "0")
	if err := ar.EditMetadata(ar.Identification, study.DescriptionVO{StudyTitle: "T"}, "JD", env.tick()); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := env.studies.Save(ctx, ar); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := env.studies.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	second, err := env.studies.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("load second: %v", err)
	}
	if err := first.Lock("AA", env.tick()); err != nil {
		t.Fatalf("lock first: %v", err)
	}
	if err := env.studies.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := second.Lock("BB", env.tick()); err != nil {
		t.Fatalf("lock second: %v", err)
	}
	if err := env.studies.Save(ctx, second); !apierr.IsConflict(err) {
		t.Fatalf("expected conflict on stale lock, got %v", err)
	}
}

func TestEpochRemoveRenumbersAndAudits(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	st := env.newStudy(t, "Study_000001", "0")
	env.approveTerm(t, "CTTerm_000001", "Screening")
	env.approveTerm(t, "CTTerm_000002", "Treatment")
	env.approveTerm(t, "CTTerm_000003", "Follow-Up")

	ar := &study.EpochsAR{StudyUID: st.UID}
	uids := []string{"StudyEpoch_000001", "StudyEpoch_000002", "StudyEpoch_000003"}
	for i, term := range []string{"CTTerm_000001", "CTTerm_000002", "CTTerm_000003"} {
		if _, err := ar.AddEpoch(study.EpochVO{
			SelectionUID: uids[i],
			EpochTermUID: term,
		}); err != nil {
			t.Fatalf("add epoch: %v", err)
		}
	}
	if err := env.epochs.Save(ctx, ar, "JD", env.tick()); err != nil {
		t.Fatalf("save epochs: %v", err)
	}

	before, err := env.studies.GetAuditTrail(ctx, st.UID)
	if err != nil {
		t.Fatalf("audit before: %v", err)
	}

	loaded, err := env.epochs.Load(ctx, st.UID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Epochs) != 3 {
		t.Fatalf("expected 3 epochs, got %d", len(loaded.Epochs))
	}
	if err := loaded.RemoveEpoch(loaded.Epochs[0].SelectionUID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.epochs.Save(ctx, loaded, "JD", env.tick()); err != nil {
		t.Fatalf("save removal: %v", err)
	}

	reloaded, err := env.epochs.Load(ctx, st.UID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Epochs) != 2 {
		t.Fatalf("expected 2 epochs after removal, got %d", len(reloaded.Epochs))
	}
	for i, vo := range reloaded.Epochs {
		if vo.Order != i+1 {
			t.Fatalf("expected contiguous order, epoch %s has order %d at position %d",
				vo.SelectionUID, vo.Order, i)
		}
	}

	after, err := env.studies.GetAuditTrail(ctx, st.UID)
	if err != nil {
		t.Fatalf("audit after: %v", err)
	}
	added := after[:len(after)-len(before)]
	deletes, edits := 0, 0
	for _, entry := range added {
		switch entry.Operation {
		case OpDelete:
			deletes++
		case OpEdit:
			edits++
		}
	}
	// Removing the first of three epochs renumbers the other two.
	if deletes != 1 || edits != 2 {
		t.Fatalf("expected 1 delete and 2 edits, got %d deletes %d edits", deletes, edits)
	}
}

func TestEpochSaveRejectedWhileLocked(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	st := env.newStudy(t, "Study_000001", "0")
	env.approveTerm(t, "CTTerm_000001", "Screening")

	if err := st.EditMetadata(st.Identification, study.DescriptionVO{StudyTitle: "T"}, "JD", env.tick()); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := env.studies.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Lock("JD", env.tick()); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := env.studies.Save(ctx, st); err != nil {
		t.Fatalf("save lock: %v", err)
	}

	ar := &study.EpochsAR{StudyUID: st.UID}
	if _, err := ar.AddEpoch(study.EpochVO{SelectionUID: "StudyEpoch_000001", EpochTermUID: "CTTerm_000001"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.epochs.Save(ctx, ar, "JD", env.tick()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error saving epochs on a locked study, got %v", err)
	}
}

func TestEpochSnapshotResolvesTermAsOf(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	st := env.newStudy(t, "Study_000001", "0")
	term := env.approveTerm(t, "CTTerm_000001", "Screening")

	ar := &study.EpochsAR{StudyUID: st.UID}
	if _, err := ar.AddEpoch(study.EpochVO{SelectionUID: "StudyEpoch_000001", EpochTermUID: term.UID}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.epochs.Save(ctx, ar, "JD", env.tick()); err != nil {
		t.Fatalf("save epochs: %v", err)
	}
	asOf := env.tick()

	if err := term.NewVersion("JD", "", env.tick()); err != nil {
		t.Fatalf("new term version: %v", err)
	}
	if err := term.EditDraft(concepts.CTTermVO{
		CatalogueName: "SDTM CT",
		CodelistUID:   "C99079",
		Name:          "Screening Period",
	}, "JD", "renamed", env.tick()); err != nil {
		t.Fatalf("edit term: %v", err)
	}
	if err := env.terms.Save(ctx, term); err != nil {
		t.Fatalf("save term draft: %v", err)
	}
	if err := term.Approve("JD", "", env.tick()); err != nil {
		t.Fatalf("approve term: %v", err)
	}
	if err := env.terms.Save(ctx, term); err != nil {
		t.Fatalf("save term final: %v", err)
	}

	past, err := env.epochs.SnapshotAt(ctx, st.UID, &asOf)
	if err != nil {
		t.Fatalf("snapshot as of: %v", err)
	}
	if len(past) != 1 || past[0].TermName != "Screening" || past[0].TermVersion != "1.0" {
		t.Fatalf("expected term 'Screening' 1.0 as of %s, got %+v", asOf, past)
	}

	now, err := env.epochs.SnapshotAt(ctx, st.UID, nil)
	if err != nil {
		t.Fatalf("snapshot now: %v", err)
	}
	if len(now) != 1 || now[0].TermName != "Screening Period" || now[0].TermVersion != "2.0" {
		t.Fatalf("expected term 'Screening Period' 2.0 now, got %+v", now)
	}
}

func TestActivitySelectionRelinksOnGroupEdit(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	st := env.newStudy(t, "Study_000001", "0")
	env.approveGroup(t, "ActivityGroup_000001", "Vital Signs")
	env.approveActivity(t, "Activity_000001", "Heart Rate")

	groups := &study.ActivityGroupSelectionsAR{StudyUID: st.UID}
	if err := groups.Add(study.ActivityGroupSelectionVO{
		SelectionUID:     "StudyActivityGroup_000001",
		ActivityGroupUID: "ActivityGroup_000001",
	}); err != nil {
		t.Fatalf("add group selection: %v", err)
	}
	if err := env.selGroups.Save(ctx, groups, "JD", env.tick()); err != nil {
		t.Fatalf("save group selections: %v", err)
	}

	acts := &study.ActivitySelectionsAR{StudyUID: st.UID}
	if _, err := acts.Add(study.ActivitySelectionVO{
		SelectionUID:          "StudyActivity_000001",
		ActivityUID:           "Activity_000001",
		StudyActivityGroupUID: "StudyActivityGroup_000001",
	}); err != nil {
		t.Fatalf("add activity selection: %v", err)
	}
	if err := env.selActs.Save(ctx, acts, "JD", env.tick()); err != nil {
		t.Fatalf("save activity selections: %v", err)
	}

	// Editing the group selection supersedes its instance; the activity
	// must follow onto the new one.
	groups, err := env.selGroups.Load(ctx, st.UID)
	if err != nil {
		t.Fatalf("load group selections: %v", err)
	}
	vo := groups.Selections[0]
	vo.AcceptedVersion = true
	if err := groups.Update(vo); err != nil {
		t.Fatalf("update group selection: %v", err)
	}
	if err := env.selGroups.Save(ctx, groups, "JD", env.tick()); err != nil {
		t.Fatalf("save edited group selections: %v", err)
	}

	// The dependent edge kept following, so removing the group while the
	// activity still references it stays blocked.
	groups, err = env.selGroups.Load(ctx, st.UID)
	if err != nil {
		t.Fatalf("reload group selections: %v", err)
	}
	if err := groups.Remove("StudyActivityGroup_000001"); err != nil {
		t.Fatalf("remove in aggregate: %v", err)
	}
	if err := env.selGroups.Save(ctx, groups, "JD", env.tick()); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error removing a referenced group, got %v", err)
	}

	// Dropping the activity first unblocks the group removal.
	acts, err = env.selActs.Load(ctx, st.UID)
	if err != nil {
		t.Fatalf("load activity selections: %v", err)
	}
	if err := acts.Remove("StudyActivity_000001"); err != nil {
		t.Fatalf("remove activity: %v", err)
	}
	if err := env.selActs.Save(ctx, acts, "JD", env.tick()); err != nil {
		t.Fatalf("save activity removal: %v", err)
	}
	groups, err = env.selGroups.Load(ctx, st.UID)
	if err != nil {
		t.Fatalf("reload groups: %v", err)
	}
	if err := groups.Remove("StudyActivityGroup_000001"); err != nil {
		t.Fatalf("remove group: %v", err)
	}
	if err := env.selGroups.Save(ctx, groups, "JD", env.tick()); err != nil {
		t.Fatalf("save group removal: %v", err)
	}
}

func TestActivitySnapshotHonorsPinnedVersion(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	st := env.newStudy(t, "Study_000001", "0")
	act := env.approveActivity(t, "Activity_000001", "Heart Rate")

	acts := &study.ActivitySelectionsAR{StudyUID: st.UID}
	if _, err := acts.Add(study.ActivitySelectionVO{
		SelectionUID:    "StudyActivity_000001",
		ActivityUID:     act.UID,
		AcceptedVersion: true,
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.selActs.Save(ctx, acts, "JD", env.tick()); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := act.NewVersion("JD", "", env.tick()); err != nil {
		t.Fatalf("new version: %v", err)
	}
	if err := act.EditDraft(concepts.ActivityVO{
		Name:             "Heart Rate (supine)",
		NameSentenceCase: "heart rate (supine)",
	}, "JD", "clarified", env.tick()); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := env.activities.Save(ctx, act); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if err := act.Approve("JD", "", env.tick()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.activities.Save(ctx, act); err != nil {
		t.Fatalf("save final: %v", err)
	}

	snaps, err := env.selActs.SnapshotAt(ctx, st.UID, nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected one selection, got %d", len(snaps))
	}
	if snaps[0].ResolvedVersion != "1.0" || snaps[0].ResolvedName != "Heart Rate" {
		t.Fatalf("expected pinned 1.0 'Heart Rate', got %s %q", snaps[0].ResolvedVersion, snaps[0].ResolvedName)
	}
}

func TestStudyMetadataEditCarriesSelections(t *testing.T) {
	ctx := context.Background()
	env := newStudyEnv(t)
	st := env.newStudy(t, "Study_000001", "0")
	env.approveTerm(t, "CTTerm_000001", "Screening")

	ar := &study.EpochsAR{StudyUID: st.UID}
	if _, err := ar.AddEpoch(study.EpochVO{SelectionUID: "StudyEpoch_000001", EpochTermUID: "CTTerm_000001"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.epochs.Save(ctx, ar, "JD", env.tick()); err != nil {
		t.Fatalf("save epochs: %v", err)
	}

	if err := st.EditMetadata(st.Identification, study.DescriptionVO{StudyTitle: "T"}, "JD", env.tick()); err != nil {
		t.Fatalf("edit metadata: %v", err)
	}
	if err := env.studies.Save(ctx, st); err != nil {
		t.Fatalf("save metadata: %v", err)
	}

	loaded, err := env.epochs.Load(ctx, st.UID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Epochs) != 1 || loaded.Epochs[0].SelectionUID != "StudyEpoch_000001" {
		t.Fatalf("expected epoch selection to survive metadata edit, got %+v", loaded.Epochs)
	}
}

func TestPinnedResolutionIgnoresVersionEdgeOrder(t *testing.T) {
	store := memstore.New()
	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	var ver string
	err := store.Write(context.Background(), func(tx graphstore.Tx) error {
		root, err := tx.CreateNode("ActivityRoot", graphstore.Props{"uid": "Activity_000001"})
		if err != nil {
			return err
		}
		value, err := tx.CreateNode("ActivityValue", graphstore.Props{"name": "Heart Rate"})
		if err != nil {
			return err
		}
		// Newest edge inserted first: a reused value node offers no
		// ordering guarantee, so resolution must go by start_date.
		if _, err := tx.Connect(root.ID, RelHasVersion, value.ID, graphstore.Props{
			"version": "1.0", "status": "Final", "start_date": t2,
		}); err != nil {
			return err
		}
		if _, err := tx.Connect(root.ID, RelHasVersion, value.ID, graphstore.Props{
			"version": "0.1", "status": "Draft", "start_date": t1, "end_date": t2,
		}); err != nil {
			return err
		}
		sel, err := tx.CreateNode(LabelStudyActivity, graphstore.Props{"selection_uid": "StudyActivity_000001"})
		if err != nil {
			return err
		}
		if _, err := tx.Connect(sel.ID, RelHasSelectedActivity, value.ID, nil); err != nil {
			return err
		}
		_, got, err := resolveSelected(tx, sel, RelHasSelectedActivity, true, nil)
		ver = got
		return err
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ver != "1.0" {
		t.Fatalf("expected pinned version 1.0, got %q", ver)
	}
}
