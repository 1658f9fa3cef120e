package repos

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/concepts"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore/memstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

func testClock() func() time.Time {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Minute)
		return at
	}
}

func newGroupRepo(t *testing.T) (*ActivityGroupRepo, version.LibraryVO) {
	t.Helper()
	store := memstore.New()
	log := logger.NewNop()
	lib, err := NewLibraryRepo(store, log).EnsureLibrary(context.Background(), "Sponsor", true)
	if err != nil {
		t.Fatalf("ensure library: %v", err)
	}
	return NewActivityGroupRepo(store, cache.NewMemory(time.Minute), log), lib
}

func newGroup(t *testing.T, lib version.LibraryVO, uid, name string, now time.Time) *concepts.ActivityGroupAR {
	t.Helper()
	ar, err := concepts.NewActivityGroup(uid, lib, concepts.ActivityGroupVO{
		Name:             name,
		NameSentenceCase: name,
	}, "JD", now)
	if err != nil {
		t.Fatalf("new activity group: %v", err)
	}
	return ar
}

func TestItemLifecycleDraftToFinal(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "Vital Signs", tick())
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := ar.Meta.Version.String(); got != "0.1" {
		t.Fatalf("expected version 0.1 after create, got %s", got)
	}

	if err := ar.EditDraft(concepts.ActivityGroupVO{
		Name:             "Vital Signs",
		NameSentenceCase: "vital signs",
	}, "JD", "fixed casing", tick()); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("save edit: %v", err)
	}
	if got := ar.Meta.Version.String(); got != "0.2" {
		t.Fatalf("expected version 0.2 after edit, got %s", got)
	}

	if err := ar.Approve("JD", "", tick()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("save approve: %v", err)
	}

	got, err := repo.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Meta.Status != version.StatusFinal || got.Meta.Version.String() != "1.0" {
		t.Fatalf("expected Final 1.0, got %s %s", got.Meta.Status, got.Meta.Version)
	}
	if got.Value.NameSentenceCase != "vital signs" {
		t.Fatalf("expected edited value, got %q", got.Value.NameSentenceCase)
	}

	versions, err := repo.GetAllVersions(ctx, ar.UID)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].Meta.Version.String() != "1.0" || versions[2].Meta.Version.String() != "0.1" {
		t.Fatalf("expected newest-first ordering, got %s .. %s",
			versions[0].Meta.Version, versions[2].Meta.Version)
	}
	if versions[1].Meta.End == nil {
		t.Fatalf("expected superseded version to carry an end date")
	}

	trail, err := repo.GetAuditTrail(ctx, ar.UID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(trail))
	}
	for i, op := range []string{OpApprove, OpEdit, OpCreate} {
		if trail[i].Operation != op {
			t.Fatalf("expected operation %s at position %d, got %s", op, i, trail[i].Operation)
		}
	}
}

func TestItemNewVersionKeepsLatestFinal(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "Labs", tick())
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ar.Approve("JD", "", tick()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("save approve: %v", err)
	}
	if err := ar.NewVersion("JD", "", tick()); err != nil {
		t.Fatalf("new version: %v", err)
	}
	if err := ar.EditDraft(concepts.ActivityGroupVO{
		Name:             "Laboratory Assessments",
		NameSentenceCase: "laboratory assessments",
	}, "JD", "renamed", tick()); err != nil {
		t.Fatalf("edit new draft: %v", err)
	}
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("save new draft: %v", err)
	}

	// The default view prefers the latest Final over the open draft.
	got, err := repo.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("find default: %v", err)
	}
	if got.Meta.Version.String() != "1.0" || got.Value.Name != "Labs" {
		t.Fatalf("expected Final 1.0 'Labs' by default, got %s %q", got.Meta.Version, got.Value.Name)
	}

	head, err := repo.FindByUID(ctx, ar.UID, Head())
	if err != nil {
		t.Fatalf("find head: %v", err)
	}
	if head.Meta.Status != version.StatusDraft || head.Value.Name != "Laboratory Assessments" {
		t.Fatalf("expected open draft at head, got %s %q", head.Meta.Status, head.Value.Name)
	}
}

func TestItemRetireAndReactivate(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "Imaging", tick())
	for _, step := range []func() error{
		func() error { return repo.Save(ctx, ar) },
		func() error { return ar.Approve("JD", "", tick()) },
		func() error { return repo.Save(ctx, ar) },
		func() error { return ar.Inactivate("JD", "", tick()) },
		func() error { return repo.Save(ctx, ar) },
	} {
		if err := step(); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	got, err := repo.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Meta.Status != version.StatusRetired || got.Meta.Version.String() != "1.0" {
		t.Fatalf("expected Retired 1.0, got %s %s", got.Meta.Status, got.Meta.Version)
	}

	if err := ar.Reactivate("JD", "", tick()); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("save reactivate: %v", err)
	}
	got, err = repo.FindByUID(ctx, ar.UID, AtStatus(version.StatusFinal))
	if err != nil {
		t.Fatalf("find final: %v", err)
	}
	if got.Meta.Version.String() != "1.0" {
		t.Fatalf("expected reactivated 1.0, got %s", got.Meta.Version)
	}
}

func TestItemTimeTravel(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "ECG", tick())
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("create: %v", err)
	}
	between := tick()
	if err := ar.EditDraft(concepts.ActivityGroupVO{
		Name:             "ECG Panel",
		NameSentenceCase: "ecg panel",
	}, "JD", "expanded", tick()); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("save edit: %v", err)
	}

	got, err := repo.FindByUID(ctx, ar.UID, AtTime(between))
	if err != nil {
		t.Fatalf("at time: %v", err)
	}
	if got.Value.Name != "ECG" || got.Meta.Version.String() != "0.1" {
		t.Fatalf("expected 0.1 'ECG' at %s, got %s %q", between, got.Meta.Version, got.Value.Name)
	}

	v, err := version.Parse("0.2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err = repo.FindByUID(ctx, ar.UID, AtVersion(v))
	if err != nil {
		t.Fatalf("at version: %v", err)
	}
	if got.Value.Name != "ECG Panel" {
		t.Fatalf("expected 0.2 'ECG Panel', got %q", got.Value.Name)
	}
}

func TestItemSelectorsAreExclusive(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "PK", tick())
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := repo.FindByUID(ctx, ar.UID, AtTime(tick()), AtStatus(version.StatusDraft))
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error for combined selectors, got %v", err)
	}
}

func TestItemConcurrentEditConflicts(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "Safety", tick())
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := repo.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	second, err := repo.FindByUID(ctx, ar.UID)
	if err != nil {
		t.Fatalf("load second: %v", err)
	}

	if err := first.EditDraft(concepts.ActivityGroupVO{
		Name:             "Safety Labs",
		NameSentenceCase: "safety labs",
	}, "AA", "first writer", tick()); err != nil {
		t.Fatalf("edit first: %v", err)
	}
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	if err := second.EditDraft(concepts.ActivityGroupVO{
		Name:             "Safety Panel",
		NameSentenceCase: "safety panel",
	}, "BB", "second writer", tick()); err != nil {
		t.Fatalf("edit second: %v", err)
	}
	err = repo.Save(ctx, second)
	if !apierr.IsConflict(err) {
		t.Fatalf("expected conflict for stale save, got %v", err)
	}
}

func TestItemNoopEditRejected(t *testing.T) {
	_, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "Vitals", tick())
	err := ar.EditDraft(ar.Value, "JD", "nothing", tick())
	if !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error for unchanged edit, got %v", err)
	}
}

func TestItemSoftDelete(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "Scrapped", tick())
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SoftDelete(ctx, ar.UID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.FindByUID(ctx, ar.UID); !apierr.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	approved := newGroup(t, lib, "ActivityGroup_000002", "Kept", tick())
	if err := repo.Save(ctx, approved); err != nil {
		t.Fatalf("create approved: %v", err)
	}
	if err := approved.Approve("JD", "", tick()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := repo.Save(ctx, approved); err != nil {
		t.Fatalf("save approve: %v", err)
	}
	if err := repo.SoftDelete(ctx, approved.UID); !apierr.IsBusinessLogic(err) {
		t.Fatalf("expected business logic error deleting approved item, got %v", err)
	}
}

func TestItemFindAllFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	for _, name := range []string{"Vital Signs", "Vital Capacity", "Imaging"} {
		uid, err := repo.GenerateUID(ctx)
		if err != nil {
			t.Fatalf("uid: %v", err)
		}
		ar := newGroup(t, lib, uid, name, tick())
		if err := repo.Save(ctx, ar); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	q := filtering.Query{
		Filters: filtering.Filters{"name": {Op: filtering.OpContains, Values: []any{"Vital"}}},
		Page:    filtering.Page{Number: 1, Size: 10, WithTotal: true},
	}
	items, total, err := repo.FindAll(ctx, q)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 matches, got %d items total %d", len(items), total)
	}

	headers, err := repo.GetHeaders(ctx, "name", "Vital", 10)
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 header values, got %d", len(headers))
	}
}

func TestItemGenerateUIDSequence(t *testing.T) {
	ctx := context.Background()
	repo, _ := newGroupRepo(t)

	first, err := repo.GenerateUID(ctx)
	if err != nil {
		t.Fatalf("uid: %v", err)
	}
	second, err := repo.GenerateUID(ctx)
	if err != nil {
		t.Fatalf("uid: %v", err)
	}
	if first != "ActivityGroup_000001" || second != "ActivityGroup_000002" {
		t.Fatalf("expected sequential uids, got %s then %s", first, second)
	}
}

func TestItemPageSizeCapConfigurable(t *testing.T) {
	ctx := context.Background()
	repo, lib := newGroupRepo(t)
	tick := testClock()

	ar := newGroup(t, lib, "ActivityGroup_000001", "Vital Signs", tick())
	if err := repo.Save(ctx, ar); err != nil {
		t.Fatalf("save: %v", err)
	}

	defer SetMaxPageSize(maxPageSize)
	SetMaxPageSize(2)

	_, _, err := repo.FindAll(ctx, filtering.Query{Page: filtering.Page{Number: 1, Size: 3}})
	if !apierr.IsValidation(err) {
		t.Fatalf("expected validation error above the cap, got %v", err)
	}

	items, _, err := repo.FindAll(ctx, filtering.Query{Page: filtering.Page{Number: 1, Size: 2}})
	if err != nil {
		t.Fatalf("find all within cap: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestItemHasActiveRelationships(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	log := logger.NewNop()
	c := cache.NewMemory(time.Minute)
	lib, err := NewLibraryRepo(store, log).EnsureLibrary(ctx, "Sponsor", true)
	if err != nil {
		t.Fatalf("ensure library: %v", err)
	}
	groups := NewActivityGroupRepo(store, c, log)
	subs := NewActivitySubGroupRepo(store, c, log)
	tick := testClock()

	group := newGroup(t, lib, "ActivityGroup_000001", "Vital Signs", tick())
	if err := groups.Save(ctx, group); err != nil {
		t.Fatalf("save group: %v", err)
	}
	sub, err := concepts.NewActivitySubGroup("ActivitySubGroup_000001", lib, concepts.ActivitySubGroupVO{
		Name:             "Blood Pressure",
		NameSentenceCase: "blood pressure",
		GroupUIDs:        []string{"ActivityGroup_000001"},
	}, "JD", tick())
	if err != nil {
		t.Fatalf("new subgroup: %v", err)
	}
	if err := subs.Save(ctx, sub); err != nil {
		t.Fatalf("save subgroup: %v", err)
	}

	has, err := subs.HasActiveRelationships(ctx, "ActivitySubGroup_000001", nil)
	if err != nil {
		t.Fatalf("has active: %v", err)
	}
	if has {
		t.Fatalf("expected no active relationships before connecting")
	}

	if err := subs.AddRelation(ctx, "ActivitySubGroup_000001", RelationActivityGroup, "ActivityGroup_000001", nil); err != nil {
		t.Fatalf("add relation: %v", err)
	}
	has, err = subs.HasActiveRelationships(ctx, "ActivitySubGroup_000001", []string{RelationActivityGroup})
	if err != nil {
		t.Fatalf("has active: %v", err)
	}
	if !has {
		t.Fatalf("expected an active relationship after connecting")
	}
}
