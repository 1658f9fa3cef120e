package repos

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// StudyRepo persists study definitions: the StudyRoot, its chain of
// dated StudyValue versions and the study audit trail. The study chain
// alternates between DRAFT and LOCKED segments; released snapshots are
// dated markers onto the value current at release and do not interrupt
// the chain.
type StudyRepo struct {
	store graphstore.Store
	cache cache.ItemCache
	log   *logger.Logger
}

const (
	studyCachePrefix = "Study"

	// RelHasReleasedVersion marks a released snapshot: a dated edge
	// from the StudyRoot to the value current at release time.
	RelHasReleasedVersion = "HAS_RELEASED_VERSION"
)

func NewStudyRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *StudyRepo {
	if c == nil {
		c = cache.Nop{}
	}
	return &StudyRepo{store: store, cache: c, log: log.With("repo", LabelStudyRoot)}
}

// GenerateUID reserves the next study identifier.
func (r *StudyRepo) GenerateUID(ctx context.Context) (string, error) {
	var uid string
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		n, err := tx.NextCounter(studyCachePrefix)
		if err != nil {
			return err
		}
		uid = graphstore.FormatUID(studyCachePrefix, n)
		return nil
	})
	return uid, err
}

// Save persists the study definition. A fresh aggregate creates the
// root and the first draft value; a loaded one closes the open version
// relationship, appends the next segment and re-links every current
// selection instance onto the new value node.
func (r *StudyRepo) Save(ctx context.Context, ar *study.DefinitionAR) error {
	var err error
	if ar.IsNew() {
		err = r.store.Write(ctx, func(tx graphstore.Tx) error { return r.create(tx, ar) })
	} else {
		err = r.store.Write(ctx, func(tx graphstore.Tx) error { return r.update(tx, ar) })
	}
	if err != nil {
		return err
	}
	ar.MarkLoaded()
	r.cache.Invalidate(ctx, studyCacheKey(ar.UID))
	return nil
}

func (r *StudyRepo) create(tx graphstore.Tx, ar *study.DefinitionAR) error {
	existing, err := tx.FindNode(LabelStudyRoot, "uid", ar.UID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apierr.BusinessLogic("study %s already exists", ar.UID)
	}
	root, err := tx.CreateNode(LabelStudyRoot, graphstore.Props{"uid": ar.UID})
	if err != nil {
		return err
	}
	value, err := tx.CreateNode(LabelStudyValue, studyValueProps(ar))
	if err != nil {
		return err
	}
	if _, err := tx.Connect(root.ID, RelHasVersion, value.ID, studyEdgeProps(ar)); err != nil {
		return err
	}
	for _, ptr := range []string{RelLatest, RelLatestDraft} {
		if _, err := tx.Connect(root.ID, ptr, value.ID, nil); err != nil {
			return err
		}
	}
	return writeStudyAction(tx, root.ID, OpCreate, ar, "", value.ID)
}

func (r *StudyRepo) update(tx graphstore.Tx, ar *study.DefinitionAR) error {
	root, err := findStudyRoot(tx, ar.UID)
	if err != nil {
		return err
	}
	open, err := openStudyEdge(tx, root)
	if err != nil {
		return err
	}
	storedStatus := study.Status(open.Props.String("status"))
	storedLock := int(open.Props.Int64("locked_version_number"))
	if storedStatus != ar.PrevStatus || storedLock != ar.PrevLockedVersion {
		return apierr.Conflict("stale version of study %s: loaded %s v%d, stored %s v%d",
			ar.UID, ar.PrevStatus, ar.PrevLockedVersion, storedStatus, storedLock)
	}
	if err := tx.SetRelProps(open.ID, graphstore.Props{"end_date": ar.VersionStart.UTC()}); err != nil {
		return err
	}
	value, err := tx.CreateNode(LabelStudyValue, studyValueProps(ar))
	if err != nil {
		return err
	}
	if _, err := tx.Connect(root.ID, RelHasVersion, value.ID, studyEdgeProps(ar)); err != nil {
		return err
	}
	if err := relinkSelections(tx, open.ToID, value.ID); err != nil {
		return err
	}
	if err := movePointer(tx, root.ID, RelLatest, value.ID); err != nil {
		return err
	}
	// Status pointers only ever move forward: LATEST_LOCKED keeps
	// naming the last lock snapshot after an unlock, the way
	// LATEST_FINAL survives a new draft on library items.
	if err := movePointer(tx, root.ID, studyPointerRelFor(ar.Status), value.ID); err != nil {
		return err
	}
	return writeStudyAction(tx, root.ID, studyOperationFor(storedStatus, ar.Status), ar, open.ToID, value.ID)
}

// Release records a released snapshot of the current draft value: a
// dated HAS_RELEASED_VERSION edge carrying the next release number. The
// draft chain itself is untouched.
func (r *StudyRepo) Release(ctx context.Context, ar *study.DefinitionAR) error {
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, ar.UID)
		if err != nil {
			return err
		}
		open, err := openStudyEdge(tx, root)
		if err != nil {
			return err
		}
		if open.Props.String("status") != string(study.StatusDraft) {
			return apierr.BusinessLogic("study %s is locked and cannot be released", ar.UID)
		}
		releases, err := tx.OutRels(root.ID, RelHasReleasedVersion)
		if err != nil {
			return err
		}
		props := graphstore.Props{
			"version":       strconv.Itoa(len(releases) + 1),
			"start_date":    ar.VersionStart.UTC(),
			"user_initials": ar.VersionAuthor,
		}
		if _, err := tx.Connect(root.ID, RelHasReleasedVersion, open.ToID, props); err != nil {
			return err
		}
		if err := movePointer(tx, root.ID, RelLatestReleased, open.ToID); err != nil {
			return err
		}
		return writeStudyAction(tx, root.ID, OpEdit, ar, open.ToID, open.ToID)
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, studyCacheKey(ar.UID))
	return nil
}

// StudySelector narrows a study read to one point of its history.
type StudySelector func(*studySelectorSpec)

type studySelectorSpec struct {
	at     *time.Time
	locked *int
	status *study.Status
}

// StudyAtTime selects the version segment in effect at the instant.
func StudyAtTime(t time.Time) StudySelector {
	return func(s *studySelectorSpec) { u := t.UTC(); s.at = &u }
}

// StudyAtLockedVersion selects the lock snapshot with the number.
func StudyAtLockedVersion(n int) StudySelector {
	return func(s *studySelectorSpec) { s.locked = &n }
}

// StudyAtStatus selects the most recent segment carrying the status.
func StudyAtStatus(st study.Status) StudySelector {
	return func(s *studySelectorSpec) { s.status = &st }
}

func buildStudySelector(sels []StudySelector) (studySelectorSpec, error) {
	var spec studySelectorSpec
	for _, sel := range sels {
		sel(&spec)
	}
	given := 0
	if spec.at != nil {
		given++
	}
	if spec.locked != nil {
		given++
	}
	if spec.status != nil {
		given++
	}
	if given > 1 {
		return spec, apierr.Validation("at most one of at_specified_date, locked version and status can be given")
	}
	return spec, nil
}

func (s studySelectorSpec) isDefault() bool {
	return s.at == nil && s.locked == nil && s.status == nil
}

// FindByUID loads one study. Without a selector the open head of the
// chain is returned; StudyAtTime, StudyAtLockedVersion and
// StudyAtStatus narrow it instead.
func (r *StudyRepo) FindByUID(ctx context.Context, uid string, sels ...StudySelector) (*study.DefinitionAR, error) {
	spec, err := buildStudySelector(sels)
	if err != nil {
		return nil, err
	}
	var ar *study.DefinitionAR
	err = r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, uid)
		if err != nil {
			return err
		}
		edge, err := resolveStudyEdge(tx, root, spec)
		if err != nil {
			return err
		}
		ar, err = buildStudy(tx, root, edge)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ar, nil
}

// FindAll lists current study definitions through the filter DSL.
func (r *StudyRepo) FindAll(ctx context.Context, q filtering.Query) ([]*study.DefinitionAR, int, error) {
	var ars []*study.DefinitionAR
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		roots, err := tx.FindNodes(LabelStudyRoot, nil)
		if err != nil {
			return err
		}
		ars = ars[:0]
		for _, root := range roots {
			open, err := openStudyEdge(tx, root)
			if err != nil {
				return err
			}
			ar, err := buildStudy(tx, root, open)
			if err != nil {
				return err
			}
			ars = append(ars, ar)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return filtering.Apply(ars, studyFields, q, maxPageSize)
}

// GetAuditTrail lists every action recorded against the study, newest
// first: definition changes and selection changes alike.
func (r *StudyRepo) GetAuditTrail(ctx context.Context, uid string) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, uid)
		if err != nil {
			return err
		}
		entries, err = readAuditTrail(tx, root.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SnapshotInstant resolves the reference instant of a study selector:
// the lock time for a locked version, the given instant for a timed
// read, or nil for the live draft view.
func (r *StudyRepo) SnapshotInstant(ctx context.Context, uid string, sels ...StudySelector) (*time.Time, error) {
	spec, err := buildStudySelector(sels)
	if err != nil {
		return nil, err
	}
	if spec.isDefault() {
		return nil, nil
	}
	var instant time.Time
	err = r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, uid)
		if err != nil {
			return err
		}
		edge, err := resolveStudyEdge(tx, root, spec)
		if err != nil {
			return err
		}
		if spec.at != nil {
			instant = *spec.at
			return nil
		}
		start, _ := edge.Props.Time("start_date")
		instant = start
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &instant, nil
}

func findStudyRoot(tx graphstore.Tx, uid string) (*graphstore.Node, error) {
	root, err := tx.FindNode(LabelStudyRoot, "uid", uid)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, apierr.NotFound("study %s does not exist", uid)
	}
	return root, nil
}

func openStudyEdge(tx graphstore.Tx, root *graphstore.Node) (*graphstore.Rel, error) {
	edges, err := tx.OutRels(root.ID, RelHasVersion)
	if err != nil {
		return nil, err
	}
	var open []*graphstore.Rel
	for _, e := range edges {
		if !e.Props.Has("end_date") {
			open = append(open, e)
		}
	}
	if len(open) != 1 {
		return nil, apierr.Consistency("found %d open versions of study %s, expected exactly one",
			len(open), root.Props.String("uid"))
	}
	return open[0], nil
}

func resolveStudyEdge(tx graphstore.Tx, root *graphstore.Node, spec studySelectorSpec) (*graphstore.Rel, error) {
	if spec.isDefault() {
		return openStudyEdge(tx, root)
	}
	uid := root.Props.String("uid")
	edges, err := tx.OutRels(root.ID, RelHasVersion)
	if err != nil {
		return nil, err
	}
	sortRelsByStart(edges)
	switch {
	case spec.at != nil:
		var hits []*graphstore.Rel
		for _, e := range edges {
			if studyEdgeCovers(e, *spec.at) {
				hits = append(hits, e)
			}
		}
		if len(hits) == 0 {
			return nil, apierr.NotFound("study %s did not exist at %s", uid, spec.at.Format(time.RFC3339))
		}
		if len(hits) > 1 {
			return nil, apierr.Consistency("found %d versions of study %s active at %s, expected exactly one",
				len(hits), uid, spec.at.Format(time.RFC3339))
		}
		return hits[0], nil
	case spec.locked != nil:
		want := strconv.Itoa(*spec.locked)
		var hit *graphstore.Rel
		for _, e := range edges {
			if e.Props.String("status") == string(study.StatusLocked) && e.Props.String("version") == want {
				hit = e
			}
		}
		if hit == nil {
			return nil, apierr.NotFound("study %s has no locked version %s", uid, want)
		}
		return hit, nil
	default:
		var hit *graphstore.Rel
		for _, e := range edges {
			if e.Props.String("status") == string(*spec.status) {
				hit = e
			}
		}
		if hit == nil {
			return nil, apierr.NotFound("study %s has no version with status %s", uid, *spec.status)
		}
		return hit, nil
	}
}

func studyEdgeCovers(e *graphstore.Rel, t time.Time) bool {
	start, ok := e.Props.Time("start_date")
	if !ok || t.Before(start) {
		return false
	}
	end, ok := e.Props.Time("end_date")
	if !ok {
		return true
	}
	return t.Before(end)
}

func buildStudy(tx graphstore.Tx, root *graphstore.Node, edge *graphstore.Rel) (*study.DefinitionAR, error) {
	value, err := tx.GetNode(edge.ToID)
	if err != nil {
		return nil, err
	}
	start, _ := edge.Props.Time("start_date")
	ar := &study.DefinitionAR{
		UID: root.Props.String("uid"),
		Identification: study.IdentificationVO{
			StudyNumber:   value.Props.String("study_number"),
			StudyAcronym:  value.Props.String("study_acronym"),
			ProjectNumber: value.Props.String("project_number"),
		},
		Description: study.DescriptionVO{
			StudyTitle:      value.Props.String("study_title"),
			StudyShortTitle: value.Props.String("study_short_title"),
		},
		Status:              study.Status(edge.Props.String("status")),
		LockedVersionNumber: int(edge.Props.Int64("locked_version_number")),
		VersionAuthor:       edge.Props.String("user_initials"),
		VersionStart:        start,
	}
	ar.MarkLoaded()
	return ar, nil
}

func studyValueProps(ar *study.DefinitionAR) graphstore.Props {
	return graphstore.Props{
		"study_number":      ar.Identification.StudyNumber,
		"study_acronym":     ar.Identification.StudyAcronym,
		"project_number":    ar.Identification.ProjectNumber,
		"study_id":          ar.Identification.StudyID(),
		"study_title":       ar.Description.StudyTitle,
		"study_short_title": ar.Description.StudyShortTitle,
	}
}

// studyEdgeProps builds the HAS_VERSION properties of one chain
// segment. Locked segments carry the lock counter as their version;
// draft segments have no version number of their own.
func studyEdgeProps(ar *study.DefinitionAR) graphstore.Props {
	props := graphstore.Props{
		"status":                string(ar.Status),
		"locked_version_number": ar.LockedVersionNumber,
		"start_date":            ar.VersionStart.UTC(),
		"user_initials":         ar.VersionAuthor,
	}
	if ar.Status == study.StatusLocked {
		props["version"] = strconv.Itoa(ar.LockedVersionNumber)
	}
	return props
}

func studyPointerRelFor(s study.Status) string {
	switch s {
	case study.StatusDraft:
		return RelLatestDraft
	case study.StatusLocked:
		return RelLatestLocked
	case study.StatusReleased:
		return RelLatestReleased
	}
	return ""
}

func studyOperationFor(prev, next study.Status) string {
	switch {
	case prev == study.StatusDraft && next == study.StatusLocked:
		return "Lock"
	case prev == study.StatusLocked && next == study.StatusDraft:
		return "Unlock"
	default:
		return OpEdit
	}
}

func writeStudyAction(tx graphstore.Tx, rootID, op string, ar *study.DefinitionAR, beforeID, afterID string) error {
	node, err := tx.CreateNode(actionLabelFor(op), graphstore.Props{
		"operation":     op,
		"status":        string(ar.Status),
		"date":          ar.VersionStart.UTC(),
		"user_initials": ar.VersionAuthor,
	})
	if err != nil {
		return err
	}
	if _, err := tx.Connect(rootID, RelAuditTrail, node.ID, nil); err != nil {
		return err
	}
	if beforeID != "" {
		if _, err := tx.Connect(node.ID, RelBefore, beforeID, nil); err != nil {
			return err
		}
	}
	if afterID != "" {
		if _, err := tx.Connect(node.ID, RelAfter, afterID, nil); err != nil {
			return err
		}
	}
	return nil
}

// relinkSelections re-points every selection edge from the superseded
// study value onto its successor, so current selections stay reachable
// from the study's open head.
func relinkSelections(tx graphstore.Tx, oldValueID, newValueID string) error {
	for _, relType := range []string{RelHasStudyEpoch, RelHasStudyActivity, RelHasStudyActivityGroup} {
		rels, err := tx.OutRels(oldValueID, relType)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			target, err := tx.GetNode(rel.ToID)
			if err != nil {
				return err
			}
			// Closed instances stay where their lifetime ended.
			if target.Props.Has("end_date") {
				continue
			}
			if err := tx.Disconnect(rel.ID); err != nil {
				return err
			}
			if _, err := tx.Connect(newValueID, relType, rel.ToID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func studyFields(ar *study.DefinitionAR) map[string]any {
	return map[string]any{
		"uid":               ar.UID,
		"study_number":      ar.Identification.StudyNumber,
		"study_acronym":     ar.Identification.StudyAcronym,
		"project_number":    ar.Identification.ProjectNumber,
		"study_id":          ar.Identification.StudyID(),
		"study_title":       ar.Description.StudyTitle,
		"study_short_title": ar.Description.StudyShortTitle,
		"status":            string(ar.Status),
		"version":           ar.LockedVersionNumber,
		"user_initials":     ar.VersionAuthor,
		"start_date":        ar.VersionStart,
	}
}

func studyCacheKey(uid string) string { return studyCachePrefix + ":" + uid }

// ReleasedVersions lists the released snapshots of a study, oldest
// first.
func (r *StudyRepo) ReleasedVersions(ctx context.Context, uid string) ([]ReleasedVersion, error) {
	var out []ReleasedVersion
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, uid)
		if err != nil {
			return err
		}
		rels, err := tx.OutRels(root.ID, RelHasReleasedVersion)
		if err != nil {
			return err
		}
		sortRelsByStart(rels)
		out = out[:0]
		for _, rel := range rels {
			at, _ := rel.Props.Time("start_date")
			out = append(out, ReleasedVersion{
				Version: rel.Props.String("version"),
				Date:    at,
				Author:  rel.Props.String("user_initials"),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ReleasedVersion is one released snapshot marker of a study.
type ReleasedVersion struct {
	Version string    `json:"version"`
	Date    time.Time `json:"date"`
	Author  string    `json:"user_initials"`
}
