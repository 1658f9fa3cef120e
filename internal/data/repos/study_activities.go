package repos

import (
	"context"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// StudyActivityGroupRepo persists study activity group selections.
// Activity selections reference these instances, so superseding one
// re-points every referencing activity in the same transaction.
type StudyActivityGroupRepo struct {
	store graphstore.Store
	cache cache.ItemCache
	log   *logger.Logger
}

func NewStudyActivityGroupRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *StudyActivityGroupRepo {
	if c == nil {
		c = cache.Nop{}
	}
	return &StudyActivityGroupRepo{store: store, cache: c, log: log.With("repo", LabelStudyActivityGroup)}
}

func (r *StudyActivityGroupRepo) GenerateUID(ctx context.Context) (string, error) {
	var uid string
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		n, err := tx.NextCounter(LabelStudyActivityGroup)
		if err != nil {
			return err
		}
		uid = graphstore.FormatUID(LabelStudyActivityGroup, n)
		return nil
	})
	return uid, err
}

func (r *StudyActivityGroupRepo) Load(ctx context.Context, studyUID string) (*study.ActivityGroupSelectionsAR, error) {
	var ar *study.ActivityGroupSelectionsAR
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, studyUID)
		if err != nil {
			return err
		}
		nodes, err := openInstances(tx, root.ID, activityGroupSpec)
		if err != nil {
			return err
		}
		ar = &study.ActivityGroupSelectionsAR{
			StudyUID:   studyUID,
			Selections: make([]study.ActivityGroupSelectionVO, 0, len(nodes)),
		}
		for _, node := range nodes {
			ar.Selections = append(ar.Selections, activityGroupSelectionFromNode(node))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ar, nil
}

// Save reconciles the aggregate against the stored instances. An empty
// version pins the group's latest Final version at save time; the
// resolved number is written back onto the value object.
func (r *StudyActivityGroupRepo) Save(ctx context.Context, ar *study.ActivityGroupSelectionsAR, author string, now time.Time) error {
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		desired := make([]instanceState, 0, len(ar.Selections))
		for i, vo := range ar.Selections {
			valueID, resolved, err := resolveConceptValue(tx, "ActivityGroupRoot", vo.ActivityGroupUID, vo.ActivityGroupVersion)
			if err != nil {
				return err
			}
			ar.Selections[i].ActivityGroupVersion = resolved
			desired = append(desired, instanceState{
				SelectionUID: vo.SelectionUID,
				Props: graphstore.Props{
					"activity_group_uid":     vo.ActivityGroupUID,
					"activity_group_version": resolved,
					"accepted_version":       vo.AcceptedVersion,
				},
				Links: []instanceLink{{RelType: RelHasSelectedGroup, ToID: valueID}},
			})
		}
		return saveSelections(tx, ar.StudyUID, activityGroupSpec, desired, author, now)
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, studyCacheKey(ar.StudyUID))
	return nil
}

// ActivityGroupSnapshot is one group selection with the referenced
// library group resolved as of the snapshot instant.
type ActivityGroupSnapshot struct {
	study.ActivityGroupSelectionVO
	GroupName       string
	ResolvedVersion string
}

func (r *StudyActivityGroupRepo) SnapshotAt(ctx context.Context, studyUID string, at *time.Time) ([]ActivityGroupSnapshot, error) {
	var out []ActivityGroupSnapshot
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, studyUID)
		if err != nil {
			return err
		}
		var nodes []*graphstore.Node
		if at == nil {
			nodes, err = openInstances(tx, root.ID, activityGroupSpec)
		} else {
			nodes, err = instancesAt(tx, root.ID, activityGroupSpec, *at)
		}
		if err != nil {
			return err
		}
		out = make([]ActivityGroupSnapshot, 0, len(nodes))
		for _, node := range nodes {
			snap := ActivityGroupSnapshot{ActivityGroupSelectionVO: activityGroupSelectionFromNode(node)}
			value, ver, err := resolveSelected(tx, node, RelHasSelectedGroup, snap.AcceptedVersion, at)
			if err != nil {
				return err
			}
			if value != nil {
				snap.GroupName = value.Props.String("name")
				snap.ResolvedVersion = ver
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func activityGroupSelectionFromNode(node *graphstore.Node) study.ActivityGroupSelectionVO {
	start, _ := node.Props.Time("start_date")
	return study.ActivityGroupSelectionVO{
		SelectionUID:         node.Props.String("selection_uid"),
		ActivityGroupUID:     node.Props.String("activity_group_uid"),
		ActivityGroupVersion: node.Props.String("activity_group_version"),
		StartDate:            start,
		Author:               node.Props.String("user_initials"),
		AcceptedVersion:      node.Props.Bool("accepted_version"),
	}
}

// StudyActivityRepo persists the ordered activity selections of a
// study. An activity selection pins a library activity version and may
// reference a sibling study activity group instance.
type StudyActivityRepo struct {
	store graphstore.Store
	cache cache.ItemCache
	log   *logger.Logger
}

func NewStudyActivityRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *StudyActivityRepo {
	if c == nil {
		c = cache.Nop{}
	}
	return &StudyActivityRepo{store: store, cache: c, log: log.With("repo", LabelStudyActivity)}
}

func (r *StudyActivityRepo) GenerateUID(ctx context.Context) (string, error) {
	var uid string
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		n, err := tx.NextCounter(LabelStudyActivity)
		if err != nil {
			return err
		}
		uid = graphstore.FormatUID(LabelStudyActivity, n)
		return nil
	})
	return uid, err
}

func (r *StudyActivityRepo) Load(ctx context.Context, studyUID string) (*study.ActivitySelectionsAR, error) {
	var ar *study.ActivitySelectionsAR
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, studyUID)
		if err != nil {
			return err
		}
		nodes, err := openInstances(tx, root.ID, activitySpec)
		if err != nil {
			return err
		}
		ar = &study.ActivitySelectionsAR{
			StudyUID:   studyUID,
			Selections: make([]study.ActivitySelectionVO, 0, len(nodes)),
		}
		for _, node := range nodes {
			ar.Selections = append(ar.Selections, activitySelectionFromNode(node))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ar, nil
}

func (r *StudyActivityRepo) Save(ctx context.Context, ar *study.ActivitySelectionsAR, author string, now time.Time) error {
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, ar.StudyUID)
		if err != nil {
			return err
		}
		groups, err := openInstances(tx, root.ID, activityGroupSpec)
		if err != nil {
			return err
		}
		groupByUID := make(map[string]string, len(groups))
		for _, g := range groups {
			groupByUID[g.Props.String("selection_uid")] = g.ID
		}
		desired := make([]instanceState, 0, len(ar.Selections))
		for i, vo := range ar.Selections {
			valueID, resolved, err := resolveConceptValue(tx, "ActivityRoot", vo.ActivityUID, vo.ActivityVersion)
			if err != nil {
				return err
			}
			ar.Selections[i].ActivityVersion = resolved
			value, err := tx.GetNode(valueID)
			if err != nil {
				return err
			}
			ar.Selections[i].ActivityName = value.Props.String("name")
			links := []instanceLink{{RelType: RelHasSelectedActivity, ToID: valueID}}
			if vo.StudyActivityGroupUID != "" {
				groupID, ok := groupByUID[vo.StudyActivityGroupUID]
				if !ok {
					return apierr.BusinessLogic("study %s has no activity group selection %s",
						ar.StudyUID, vo.StudyActivityGroupUID)
				}
				links = append(links, instanceLink{RelType: RelActivityHasGroupLevel, ToID: groupID})
			}
			if vo.SoAGroupTermUID != "" {
				termValueID, _, err := resolveConceptValue(tx, "CTTermRoot", vo.SoAGroupTermUID, "")
				if err != nil {
					return err
				}
				links = append(links, instanceLink{RelType: RelHasSoAGroup, ToID: termValueID})
			}
			desired = append(desired, instanceState{
				SelectionUID: vo.SelectionUID,
				Props: graphstore.Props{
					"order":                      vo.Order,
					"activity_uid":               vo.ActivityUID,
					"activity_version":           resolved,
					"activity_name":              ar.Selections[i].ActivityName,
					"study_activity_group_uid":   vo.StudyActivityGroupUID,
					"soa_group_term_uid":         vo.SoAGroupTermUID,
					"show_in_protocol_flowchart": vo.ShowInProtocolFlow,
					"accepted_version":           vo.AcceptedVersion,
				},
				Links: links,
			})
		}
		return saveSelections(tx, ar.StudyUID, activitySpec, desired, author, now)
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, studyCacheKey(ar.StudyUID))
	return nil
}

// ActivitySnapshot is one activity selection with its library activity
// resolved as of the snapshot instant. Accepted versions stay pinned to
// the version stored on the selection.
type ActivitySnapshot struct {
	study.ActivitySelectionVO
	ResolvedName    string
	ResolvedVersion string
}

func (r *StudyActivityRepo) SnapshotAt(ctx context.Context, studyUID string, at *time.Time) ([]ActivitySnapshot, error) {
	var out []ActivitySnapshot
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := findStudyRoot(tx, studyUID)
		if err != nil {
			return err
		}
		var nodes []*graphstore.Node
		if at == nil {
			nodes, err = openInstances(tx, root.ID, activitySpec)
		} else {
			nodes, err = instancesAt(tx, root.ID, activitySpec, *at)
		}
		if err != nil {
			return err
		}
		out = make([]ActivitySnapshot, 0, len(nodes))
		for _, node := range nodes {
			snap := ActivitySnapshot{ActivitySelectionVO: activitySelectionFromNode(node)}
			value, ver, err := resolveSelected(tx, node, RelHasSelectedActivity, snap.AcceptedVersion, at)
			if err != nil {
				return err
			}
			if value != nil {
				snap.ResolvedName = value.Props.String("name")
				snap.ResolvedVersion = ver
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveSelected resolves the concept behind a selection instance. A
// pinned selection keeps the exact value node it was linked to; an
// unpinned one re-resolves the Final version as of the instant.
func resolveSelected(tx graphstore.Tx, node *graphstore.Node, relType string, pinned bool, at *time.Time) (*graphstore.Node, string, error) {
	linked, err := linkedValueID(tx, node.ID, relType)
	if err != nil || linked == "" {
		return nil, "", err
	}
	if pinned {
		value, err := tx.GetNode(linked)
		if err != nil {
			return nil, "", err
		}
		in, err := tx.InRels(linked, RelHasVersion)
		if err != nil {
			return nil, "", err
		}
		// A reused value node carries several version edges; edge order
		// is unspecified, so pick the newest by start_date.
		ver := ""
		var newest time.Time
		for _, rel := range in {
			start, ok := rel.Props.Time("start_date")
			if !ok {
				continue
			}
			if ver == "" || start.After(newest) {
				newest = start
				ver = rel.Props.String("version")
			}
		}
		return value, ver, nil
	}
	value, ver, _, err := conceptAsOf(tx, linked, at)
	if err != nil {
		return nil, "", err
	}
	return value, ver, nil
}

func activitySelectionFromNode(node *graphstore.Node) study.ActivitySelectionVO {
	start, _ := node.Props.Time("start_date")
	return study.ActivitySelectionVO{
		SelectionUID:          node.Props.String("selection_uid"),
		ActivityUID:           node.Props.String("activity_uid"),
		ActivityVersion:       node.Props.String("activity_version"),
		ActivityName:          node.Props.String("activity_name"),
		StudyActivityGroupUID: node.Props.String("study_activity_group_uid"),
		SoAGroupTermUID:       node.Props.String("soa_group_term_uid"),
		Order:                 int(node.Props.Int64("order")),
		ShowInProtocolFlow:    node.Props.Bool("show_in_protocol_flowchart"),
		StartDate:             start,
		Author:                node.Props.String("user_initials"),
		AcceptedVersion:       node.Props.Bool("accepted_version"),
	}
}
