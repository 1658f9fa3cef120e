package repos

import (
	"sort"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

// selectionSpec configures the instance engine for one selection type.
// Selection instances have no root of their own: the same logical
// selection is a chain of dated instance nodes sharing a selection_uid,
// each attached to the study value current when it was written.
type selectionSpec struct {
	Label     string
	MemberRel string
	// LinkRels are the outgoing typed edges an instance carries to
	// other nodes: selected concept values, sibling selection
	// instances. They participate in change detection.
	LinkRels []string
	// DependentRels are incoming edges from other selection instances.
	// When a new instance supersedes an old one these edges are
	// re-pointed in the same transaction; deleting an instance that
	// still has any is rejected.
	DependentRels []string
}

var (
	epochSpec = selectionSpec{
		Label:     LabelStudyEpoch,
		MemberRel: RelHasStudyEpoch,
		LinkRels:  []string{RelHasEpochTerm},
	}
	activityGroupSpec = selectionSpec{
		Label:         LabelStudyActivityGroup,
		MemberRel:     RelHasStudyActivityGroup,
		LinkRels:      []string{RelHasSelectedGroup},
		DependentRels: []string{RelActivityHasGroupLevel},
	}
	activitySpec = selectionSpec{
		Label:     LabelStudyActivity,
		MemberRel: RelHasStudyActivity,
		LinkRels:  []string{RelHasSelectedActivity, RelHasSoAGroup, RelActivityHasGroupLevel},
	}
)

// instanceState is the desired shape of one selection instance: its
// content properties plus the typed edges it must carry. Bookkeeping
// properties (selection_uid, dates, author) are managed by the engine.
type instanceState struct {
	SelectionUID string
	Props        graphstore.Props
	Links        []instanceLink
}

type instanceLink struct {
	RelType string
	ToID    string
}

// saveSelections reconciles the current open instances of one selection
// type against the desired state inside one write transaction. Every
// difference produces exactly one action node on the study audit trail:
// new uids a Create, changed content or order an Edit chaining the new
// instance to the old, vanished uids a Delete tombstone. Dependent
// edges follow the superseding instance.
func saveSelections(tx graphstore.Tx, studyUID string, spec selectionSpec, desired []instanceState, author string, now time.Time) error {
	root, err := findStudyRoot(tx, studyUID)
	if err != nil {
		return err
	}
	open, err := openStudyEdge(tx, root)
	if err != nil {
		return err
	}
	if open.Props.String("status") != string(study.StatusDraft) {
		return apierr.BusinessLogic("study %s is locked and cannot be modified", studyUID)
	}
	current, err := openInstances(tx, root.ID, spec)
	if err != nil {
		return err
	}
	currentByUID := make(map[string]*graphstore.Node, len(current))
	for _, node := range current {
		currentByUID[node.Props.String("selection_uid")] = node
	}

	seen := make(map[string]bool, len(desired))
	for _, want := range desired {
		seen[want.SelectionUID] = true
		existing, ok := currentByUID[want.SelectionUID]
		if !ok {
			node, err := createInstance(tx, open.ToID, spec, want, author, now)
			if err != nil {
				return err
			}
			if err := writeSelectionAction(tx, root.ID, OpCreate, want.SelectionUID, author, now, "", node.ID); err != nil {
				return err
			}
			continue
		}
		same, err := instanceMatches(tx, existing, spec, want)
		if err != nil {
			return err
		}
		if same {
			continue
		}
		if err := tx.SetNodeProps(existing.ID, graphstore.Props{"end_date": now.UTC()}); err != nil {
			return err
		}
		node, err := createInstance(tx, open.ToID, spec, want, author, now)
		if err != nil {
			return err
		}
		if err := repointDependents(tx, spec, existing.ID, node.ID); err != nil {
			return err
		}
		if err := writeSelectionAction(tx, root.ID, OpEdit, want.SelectionUID, author, now, existing.ID, node.ID); err != nil {
			return err
		}
	}

	for _, node := range current {
		uid := node.Props.String("selection_uid")
		if seen[uid] {
			continue
		}
		blocked, err := hasOpenDependents(tx, spec, node.ID)
		if err != nil {
			return err
		}
		if blocked {
			return apierr.BusinessLogic("selection %s of study %s is referenced by other selections and cannot be removed",
				uid, studyUID)
		}
		if err := tx.SetNodeProps(node.ID, graphstore.Props{"end_date": now.UTC()}); err != nil {
			return err
		}
		if err := writeSelectionAction(tx, root.ID, OpDelete, uid, author, now, node.ID, ""); err != nil {
			return err
		}
	}
	return nil
}

func createInstance(tx graphstore.Tx, studyValueID string, spec selectionSpec, want instanceState, author string, now time.Time) (*graphstore.Node, error) {
	props := want.Props.Clone()
	if props == nil {
		props = graphstore.Props{}
	}
	props["selection_uid"] = want.SelectionUID
	props["start_date"] = now.UTC()
	props["user_initials"] = author
	node, err := tx.CreateNode(spec.Label, props)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Connect(studyValueID, spec.MemberRel, node.ID, nil); err != nil {
		return nil, err
	}
	for _, link := range want.Links {
		if _, err := tx.Connect(node.ID, link.RelType, link.ToID, nil); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// instanceMatches reports whether the open instance already carries the
// desired content and links, in which case no new instance is written.
func instanceMatches(tx graphstore.Tx, node *graphstore.Node, spec selectionSpec, want instanceState) (bool, error) {
	content := node.Props.Clone()
	delete(content, "selection_uid")
	delete(content, "start_date")
	delete(content, "end_date")
	delete(content, "user_initials")
	if !propsEqual(content, want.Props) {
		return false, nil
	}
	wantByRel := make(map[string]map[string]bool)
	for _, link := range want.Links {
		if wantByRel[link.RelType] == nil {
			wantByRel[link.RelType] = make(map[string]bool)
		}
		wantByRel[link.RelType][link.ToID] = true
	}
	for _, relType := range spec.LinkRels {
		rels, err := tx.OutRels(node.ID, relType)
		if err != nil {
			return false, err
		}
		targets := wantByRel[relType]
		if len(rels) != len(targets) {
			return false, nil
		}
		for _, rel := range rels {
			if !targets[rel.ToID] {
				return false, nil
			}
		}
	}
	return true, nil
}

func repointDependents(tx graphstore.Tx, spec selectionSpec, oldID, newID string) error {
	for _, relType := range spec.DependentRels {
		rels, err := tx.InRels(oldID, relType)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			if err := tx.Disconnect(rel.ID); err != nil {
				return err
			}
			if _, err := tx.Connect(rel.FromID, relType, newID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasOpenDependents(tx graphstore.Tx, spec selectionSpec, nodeID string) (bool, error) {
	for _, relType := range spec.DependentRels {
		rels, err := tx.InRels(nodeID, relType)
		if err != nil {
			return false, err
		}
		for _, rel := range rels {
			from, err := tx.GetNode(rel.FromID)
			if err != nil {
				return false, err
			}
			if !from.Props.Has("end_date") {
				return true, nil
			}
		}
	}
	return false, nil
}

// openInstances lists the currently effective instances of one
// selection type, ordered by their order property then selection uid.
func openInstances(tx graphstore.Tx, rootID string, spec selectionSpec) ([]*graphstore.Node, error) {
	return instancesWhere(tx, rootID, spec, func(node *graphstore.Node) bool {
		return !node.Props.Has("end_date")
	})
}

// instancesAt lists the instances whose lifetime covered the instant,
// which is how locked and released snapshots see their selections.
func instancesAt(tx graphstore.Tx, rootID string, spec selectionSpec, at time.Time) ([]*graphstore.Node, error) {
	return instancesWhere(tx, rootID, spec, func(node *graphstore.Node) bool {
		start, ok := node.Props.Time("start_date")
		if !ok || at.Before(start) {
			return false
		}
		end, ok := node.Props.Time("end_date")
		if !ok {
			return true
		}
		return at.Before(end)
	})
}

func instancesWhere(tx graphstore.Tx, rootID string, spec selectionSpec, keep func(*graphstore.Node) bool) ([]*graphstore.Node, error) {
	edges, err := tx.OutRels(rootID, RelHasVersion)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []*graphstore.Node
	for _, edge := range edges {
		members, err := tx.OutRels(edge.ToID, spec.MemberRel)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			if seen[member.ToID] {
				continue
			}
			seen[member.ToID] = true
			node, err := tx.GetNode(member.ToID)
			if err != nil {
				return nil, err
			}
			if keep(node) {
				out = append(out, node)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Props.Int64("order"), out[j].Props.Int64("order")
		if a != b {
			return a < b
		}
		return out[i].Props.String("selection_uid") < out[j].Props.String("selection_uid")
	})
	return out, nil
}

// resolveConceptValue finds the value node a selection should link to:
// the requested version of the concept when given, otherwise its latest
// Final version. Selections only ever pin approved content.
func resolveConceptValue(tx graphstore.Tx, rootLabel, uid, wantVersion string) (valueID, resolved string, err error) {
	root, err := tx.FindNode(rootLabel, "uid", uid)
	if err != nil {
		return "", "", err
	}
	if root == nil {
		return "", "", apierr.BusinessLogic("there is no %s with uid %s", rootLabel, uid)
	}
	edges, err := versionEdges(tx, root.ID)
	if err != nil {
		return "", "", err
	}
	var hit *graphstore.Rel
	for _, e := range edges {
		if wantVersion != "" {
			if e.Props.String("version") == wantVersion {
				hit = e
			}
			continue
		}
		if e.Props.String("status") == string(version.StatusFinal) {
			hit = e
		}
	}
	if hit == nil {
		if wantVersion != "" {
			return "", "", apierr.BusinessLogic("version %s of %s does not exist", wantVersion, uid)
		}
		return "", "", apierr.BusinessLogic("%s has no approved version and cannot be selected", uid)
	}
	return hit.ToID, hit.Props.String("version"), nil
}

// conceptAsOf walks from a linked value node back to its root and
// resolves the Final version in effect at the instant. A nil instant
// means the newest Final version. Time travel is transitive: a study
// snapshot never shows concept content newer than the snapshot itself.
func conceptAsOf(tx graphstore.Tx, valueID string, at *time.Time) (node *graphstore.Node, ver string, uid string, err error) {
	in, err := tx.InRels(valueID, RelHasVersion)
	if err != nil {
		return nil, "", "", err
	}
	if len(in) == 0 {
		return nil, "", "", apierr.Consistency("selection references a value node outside any version chain")
	}
	rootID := in[0].FromID
	root, err := tx.GetNode(rootID)
	if err != nil {
		return nil, "", "", err
	}
	edges, err := versionEdges(tx, rootID)
	if err != nil {
		return nil, "", "", err
	}
	var hit *graphstore.Rel
	for _, e := range edges {
		if e.Props.String("status") != string(version.StatusFinal) {
			continue
		}
		if at != nil {
			start, _ := e.Props.Time("start_date")
			if start.After(*at) {
				continue
			}
		}
		hit = e
	}
	uid = root.Props.String("uid")
	if hit == nil {
		return nil, "", "", apierr.NotFound("%s had no approved version at the requested time", uid)
	}
	value, err := tx.GetNode(hit.ToID)
	if err != nil {
		return nil, "", "", err
	}
	return value, hit.Props.String("version"), uid, nil
}

// linkedValueID returns the target of the single outgoing edge of the
// type, or "" when the instance carries none.
func linkedValueID(tx graphstore.Tx, nodeID, relType string) (string, error) {
	rels, err := tx.OutRels(nodeID, relType)
	if err != nil {
		return "", err
	}
	if len(rels) == 0 {
		return "", nil
	}
	return rels[0].ToID, nil
}
