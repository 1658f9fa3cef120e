package repos

import (
	"sort"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
)

// AuditEntry is one row of an audit trail, newest first. Action is the
// node label (Create, Edit or Delete), Operation the concrete
// lifecycle transition that produced it. SelectionUID is set on study
// audit entries that concern one selection. BeforeID and AfterID are
// store-internal node ids, kept for traversal and never serialized.
type AuditEntry struct {
	Action            string    `json:"action"`
	Operation         string    `json:"operation"`
	Status            string    `json:"status,omitempty"`
	Version           string    `json:"version,omitempty"`
	SelectionUID      string    `json:"selection_uid,omitempty"`
	Date              time.Time `json:"date"`
	Author            string    `json:"user_initials"`
	ChangeDescription string    `json:"change_description,omitempty"`
	BeforeID          string    `json:"-"`
	AfterID           string    `json:"-"`
}

// operationFor classifies the transition between two metadata snapshots.
// Status moves map to the named lifecycle operations; everything else,
// including draft edits, is a plain Edit.
func operationFor(prev, next version.ItemMetadata) string {
	switch {
	case prev.Status == version.StatusDraft && next.Status == version.StatusFinal:
		return OpApprove
	case prev.Status == version.StatusFinal && next.Status == version.StatusDraft:
		return OpNewVersion
	case prev.Status == version.StatusFinal && next.Status == version.StatusRetired:
		return OpInactivate
	case prev.Status == version.StatusRetired && next.Status == version.StatusFinal:
		return OpReactivate
	default:
		return OpEdit
	}
}

// actionLabelFor reduces an operation name to its action node label.
func actionLabelFor(op string) string {
	switch op {
	case OpCreate:
		return ActionCreate
	case OpDelete:
		return ActionDelete
	default:
		return ActionEdit
	}
}

// writeAction appends one action node to the root's audit trail and
// links it to the value nodes it replaced and produced. Either node id
// may be empty: creations have no before, deletions no after.
func writeAction(tx graphstore.Tx, rootID, op string, meta version.ItemMetadata, beforeID, afterID string) error {
	node, err := tx.CreateNode(actionLabelFor(op), graphstore.Props{
		"operation":          op,
		"status":             string(meta.Status),
		"version":            meta.Version.String(),
		"date":               meta.Start,
		"user_initials":      meta.Author,
		"change_description": meta.ChangeDescription,
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

// writeSelectionAction records one change to a study selection on the
// study root. Selection instances have no status or version of their
// own, so the entry carries the stable selection uid instead.
func writeSelectionAction(tx graphstore.Tx, rootID, op, selectionUID, author string, at time.Time, beforeID, afterID string) error {
	node, err := tx.CreateNode(actionLabelFor(op), graphstore.Props{
		"operation":     op,
		"selection_uid": selectionUID,
		"date":          at,
		"user_initials": author,
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

// readAuditTrail collects the action nodes attached to a root, newest
// first. Ties on date keep creation order stable via the node id.
func readAuditTrail(tx graphstore.Tx, rootID string) ([]AuditEntry, error) {
	rels, err := tx.OutRels(rootID, RelAuditTrail)
	if err != nil {
		return nil, err
	}
	entries := make([]AuditEntry, 0, len(rels))
	for _, rel := range rels {
		node, err := tx.GetNode(rel.ToID)
		if err != nil {
			return nil, err
		}
		date, _ := node.Props.Time("date")
		entry := AuditEntry{
			Action:            node.Label,
			Operation:         node.Props.String("operation"),
			Status:            node.Props.String("status"),
			Version:           node.Props.String("version"),
			SelectionUID:      node.Props.String("selection_uid"),
			Date:              date,
			Author:            node.Props.String("user_initials"),
			ChangeDescription: node.Props.String("change_description"),
		}
		if befores, err := tx.OutRels(node.ID, RelBefore); err == nil && len(befores) > 0 {
			entry.BeforeID = befores[0].ToID
		}
		if afters, err := tx.OutRels(node.ID, RelAfter); err == nil && len(afters) > 0 {
			entry.AfterID = afters[0].ToID
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
	return entries, nil
}

// deleteAuditTrail removes every action node hanging off a root. Used
// by hard deletes of never-approved drafts.
func deleteAuditTrail(tx graphstore.Tx, rootID string) error {
	rels, err := tx.OutRels(rootID, RelAuditTrail)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if err := tx.DeleteNode(rel.ToID); err != nil {
			return err
		}
	}
	return nil
}
