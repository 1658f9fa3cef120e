package repos

import (
	"context"
	"sort"

	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

// AddRelation links the root to the target family's root through the
// named relation. Single-valued relations replace the previous target;
// reconnecting an existing target is idempotent.
func (r *ItemRepo) AddRelation(ctx context.Context, uid, relation, targetUID string, props graphstore.Props) error {
	spec, ok := r.kind.Relations[relation]
	if !ok {
		return apierr.Validation("unknown relation %q for %s", relation, r.kind.RootLabel)
	}
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		root, err := r.findRoot(tx, uid)
		if err != nil {
			return err
		}
		target, err := tx.FindNode(spec.TargetLabel, "uid", targetUID)
		if err != nil {
			return err
		}
		if target == nil {
			return apierr.BusinessLogic("%s cannot be connected to %s %s because it does not exist",
				uid, spec.TargetLabel, targetUID)
		}
		existing, err := tx.OutRels(root.ID, spec.EdgeType)
		if err != nil {
			return err
		}
		for _, rel := range existing {
			if !spec.ToMany || rel.ToID == target.ID {
				if err := tx.Disconnect(rel.ID); err != nil {
					return err
				}
			}
		}
		_, err = tx.Connect(root.ID, spec.EdgeType, target.ID, props)
		return err
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, r.cacheKey(uid))
	return nil
}

// RemoveRelation deletes the named relation between the root and the
// target. A relation that was never there is a not-found error.
func (r *ItemRepo) RemoveRelation(ctx context.Context, uid, relation, targetUID string) error {
	spec, ok := r.kind.Relations[relation]
	if !ok {
		return apierr.Validation("unknown relation %q for %s", relation, r.kind.RootLabel)
	}
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		root, err := r.findRoot(tx, uid)
		if err != nil {
			return err
		}
		target, err := tx.FindNode(spec.TargetLabel, "uid", targetUID)
		if err != nil {
			return err
		}
		if target == nil {
			return apierr.BusinessLogic("%s cannot be disconnected from %s %s because it does not exist",
				uid, spec.TargetLabel, targetUID)
		}
		existing, err := tx.OutRels(root.ID, spec.EdgeType)
		if err != nil {
			return err
		}
		removed := false
		for _, rel := range existing {
			if rel.ToID == target.ID {
				if err := tx.Disconnect(rel.ID); err != nil {
					return err
				}
				removed = true
			}
		}
		if !removed {
			return apierr.NotFound("there is no %s relation between %s and %s", relation, uid, targetUID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, r.cacheKey(uid))
	return nil
}

// GetActiveRelationships maps each requested relation name to the uids
// of its current targets, sorted. A nil request covers every relation
// the kind supports.
func (r *ItemRepo) GetActiveRelationships(ctx context.Context, uid string, relations []string) (map[string][]string, error) {
	if relations == nil {
		relations = make([]string, 0, len(r.kind.Relations))
		for name := range r.kind.Relations {
			relations = append(relations, name)
		}
		sort.Strings(relations)
	}
	out := make(map[string][]string, len(relations))
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := r.findRoot(tx, uid)
		if err != nil {
			return err
		}
		for _, name := range relations {
			spec, ok := r.kind.Relations[name]
			if !ok {
				return apierr.Validation("unknown relation %q for %s", name, r.kind.RootLabel)
			}
			rels, err := tx.OutRels(root.ID, spec.EdgeType)
			if err != nil {
				return err
			}
			uids := make([]string, 0, len(rels))
			for _, rel := range rels {
				node, err := tx.GetNode(rel.ToID)
				if err != nil {
					return err
				}
				uids = append(uids, node.Props.String("uid"))
			}
			sort.Strings(uids)
			out[name] = uids
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasActiveRelationships reports whether any of the requested relations
// currently has a target. A nil request covers every relation the kind
// supports.
func (r *ItemRepo) HasActiveRelationships(ctx context.Context, uid string, relations []string) (bool, error) {
	active, err := r.GetActiveRelationships(ctx, uid, relations)
	if err != nil {
		return false, err
	}
	for _, uids := range active {
		if len(uids) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// SoftDelete removes a never-approved draft entirely: the root, its
// value nodes, its version relationships and its audit trail. Items
// that ever reached Final, or that a study references, are rejected.
func (r *ItemRepo) SoftDelete(ctx context.Context, uid string) error {
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		root, err := r.findRoot(tx, uid)
		if err != nil {
			return err
		}
		open, err := r.openEdge(tx, root)
		if err != nil {
			return err
		}
		item, err := r.buildItem(tx, root, open)
		if err != nil {
			return err
		}
		if err := item.CanSoftDelete(); err != nil {
			return err
		}
		inUse, err := r.usedByStudy(tx, root)
		if err != nil {
			return err
		}
		if inUse {
			return apierr.BusinessLogic("%s is referenced by one or more studies and cannot be deleted", uid)
		}
		if err := deleteAuditTrail(tx, root.ID); err != nil {
			return err
		}
		edges, err := tx.OutRels(root.ID, RelHasVersion)
		if err != nil {
			return err
		}
		deleted := make(map[string]bool, len(edges))
		for _, e := range edges {
			if deleted[e.ToID] {
				continue
			}
			deleted[e.ToID] = true
			if err := tx.DeleteNode(e.ToID); err != nil {
				return err
			}
		}
		return tx.DeleteNode(root.ID)
	})
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, r.cacheKey(uid))
	return nil
}

// usedByStudy reports whether any configured usage relationship points
// at the root or one of its value nodes.
func (r *ItemRepo) usedByStudy(tx graphstore.Tx, root *graphstore.Node) (bool, error) {
	if len(r.kind.UsageRels) == 0 {
		return false, nil
	}
	ids := []string{root.ID}
	seen := map[string]bool{root.ID: true}
	edges, err := tx.OutRels(root.ID, RelHasVersion)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if !seen[e.ToID] {
			seen[e.ToID] = true
			ids = append(ids, e.ToID)
		}
	}
	for _, id := range ids {
		for _, relType := range r.kind.UsageRels {
			in, err := tx.InRels(id, relType)
			if err != nil {
				return false, err
			}
			if len(in) > 0 {
				return true, nil
			}
		}
	}
	return false, nil
}
