package repos

import (
	"context"
	"sort"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

// maxPageSize caps page_size on list queries. Startup overrides it
// from configuration; requests above the cap fail validation.
var maxPageSize = 1000

// SetMaxPageSize replaces the page_size cap. Values below 1 are
// ignored. Call before serving requests; the cap is not synchronized.
func SetMaxPageSize(n int) {
	if n > 0 {
		maxPageSize = n
	}
}

// FindByUID loads one aggregate. Without a selector it returns the
// default read view, Final over Draft over Retired; Head, AtTime,
// AtVersion and AtStatus narrow it instead. Only the default view is
// cached.
func (r *ItemRepo) FindByUID(ctx context.Context, uid string, sels ...Selector) (*Item, error) {
	spec, err := buildSelector(sels)
	if err != nil {
		return nil, err
	}
	if spec.isDefault() {
		if data, ok := r.cache.Get(ctx, r.cacheKey(uid)); ok {
			if item, err := decodeItem(data); err == nil {
				return item, nil
			}
			r.cache.Invalidate(ctx, r.cacheKey(uid))
		}
	}
	var item *Item
	err = r.store.Read(ctx, func(tx graphstore.Tx) error {
		loaded, err := r.findInTx(tx, uid, spec)
		if err != nil {
			return err
		}
		item = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if spec.isDefault() {
		if data, err := encodeItem(item); err == nil {
			r.cache.Set(ctx, r.cacheKey(uid), data)
		}
	}
	return item, nil
}

func (r *ItemRepo) findInTx(tx graphstore.Tx, uid string, spec selectorSpec) (*Item, error) {
	root, err := r.findRoot(tx, uid)
	if err != nil {
		return nil, err
	}
	edge, err := r.resolveEdge(tx, root, spec)
	if err != nil {
		return nil, err
	}
	return r.buildItem(tx, root, edge)
}

// resolveEdge picks the HAS_VERSION relationship the selector asks for.
// Historical selectors always scan the dated chain, never the latest
// pointers, so a stale pointer cannot change the answer.
func (r *ItemRepo) resolveEdge(tx graphstore.Tx, root *graphstore.Node, spec selectorSpec) (*graphstore.Rel, error) {
	if spec.head {
		return r.openEdge(tx, root)
	}
	if spec.isDefault() {
		return r.defaultEdge(tx, root)
	}
	uid := root.Props.String("uid")
	edges, err := versionEdges(tx, root.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case spec.at != nil:
		var hits []*graphstore.Rel
		for _, e := range edges {
			meta, err := metaFromProps(e.Props)
			if err != nil {
				return nil, err
			}
			if meta.CoversInstant(*spec.at) {
				hits = append(hits, e)
			}
		}
		if len(hits) == 0 {
			return nil, apierr.NotFound("%s did not exist at %s", uid, spec.at.Format(time.RFC3339))
		}
		if len(hits) > 1 {
			return nil, apierr.Consistency("found %d versions of %s active at %s, expected exactly one",
				len(hits), uid, spec.at.Format(time.RFC3339))
		}
		return hits[0], nil
	case spec.version != nil:
		want := spec.version.String()
		var hit *graphstore.Rel
		for _, e := range edges {
			if e.Props.String("version") == want {
				hit = e
			}
		}
		if hit == nil {
			return nil, apierr.NotFound("version %s of %s does not exist", want, uid)
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
			return nil, apierr.NotFound("%s has no version with status %s", uid, *spec.status)
		}
		return hit, nil
	}
}

// defaultEdge implements the no-selector read view: the latest Final
// version wins over an open Draft, which wins over Retired. The
// pointer relationships decide which status is current, the dated
// chain supplies the winning relationship itself.
func (r *ItemRepo) defaultEdge(tx graphstore.Tx, root *graphstore.Node) (*graphstore.Rel, error) {
	order := []struct {
		rel    string
		status version.Status
	}{
		{RelLatestFinal, version.StatusFinal},
		{RelLatestDraft, version.StatusDraft},
		{RelLatestRetired, version.StatusRetired},
	}
	for _, p := range order {
		ptrs, err := tx.OutRels(root.ID, p.rel)
		if err != nil {
			return nil, err
		}
		if len(ptrs) == 0 {
			continue
		}
		edges, err := versionEdges(tx, root.ID)
		if err != nil {
			return nil, err
		}
		var hit *graphstore.Rel
		for _, e := range edges {
			if e.Props.String("status") == string(p.status) {
				hit = e
			}
		}
		if hit == nil {
			return nil, apierr.Consistency("%s carries a %s pointer but no %s version",
				root.Props.String("uid"), p.rel, p.status)
		}
		return hit, nil
	}
	return r.openEdge(tx, root)
}

// FindAll resolves every aggregate of the kind through the selector,
// then filters, sorts and pages in memory. Aggregates the selector
// cannot resolve, such as never-approved drafts when Final versions
// are requested, are skipped.
func (r *ItemRepo) FindAll(ctx context.Context, q filtering.Query, sels ...Selector) ([]*Item, int, error) {
	spec, err := buildSelector(sels)
	if err != nil {
		return nil, 0, err
	}
	var items []*Item
	err = r.store.Read(ctx, func(tx graphstore.Tx) error {
		roots, err := tx.FindNodes(r.kind.RootLabel, nil)
		if err != nil {
			return err
		}
		items = items[:0]
		for _, root := range roots {
			edge, err := r.resolveEdge(tx, root, spec)
			if apierr.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			item, err := r.buildItem(tx, root, edge)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return filtering.Apply(items, r.fields, q, maxPageSize)
}

// GetAllVersions returns every version of the aggregate, newest first.
// Consecutive versions can share the same value content, as after an
// approval.
func (r *ItemRepo) GetAllVersions(ctx context.Context, uid string) ([]*Item, error) {
	var items []*Item
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := r.findRoot(tx, uid)
		if err != nil {
			return err
		}
		edges, err := versionEdges(tx, root.ID)
		if err != nil {
			return err
		}
		items = items[:0]
		for i := len(edges) - 1; i >= 0; i-- {
			item, err := r.buildItem(tx, root, edges[i])
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetAuditTrail lists the actions recorded against the aggregate,
// newest first.
func (r *ItemRepo) GetAuditTrail(ctx context.Context, uid string) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := r.findRoot(tx, uid)
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

// GetHeaders lists the distinct current values of one field across the
// family, for filter autocomplete. search narrows string fields
// case-insensitively; limit 0 means no cap.
func (r *ItemRepo) GetHeaders(ctx context.Context, field, search string, limit int) ([]any, error) {
	items, _, err := r.FindAll(ctx, filtering.Query{Page: filtering.Page{Number: 1}})
	if err != nil {
		return nil, err
	}
	return filtering.DistinctValues(items, r.fields, field, search, limit), nil
}

// Exists reports whether a root with the uid is present, regardless of
// its version state.
func (r *ItemRepo) Exists(ctx context.Context, uid string) (bool, error) {
	var found bool
	err := r.store.Read(ctx, func(tx graphstore.Tx) error {
		root, err := tx.FindNode(r.kind.RootLabel, "uid", uid)
		if err != nil {
			return err
		}
		found = root != nil
		return nil
	})
	return found, err
}

// fields flattens an item for the filtering engine. Version metadata
// fields use fixed names; every value property is exposed under its own
// name unless it collides with a metadata field.
func (r *ItemRepo) fields(it *Item) map[string]any {
	out := map[string]any{
		"uid":                it.UID,
		"library_name":       it.Library.Name,
		"status":             string(it.Meta.Status),
		"version":            it.Meta.Version.String(),
		"start_date":         it.Meta.Start,
		"user_initials":      it.Meta.Author,
		"change_description": it.Meta.ChangeDescription,
	}
	for k, v := range it.Value {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return out
}

func sortRelsByStart(rels []*graphstore.Rel) {
	sort.SliceStable(rels, func(i, j int) bool {
		a, _ := rels[i].Props.Time("start_date")
		b, _ := rels[j].Props.Time("start_date")
		return a.Before(b)
	})
}
