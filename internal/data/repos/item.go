package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// Item is the storage-facing shape of a versioned aggregate: the
// lifecycle state machine plus the value content as raw node
// properties. Typed repositories map Value to their value objects.
// Value properties must be JSON-safe scalars or string lists; the
// timestamps of an item live in its version metadata, never in Value.
type Item struct {
	version.Item
	Value graphstore.Props
}

// Relation describes one outgoing root-level relationship a kind
// supports, keyed by its public name in Kind.Relations.
type Relation struct {
	EdgeType    string
	TargetLabel string
	// ToMany permits several concurrent targets. Single-valued
	// relations replace the previous target on AddRelation.
	ToMany bool
}

// Kind configures one versioned aggregate family. The engine in this
// file is the same for every family; typed repositories only add the
// value object mapping.
type Kind struct {
	RootLabel  string
	ValueLabel string
	// UIDPrefix names the per-family counter, e.g. "Activity" yields
	// Activity_000001, Activity_000002 and so on.
	UIDPrefix string
	// CacheKey namespaces cache entries; defaults to UIDPrefix.
	CacheKey string
	// Relations lists the root-level links editable through
	// AddRelation and RemoveRelation.
	Relations map[string]Relation
	// UsageRels are incoming relationship types that mark the root or
	// one of its value nodes as referenced by a study, which blocks
	// deletion.
	UsageRels []string
}

type selectorSpec struct {
	head    bool
	at      *time.Time
	version *version.Version
	status  *version.Status
}

// Selector narrows FindByUID and FindAll to one point of the version
// history. Selectors are mutually exclusive; none means the default
// read view, which prefers the latest Final version over an open Draft
// over Retired.
type Selector func(*selectorSpec)

// Head selects the open head of the version chain regardless of its
// status. Mutating paths load through it so the lifecycle guards see
// the version a transition would actually extend.
func Head() Selector {
	return func(s *selectorSpec) { s.head = true }
}

// AtTime selects the version whose validity window covers the instant,
// start inclusive, end exclusive.
func AtTime(t time.Time) Selector {
	return func(s *selectorSpec) { u := t.UTC(); s.at = &u }
}

// AtVersion selects the most recent occurrence of the version number.
// A number can recur when an aggregate is retired and reactivated.
func AtVersion(v version.Version) Selector {
	return func(s *selectorSpec) { s.version = &v }
}

// AtStatus selects the most recent version carrying the status.
func AtStatus(st version.Status) Selector {
	return func(s *selectorSpec) { s.status = &st }
}

func buildSelector(sels []Selector) (selectorSpec, error) {
	var spec selectorSpec
	for _, sel := range sels {
		sel(&spec)
	}
	given := 0
	if spec.head {
		given++
	}
	if spec.at != nil {
		given++
	}
	if spec.version != nil {
		given++
	}
	if spec.status != nil {
		given++
	}
	if given > 1 {
		return spec, apierr.Validation("at most one of at_specified_date, version and status can be given")
	}
	return spec, nil
}

func (s selectorSpec) isDefault() bool {
	return !s.head && s.at == nil && s.version == nil && s.status == nil
}

// ItemRepo is the version engine for one aggregate family. Every write
// runs in a single store transaction, and updates re-check the open
// HAS_VERSION relationship inside that transaction, so of two
// concurrent writers one loses with a conflict instead of forking the
// version chain.
type ItemRepo struct {
	kind  Kind
	store graphstore.Store
	cache cache.ItemCache
	log   *logger.Logger
}

func NewItemRepo(kind Kind, store graphstore.Store, c cache.ItemCache, log *logger.Logger) *ItemRepo {
	if kind.CacheKey == "" {
		kind.CacheKey = kind.UIDPrefix
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &ItemRepo{kind: kind, store: store, cache: c, log: log.With("repo", kind.RootLabel)}
}

func (r *ItemRepo) Kind() Kind { return r.kind }

// GenerateUID reserves the next identifier for this family.
func (r *ItemRepo) GenerateUID(ctx context.Context) (string, error) {
	var uid string
	err := r.store.Write(ctx, func(tx graphstore.Tx) error {
		n, err := tx.NextCounter(r.kind.UIDPrefix)
		if err != nil {
			return err
		}
		uid = graphstore.FormatUID(r.kind.UIDPrefix, n)
		return nil
	})
	return uid, err
}

// Save persists the aggregate. A fresh item creates the root, the
// first value node and an open version relationship. A loaded item
// closes the open relationship and appends a new one, reusing the
// value node when the content did not change, as on approval.
func (r *ItemRepo) Save(ctx context.Context, item *Item) error {
	var err error
	if item.IsNew() {
		err = r.store.Write(ctx, func(tx graphstore.Tx) error { return r.create(tx, item) })
	} else {
		err = r.store.Write(ctx, func(tx graphstore.Tx) error { return r.update(tx, item) })
	}
	if err != nil {
		return err
	}
	item.MarkLoaded()
	r.cache.Invalidate(ctx, r.cacheKey(item.UID))
	return nil
}

func (r *ItemRepo) create(tx graphstore.Tx, item *Item) error {
	lib, err := tx.FindNode(LabelLibrary, "name", item.Library.Name)
	if err != nil {
		return err
	}
	if lib == nil {
		return apierr.NotFound("the library %q could not be found", item.Library.Name)
	}
	existing, err := tx.FindNode(r.kind.RootLabel, "uid", item.UID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apierr.BusinessLogic("%s with uid %s already exists", r.kind.RootLabel, item.UID)
	}
	root, err := tx.CreateNode(r.kind.RootLabel, graphstore.Props{"uid": item.UID})
	if err != nil {
		return err
	}
	if _, err := tx.Connect(lib.ID, RelContainsConcept, root.ID, nil); err != nil {
		return err
	}
	value, err := tx.CreateNode(r.kind.ValueLabel, item.Value.Clone())
	if err != nil {
		return err
	}
	if _, err := tx.Connect(root.ID, RelHasVersion, value.ID, metaToProps(item.Meta)); err != nil {
		return err
	}
	for _, ptr := range []string{RelLatest, RelLatestDraft} {
		if _, err := tx.Connect(root.ID, ptr, value.ID, nil); err != nil {
			return err
		}
	}
	return writeAction(tx, root.ID, OpCreate, item.Meta, "", value.ID)
}

func (r *ItemRepo) update(tx graphstore.Tx, item *Item) error {
	root, err := r.findRoot(tx, item.UID)
	if err != nil {
		return err
	}
	open, err := r.openEdge(tx, root)
	if err != nil {
		return err
	}
	stored, err := metaFromProps(open.Props)
	if err != nil {
		return err
	}
	if stored.Status != item.PrevMeta.Status || stored.Version != item.PrevMeta.Version {
		return apierr.Conflict("stale version of %s: loaded %s %s, stored %s %s",
			item.UID, item.PrevMeta.Status, item.PrevMeta.Version, stored.Status, stored.Version)
	}
	if err := tx.SetRelProps(open.ID, graphstore.Props{"end_date": item.Meta.Start.UTC()}); err != nil {
		return err
	}
	valueID := open.ToID
	current, err := tx.GetNode(valueID)
	if err != nil {
		return err
	}
	if !propsEqual(current.Props, item.Value) {
		created, err := tx.CreateNode(r.kind.ValueLabel, item.Value.Clone())
		if err != nil {
			return err
		}
		valueID = created.ID
	}
	if _, err := tx.Connect(root.ID, RelHasVersion, valueID, metaToProps(item.Meta)); err != nil {
		return err
	}
	if err := movePointer(tx, root.ID, RelLatest, valueID); err != nil {
		return err
	}
	prev, next := item.PrevMeta.Status, item.Meta.Status
	// A new draft on top of a final keeps LATEST_FINAL: that version
	// stays the latest approved one until the draft is approved.
	if prev != next && !(prev == version.StatusFinal && next == version.StatusDraft) {
		if err := removePointer(tx, root.ID, pointerRelFor(prev)); err != nil {
			return err
		}
	}
	if err := movePointer(tx, root.ID, pointerRelFor(next), valueID); err != nil {
		return err
	}
	return writeAction(tx, root.ID, operationFor(item.PrevMeta, item.Meta), item.Meta, open.ToID, valueID)
}

func (r *ItemRepo) findRoot(tx graphstore.Tx, uid string) (*graphstore.Node, error) {
	root, err := tx.FindNode(r.kind.RootLabel, "uid", uid)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, apierr.NotFound("%s with uid %s does not exist", r.kind.RootLabel, uid)
	}
	return root, nil
}

// openEdge returns the head of the version chain: the single
// HAS_VERSION relationship without an end date.
func (r *ItemRepo) openEdge(tx graphstore.Tx, root *graphstore.Node) (*graphstore.Rel, error) {
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
		return nil, apierr.Consistency("found %d open versions of %s, expected exactly one",
			len(open), root.Props.String("uid"))
	}
	return open[0], nil
}

// versionEdges lists the HAS_VERSION relationships of a root ordered by
// start date ascending. Relationships created later win ties, which
// keeps repeated version numbers resolvable to their latest occurrence.
func versionEdges(tx graphstore.Tx, rootID string) ([]*graphstore.Rel, error) {
	edges, err := tx.OutRels(rootID, RelHasVersion)
	if err != nil {
		return nil, err
	}
	sortRelsByStart(edges)
	return edges, nil
}

func (r *ItemRepo) buildItem(tx graphstore.Tx, root *graphstore.Node, edge *graphstore.Rel) (*Item, error) {
	meta, err := metaFromProps(edge.Props)
	if err != nil {
		return nil, err
	}
	value, err := tx.GetNode(edge.ToID)
	if err != nil {
		return nil, err
	}
	lib, err := r.libraryOf(tx, root)
	if err != nil {
		return nil, err
	}
	item := &Item{
		Item: version.Item{
			UID:     root.Props.String("uid"),
			Library: lib,
			Meta:    meta,
		},
		Value: value.Props.Clone(),
	}
	item.MarkLoaded()
	return item, nil
}

func (r *ItemRepo) libraryOf(tx graphstore.Tx, root *graphstore.Node) (version.LibraryVO, error) {
	rels, err := tx.InRels(root.ID, RelContainsConcept)
	if err != nil {
		return version.LibraryVO{}, err
	}
	if len(rels) == 0 {
		return version.LibraryVO{}, apierr.Consistency("%s is not contained in any library",
			root.Props.String("uid"))
	}
	lib, err := tx.GetNode(rels[0].FromID)
	if err != nil {
		return version.LibraryVO{}, err
	}
	return version.LibraryVO{
		Name:       lib.Props.String("name"),
		IsEditable: lib.Props.Bool("is_editable"),
	}, nil
}

func pointerRelFor(s version.Status) string {
	switch s {
	case version.StatusDraft:
		return RelLatestDraft
	case version.StatusFinal:
		return RelLatestFinal
	case version.StatusRetired:
		return RelLatestRetired
	}
	return ""
}

func movePointer(tx graphstore.Tx, rootID, relType, valueID string) error {
	if err := removePointer(tx, rootID, relType); err != nil {
		return err
	}
	if relType == "" {
		return nil
	}
	_, err := tx.Connect(rootID, relType, valueID, nil)
	return err
}

func removePointer(tx graphstore.Tx, rootID, relType string) error {
	if relType == "" {
		return nil
	}
	rels, err := tx.OutRels(rootID, relType)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if err := tx.Disconnect(rel.ID); err != nil {
			return err
		}
	}
	return nil
}

func metaToProps(m version.ItemMetadata) graphstore.Props {
	props := graphstore.Props{
		"status":             string(m.Status),
		"version":            m.Version.String(),
		"start_date":         m.Start.UTC(),
		"user_initials":      m.Author,
		"change_description": m.ChangeDescription,
	}
	if m.End != nil {
		props["end_date"] = m.End.UTC()
	}
	return props
}

func metaFromProps(p graphstore.Props) (version.ItemMetadata, error) {
	status, err := version.ParseStatus(p.String("status"))
	if err != nil {
		return version.ItemMetadata{}, apierr.Wrap(apierr.KindConsistency, err, "corrupt version relationship")
	}
	v, err := version.Parse(p.String("version"))
	if err != nil {
		return version.ItemMetadata{}, apierr.Wrap(apierr.KindConsistency, err, "corrupt version relationship")
	}
	start, _ := p.Time("start_date")
	meta := version.ItemMetadata{
		Status:            status,
		Version:           v,
		Start:             start,
		Author:            p.String("user_initials"),
		ChangeDescription: p.String("change_description"),
	}
	if end, ok := p.Time("end_date"); ok {
		meta.End = &end
	}
	return meta, nil
}

// propsEqual compares two property maps after normalizing numeric
// widths and time zones. Keys holding nil count as absent.
func propsEqual(a, b graphstore.Props) bool {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k, v := range a {
		if v != nil {
			keys[k] = struct{}{}
		}
	}
	for k, v := range b {
		if v != nil {
			keys[k] = struct{}{}
		}
	}
	for k := range keys {
		av, bv := a[k], b[k]
		if av == nil || bv == nil {
			return false
		}
		if !propValueEqual(av, bv) {
			return false
		}
	}
	return true
}

func propValueEqual(a, b any) bool {
	a, b = normalizeProp(a), normalizeProp(b)
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	as, aok := stringSlice(a)
	bs, bok := stringSlice(b)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if as[i] != bs[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

func normalizeProp(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC()
	}
	return v
}

func stringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func (r *ItemRepo) cacheKey(uid string) string {
	return r.kind.CacheKey + ":" + uid
}

type cachedItem struct {
	UID               string         `json:"uid"`
	LibraryName       string         `json:"library_name"`
	LibraryEditable   bool           `json:"library_is_editable"`
	Status            string         `json:"status"`
	Version           string         `json:"version"`
	Start             time.Time      `json:"start_date"`
	End               *time.Time     `json:"end_date,omitempty"`
	Author            string         `json:"user_initials"`
	ChangeDescription string         `json:"change_description"`
	Value             map[string]any `json:"value"`
}

func encodeItem(item *Item) ([]byte, error) {
	return json.Marshal(cachedItem{
		UID:               item.UID,
		LibraryName:       item.Library.Name,
		LibraryEditable:   item.Library.IsEditable,
		Status:            string(item.Meta.Status),
		Version:           item.Meta.Version.String(),
		Start:             item.Meta.Start,
		End:               item.Meta.End,
		Author:            item.Meta.Author,
		ChangeDescription: item.Meta.ChangeDescription,
		Value:             item.Value,
	})
}

// decodeItem rebuilds an item from its cached form. JSON widens every
// number to float64 and every string list to []any; the Props accessors
// tolerate both.
func decodeItem(data []byte) (*Item, error) {
	var c cachedItem
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	status, err := version.ParseStatus(c.Status)
	if err != nil {
		return nil, err
	}
	v, err := version.Parse(c.Version)
	if err != nil {
		return nil, err
	}
	item := &Item{
		Item: version.Item{
			UID:     c.UID,
			Library: version.LibraryVO{Name: c.LibraryName, IsEditable: c.LibraryEditable},
			Meta: version.ItemMetadata{
				Status:            status,
				Version:           v,
				Start:             c.Start.UTC(),
				End:               c.End,
				Author:            c.Author,
				ChangeDescription: c.ChangeDescription,
			},
		},
		Value: graphstore.Props(c.Value),
	}
	item.MarkLoaded()
	return item, nil
}
