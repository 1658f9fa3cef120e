package repos

import (
	"context"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/concepts"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// Additional root-level relationship types maintained by the concept
// repositories.
const (
	RelHasGroup    = "HAS_GROUP"
	RelHasSubGroup = "HAS_SUBGROUP"
	RelHasTemplate = "HAS_TEMPLATE"
)

// Relation names accepted by AddRelation and RemoveRelation.
const (
	RelationActivityGroup     = "activity_group"
	RelationActivitySubGroup  = "activity_subgroup"
	RelationTimeframeTemplate = "timeframe_template"
)

// ActivityGroupRepo persists activity group aggregates. Study activity
// group selections reference group values, which blocks deletion.
type ActivityGroupRepo struct {
	*ItemRepo
}

func NewActivityGroupRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *ActivityGroupRepo {
	return &ActivityGroupRepo{NewItemRepo(Kind{
		RootLabel:  "ActivityGroupRoot",
		ValueLabel: "ActivityGroupValue",
		UIDPrefix:  "ActivityGroup",
		UsageRels:  []string{RelHasSelectedGroup},
	}, store, c, log)}
}

func (r *ActivityGroupRepo) Save(ctx context.Context, ar *concepts.ActivityGroupAR) error {
	if err := r.ItemRepo.Save(ctx, &Item{Item: ar.Item, Value: activityGroupProps(ar.Value)}); err != nil {
		return err
	}
	ar.MarkLoaded()
	return nil
}

func (r *ActivityGroupRepo) FindByUID(ctx context.Context, uid string, sels ...Selector) (*concepts.ActivityGroupAR, error) {
	item, err := r.ItemRepo.FindByUID(ctx, uid, sels...)
	if err != nil {
		return nil, err
	}
	return activityGroupFromItem(item), nil
}

func (r *ActivityGroupRepo) FindAll(ctx context.Context, q filtering.Query, sels ...Selector) ([]*concepts.ActivityGroupAR, int, error) {
	items, total, err := r.ItemRepo.FindAll(ctx, q, sels...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*concepts.ActivityGroupAR, len(items))
	for i, item := range items {
		out[i] = activityGroupFromItem(item)
	}
	return out, total, nil
}

func (r *ActivityGroupRepo) GetAllVersions(ctx context.Context, uid string) ([]*concepts.ActivityGroupAR, error) {
	items, err := r.ItemRepo.GetAllVersions(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]*concepts.ActivityGroupAR, len(items))
	for i, item := range items {
		out[i] = activityGroupFromItem(item)
	}
	return out, nil
}

func activityGroupFromItem(item *Item) *concepts.ActivityGroupAR {
	return &concepts.ActivityGroupAR{Item: item.Item, Value: concepts.ActivityGroupVO{
		Name:             item.Value.String("name"),
		NameSentenceCase: item.Value.String("name_sentence_case"),
		Definition:       item.Value.String("definition"),
		Abbreviation:     item.Value.String("abbreviation"),
	}}
}

func activityGroupProps(v concepts.ActivityGroupVO) graphstore.Props {
	return graphstore.Props{
		"name":               v.Name,
		"name_sentence_case": v.NameSentenceCase,
		"definition":         v.Definition,
		"abbreviation":       v.Abbreviation,
	}
}

// ActivitySubGroupRepo persists activity subgroup aggregates. Besides
// the versioned value, the repository mirrors the group membership as
// HAS_GROUP edges between roots so the hierarchy stays traversable
// without loading values.
type ActivitySubGroupRepo struct {
	*ItemRepo
}

func NewActivitySubGroupRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *ActivitySubGroupRepo {
	return &ActivitySubGroupRepo{NewItemRepo(Kind{
		RootLabel:  "ActivitySubGroupRoot",
		ValueLabel: "ActivitySubGroupValue",
		UIDPrefix:  "ActivitySubGroup",
		Relations: map[string]Relation{
			RelationActivityGroup: {EdgeType: RelHasGroup, TargetLabel: "ActivityGroupRoot", ToMany: true},
		},
	}, store, c, log)}
}

func (r *ActivitySubGroupRepo) Save(ctx context.Context, ar *concepts.ActivitySubGroupAR) error {
	if err := r.ItemRepo.Save(ctx, &Item{Item: ar.Item, Value: activitySubGroupProps(ar.Value)}); err != nil {
		return err
	}
	ar.MarkLoaded()
	return nil
}

func (r *ActivitySubGroupRepo) FindByUID(ctx context.Context, uid string, sels ...Selector) (*concepts.ActivitySubGroupAR, error) {
	item, err := r.ItemRepo.FindByUID(ctx, uid, sels...)
	if err != nil {
		return nil, err
	}
	return activitySubGroupFromItem(item), nil
}

func (r *ActivitySubGroupRepo) FindAll(ctx context.Context, q filtering.Query, sels ...Selector) ([]*concepts.ActivitySubGroupAR, int, error) {
	items, total, err := r.ItemRepo.FindAll(ctx, q, sels...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*concepts.ActivitySubGroupAR, len(items))
	for i, item := range items {
		out[i] = activitySubGroupFromItem(item)
	}
	return out, total, nil
}

func (r *ActivitySubGroupRepo) GetAllVersions(ctx context.Context, uid string) ([]*concepts.ActivitySubGroupAR, error) {
	items, err := r.ItemRepo.GetAllVersions(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]*concepts.ActivitySubGroupAR, len(items))
	for i, item := range items {
		out[i] = activitySubGroupFromItem(item)
	}
	return out, nil
}

func activitySubGroupFromItem(item *Item) *concepts.ActivitySubGroupAR {
	return &concepts.ActivitySubGroupAR{Item: item.Item, Value: concepts.ActivitySubGroupVO{
		Name:             item.Value.String("name"),
		NameSentenceCase: item.Value.String("name_sentence_case"),
		Definition:       item.Value.String("definition"),
		Abbreviation:     item.Value.String("abbreviation"),
		GroupUIDs:        item.Value.Strings("activity_group_uids"),
	}}
}

func activitySubGroupProps(v concepts.ActivitySubGroupVO) graphstore.Props {
	return graphstore.Props{
		"name":                v.Name,
		"name_sentence_case":  v.NameSentenceCase,
		"definition":          v.Definition,
		"abbreviation":        v.Abbreviation,
		"activity_group_uids": v.GroupUIDs,
	}
}

// ActivityRepo persists activity aggregates, the leaves that study
// activity selections pin by version.
type ActivityRepo struct {
	*ItemRepo
}

func NewActivityRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *ActivityRepo {
	return &ActivityRepo{NewItemRepo(Kind{
		RootLabel:  "ActivityRoot",
		ValueLabel: "ActivityValue",
		UIDPrefix:  "Activity",
		Relations: map[string]Relation{
			RelationActivitySubGroup: {EdgeType: RelHasSubGroup, TargetLabel: "ActivitySubGroupRoot", ToMany: true},
		},
		UsageRels: []string{RelHasSelectedActivity},
	}, store, c, log)}
}

func (r *ActivityRepo) Save(ctx context.Context, ar *concepts.ActivityAR) error {
	if err := r.ItemRepo.Save(ctx, &Item{Item: ar.Item, Value: activityProps(ar.Value)}); err != nil {
		return err
	}
	ar.MarkLoaded()
	return nil
}

func (r *ActivityRepo) FindByUID(ctx context.Context, uid string, sels ...Selector) (*concepts.ActivityAR, error) {
	item, err := r.ItemRepo.FindByUID(ctx, uid, sels...)
	if err != nil {
		return nil, err
	}
	return activityFromItem(item), nil
}

func (r *ActivityRepo) FindAll(ctx context.Context, q filtering.Query, sels ...Selector) ([]*concepts.ActivityAR, int, error) {
	items, total, err := r.ItemRepo.FindAll(ctx, q, sels...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*concepts.ActivityAR, len(items))
	for i, item := range items {
		out[i] = activityFromItem(item)
	}
	return out, total, nil
}

func (r *ActivityRepo) GetAllVersions(ctx context.Context, uid string) ([]*concepts.ActivityAR, error) {
	items, err := r.ItemRepo.GetAllVersions(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]*concepts.ActivityAR, len(items))
	for i, item := range items {
		out[i] = activityFromItem(item)
	}
	return out, nil
}

func activityFromItem(item *Item) *concepts.ActivityAR {
	return &concepts.ActivityAR{Item: item.Item, Value: concepts.ActivityVO{
		Name:             item.Value.String("name"),
		NameSentenceCase: item.Value.String("name_sentence_case"),
		Definition:       item.Value.String("definition"),
		Abbreviation:     item.Value.String("abbreviation"),
		SubGroupUIDs:     item.Value.Strings("activity_subgroup_uids"),
		IsDataCollected:  item.Value.Bool("is_data_collected"),
	}}
}

func activityProps(v concepts.ActivityVO) graphstore.Props {
	return graphstore.Props{
		"name":                   v.Name,
		"name_sentence_case":     v.NameSentenceCase,
		"definition":             v.Definition,
		"abbreviation":           v.Abbreviation,
		"activity_subgroup_uids": v.SubGroupUIDs,
		"is_data_collected":      v.IsDataCollected,
	}
}

// CTTermRepo persists controlled terminology terms. Epoch selections
// and SoA groups reference term roots by uid, which blocks deletion.
type CTTermRepo struct {
	*ItemRepo
}

func NewCTTermRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *CTTermRepo {
	return &CTTermRepo{NewItemRepo(Kind{
		RootLabel:  "CTTermRoot",
		ValueLabel: "CTTermValue",
		UIDPrefix:  "CTTerm",
		UsageRels:  []string{RelHasEpochTerm, RelHasSoAGroup},
	}, store, c, log)}
}

func (r *CTTermRepo) Save(ctx context.Context, ar *concepts.CTTermAR) error {
	if err := r.ItemRepo.Save(ctx, &Item{Item: ar.Item, Value: ctTermProps(ar.Value)}); err != nil {
		return err
	}
	ar.MarkLoaded()
	return nil
}

func (r *CTTermRepo) FindByUID(ctx context.Context, uid string, sels ...Selector) (*concepts.CTTermAR, error) {
	item, err := r.ItemRepo.FindByUID(ctx, uid, sels...)
	if err != nil {
		return nil, err
	}
	return ctTermFromItem(item), nil
}

func (r *CTTermRepo) FindAll(ctx context.Context, q filtering.Query, sels ...Selector) ([]*concepts.CTTermAR, int, error) {
	items, total, err := r.ItemRepo.FindAll(ctx, q, sels...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*concepts.CTTermAR, len(items))
	for i, item := range items {
		out[i] = ctTermFromItem(item)
	}
	return out, total, nil
}

func (r *CTTermRepo) GetAllVersions(ctx context.Context, uid string) ([]*concepts.CTTermAR, error) {
	items, err := r.ItemRepo.GetAllVersions(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]*concepts.CTTermAR, len(items))
	for i, item := range items {
		out[i] = ctTermFromItem(item)
	}
	return out, nil
}

func ctTermFromItem(item *Item) *concepts.CTTermAR {
	return &concepts.CTTermAR{Item: item.Item, Value: concepts.CTTermVO{
		CatalogueName: item.Value.String("catalogue_name"),
		CodelistUID:   item.Value.String("codelist_uid"),
		Code:          item.Value.String("code"),
		Name:          item.Value.String("name"),
		Definition:    item.Value.String("definition"),
	}}
}

func ctTermProps(v concepts.CTTermVO) graphstore.Props {
	return graphstore.Props{
		"catalogue_name": v.CatalogueName,
		"codelist_uid":   v.CodelistUID,
		"code":           v.Code,
		"name":           v.Name,
		"definition":     v.Definition,
	}
}
