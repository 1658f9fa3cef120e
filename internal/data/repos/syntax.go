package repos

import (
	"context"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/syntax"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// TimeframeTemplateRepo persists timeframe templates. Instances pin
// their template root through HAS_TEMPLATE, which blocks deletion of a
// template that is in use.
type TimeframeTemplateRepo struct {
	*ItemRepo
}

func NewTimeframeTemplateRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *TimeframeTemplateRepo {
	return &TimeframeTemplateRepo{NewItemRepo(Kind{
		RootLabel:  "TimeframeTemplateRoot",
		ValueLabel: "TimeframeTemplateValue",
		UIDPrefix:  "TimeframeTemplate",
		UsageRels:  []string{RelHasTemplate},
	}, store, c, log)}
}

func (r *TimeframeTemplateRepo) Save(ctx context.Context, ar *syntax.TimeframeTemplateAR) error {
	if err := r.ItemRepo.Save(ctx, &Item{Item: ar.Item, Value: timeframeTemplateProps(ar.Value)}); err != nil {
		return err
	}
	ar.MarkLoaded()
	return nil
}

func (r *TimeframeTemplateRepo) FindByUID(ctx context.Context, uid string, sels ...Selector) (*syntax.TimeframeTemplateAR, error) {
	item, err := r.ItemRepo.FindByUID(ctx, uid, sels...)
	if err != nil {
		return nil, err
	}
	return timeframeTemplateFromItem(item), nil
}

func (r *TimeframeTemplateRepo) FindAll(ctx context.Context, q filtering.Query, sels ...Selector) ([]*syntax.TimeframeTemplateAR, int, error) {
	items, total, err := r.ItemRepo.FindAll(ctx, q, sels...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*syntax.TimeframeTemplateAR, len(items))
	for i, item := range items {
		out[i] = timeframeTemplateFromItem(item)
	}
	return out, total, nil
}

func (r *TimeframeTemplateRepo) GetAllVersions(ctx context.Context, uid string) ([]*syntax.TimeframeTemplateAR, error) {
	items, err := r.ItemRepo.GetAllVersions(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]*syntax.TimeframeTemplateAR, len(items))
	for i, item := range items {
		out[i] = timeframeTemplateFromItem(item)
	}
	return out, nil
}

func timeframeTemplateFromItem(item *Item) *syntax.TimeframeTemplateAR {
	return &syntax.TimeframeTemplateAR{Item: item.Item, Value: syntax.TimeframeTemplateVO{
		Name:         item.Value.String("name"),
		GuidanceText: item.Value.String("guidance_text"),
	}}
}

func timeframeTemplateProps(v syntax.TimeframeTemplateVO) graphstore.Props {
	return graphstore.Props{
		"name":          v.Name,
		"guidance_text": v.GuidanceText,
	}
}

// TimeframeRepo persists timeframe instances. The rendered name is
// stored alongside the raw terms so instances filter and sort on it
// like any other field.
type TimeframeRepo struct {
	*ItemRepo
}

func NewTimeframeRepo(store graphstore.Store, c cache.ItemCache, log *logger.Logger) *TimeframeRepo {
	return &TimeframeRepo{NewItemRepo(Kind{
		RootLabel:  "TimeframeRoot",
		ValueLabel: "TimeframeValue",
		UIDPrefix:  "Timeframe",
		Relations: map[string]Relation{
			RelationTimeframeTemplate: {EdgeType: RelHasTemplate, TargetLabel: "TimeframeTemplateRoot"},
		},
	}, store, c, log)}
}

func (r *TimeframeRepo) Save(ctx context.Context, ar *syntax.TimeframeAR) error {
	if err := r.ItemRepo.Save(ctx, &Item{Item: ar.Item, Value: timeframeProps(ar.Value)}); err != nil {
		return err
	}
	ar.MarkLoaded()
	return nil
}

func (r *TimeframeRepo) FindByUID(ctx context.Context, uid string, sels ...Selector) (*syntax.TimeframeAR, error) {
	item, err := r.ItemRepo.FindByUID(ctx, uid, sels...)
	if err != nil {
		return nil, err
	}
	return timeframeFromItem(item), nil
}

func (r *TimeframeRepo) FindAll(ctx context.Context, q filtering.Query, sels ...Selector) ([]*syntax.TimeframeAR, int, error) {
	items, total, err := r.ItemRepo.FindAll(ctx, q, sels...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*syntax.TimeframeAR, len(items))
	for i, item := range items {
		out[i] = timeframeFromItem(item)
	}
	return out, total, nil
}

func (r *TimeframeRepo) GetAllVersions(ctx context.Context, uid string) ([]*syntax.TimeframeAR, error) {
	items, err := r.ItemRepo.GetAllVersions(ctx, uid)
	if err != nil {
		return nil, err
	}
	out := make([]*syntax.TimeframeAR, len(items))
	for i, item := range items {
		out[i] = timeframeFromItem(item)
	}
	return out, nil
}

func timeframeFromItem(item *Item) *syntax.TimeframeAR {
	names := item.Value.Strings("parameter_names")
	values := item.Value.Strings("parameter_values")
	terms := make([]syntax.ParameterTermVO, 0, len(names))
	for i, name := range names {
		term := syntax.ParameterTermVO{Position: i + 1, Name: name}
		if i < len(values) {
			term.Value = values[i]
		}
		terms = append(terms, term)
	}
	return &syntax.TimeframeAR{Item: item.Item, Value: syntax.TimeframeVO{
		TemplateUID:    item.Value.String("template_uid"),
		TemplateName:   item.Value.String("template_name"),
		ParameterTerms: terms,
	}}
}

func timeframeProps(v syntax.TimeframeVO) graphstore.Props {
	names := make([]string, len(v.ParameterTerms))
	values := make([]string, len(v.ParameterTerms))
	for i, term := range v.ParameterTerms {
		names[i] = term.Name
		values[i] = term.Value
	}
	return graphstore.Props{
		"name":             v.Name(),
		"template_uid":     v.TemplateUID,
		"template_name":    v.TemplateName,
		"parameter_names":  names,
		"parameter_values": values,
	}
}
