package services

import (
	"context"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/syntax"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type TimeframeTemplateInput struct {
	Name              string `json:"name"`
	GuidanceText      string `json:"guidance_text"`
	LibraryName       string `json:"library_name"`
	ChangeDescription string `json:"change_description"`
}

type TimeframeTemplateService interface {
	Create(ctx context.Context, in TimeframeTemplateInput) (*syntax.TimeframeTemplateAR, error)
	Edit(ctx context.Context, uid string, in TimeframeTemplateInput) (*syntax.TimeframeTemplateAR, error)
	Approve(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error)
	NewVersion(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error)
	Inactivate(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error)
	Reactivate(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error)
	Delete(ctx context.Context, uid string) error
	Get(ctx context.Context, uid string, q VersionQuery) (*syntax.TimeframeTemplateAR, error)
	List(ctx context.Context, q filtering.Query) ([]*syntax.TimeframeTemplateAR, int, error)
	Versions(ctx context.Context, uid string) ([]*syntax.TimeframeTemplateAR, error)
	AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error)
	Parameters(ctx context.Context, uid string) ([]string, error)
}

type timeframeTemplateService struct {
	log       *logger.Logger
	repo      *repos.TimeframeTemplateRepo
	libraries *repos.LibraryRepo
}

func NewTimeframeTemplateService(log *logger.Logger, repo *repos.TimeframeTemplateRepo, libraries *repos.LibraryRepo) TimeframeTemplateService {
	return &timeframeTemplateService{
		log:       log.With("service", "TimeframeTemplateService"),
		repo:      repo,
		libraries: libraries,
	}
}

func (s *timeframeTemplateService) Create(ctx context.Context, in TimeframeTemplateInput) (*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Create")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	lib, err := s.libraries.FindByName(ctx, in.LibraryName)
	if err != nil {
		return nil, err
	}
	uid, err := s.repo.GenerateUID(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := syntax.NewTimeframeTemplate(uid, lib, syntax.TimeframeTemplateVO{
		Name:         in.Name,
		GuidanceText: in.GuidanceText,
	}, author, nowUTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("timeframe template created", "uid", uid)
	return ar, nil
}

func (s *timeframeTemplateService) Edit(ctx context.Context, uid string, in TimeframeTemplateInput) (*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Edit")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.repo.FindByUID(ctx, uid, repos.Head())
	if err != nil {
		return nil, err
	}
	if err := ar.EditDraft(syntax.TimeframeTemplateVO{
		Name:         in.Name,
		GuidanceText: in.GuidanceText,
	}, author, in.ChangeDescription, nowUTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

func (s *timeframeTemplateService) Approve(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Approve")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeTemplateAR).Approve)
}

func (s *timeframeTemplateService) NewVersion(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.NewVersion")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeTemplateAR).NewVersion)
}

func (s *timeframeTemplateService) Inactivate(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Inactivate")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeTemplateAR).Inactivate)
}

func (s *timeframeTemplateService) Reactivate(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Reactivate")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeTemplateAR).Reactivate)
}

func (s *timeframeTemplateService) transition(ctx context.Context, uid string, op func(*syntax.TimeframeTemplateAR, string, string, time.Time) error) (*syntax.TimeframeTemplateAR, error) {
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.repo.FindByUID(ctx, uid, repos.Head())
	if err != nil {
		return nil, err
	}
	if err := op(ar, author, "", nowUTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

func (s *timeframeTemplateService) Delete(ctx context.Context, uid string) error {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Delete")
	defer span.End()
	if _, err := authorFrom(ctx); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, uid)
}

func (s *timeframeTemplateService) Get(ctx context.Context, uid string, q VersionQuery) (*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Get")
	defer span.End()
	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUID(ctx, uid, sels...)
}

func (s *timeframeTemplateService) List(ctx context.Context, q filtering.Query) ([]*syntax.TimeframeTemplateAR, int, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.List")
	defer span.End()
	return s.repo.FindAll(ctx, q)
}

func (s *timeframeTemplateService) Versions(ctx context.Context, uid string) ([]*syntax.TimeframeTemplateAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Versions")
	defer span.End()
	return s.repo.GetAllVersions(ctx, uid)
}

func (s *timeframeTemplateService) AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.AuditTrail")
	defer span.End()
	return s.repo.GetAuditTrail(ctx, uid)
}

func (s *timeframeTemplateService) Parameters(ctx context.Context, uid string) ([]string, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeTemplateService.Parameters")
	defer span.End()
	ar, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return ar.Value.ParameterNames(), nil
}

type ParameterTermInput struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

type TimeframeInput struct {
	TemplateUID       string               `json:"timeframe_template_uid"`
	ParameterTerms    []ParameterTermInput `json:"parameter_terms"`
	LibraryName       string               `json:"library_name"`
	ChangeDescription string               `json:"change_description"`
}

type TimeframeService interface {
	Create(ctx context.Context, in TimeframeInput) (*syntax.TimeframeAR, error)
	Edit(ctx context.Context, uid string, in TimeframeInput) (*syntax.TimeframeAR, error)
	Approve(ctx context.Context, uid string) (*syntax.TimeframeAR, error)
	NewVersion(ctx context.Context, uid string) (*syntax.TimeframeAR, error)
	Inactivate(ctx context.Context, uid string) (*syntax.TimeframeAR, error)
	Reactivate(ctx context.Context, uid string) (*syntax.TimeframeAR, error)
	Delete(ctx context.Context, uid string) error
	Get(ctx context.Context, uid string, q VersionQuery) (*syntax.TimeframeAR, error)
	List(ctx context.Context, q filtering.Query) ([]*syntax.TimeframeAR, int, error)
	Versions(ctx context.Context, uid string) ([]*syntax.TimeframeAR, error)
	AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error)
}

type timeframeService struct {
	log       *logger.Logger
	repo      *repos.TimeframeRepo
	templates *repos.TimeframeTemplateRepo
	libraries *repos.LibraryRepo
}

func NewTimeframeService(log *logger.Logger, repo *repos.TimeframeRepo, templates *repos.TimeframeTemplateRepo, libraries *repos.LibraryRepo) TimeframeService {
	return &timeframeService{
		log:       log.With("service", "TimeframeService"),
		repo:      repo,
		templates: templates,
		libraries: libraries,
	}
}

// vo resolves the template and snapshots its approved text into the
// instance, so later template versions never change existing
// timeframes.
func (s *timeframeService) vo(ctx context.Context, in TimeframeInput) (syntax.TimeframeVO, error) {
	tmpl, err := s.templates.FindByUID(ctx, in.TemplateUID, repos.AtStatus(version.StatusFinal))
	if err != nil {
		if apierr.IsNotFound(err) {
			return syntax.TimeframeVO{}, apierr.BusinessLogic(
				"the timeframe template %s has no approved version", in.TemplateUID)
		}
		return syntax.TimeframeVO{}, err
	}
	terms := make([]syntax.ParameterTermVO, len(in.ParameterTerms))
	for i, t := range in.ParameterTerms {
		terms[i] = syntax.ParameterTermVO{Position: t.Position, Name: t.Name, Value: t.Value}
	}
	return syntax.TimeframeVO{
		TemplateUID:    tmpl.UID,
		TemplateName:   tmpl.Value.Name,
		ParameterTerms: terms,
	}, nil
}

func (s *timeframeService) Create(ctx context.Context, in TimeframeInput) (*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Create")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	vo, err := s.vo(ctx, in)
	if err != nil {
		return nil, err
	}
	lib, err := s.libraries.FindByName(ctx, in.LibraryName)
	if err != nil {
		return nil, err
	}
	uid, err := s.repo.GenerateUID(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := syntax.NewTimeframe(uid, lib, vo, author, nowUTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("timeframe created", "uid", uid, "template", in.TemplateUID)
	return ar, nil
}

func (s *timeframeService) Edit(ctx context.Context, uid string, in TimeframeInput) (*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Edit")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.repo.FindByUID(ctx, uid, repos.Head())
	if err != nil {
		return nil, err
	}
	vo, err := s.vo(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := ar.EditDraft(vo, author, in.ChangeDescription, nowUTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

func (s *timeframeService) Approve(ctx context.Context, uid string) (*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Approve")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeAR).Approve)
}

func (s *timeframeService) NewVersion(ctx context.Context, uid string) (*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.NewVersion")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeAR).NewVersion)
}

func (s *timeframeService) Inactivate(ctx context.Context, uid string) (*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Inactivate")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeAR).Inactivate)
}

func (s *timeframeService) Reactivate(ctx context.Context, uid string) (*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Reactivate")
	defer span.End()
	return s.transition(ctx, uid, (*syntax.TimeframeAR).Reactivate)
}

func (s *timeframeService) transition(ctx context.Context, uid string, op func(*syntax.TimeframeAR, string, string, time.Time) error) (*syntax.TimeframeAR, error) {
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.repo.FindByUID(ctx, uid, repos.Head())
	if err != nil {
		return nil, err
	}
	if err := op(ar, author, "", nowUTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

func (s *timeframeService) Delete(ctx context.Context, uid string) error {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Delete")
	defer span.End()
	if _, err := authorFrom(ctx); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, uid)
}

func (s *timeframeService) Get(ctx context.Context, uid string, q VersionQuery) (*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Get")
	defer span.End()
	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUID(ctx, uid, sels...)
}

func (s *timeframeService) List(ctx context.Context, q filtering.Query) ([]*syntax.TimeframeAR, int, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.List")
	defer span.End()
	return s.repo.FindAll(ctx, q)
}

func (s *timeframeService) Versions(ctx context.Context, uid string) ([]*syntax.TimeframeAR, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.Versions")
	defer span.End()
	return s.repo.GetAllVersions(ctx, uid)
}

func (s *timeframeService) AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error) {
	ctx, span := observability.StartSpan(ctx, "TimeframeService.AuditTrail")
	defer span.End()
	return s.repo.GetAuditTrail(ctx, uid)
}
