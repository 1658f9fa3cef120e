package services

import (
	"context"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/concepts"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type CTTermInput struct {
	CatalogueName     string `json:"catalogue_name"`
	CodelistUID       string `json:"codelist_uid"`
	Code              string `json:"code"`
	Name              string `json:"name"`
	Definition        string `json:"definition"`
	LibraryName       string `json:"library_name"`
	ChangeDescription string `json:"change_description"`
}

func (in CTTermInput) vo() concepts.CTTermVO {
	return concepts.CTTermVO{
		CatalogueName: in.CatalogueName,
		CodelistUID:   in.CodelistUID,
		Code:          in.Code,
		Name:          in.Name,
		Definition:    in.Definition,
	}
}

type CTTermService interface {
	Create(ctx context.Context, in CTTermInput) (*concepts.CTTermAR, error)
	Edit(ctx context.Context, uid string, in CTTermInput) (*concepts.CTTermAR, error)
	Approve(ctx context.Context, uid string) (*concepts.CTTermAR, error)
	NewVersion(ctx context.Context, uid string) (*concepts.CTTermAR, error)
	Inactivate(ctx context.Context, uid string) (*concepts.CTTermAR, error)
	Reactivate(ctx context.Context, uid string) (*concepts.CTTermAR, error)
	Get(ctx context.Context, uid string, q VersionQuery) (*concepts.CTTermAR, error)
	List(ctx context.Context, q filtering.Query) ([]*concepts.CTTermAR, int, error)
	Versions(ctx context.Context, uid string) ([]*concepts.CTTermAR, error)
	AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error)
}

type ctTermService struct {
	log       *logger.Logger
	repo      *repos.CTTermRepo
	libraries *repos.LibraryRepo
}

func NewCTTermService(log *logger.Logger, repo *repos.CTTermRepo, libraries *repos.LibraryRepo) CTTermService {
	return &ctTermService{log: log.With("service", "CTTermService"), repo: repo, libraries: libraries}
}

func (s *ctTermService) Create(ctx context.Context, in CTTermInput) (*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.Create")
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
	ar, err := concepts.NewCTTerm(uid, lib, in.vo(), author, nowUTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("ct term created", "uid", uid, "codelist", in.CodelistUID)
	return ar, nil
}

func (s *ctTermService) Edit(ctx context.Context, uid string, in CTTermInput) (*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.Edit")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.repo.FindByUID(ctx, uid, repos.Head())
	if err != nil {
		return nil, err
	}
	if err := ar.EditDraft(in.vo(), author, in.ChangeDescription, nowUTC()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

func (s *ctTermService) Approve(ctx context.Context, uid string) (*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.Approve")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.CTTermAR).Approve)
}

func (s *ctTermService) NewVersion(ctx context.Context, uid string) (*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.NewVersion")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.CTTermAR).NewVersion)
}

func (s *ctTermService) Inactivate(ctx context.Context, uid string) (*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.Inactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.CTTermAR).Inactivate)
}

func (s *ctTermService) Reactivate(ctx context.Context, uid string) (*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.Reactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.CTTermAR).Reactivate)
}

func (s *ctTermService) transition(ctx context.Context, uid string, op func(*concepts.CTTermAR, string, string, time.Time) error) (*concepts.CTTermAR, error) {
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

func (s *ctTermService) Get(ctx context.Context, uid string, q VersionQuery) (*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.Get")
	defer span.End()
	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUID(ctx, uid, sels...)
}

func (s *ctTermService) List(ctx context.Context, q filtering.Query) ([]*concepts.CTTermAR, int, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.List")
	defer span.End()
	return s.repo.FindAll(ctx, q)
}

func (s *ctTermService) Versions(ctx context.Context, uid string) ([]*concepts.CTTermAR, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.Versions")
	defer span.End()
	return s.repo.GetAllVersions(ctx, uid)
}

func (s *ctTermService) AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error) {
	ctx, span := observability.StartSpan(ctx, "CTTermService.AuditTrail")
	defer span.End()
	return s.repo.GetAuditTrail(ctx, uid)
}
