package services

import (
	"context"

	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type LibraryService interface {
	Create(ctx context.Context, name string, isEditable bool) (version.LibraryVO, error)
	Get(ctx context.Context, name string) (version.LibraryVO, error)
	List(ctx context.Context, editableOnly bool) ([]version.LibraryVO, error)
}

type libraryService struct {
	log  *logger.Logger
	repo *repos.LibraryRepo
}

func NewLibraryService(log *logger.Logger, repo *repos.LibraryRepo) LibraryService {
	return &libraryService{log: log.With("service", "LibraryService"), repo: repo}
}

func (s *libraryService) Create(ctx context.Context, name string, isEditable bool) (version.LibraryVO, error) {
	ctx, span := observability.StartSpan(ctx, "LibraryService.Create")
	defer span.End()
	if name == "" {
		return version.LibraryVO{}, apierr.Validation("library name is required")
	}
	lib, err := s.repo.EnsureLibrary(ctx, name, isEditable)
	if err != nil {
		return version.LibraryVO{}, err
	}
	s.log.Info("library ensured", "name", name, "is_editable", isEditable)
	return lib, nil
}

func (s *libraryService) Get(ctx context.Context, name string) (version.LibraryVO, error) {
	ctx, span := observability.StartSpan(ctx, "LibraryService.Get")
	defer span.End()
	return s.repo.FindByName(ctx, name)
}

func (s *libraryService) List(ctx context.Context, editableOnly bool) ([]version.LibraryVO, error) {
	ctx, span := observability.StartSpan(ctx, "LibraryService.List")
	defer span.End()
	return s.repo.FindAll(ctx, editableOnly)
}
