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

type ActivityInput struct {
	Name                 string   `json:"name"`
	NameSentenceCase     string   `json:"name_sentence_case"`
	Definition           string   `json:"definition"`
	Abbreviation         string   `json:"abbreviation"`
	ActivitySubGroupUIDs []string `json:"activity_subgroup_uids"`
	IsDataCollected      bool     `json:"is_data_collected"`
	LibraryName          string   `json:"library_name"`
	ChangeDescription    string   `json:"change_description"`
}

func (in ActivityInput) vo() concepts.ActivityVO {
	return concepts.ActivityVO{
		Name:             in.Name,
		NameSentenceCase: in.NameSentenceCase,
		Definition:       in.Definition,
		Abbreviation:     in.Abbreviation,
		SubGroupUIDs:     in.ActivitySubGroupUIDs,
		IsDataCollected:  in.IsDataCollected,
	}
}

type ActivityService interface {
	Create(ctx context.Context, in ActivityInput) (*concepts.ActivityAR, error)
	Edit(ctx context.Context, uid string, in ActivityInput) (*concepts.ActivityAR, error)
	Approve(ctx context.Context, uid string) (*concepts.ActivityAR, error)
	NewVersion(ctx context.Context, uid string) (*concepts.ActivityAR, error)
	Inactivate(ctx context.Context, uid string) (*concepts.ActivityAR, error)
	Reactivate(ctx context.Context, uid string) (*concepts.ActivityAR, error)
	Delete(ctx context.Context, uid string) error
	Get(ctx context.Context, uid string, q VersionQuery) (*concepts.ActivityAR, error)
	List(ctx context.Context, q filtering.Query) ([]*concepts.ActivityAR, int, error)
	Versions(ctx context.Context, uid string) ([]*concepts.ActivityAR, error)
	AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error)
	Headers(ctx context.Context, field, search string, limit int) ([]any, error)
}

type activityService struct {
	log       *logger.Logger
	repo      *repos.ActivityRepo
	subGroups *repos.ActivitySubGroupRepo
	libraries *repos.LibraryRepo
}

func NewActivityService(log *logger.Logger, repo *repos.ActivityRepo, subGroups *repos.ActivitySubGroupRepo, libraries *repos.LibraryRepo) ActivityService {
	return &activityService{
		log:       log.With("service", "ActivityService"),
		repo:      repo,
		subGroups: subGroups,
		libraries: libraries,
	}
}

func (s *activityService) requireSubGroups(ctx context.Context, uids []string) error {
	for _, uid := range uids {
		if _, err := s.subGroups.FindByUID(ctx, uid); err != nil {
			return err
		}
	}
	return nil
}

func (s *activityService) Create(ctx context.Context, in ActivityInput) (*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Create")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireSubGroups(ctx, in.ActivitySubGroupUIDs); err != nil {
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
	ar, err := concepts.NewActivity(uid, lib, in.vo(), author, nowUTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("activity created", "uid", uid)
	return ar, nil
}

func (s *activityService) Edit(ctx context.Context, uid string, in ActivityInput) (*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Edit")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireSubGroups(ctx, in.ActivitySubGroupUIDs); err != nil {
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

func (s *activityService) Approve(ctx context.Context, uid string) (*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Approve")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityAR).Approve)
}

func (s *activityService) NewVersion(ctx context.Context, uid string) (*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.NewVersion")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityAR).NewVersion)
}

func (s *activityService) Inactivate(ctx context.Context, uid string) (*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Inactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityAR).Inactivate)
}

func (s *activityService) Reactivate(ctx context.Context, uid string) (*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Reactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityAR).Reactivate)
}

func (s *activityService) transition(ctx context.Context, uid string, op func(*concepts.ActivityAR, string, string, time.Time) error) (*concepts.ActivityAR, error) {
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

func (s *activityService) Delete(ctx context.Context, uid string) error {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Delete")
	defer span.End()
	if _, err := authorFrom(ctx); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, uid)
}

func (s *activityService) Get(ctx context.Context, uid string, q VersionQuery) (*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Get")
	defer span.End()
	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUID(ctx, uid, sels...)
}

func (s *activityService) List(ctx context.Context, q filtering.Query) ([]*concepts.ActivityAR, int, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.List")
	defer span.End()
	return s.repo.FindAll(ctx, q)
}

func (s *activityService) Versions(ctx context.Context, uid string) ([]*concepts.ActivityAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Versions")
	defer span.End()
	return s.repo.GetAllVersions(ctx, uid)
}

func (s *activityService) AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.AuditTrail")
	defer span.End()
	return s.repo.GetAuditTrail(ctx, uid)
}

func (s *activityService) Headers(ctx context.Context, field, search string, limit int) ([]any, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityService.Headers")
	defer span.End()
	return s.repo.GetHeaders(ctx, field, search, limit)
}
