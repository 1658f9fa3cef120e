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

// ActivityGroupInput carries the client-settable fields of an activity
// group version.
type ActivityGroupInput struct {
	Name              string `json:"name"`
	NameSentenceCase  string `json:"name_sentence_case"`
	Definition        string `json:"definition"`
	Abbreviation      string `json:"abbreviation"`
	LibraryName       string `json:"library_name"`
	ChangeDescription string `json:"change_description"`
}

func (in ActivityGroupInput) vo() concepts.ActivityGroupVO {
	return concepts.ActivityGroupVO{
		Name:             in.Name,
		NameSentenceCase: in.NameSentenceCase,
		Definition:       in.Definition,
		Abbreviation:     in.Abbreviation,
	}
}

type ActivityGroupService interface {
	Create(ctx context.Context, in ActivityGroupInput) (*concepts.ActivityGroupAR, error)
	Edit(ctx context.Context, uid string, in ActivityGroupInput) (*concepts.ActivityGroupAR, error)
	Approve(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error)
	NewVersion(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error)
	Inactivate(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error)
	Reactivate(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error)
	Delete(ctx context.Context, uid string) error
	Get(ctx context.Context, uid string, q VersionQuery) (*concepts.ActivityGroupAR, error)
	List(ctx context.Context, q filtering.Query) ([]*concepts.ActivityGroupAR, int, error)
	Versions(ctx context.Context, uid string) ([]*concepts.ActivityGroupAR, error)
	AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error)
	Headers(ctx context.Context, field, search string, limit int) ([]any, error)
}

type activityGroupService struct {
	log       *logger.Logger
	repo      *repos.ActivityGroupRepo
	libraries *repos.LibraryRepo
}

func NewActivityGroupService(log *logger.Logger, repo *repos.ActivityGroupRepo, libraries *repos.LibraryRepo) ActivityGroupService {
	return &activityGroupService{
		log:       log.With("service", "ActivityGroupService"),
		repo:      repo,
		libraries: libraries,
	}
}

func (s *activityGroupService) Create(ctx context.Context, in ActivityGroupInput) (*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Create")
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
	ar, err := concepts.NewActivityGroup(uid, lib, in.vo(), author, nowUTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("activity group created", "uid", uid)
	return ar, nil
}

func (s *activityGroupService) Edit(ctx context.Context, uid string, in ActivityGroupInput) (*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Edit")
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

func (s *activityGroupService) Approve(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Approve")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityGroupAR).Approve)
}

func (s *activityGroupService) NewVersion(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.NewVersion")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityGroupAR).NewVersion)
}

func (s *activityGroupService) Inactivate(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Inactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityGroupAR).Inactivate)
}

func (s *activityGroupService) Reactivate(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Reactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivityGroupAR).Reactivate)
}

func (s *activityGroupService) transition(ctx context.Context, uid string, op func(*concepts.ActivityGroupAR, string, string, time.Time) error) (*concepts.ActivityGroupAR, error) {
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

func (s *activityGroupService) Delete(ctx context.Context, uid string) error {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Delete")
	defer span.End()
	if _, err := authorFrom(ctx); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, uid); err != nil {
		return err
	}
	s.log.Info("activity group deleted", "uid", uid)
	return nil
}

func (s *activityGroupService) Get(ctx context.Context, uid string, q VersionQuery) (*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Get")
	defer span.End()
	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUID(ctx, uid, sels...)
}

func (s *activityGroupService) List(ctx context.Context, q filtering.Query) ([]*concepts.ActivityGroupAR, int, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.List")
	defer span.End()
	return s.repo.FindAll(ctx, q)
}

func (s *activityGroupService) Versions(ctx context.Context, uid string) ([]*concepts.ActivityGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Versions")
	defer span.End()
	return s.repo.GetAllVersions(ctx, uid)
}

func (s *activityGroupService) AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.AuditTrail")
	defer span.End()
	return s.repo.GetAuditTrail(ctx, uid)
}

func (s *activityGroupService) Headers(ctx context.Context, field, search string, limit int) ([]any, error) {
	ctx, span := observability.StartSpan(ctx, "ActivityGroupService.Headers")
	defer span.End()
	return s.repo.GetHeaders(ctx, field, search, limit)
}
