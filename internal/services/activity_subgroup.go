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

type ActivitySubGroupInput struct {
	Name              string   `json:"name"`
	NameSentenceCase  string   `json:"name_sentence_case"`
	Definition        string   `json:"definition"`
	Abbreviation      string   `json:"abbreviation"`
	ActivityGroupUIDs []string `json:"activity_group_uids"`
	LibraryName       string   `json:"library_name"`
	ChangeDescription string   `json:"change_description"`
}

func (in ActivitySubGroupInput) vo() concepts.ActivitySubGroupVO {
	return concepts.ActivitySubGroupVO{
		Name:             in.Name,
		NameSentenceCase: in.NameSentenceCase,
		Definition:       in.Definition,
		Abbreviation:     in.Abbreviation,
		GroupUIDs:        in.ActivityGroupUIDs,
	}
}

type ActivitySubGroupService interface {
	Create(ctx context.Context, in ActivitySubGroupInput) (*concepts.ActivitySubGroupAR, error)
	Edit(ctx context.Context, uid string, in ActivitySubGroupInput) (*concepts.ActivitySubGroupAR, error)
	Approve(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error)
	NewVersion(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error)
	Inactivate(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error)
	Reactivate(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error)
	Delete(ctx context.Context, uid string) error
	Get(ctx context.Context, uid string, q VersionQuery) (*concepts.ActivitySubGroupAR, error)
	List(ctx context.Context, q filtering.Query) ([]*concepts.ActivitySubGroupAR, int, error)
	Versions(ctx context.Context, uid string) ([]*concepts.ActivitySubGroupAR, error)
	AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error)
	Headers(ctx context.Context, field, search string, limit int) ([]any, error)
}

type activitySubGroupService struct {
	log       *logger.Logger
	repo      *repos.ActivitySubGroupRepo
	groups    *repos.ActivityGroupRepo
	libraries *repos.LibraryRepo
}

func NewActivitySubGroupService(log *logger.Logger, repo *repos.ActivitySubGroupRepo, groups *repos.ActivityGroupRepo, libraries *repos.LibraryRepo) ActivitySubGroupService {
	return &activitySubGroupService{
		log:       log.With("service", "ActivitySubGroupService"),
		repo:      repo,
		groups:    groups,
		libraries: libraries,
	}
}

// requireGroups checks every referenced activity group exists before a
// subgroup version is written.
func (s *activitySubGroupService) requireGroups(ctx context.Context, uids []string) error {
	for _, uid := range uids {
		if _, err := s.groups.FindByUID(ctx, uid); err != nil {
			return err
		}
	}
	return nil
}

func (s *activitySubGroupService) Create(ctx context.Context, in ActivitySubGroupInput) (*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Create")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireGroups(ctx, in.ActivityGroupUIDs); err != nil {
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
	ar, err := concepts.NewActivitySubGroup(uid, lib, in.vo(), author, nowUTC())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("activity subgroup created", "uid", uid)
	return ar, nil
}

func (s *activitySubGroupService) Edit(ctx context.Context, uid string, in ActivitySubGroupInput) (*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Edit")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireGroups(ctx, in.ActivityGroupUIDs); err != nil {
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

func (s *activitySubGroupService) Approve(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Approve")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivitySubGroupAR).Approve)
}

func (s *activitySubGroupService) NewVersion(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.NewVersion")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivitySubGroupAR).NewVersion)
}

func (s *activitySubGroupService) Inactivate(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Inactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivitySubGroupAR).Inactivate)
}

func (s *activitySubGroupService) Reactivate(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Reactivate")
	defer span.End()
	return s.transition(ctx, uid, (*concepts.ActivitySubGroupAR).Reactivate)
}

func (s *activitySubGroupService) transition(ctx context.Context, uid string, op func(*concepts.ActivitySubGroupAR, string, string, time.Time) error) (*concepts.ActivitySubGroupAR, error) {
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

func (s *activitySubGroupService) Delete(ctx context.Context, uid string) error {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Delete")
	defer span.End()
	if _, err := authorFrom(ctx); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, uid)
}

func (s *activitySubGroupService) Get(ctx context.Context, uid string, q VersionQuery) (*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Get")
	defer span.End()
	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	return s.repo.FindByUID(ctx, uid, sels...)
}

func (s *activitySubGroupService) List(ctx context.Context, q filtering.Query) ([]*concepts.ActivitySubGroupAR, int, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.List")
	defer span.End()
	return s.repo.FindAll(ctx, q)
}

func (s *activitySubGroupService) Versions(ctx context.Context, uid string) ([]*concepts.ActivitySubGroupAR, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Versions")
	defer span.End()
	return s.repo.GetAllVersions(ctx, uid)
}

func (s *activitySubGroupService) AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.AuditTrail")
	defer span.End()
	return s.repo.GetAuditTrail(ctx, uid)
}

func (s *activitySubGroupService) Headers(ctx context.Context, field, search string, limit int) ([]any, error) {
	ctx, span := observability.StartSpan(ctx, "ActivitySubGroupService.Headers")
	defer span.End()
	return s.repo.GetHeaders(ctx, field, search, limit)
}
