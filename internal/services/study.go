package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/clinicalmdr-backend/internal/data/filtering"
	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type StudyInput struct {
	StudyNumber     string `json:"study_number"`
	StudyAcronym    string `json:"study_acronym"`
	ProjectNumber   string `json:"project_number"`
	StudyTitle      string `json:"study_title"`
	StudyShortTitle string `json:"study_short_title"`
}

// StudyVersionQuery selects which snapshot of a study a read should
// return. At most one field may be set.
type StudyVersionQuery struct {
	AtTime        *time.Time
	LockedVersion int
	Status        string
}

func (q StudyVersionQuery) selectors() ([]repos.StudySelector, error) {
	var sels []repos.StudySelector
	if q.AtTime != nil {
		sels = append(sels, repos.StudyAtTime(*q.AtTime))
	}
	if q.LockedVersion > 0 {
		sels = append(sels, repos.StudyAtLockedVersion(q.LockedVersion))
	}
	if q.Status != "" {
		sels = append(sels, repos.StudyAtStatus(study.Status(q.Status)))
	}
	return sels, nil
}

// StudySnapshot is the composed view of a study at one instant: its
// registry metadata plus every selection in effect, with referenced
// library concepts resolved as of the same instant.
type StudySnapshot struct {
	Study          *study.DefinitionAR           `json:"study"`
	Epochs         []repos.EpochSnapshot         `json:"epochs"`
	ActivityGroups []repos.ActivityGroupSnapshot `json:"activity_groups"`
	Activities     []repos.ActivitySnapshot      `json:"activities"`
}

type StudyService interface {
	Create(ctx context.Context, in StudyInput) (*study.DefinitionAR, error)
	EditMetadata(ctx context.Context, uid string, in StudyInput) (*study.DefinitionAR, error)
	Lock(ctx context.Context, uid string) (*study.DefinitionAR, error)
	Unlock(ctx context.Context, uid string) (*study.DefinitionAR, error)
	Release(ctx context.Context, uid string) (*study.DefinitionAR, error)
	Get(ctx context.Context, uid string, q StudyVersionQuery) (*study.DefinitionAR, error)
	List(ctx context.Context, q filtering.Query) ([]*study.DefinitionAR, int, error)
	AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error)
	ReleasedVersions(ctx context.Context, uid string) ([]repos.ReleasedVersion, error)
	Snapshot(ctx context.Context, uid string, q StudyVersionQuery) (*StudySnapshot, error)
}

type studyService struct {
	log     *logger.Logger
	studies *repos.StudyRepo
	epochs  *repos.StudyEpochRepo
	groups  *repos.StudyActivityGroupRepo
	acts    *repos.StudyActivityRepo
}

func NewStudyService(log *logger.Logger, studies *repos.StudyRepo, epochs *repos.StudyEpochRepo, groups *repos.StudyActivityGroupRepo, acts *repos.StudyActivityRepo) StudyService {
	return &studyService{
		log:     log.With("service", "StudyService"),
		studies: studies,
		epochs:  epochs,
		groups:  groups,
		acts:    acts,
	}
}

func (s *studyService) Create(ctx context.Context, in StudyInput) (*study.DefinitionAR, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.Create")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	uid, err := s.studies.GenerateUID(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := study.NewDefinition(uid, study.IdentificationVO{
		StudyNumber:   in.StudyNumber,
		StudyAcronym:  in.StudyAcronym,
		ProjectNumber: in.ProjectNumber,
	}, author, nowUTC())
	if err != nil {
		return nil, err
	}
	if err := s.studies.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("study created", "uid", uid, "study_id", ar.Identification.StudyID())
	return ar, nil
}

func (s *studyService) EditMetadata(ctx context.Context, uid string, in StudyInput) (*study.DefinitionAR, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.EditMetadata")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.studies.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	ident := study.IdentificationVO{
		StudyNumber:   in.StudyNumber,
		StudyAcronym:  in.StudyAcronym,
		ProjectNumber: in.ProjectNumber,
	}
	desc := study.DescriptionVO{
		StudyTitle:      in.StudyTitle,
		StudyShortTitle: in.StudyShortTitle,
	}
	if err := ar.EditMetadata(ident, desc, author, nowUTC()); err != nil {
		return nil, err
	}
	if err := s.studies.Save(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

func (s *studyService) Lock(ctx context.Context, uid string) (*study.DefinitionAR, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.Lock")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.studies.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := ar.Lock(author, nowUTC()); err != nil {
		return nil, err
	}
	if err := s.studies.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("study locked", "uid", uid, "locked_version", ar.LockedVersionNumber)
	return ar, nil
}

func (s *studyService) Unlock(ctx context.Context, uid string) (*study.DefinitionAR, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.Unlock")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.studies.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := ar.Unlock(author, nowUTC()); err != nil {
		return nil, err
	}
	if err := s.studies.Save(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("study unlocked", "uid", uid)
	return ar, nil
}

func (s *studyService) Release(ctx context.Context, uid string) (*study.DefinitionAR, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.Release")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.studies.FindByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := ar.Release(author, nowUTC()); err != nil {
		return nil, err
	}
	if err := s.studies.Release(ctx, ar); err != nil {
		return nil, err
	}
	s.log.Info("study released", "uid", uid)
	return ar, nil
}

func (s *studyService) Get(ctx context.Context, uid string, q StudyVersionQuery) (*study.DefinitionAR, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.Get")
	defer span.End()
	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	return s.studies.FindByUID(ctx, uid, sels...)
}

func (s *studyService) List(ctx context.Context, q filtering.Query) ([]*study.DefinitionAR, int, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.List")
	defer span.End()
	return s.studies.FindAll(ctx, q)
}

func (s *studyService) AuditTrail(ctx context.Context, uid string) ([]repos.AuditEntry, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.AuditTrail")
	defer span.End()
	return s.studies.GetAuditTrail(ctx, uid)
}

func (s *studyService) ReleasedVersions(ctx context.Context, uid string) ([]repos.ReleasedVersion, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.ReleasedVersions")
	defer span.End()
	return s.studies.ReleasedVersions(ctx, uid)
}

// Snapshot assembles the full study view at one instant. The selection
// collections are independent, so they load concurrently.
func (s *studyService) Snapshot(ctx context.Context, uid string, q StudyVersionQuery) (*StudySnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "StudyService.Snapshot")
	defer span.End()

	sels, err := q.selectors()
	if err != nil {
		return nil, err
	}
	ar, err := s.studies.FindByUID(ctx, uid, sels...)
	if err != nil {
		return nil, err
	}
	at := q.AtTime
	if at == nil && len(sels) > 0 {
		at, err = s.studies.SnapshotInstant(ctx, uid, sels...)
		if err != nil {
			return nil, err
		}
	}

	snap := &StudySnapshot{Study: ar}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Epochs, err = s.epochs.SnapshotAt(gctx, uid, at)
		return err
	})
	g.Go(func() error {
		var err error
		snap.ActivityGroups, err = s.groups.SnapshotAt(gctx, uid, at)
		return err
	})
	g.Go(func() error {
		var err error
		snap.Activities, err = s.acts.SnapshotAt(gctx, uid, at)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
