package services

import (
	"context"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type StudyActivityGroupInput struct {
	ActivityGroupUID     string `json:"activity_group_uid"`
	ActivityGroupVersion string `json:"activity_group_version"`
}

type StudyActivityInput struct {
	ActivityUID             string `json:"activity_uid"`
	ActivityVersion         string `json:"activity_version"`
	StudyActivityGroupUID   string `json:"study_activity_group_uid"`
	SoAGroupTermUID         string `json:"soa_group_term_uid"`
	Order                   int    `json:"order"`
	ShowInProtocolFlowchart bool   `json:"show_in_protocol_flowchart"`
}

type StudyActivityService interface {
	CreateGroupSelection(ctx context.Context, studyUID string, in StudyActivityGroupInput) (study.ActivityGroupSelectionVO, error)
	EditGroupSelection(ctx context.Context, studyUID, selectionUID string, in StudyActivityGroupInput) (study.ActivityGroupSelectionVO, error)
	AcceptGroupVersion(ctx context.Context, studyUID, selectionUID string) (study.ActivityGroupSelectionVO, error)
	DeleteGroupSelection(ctx context.Context, studyUID, selectionUID string) error
	ListGroupSelections(ctx context.Context, studyUID string, at *time.Time) ([]repos.ActivityGroupSnapshot, error)

	CreateSelection(ctx context.Context, studyUID string, in StudyActivityInput) (study.ActivitySelectionVO, error)
	EditSelection(ctx context.Context, studyUID, selectionUID string, in StudyActivityInput) (study.ActivitySelectionVO, error)
	AcceptVersion(ctx context.Context, studyUID, selectionUID string) (study.ActivitySelectionVO, error)
	DeleteSelection(ctx context.Context, studyUID, selectionUID string) error
	ReorderSelection(ctx context.Context, studyUID, selectionUID string, newOrder int) ([]study.ActivitySelectionVO, error)
	ListSelections(ctx context.Context, studyUID string, at *time.Time) ([]repos.ActivitySnapshot, error)
}

type studyActivityService struct {
	log    *logger.Logger
	groups *repos.StudyActivityGroupRepo
	acts   *repos.StudyActivityRepo
}

func NewStudyActivityService(log *logger.Logger, groups *repos.StudyActivityGroupRepo, acts *repos.StudyActivityRepo) StudyActivityService {
	return &studyActivityService{
		log:    log.With("service", "StudyActivityService"),
		groups: groups,
		acts:   acts,
	}
}

func (s *studyActivityService) CreateGroupSelection(ctx context.Context, studyUID string, in StudyActivityGroupInput) (study.ActivityGroupSelectionVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.CreateGroupSelection")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	ar, err := s.groups.Load(ctx, studyUID)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	selectionUID, err := s.groups.GenerateUID(ctx)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	if err := ar.Add(study.ActivityGroupSelectionVO{
		SelectionUID:         selectionUID,
		ActivityGroupUID:     in.ActivityGroupUID,
		ActivityGroupVersion: in.ActivityGroupVersion,
	}); err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	if err := s.groups.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	s.log.Info("study activity group selected",
		"study_uid", studyUID, "selection_uid", selectionUID, "activity_group_uid", in.ActivityGroupUID)
	return ar.ByUID(selectionUID)
}

func (s *studyActivityService) EditGroupSelection(ctx context.Context, studyUID, selectionUID string, in StudyActivityGroupInput) (study.ActivityGroupSelectionVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.EditGroupSelection")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	ar, err := s.groups.Load(ctx, studyUID)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	if err := ar.Update(study.ActivityGroupSelectionVO{
		SelectionUID:         selectionUID,
		ActivityGroupUID:     in.ActivityGroupUID,
		ActivityGroupVersion: in.ActivityGroupVersion,
	}); err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	if err := s.groups.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	return ar.ByUID(selectionUID)
}

// AcceptGroupVersion re-pins the selection to the group's current Final
// version and flags the selection as explicitly accepted.
func (s *studyActivityService) AcceptGroupVersion(ctx context.Context, studyUID, selectionUID string) (study.ActivityGroupSelectionVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.AcceptGroupVersion")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	ar, err := s.groups.Load(ctx, studyUID)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	vo, err := ar.ByUID(selectionUID)
	if err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	vo.ActivityGroupVersion = ""
	vo.AcceptedVersion = true
	if err := ar.Update(vo); err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	if err := s.groups.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.ActivityGroupSelectionVO{}, err
	}
	return ar.ByUID(selectionUID)
}

func (s *studyActivityService) DeleteGroupSelection(ctx context.Context, studyUID, selectionUID string) error {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.DeleteGroupSelection")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return err
	}
	ar, err := s.groups.Load(ctx, studyUID)
	if err != nil {
		return err
	}
	if err := ar.Remove(selectionUID); err != nil {
		return err
	}
	return s.groups.Save(ctx, ar, author, nowUTC())
}

func (s *studyActivityService) ListGroupSelections(ctx context.Context, studyUID string, at *time.Time) ([]repos.ActivityGroupSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.ListGroupSelections")
	defer span.End()
	return s.groups.SnapshotAt(ctx, studyUID, at)
}

func (s *studyActivityService) CreateSelection(ctx context.Context, studyUID string, in StudyActivityInput) (study.ActivitySelectionVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.CreateSelection")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	ar, err := s.acts.Load(ctx, studyUID)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	selectionUID, err := s.acts.GenerateUID(ctx)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	if _, err := ar.Add(study.ActivitySelectionVO{
		SelectionUID:          selectionUID,
		ActivityUID:           in.ActivityUID,
		ActivityVersion:       in.ActivityVersion,
		StudyActivityGroupUID: in.StudyActivityGroupUID,
		SoAGroupTermUID:       in.SoAGroupTermUID,
		Order:                 in.Order,
		ShowInProtocolFlow:    in.ShowInProtocolFlowchart,
	}); err != nil {
		return study.ActivitySelectionVO{}, err
	}
	if err := s.acts.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.ActivitySelectionVO{}, err
	}
	s.log.Info("study activity selected",
		"study_uid", studyUID, "selection_uid", selectionUID, "activity_uid", in.ActivityUID)
	return ar.ByUID(selectionUID)
}

func (s *studyActivityService) EditSelection(ctx context.Context, studyUID, selectionUID string, in StudyActivityInput) (study.ActivitySelectionVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.EditSelection")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	ar, err := s.acts.Load(ctx, studyUID)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	if err := ar.Update(study.ActivitySelectionVO{
		SelectionUID:          selectionUID,
		ActivityUID:           in.ActivityUID,
		ActivityVersion:       in.ActivityVersion,
		StudyActivityGroupUID: in.StudyActivityGroupUID,
		SoAGroupTermUID:       in.SoAGroupTermUID,
		Order:                 in.Order,
		ShowInProtocolFlow:    in.ShowInProtocolFlowchart,
	}); err != nil {
		return study.ActivitySelectionVO{}, err
	}
	if err := s.acts.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.ActivitySelectionVO{}, err
	}
	return ar.ByUID(selectionUID)
}

// AcceptVersion re-pins the selection to the activity's current Final
// version and flags it as accepted, clearing the "newer version
// available" state a library upgrade leaves behind.
func (s *studyActivityService) AcceptVersion(ctx context.Context, studyUID, selectionUID string) (study.ActivitySelectionVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.AcceptVersion")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	ar, err := s.acts.Load(ctx, studyUID)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	vo, err := ar.ByUID(selectionUID)
	if err != nil {
		return study.ActivitySelectionVO{}, err
	}
	vo.ActivityVersion = ""
	vo.AcceptedVersion = true
	if err := ar.Update(vo); err != nil {
		return study.ActivitySelectionVO{}, err
	}
	if err := s.acts.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.ActivitySelectionVO{}, err
	}
	return ar.ByUID(selectionUID)
}

func (s *studyActivityService) DeleteSelection(ctx context.Context, studyUID, selectionUID string) error {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.DeleteSelection")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return err
	}
	ar, err := s.acts.Load(ctx, studyUID)
	if err != nil {
		return err
	}
	if err := ar.Remove(selectionUID); err != nil {
		return err
	}
	return s.acts.Save(ctx, ar, author, nowUTC())
}

func (s *studyActivityService) ReorderSelection(ctx context.Context, studyUID, selectionUID string, newOrder int) ([]study.ActivitySelectionVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.ReorderSelection")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.acts.Load(ctx, studyUID)
	if err != nil {
		return nil, err
	}
	if err := ar.Reorder(selectionUID, newOrder); err != nil {
		return nil, err
	}
	if err := s.acts.Save(ctx, ar, author, nowUTC()); err != nil {
		return nil, err
	}
	return ar.Selections, nil
}

func (s *studyActivityService) ListSelections(ctx context.Context, studyUID string, at *time.Time) ([]repos.ActivitySnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "StudyActivityService.ListSelections")
	defer span.End()
	return s.acts.SnapshotAt(ctx, studyUID, at)
}
