package services

import (
	"context"
	"net/http"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/version"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type EpochInput struct {
	EpochTermUID string `json:"epoch_term_uid"`
	Order        int    `json:"order"`
	Description  string `json:"description"`
	StartRule    string `json:"start_rule"`
	EndRule      string `json:"end_rule"`
	ColorHash    string `json:"color_hash"`
}

// EpochBatchOperation is one entry of a batch request. Method follows
// the HTTP verbs of the single-item endpoints.
type EpochBatchOperation struct {
	Method       string     `json:"method"`
	SelectionUID string     `json:"selection_uid,omitempty"`
	Content      EpochInput `json:"content"`
}

// EpochBatchResult reports the outcome of one batch entry. Entries are
// applied in order and independently; a failed entry does not abort the
// rest.
type EpochBatchResult struct {
	Code         int            `json:"response_code"`
	SelectionUID string         `json:"selection_uid,omitempty"`
	Epoch        *study.EpochVO `json:"content,omitempty"`
	Error        string         `json:"error,omitempty"`
}

type StudyEpochService interface {
	Create(ctx context.Context, studyUID string, in EpochInput) (study.EpochVO, error)
	Edit(ctx context.Context, studyUID, selectionUID string, in EpochInput) (study.EpochVO, error)
	Delete(ctx context.Context, studyUID, selectionUID string) error
	Reorder(ctx context.Context, studyUID, selectionUID string, newOrder int) ([]study.EpochVO, error)
	List(ctx context.Context, studyUID string, at *time.Time) ([]repos.EpochSnapshot, error)
	Batch(ctx context.Context, studyUID string, ops []EpochBatchOperation) ([]EpochBatchResult, error)
}

type studyEpochService struct {
	log         *logger.Logger
	repo        *repos.StudyEpochRepo
	terms       *repos.CTTermRepo
	codelistUID string
}

// NewStudyEpochService wires the epoch selection workflow. When
// codelistUID is non-empty every epoch term must belong to it.
func NewStudyEpochService(log *logger.Logger, repo *repos.StudyEpochRepo, terms *repos.CTTermRepo, codelistUID string) StudyEpochService {
	return &studyEpochService{
		log:         log.With("service", "StudyEpochService"),
		repo:        repo,
		terms:       terms,
		codelistUID: codelistUID,
	}
}

// validateTerm checks the referenced epoch term is approved and sits in
// the configured epoch codelist.
func (s *studyEpochService) validateTerm(ctx context.Context, termUID string) error {
	term, err := s.terms.FindByUID(ctx, termUID, repos.AtStatus(version.StatusFinal))
	if err != nil {
		if apierr.IsNotFound(err) {
			return apierr.BusinessLogic("the epoch term %s has no approved version", termUID)
		}
		return err
	}
	if s.codelistUID != "" && term.Value.CodelistUID != s.codelistUID {
		return apierr.BusinessLogic(
			"the term %s belongs to codelist %s, expected the epoch codelist %s",
			termUID, term.Value.CodelistUID, s.codelistUID)
	}
	return nil
}

func (s *studyEpochService) Create(ctx context.Context, studyUID string, in EpochInput) (study.EpochVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyEpochService.Create")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.EpochVO{}, err
	}
	if err := s.validateTerm(ctx, in.EpochTermUID); err != nil {
		return study.EpochVO{}, err
	}
	ar, err := s.repo.Load(ctx, studyUID)
	if err != nil {
		return study.EpochVO{}, err
	}
	selectionUID, err := s.repo.GenerateUID(ctx)
	if err != nil {
		return study.EpochVO{}, err
	}
	vo, err := ar.AddEpoch(study.EpochVO{
		SelectionUID: selectionUID,
		EpochTermUID: in.EpochTermUID,
		Order:        in.Order,
		Description:  in.Description,
		StartRule:    in.StartRule,
		EndRule:      in.EndRule,
		ColorHash:    in.ColorHash,
	})
	if err != nil {
		return study.EpochVO{}, err
	}
	if err := s.repo.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.EpochVO{}, err
	}
	s.log.Info("study epoch added", "study_uid", studyUID, "selection_uid", selectionUID)
	return vo, nil
}

func (s *studyEpochService) Edit(ctx context.Context, studyUID, selectionUID string, in EpochInput) (study.EpochVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyEpochService.Edit")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return study.EpochVO{}, err
	}
	if err := s.validateTerm(ctx, in.EpochTermUID); err != nil {
		return study.EpochVO{}, err
	}
	ar, err := s.repo.Load(ctx, studyUID)
	if err != nil {
		return study.EpochVO{}, err
	}
	if err := ar.UpdateEpoch(study.EpochVO{
		SelectionUID: selectionUID,
		EpochTermUID: in.EpochTermUID,
		Order:        in.Order,
		Description:  in.Description,
		StartRule:    in.StartRule,
		EndRule:      in.EndRule,
		ColorHash:    in.ColorHash,
	}); err != nil {
		return study.EpochVO{}, err
	}
	if err := s.repo.Save(ctx, ar, author, nowUTC()); err != nil {
		return study.EpochVO{}, err
	}
	return ar.EpochByUID(selectionUID)
}

func (s *studyEpochService) Delete(ctx context.Context, studyUID, selectionUID string) error {
	ctx, span := observability.StartSpan(ctx, "StudyEpochService.Delete")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return err
	}
	ar, err := s.repo.Load(ctx, studyUID)
	if err != nil {
		return err
	}
	if err := ar.RemoveEpoch(selectionUID); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, ar, author, nowUTC()); err != nil {
		return err
	}
	s.log.Info("study epoch removed", "study_uid", studyUID, "selection_uid", selectionUID)
	return nil
}

func (s *studyEpochService) Reorder(ctx context.Context, studyUID, selectionUID string, newOrder int) ([]study.EpochVO, error) {
	ctx, span := observability.StartSpan(ctx, "StudyEpochService.Reorder")
	defer span.End()
	author, err := authorFrom(ctx)
	if err != nil {
		return nil, err
	}
	ar, err := s.repo.Load(ctx, studyUID)
	if err != nil {
		return nil, err
	}
	if err := ar.ReorderEpoch(selectionUID, newOrder); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, ar, author, nowUTC()); err != nil {
		return nil, err
	}
	return ar.Epochs, nil
}

func (s *studyEpochService) List(ctx context.Context, studyUID string, at *time.Time) ([]repos.EpochSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "StudyEpochService.List")
	defer span.End()
	return s.repo.SnapshotAt(ctx, studyUID, at)
}

func (s *studyEpochService) Batch(ctx context.Context, studyUID string, ops []EpochBatchOperation) ([]EpochBatchResult, error) {
	ctx, span := observability.StartSpan(ctx, "StudyEpochService.Batch")
	defer span.End()
	if _, err := authorFrom(ctx); err != nil {
		return nil, err
	}
	results := make([]EpochBatchResult, 0, len(ops))
	for _, op := range ops {
		results = append(results, s.applyBatchOp(ctx, studyUID, op))
	}
	return results, nil
}

func (s *studyEpochService) applyBatchOp(ctx context.Context, studyUID string, op EpochBatchOperation) EpochBatchResult {
	switch op.Method {
	case http.MethodPost:
		vo, err := s.Create(ctx, studyUID, op.Content)
		if err != nil {
			return EpochBatchResult{Code: batchStatus(err), Error: err.Error()}
		}
		return EpochBatchResult{Code: http.StatusCreated, SelectionUID: vo.SelectionUID, Epoch: &vo}
	case http.MethodPatch:
		vo, err := s.Edit(ctx, studyUID, op.SelectionUID, op.Content)
		if err != nil {
			return EpochBatchResult{Code: batchStatus(err), SelectionUID: op.SelectionUID, Error: err.Error()}
		}
		return EpochBatchResult{Code: http.StatusOK, SelectionUID: vo.SelectionUID, Epoch: &vo}
	case http.MethodDelete:
		if err := s.Delete(ctx, studyUID, op.SelectionUID); err != nil {
			return EpochBatchResult{Code: batchStatus(err), SelectionUID: op.SelectionUID, Error: err.Error()}
		}
		return EpochBatchResult{Code: http.StatusNoContent, SelectionUID: op.SelectionUID}
	default:
		return EpochBatchResult{
			Code:  http.StatusBadRequest,
			Error: apierr.Validation("unsupported batch method %q", op.Method).Error(),
		}
	}
}

func batchStatus(err error) int {
	switch apierr.KindOf(err) {
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindConsistency:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
