package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/http/response"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/services"
)

type epochDTO struct {
	SelectionUID string    `json:"study_epoch_uid"`
	EpochTermUID string    `json:"epoch_term_uid"`
	Order        int       `json:"order"`
	Description  string    `json:"description,omitempty"`
	StartRule    string    `json:"start_rule,omitempty"`
	EndRule      string    `json:"end_rule,omitempty"`
	ColorHash    string    `json:"color_hash,omitempty"`
	StartDate    time.Time `json:"start_date"`
	UserInitials string    `json:"user_initials"`
	TermName     string    `json:"epoch_name,omitempty"`
	TermVersion  string    `json:"epoch_term_version,omitempty"`
}

func epochPayload(vo study.EpochVO) epochDTO {
	return epochDTO{
		SelectionUID: vo.SelectionUID,
		EpochTermUID: vo.EpochTermUID,
		Order:        vo.Order,
		Description:  vo.Description,
		StartRule:    vo.StartRule,
		EndRule:      vo.EndRule,
		ColorHash:    vo.ColorHash,
		StartDate:    vo.StartDate,
		UserInitials: vo.Author,
	}
}

func epochPayloads(vos []study.EpochVO) []epochDTO {
	out := make([]epochDTO, len(vos))
	for i, vo := range vos {
		out[i] = epochPayload(vo)
	}
	return out
}

func epochSnapshotPayloads(snaps []repos.EpochSnapshot) []epochDTO {
	out := make([]epochDTO, len(snaps))
	for i, s := range snaps {
		out[i] = epochPayload(s.EpochVO)
		out[i].TermName = s.TermName
		out[i].TermVersion = s.TermVersion
	}
	return out
}

type StudyEpochHandler struct {
	log *logger.Logger
	svc services.StudyEpochService
}

func NewStudyEpochHandler(log *logger.Logger, svc services.StudyEpochService) *StudyEpochHandler {
	return &StudyEpochHandler{log: log.With("handler", "StudyEpochHandler"), svc: svc}
}

// POST /api/studies/:uid/study-epochs
func (h *StudyEpochHandler) Create(c *gin.Context) {
	var in services.EpochInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vo, err := h.svc.Create(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, epochPayload(vo))
}

// GET /api/studies/:uid/study-epochs
func (h *StudyEpochHandler) GetAll(c *gin.Context) {
	at, err := timeQuery(c, "at_specified_date_time")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	snaps, err := h.svc.List(c.Request.Context(), c.Param("uid"), at)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, epochSnapshotPayloads(snaps))
}

// PATCH /api/studies/:uid/study-epochs/:selection_uid
func (h *StudyEpochHandler) Edit(c *gin.Context) {
	var in services.EpochInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vo, err := h.svc.Edit(c.Request.Context(), c.Param("uid"), c.Param("selection_uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, epochPayload(vo))
}

// DELETE /api/studies/:uid/study-epochs/:selection_uid
func (h *StudyEpochHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("uid"), c.Param("selection_uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

// PATCH /api/studies/:uid/study-epochs/:selection_uid/order
func (h *StudyEpochHandler) Reorder(c *gin.Context) {
	var in struct {
		NewOrder int `json:"new_order"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vos, err := h.svc.Reorder(c.Request.Context(), c.Param("uid"), c.Param("selection_uid"), in.NewOrder)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, epochPayloads(vos))
}

// POST /api/studies/:uid/study-epochs/batch
func (h *StudyEpochHandler) Batch(c *gin.Context) {
	var ops []services.EpochBatchOperation
	if err := c.ShouldBindJSON(&ops); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	results, err := h.svc.Batch(c.Request.Context(), c.Param("uid"), ops)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, results)
}
