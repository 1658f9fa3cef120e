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

type activityGroupSelectionDTO struct {
	SelectionUID         string    `json:"study_activity_group_uid"`
	ActivityGroupUID     string    `json:"activity_group_uid"`
	ActivityGroupVersion string    `json:"activity_group_version,omitempty"`
	AcceptedVersion      bool      `json:"accepted_version"`
	StartDate            time.Time `json:"start_date"`
	UserInitials         string    `json:"user_initials"`
	GroupName            string    `json:"activity_group_name,omitempty"`
	ResolvedVersion      string    `json:"resolved_version,omitempty"`
}

func activityGroupSelectionPayload(vo study.ActivityGroupSelectionVO) activityGroupSelectionDTO {
	return activityGroupSelectionDTO{
		SelectionUID:         vo.SelectionUID,
		ActivityGroupUID:     vo.ActivityGroupUID,
		ActivityGroupVersion: vo.ActivityGroupVersion,
		AcceptedVersion:      vo.AcceptedVersion,
		StartDate:            vo.StartDate,
		UserInitials:         vo.Author,
	}
}

func activityGroupSelectionPayloads(snaps []repos.ActivityGroupSnapshot) []activityGroupSelectionDTO {
	out := make([]activityGroupSelectionDTO, len(snaps))
	for i, s := range snaps {
		out[i] = activityGroupSelectionPayload(s.ActivityGroupSelectionVO)
		out[i].GroupName = s.GroupName
		out[i].ResolvedVersion = s.ResolvedVersion
	}
	return out
}

type activitySelectionDTO struct {
	SelectionUID            string    `json:"study_activity_uid"`
	ActivityUID             string    `json:"activity_uid"`
	ActivityVersion         string    `json:"activity_version,omitempty"`
	ActivityName            string    `json:"activity_name,omitempty"`
	StudyActivityGroupUID   string    `json:"study_activity_group_uid,omitempty"`
	SoAGroupTermUID         string    `json:"soa_group_term_uid,omitempty"`
	Order                   int       `json:"order"`
	ShowInProtocolFlowchart bool      `json:"show_in_protocol_flowchart"`
	AcceptedVersion         bool      `json:"accepted_version"`
	StartDate               time.Time `json:"start_date"`
	UserInitials            string    `json:"user_initials"`
	ResolvedName            string    `json:"resolved_name,omitempty"`
	ResolvedVersion         string    `json:"resolved_version,omitempty"`
}

func activitySelectionPayload(vo study.ActivitySelectionVO) activitySelectionDTO {
	return activitySelectionDTO{
		SelectionUID:            vo.SelectionUID,
		ActivityUID:             vo.ActivityUID,
		ActivityVersion:         vo.ActivityVersion,
		ActivityName:            vo.ActivityName,
		StudyActivityGroupUID:   vo.StudyActivityGroupUID,
		SoAGroupTermUID:         vo.SoAGroupTermUID,
		Order:                   vo.Order,
		ShowInProtocolFlowchart: vo.ShowInProtocolFlow,
		AcceptedVersion:         vo.AcceptedVersion,
		StartDate:               vo.StartDate,
		UserInitials:            vo.Author,
	}
}

func activitySelectionPayloads(snaps []repos.ActivitySnapshot) []activitySelectionDTO {
	out := make([]activitySelectionDTO, len(snaps))
	for i, s := range snaps {
		out[i] = activitySelectionPayload(s.ActivitySelectionVO)
		out[i].ResolvedName = s.ResolvedName
		out[i].ResolvedVersion = s.ResolvedVersion
	}
	return out
}

type StudyActivityHandler struct {
	log *logger.Logger
	svc services.StudyActivityService
}

func NewStudyActivityHandler(log *logger.Logger, svc services.StudyActivityService) *StudyActivityHandler {
	return &StudyActivityHandler{log: log.With("handler", "StudyActivityHandler"), svc: svc}
}

// POST /api/studies/:uid/study-activity-groups
func (h *StudyActivityHandler) CreateGroup(c *gin.Context) {
	var in services.StudyActivityGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vo, err := h.svc.CreateGroupSelection(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, activityGroupSelectionPayload(vo))
}

// GET /api/studies/:uid/study-activity-groups
func (h *StudyActivityHandler) GetAllGroups(c *gin.Context) {
	at, err := timeQuery(c, "at_specified_date_time")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	snaps, err := h.svc.ListGroupSelections(c.Request.Context(), c.Param("uid"), at)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityGroupSelectionPayloads(snaps))
}

// PATCH /api/studies/:uid/study-activity-groups/:selection_uid
func (h *StudyActivityHandler) EditGroup(c *gin.Context) {
	var in services.StudyActivityGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vo, err := h.svc.EditGroupSelection(c.Request.Context(), c.Param("uid"), c.Param("selection_uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityGroupSelectionPayload(vo))
}

// POST /api/studies/:uid/study-activity-groups/:selection_uid/accept-version
func (h *StudyActivityHandler) AcceptGroupVersion(c *gin.Context) {
	vo, err := h.svc.AcceptGroupVersion(c.Request.Context(), c.Param("uid"), c.Param("selection_uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityGroupSelectionPayload(vo))
}

// DELETE /api/studies/:uid/study-activity-groups/:selection_uid
func (h *StudyActivityHandler) DeleteGroup(c *gin.Context) {
	if err := h.svc.DeleteGroupSelection(c.Request.Context(), c.Param("uid"), c.Param("selection_uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

// POST /api/studies/:uid/study-activities
func (h *StudyActivityHandler) Create(c *gin.Context) {
	var in services.StudyActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vo, err := h.svc.CreateSelection(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, activitySelectionPayload(vo))
}

// GET /api/studies/:uid/study-activities
func (h *StudyActivityHandler) GetAll(c *gin.Context) {
	at, err := timeQuery(c, "at_specified_date_time")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	snaps, err := h.svc.ListSelections(c.Request.Context(), c.Param("uid"), at)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activitySelectionPayloads(snaps))
}

// PATCH /api/studies/:uid/study-activities/:selection_uid
func (h *StudyActivityHandler) Edit(c *gin.Context) {
	var in services.StudyActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vo, err := h.svc.EditSelection(c.Request.Context(), c.Param("uid"), c.Param("selection_uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activitySelectionPayload(vo))
}

// POST /api/studies/:uid/study-activities/:selection_uid/accept-version
func (h *StudyActivityHandler) AcceptVersion(c *gin.Context) {
	vo, err := h.svc.AcceptVersion(c.Request.Context(), c.Param("uid"), c.Param("selection_uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activitySelectionPayload(vo))
}

// PATCH /api/studies/:uid/study-activities/:selection_uid/order
func (h *StudyActivityHandler) Reorder(c *gin.Context) {
	var in struct {
		NewOrder int `json:"new_order"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	vos, err := h.svc.ReorderSelection(c.Request.Context(), c.Param("uid"), c.Param("selection_uid"), in.NewOrder)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out := make([]activitySelectionDTO, len(vos))
	for i, vo := range vos {
		out[i] = activitySelectionPayload(vo)
	}
	response.RespondOK(c, out)
}

// DELETE /api/studies/:uid/study-activities/:selection_uid
func (h *StudyActivityHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteSelection(c.Request.Context(), c.Param("uid"), c.Param("selection_uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}
