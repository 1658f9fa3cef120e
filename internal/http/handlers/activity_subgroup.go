package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/concepts"
	"github.com/yungbote/clinicalmdr-backend/internal/http/response"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/services"
)

type activitySubGroupDTO struct {
	UID               string   `json:"uid"`
	Name              string   `json:"name"`
	NameSentenceCase  string   `json:"name_sentence_case"`
	Definition        string   `json:"definition,omitempty"`
	Abbreviation      string   `json:"abbreviation,omitempty"`
	ActivityGroupUIDs []string `json:"activity_group_uids"`
	LibraryName       string   `json:"library_name"`
	versionInfo
}

func activitySubGroupPayload(ar *concepts.ActivitySubGroupAR) activitySubGroupDTO {
	return activitySubGroupDTO{
		UID:               ar.UID,
		Name:              ar.Value.Name,
		NameSentenceCase:  ar.Value.NameSentenceCase,
		Definition:        ar.Value.Definition,
		Abbreviation:      ar.Value.Abbreviation,
		ActivityGroupUIDs: ar.Value.GroupUIDs,
		LibraryName:       ar.Library.Name,
		versionInfo:       versionInfoOf(ar.Item),
	}
}

func activitySubGroupPayloads(ars []*concepts.ActivitySubGroupAR) []activitySubGroupDTO {
	out := make([]activitySubGroupDTO, len(ars))
	for i, ar := range ars {
		out[i] = activitySubGroupPayload(ar)
	}
	return out
}

type ActivitySubGroupHandler struct {
	log *logger.Logger
	svc services.ActivitySubGroupService
}

func NewActivitySubGroupHandler(log *logger.Logger, svc services.ActivitySubGroupService) *ActivitySubGroupHandler {
	return &ActivitySubGroupHandler{log: log.With("handler", "ActivitySubGroupHandler"), svc: svc}
}

// POST /api/concepts/activity-subgroups
func (h *ActivitySubGroupHandler) Create(c *gin.Context) {
	var in services.ActivitySubGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, activitySubGroupPayload(ar))
}

// GET /api/concepts/activity-subgroups
func (h *ActivitySubGroupHandler) GetAll(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ars, total, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, response.Paged{Items: activitySubGroupPayloads(ars), Total: total})
}

// GET /api/concepts/activity-subgroups/headers
func (h *ActivitySubGroupHandler) GetHeaders(c *gin.Context) {
	limit, err := intQuery(c, "result_count", 10)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	values, err := h.svc.Headers(c.Request.Context(), c.Query("field_name"), c.Query("search_string"), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, values)
}

// GET /api/concepts/activity-subgroups/:uid
func (h *ActivitySubGroupHandler) Get(c *gin.Context) {
	q, err := parseVersionQuery(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ar, err := h.svc.Get(c.Request.Context(), c.Param("uid"), q)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activitySubGroupPayload(ar))
}

// GET /api/concepts/activity-subgroups/:uid/versions
func (h *ActivitySubGroupHandler) GetVersions(c *gin.Context) {
	ars, err := h.svc.Versions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activitySubGroupPayloads(ars))
}

// GET /api/concepts/activity-subgroups/:uid/audit-trail
func (h *ActivitySubGroupHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, entries)
}

// PATCH /api/concepts/activity-subgroups/:uid
func (h *ActivitySubGroupHandler) Edit(c *gin.Context) {
	var in services.ActivitySubGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Edit(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activitySubGroupPayload(ar))
}

// POST /api/concepts/activity-subgroups/:uid/approvals
func (h *ActivitySubGroupHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// POST /api/concepts/activity-subgroups/:uid/versions
func (h *ActivitySubGroupHandler) NewVersion(c *gin.Context) {
	h.transition(c, h.svc.NewVersion)
}

// DELETE /api/concepts/activity-subgroups/:uid/activations
func (h *ActivitySubGroupHandler) Inactivate(c *gin.Context) {
	h.transition(c, h.svc.Inactivate)
}

// POST /api/concepts/activity-subgroups/:uid/activations
func (h *ActivitySubGroupHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate)
}

// DELETE /api/concepts/activity-subgroups/:uid
func (h *ActivitySubGroupHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func (h *ActivitySubGroupHandler) transition(c *gin.Context, op func(ctx context.Context, uid string) (*concepts.ActivitySubGroupAR, error)) {
	ar, err := op(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activitySubGroupPayload(ar))
}
