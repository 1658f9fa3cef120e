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

type activityGroupDTO struct {
	UID              string `json:"uid"`
	Name             string `json:"name"`
	NameSentenceCase string `json:"name_sentence_case"`
	Definition       string `json:"definition,omitempty"`
	Abbreviation     string `json:"abbreviation,omitempty"`
	LibraryName      string `json:"library_name"`
	versionInfo
}

func activityGroupPayload(ar *concepts.ActivityGroupAR) activityGroupDTO {
	return activityGroupDTO{
		UID:              ar.UID,
		Name:             ar.Value.Name,
		NameSentenceCase: ar.Value.NameSentenceCase,
		Definition:       ar.Value.Definition,
		Abbreviation:     ar.Value.Abbreviation,
		LibraryName:      ar.Library.Name,
		versionInfo:      versionInfoOf(ar.Item),
	}
}

func activityGroupPayloads(ars []*concepts.ActivityGroupAR) []activityGroupDTO {
	out := make([]activityGroupDTO, len(ars))
	for i, ar := range ars {
		out[i] = activityGroupPayload(ar)
	}
	return out
}

type ActivityGroupHandler struct {
	log *logger.Logger
	svc services.ActivityGroupService
}

func NewActivityGroupHandler(log *logger.Logger, svc services.ActivityGroupService) *ActivityGroupHandler {
	return &ActivityGroupHandler{log: log.With("handler", "ActivityGroupHandler"), svc: svc}
}

// POST /api/concepts/activity-groups
func (h *ActivityGroupHandler) Create(c *gin.Context) {
	var in services.ActivityGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, activityGroupPayload(ar))
}

// GET /api/concepts/activity-groups
func (h *ActivityGroupHandler) GetAll(c *gin.Context) {
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
	response.RespondOK(c, response.Paged{Items: activityGroupPayloads(ars), Total: total})
}

// GET /api/concepts/activity-groups/headers
func (h *ActivityGroupHandler) GetHeaders(c *gin.Context) {
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

// GET /api/concepts/activity-groups/:uid
func (h *ActivityGroupHandler) Get(c *gin.Context) {
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
	response.RespondOK(c, activityGroupPayload(ar))
}

// GET /api/concepts/activity-groups/:uid/versions
func (h *ActivityGroupHandler) GetVersions(c *gin.Context) {
	ars, err := h.svc.Versions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityGroupPayloads(ars))
}

// GET /api/concepts/activity-groups/:uid/audit-trail
func (h *ActivityGroupHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, entries)
}

// PATCH /api/concepts/activity-groups/:uid
func (h *ActivityGroupHandler) Edit(c *gin.Context) {
	var in services.ActivityGroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Edit(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityGroupPayload(ar))
}

// POST /api/concepts/activity-groups/:uid/approvals
func (h *ActivityGroupHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// POST /api/concepts/activity-groups/:uid/versions
func (h *ActivityGroupHandler) NewVersion(c *gin.Context) {
	h.transition(c, h.svc.NewVersion)
}

// DELETE /api/concepts/activity-groups/:uid/activations
func (h *ActivityGroupHandler) Inactivate(c *gin.Context) {
	h.transition(c, h.svc.Inactivate)
}

// POST /api/concepts/activity-groups/:uid/activations
func (h *ActivityGroupHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate)
}

// DELETE /api/concepts/activity-groups/:uid
func (h *ActivityGroupHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func (h *ActivityGroupHandler) transition(c *gin.Context, op func(ctx context.Context, uid string) (*concepts.ActivityGroupAR, error)) {
	ar, err := op(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityGroupPayload(ar))
}
