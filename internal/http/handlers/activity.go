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

type activityDTO struct {
	UID                  string   `json:"uid"`
	Name                 string   `json:"name"`
	NameSentenceCase     string   `json:"name_sentence_case"`
	Definition           string   `json:"definition,omitempty"`
	Abbreviation         string   `json:"abbreviation,omitempty"`
	ActivitySubGroupUIDs []string `json:"activity_subgroup_uids"`
	IsDataCollected      bool     `json:"is_data_collected"`
	LibraryName          string   `json:"library_name"`
	versionInfo
}

func activityPayload(ar *concepts.ActivityAR) activityDTO {
	return activityDTO{
		UID:                  ar.UID,
		Name:                 ar.Value.Name,
		NameSentenceCase:     ar.Value.NameSentenceCase,
		Definition:           ar.Value.Definition,
		Abbreviation:         ar.Value.Abbreviation,
		ActivitySubGroupUIDs: ar.Value.SubGroupUIDs,
		IsDataCollected:      ar.Value.IsDataCollected,
		LibraryName:          ar.Library.Name,
		versionInfo:          versionInfoOf(ar.Item),
	}
}

func activityPayloads(ars []*concepts.ActivityAR) []activityDTO {
	out := make([]activityDTO, len(ars))
	for i, ar := range ars {
		out[i] = activityPayload(ar)
	}
	return out
}

type ActivityHandler struct {
	log *logger.Logger
	svc services.ActivityService
}

func NewActivityHandler(log *logger.Logger, svc services.ActivityService) *ActivityHandler {
	return &ActivityHandler{log: log.With("handler", "ActivityHandler"), svc: svc}
}

// POST /api/concepts/activities
func (h *ActivityHandler) Create(c *gin.Context) {
	var in services.ActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, activityPayload(ar))
}

// GET /api/concepts/activities
func (h *ActivityHandler) GetAll(c *gin.Context) {
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
	response.RespondOK(c, response.Paged{Items: activityPayloads(ars), Total: total})
}

// GET /api/concepts/activities/headers
func (h *ActivityHandler) GetHeaders(c *gin.Context) {
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

// GET /api/concepts/activities/:uid
func (h *ActivityHandler) Get(c *gin.Context) {
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
	response.RespondOK(c, activityPayload(ar))
}

// GET /api/concepts/activities/:uid/versions
func (h *ActivityHandler) GetVersions(c *gin.Context) {
	ars, err := h.svc.Versions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityPayloads(ars))
}

// GET /api/concepts/activities/:uid/audit-trail
func (h *ActivityHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, entries)
}

// PATCH /api/concepts/activities/:uid
func (h *ActivityHandler) Edit(c *gin.Context) {
	var in services.ActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Edit(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityPayload(ar))
}

// POST /api/concepts/activities/:uid/approvals
func (h *ActivityHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// POST /api/concepts/activities/:uid/versions
func (h *ActivityHandler) NewVersion(c *gin.Context) {
	h.transition(c, h.svc.NewVersion)
}

// DELETE /api/concepts/activities/:uid/activations
func (h *ActivityHandler) Inactivate(c *gin.Context) {
	h.transition(c, h.svc.Inactivate)
}

// POST /api/concepts/activities/:uid/activations
func (h *ActivityHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate)
}

// DELETE /api/concepts/activities/:uid
func (h *ActivityHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func (h *ActivityHandler) transition(c *gin.Context, op func(ctx context.Context, uid string) (*concepts.ActivityAR, error)) {
	ar, err := op(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, activityPayload(ar))
}
