package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/domain/syntax"
	"github.com/yungbote/clinicalmdr-backend/internal/http/response"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/services"
)

type timeframeTemplateDTO struct {
	UID            string   `json:"uid"`
	Name           string   `json:"name"`
	GuidanceText   string   `json:"guidance_text,omitempty"`
	ParameterNames []string `json:"parameter_names"`
	LibraryName    string   `json:"library_name"`
	versionInfo
}

func timeframeTemplatePayload(ar *syntax.TimeframeTemplateAR) timeframeTemplateDTO {
	return timeframeTemplateDTO{
		UID:            ar.UID,
		Name:           ar.Value.Name,
		GuidanceText:   ar.Value.GuidanceText,
		ParameterNames: ar.Value.ParameterNames(),
		LibraryName:    ar.Library.Name,
		versionInfo:    versionInfoOf(ar.Item),
	}
}

func timeframeTemplatePayloads(ars []*syntax.TimeframeTemplateAR) []timeframeTemplateDTO {
	out := make([]timeframeTemplateDTO, len(ars))
	for i, ar := range ars {
		out[i] = timeframeTemplatePayload(ar)
	}
	return out
}

type TimeframeTemplateHandler struct {
	log *logger.Logger
	svc services.TimeframeTemplateService
}

func NewTimeframeTemplateHandler(log *logger.Logger, svc services.TimeframeTemplateService) *TimeframeTemplateHandler {
	return &TimeframeTemplateHandler{log: log.With("handler", "TimeframeTemplateHandler"), svc: svc}
}

// POST /api/timeframe-templates
func (h *TimeframeTemplateHandler) Create(c *gin.Context) {
	var in services.TimeframeTemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, timeframeTemplatePayload(ar))
}

// GET /api/timeframe-templates
func (h *TimeframeTemplateHandler) GetAll(c *gin.Context) {
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
	response.RespondOK(c, response.Paged{Items: timeframeTemplatePayloads(ars), Total: total})
}

// GET /api/timeframe-templates/:uid
func (h *TimeframeTemplateHandler) Get(c *gin.Context) {
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
	response.RespondOK(c, timeframeTemplatePayload(ar))
}

// GET /api/timeframe-templates/:uid/versions
func (h *TimeframeTemplateHandler) GetVersions(c *gin.Context) {
	ars, err := h.svc.Versions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, timeframeTemplatePayloads(ars))
}

// GET /api/timeframe-templates/:uid/parameters
func (h *TimeframeTemplateHandler) GetParameters(c *gin.Context) {
	names, err := h.svc.Parameters(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, names)
}

// GET /api/timeframe-templates/:uid/audit-trail
func (h *TimeframeTemplateHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, entries)
}

// PATCH /api/timeframe-templates/:uid
func (h *TimeframeTemplateHandler) Edit(c *gin.Context) {
	var in services.TimeframeTemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Edit(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, timeframeTemplatePayload(ar))
}

// POST /api/timeframe-templates/:uid/approvals
func (h *TimeframeTemplateHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// POST /api/timeframe-templates/:uid/versions
func (h *TimeframeTemplateHandler) NewVersion(c *gin.Context) {
	h.transition(c, h.svc.NewVersion)
}

// DELETE /api/timeframe-templates/:uid/activations
func (h *TimeframeTemplateHandler) Inactivate(c *gin.Context) {
	h.transition(c, h.svc.Inactivate)
}

// POST /api/timeframe-templates/:uid/activations
func (h *TimeframeTemplateHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate)
}

// DELETE /api/timeframe-templates/:uid
func (h *TimeframeTemplateHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func (h *TimeframeTemplateHandler) transition(c *gin.Context, op func(ctx context.Context, uid string) (*syntax.TimeframeTemplateAR, error)) {
	ar, err := op(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, timeframeTemplatePayload(ar))
}

type parameterTermDTO struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

type timeframeDTO struct {
	UID            string             `json:"uid"`
	Name           string             `json:"name"`
	TemplateUID    string             `json:"timeframe_template_uid"`
	TemplateName   string             `json:"timeframe_template_name"`
	ParameterTerms []parameterTermDTO `json:"parameter_terms"`
	LibraryName    string             `json:"library_name"`
	versionInfo
}

func timeframePayload(ar *syntax.TimeframeAR) timeframeDTO {
	terms := make([]parameterTermDTO, len(ar.Value.ParameterTerms))
	for i, t := range ar.Value.ParameterTerms {
		terms[i] = parameterTermDTO{Position: t.Position, Name: t.Name, Value: t.Value}
	}
	return timeframeDTO{
		UID:            ar.UID,
		Name:           ar.Value.Name(),
		TemplateUID:    ar.Value.TemplateUID,
		TemplateName:   ar.Value.TemplateName,
		ParameterTerms: terms,
		LibraryName:    ar.Library.Name,
		versionInfo:    versionInfoOf(ar.Item),
	}
}

func timeframePayloads(ars []*syntax.TimeframeAR) []timeframeDTO {
	out := make([]timeframeDTO, len(ars))
	for i, ar := range ars {
		out[i] = timeframePayload(ar)
	}
	return out
}

type TimeframeHandler struct {
	log *logger.Logger
	svc services.TimeframeService
}

func NewTimeframeHandler(log *logger.Logger, svc services.TimeframeService) *TimeframeHandler {
	return &TimeframeHandler{log: log.With("handler", "TimeframeHandler"), svc: svc}
}

// POST /api/timeframes
func (h *TimeframeHandler) Create(c *gin.Context) {
	var in services.TimeframeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, timeframePayload(ar))
}

// GET /api/timeframes
func (h *TimeframeHandler) GetAll(c *gin.Context) {
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
	response.RespondOK(c, response.Paged{Items: timeframePayloads(ars), Total: total})
}

// GET /api/timeframes/:uid
func (h *TimeframeHandler) Get(c *gin.Context) {
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
	response.RespondOK(c, timeframePayload(ar))
}

// GET /api/timeframes/:uid/versions
func (h *TimeframeHandler) GetVersions(c *gin.Context) {
	ars, err := h.svc.Versions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, timeframePayloads(ars))
}

// GET /api/timeframes/:uid/audit-trail
func (h *TimeframeHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, entries)
}

// PATCH /api/timeframes/:uid
func (h *TimeframeHandler) Edit(c *gin.Context) {
	var in services.TimeframeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Edit(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, timeframePayload(ar))
}

// POST /api/timeframes/:uid/approvals
func (h *TimeframeHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// POST /api/timeframes/:uid/versions
func (h *TimeframeHandler) NewVersion(c *gin.Context) {
	h.transition(c, h.svc.NewVersion)
}

// DELETE /api/timeframes/:uid/activations
func (h *TimeframeHandler) Inactivate(c *gin.Context) {
	h.transition(c, h.svc.Inactivate)
}

// POST /api/timeframes/:uid/activations
func (h *TimeframeHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate)
}

// DELETE /api/timeframes/:uid
func (h *TimeframeHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("uid")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondNoContent(c)
}

func (h *TimeframeHandler) transition(c *gin.Context, op func(ctx context.Context, uid string) (*syntax.TimeframeAR, error)) {
	ar, err := op(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, timeframePayload(ar))
}
