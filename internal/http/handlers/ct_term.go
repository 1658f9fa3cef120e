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

type ctTermDTO struct {
	UID           string `json:"term_uid"`
	CatalogueName string `json:"catalogue_name"`
	CodelistUID   string `json:"codelist_uid"`
	Code          string `json:"code,omitempty"`
	Name          string `json:"sponsor_preferred_name"`
	Definition    string `json:"definition,omitempty"`
	LibraryName   string `json:"library_name"`
	versionInfo
}

func ctTermPayload(ar *concepts.CTTermAR) ctTermDTO {
	return ctTermDTO{
		UID:           ar.UID,
		CatalogueName: ar.Value.CatalogueName,
		CodelistUID:   ar.Value.CodelistUID,
		Code:          ar.Value.Code,
		Name:          ar.Value.Name,
		Definition:    ar.Value.Definition,
		LibraryName:   ar.Library.Name,
		versionInfo:   versionInfoOf(ar.Item),
	}
}

func ctTermPayloads(ars []*concepts.CTTermAR) []ctTermDTO {
	out := make([]ctTermDTO, len(ars))
	for i, ar := range ars {
		out[i] = ctTermPayload(ar)
	}
	return out
}

type CTTermHandler struct {
	log *logger.Logger
	svc services.CTTermService
}

func NewCTTermHandler(log *logger.Logger, svc services.CTTermService) *CTTermHandler {
	return &CTTermHandler{log: log.With("handler", "CTTermHandler"), svc: svc}
}

// POST /api/ct/terms
func (h *CTTermHandler) Create(c *gin.Context) {
	var in services.CTTermInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, ctTermPayload(ar))
}

// GET /api/ct/terms
func (h *CTTermHandler) GetAll(c *gin.Context) {
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
	response.RespondOK(c, response.Paged{Items: ctTermPayloads(ars), Total: total})
}

// GET /api/ct/terms/:uid
func (h *CTTermHandler) Get(c *gin.Context) {
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
	response.RespondOK(c, ctTermPayload(ar))
}

// GET /api/ct/terms/:uid/versions
func (h *CTTermHandler) GetVersions(c *gin.Context) {
	ars, err := h.svc.Versions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, ctTermPayloads(ars))
}

// GET /api/ct/terms/:uid/audit-trail
func (h *CTTermHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, entries)
}

// PATCH /api/ct/terms/:uid
func (h *CTTermHandler) Edit(c *gin.Context) {
	var in services.CTTermInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Edit(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, ctTermPayload(ar))
}

// POST /api/ct/terms/:uid/approvals
func (h *CTTermHandler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// POST /api/ct/terms/:uid/versions
func (h *CTTermHandler) NewVersion(c *gin.Context) {
	h.transition(c, h.svc.NewVersion)
}

// DELETE /api/ct/terms/:uid/activations
func (h *CTTermHandler) Inactivate(c *gin.Context) {
	h.transition(c, h.svc.Inactivate)
}

// POST /api/ct/terms/:uid/activations
func (h *CTTermHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.svc.Reactivate)
}

func (h *CTTermHandler) transition(c *gin.Context, op func(ctx context.Context, uid string) (*concepts.CTTermAR, error)) {
	ar, err := op(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, ctTermPayload(ar))
}
