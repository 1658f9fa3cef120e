package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/http/response"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/services"
)

type libraryDTO struct {
	Name       string `json:"name"`
	IsEditable bool   `json:"is_editable"`
}

type LibraryHandler struct {
	log *logger.Logger
	svc services.LibraryService
}

func NewLibraryHandler(log *logger.Logger, svc services.LibraryService) *LibraryHandler {
	return &LibraryHandler{log: log.With("handler", "LibraryHandler"), svc: svc}
}

// POST /api/libraries
func (h *LibraryHandler) Create(c *gin.Context) {
	var in libraryDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	lib, err := h.svc.Create(c.Request.Context(), in.Name, in.IsEditable)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, libraryDTO{Name: lib.Name, IsEditable: lib.IsEditable})
}

// GET /api/libraries
func (h *LibraryHandler) GetAll(c *gin.Context) {
	libs, err := h.svc.List(c.Request.Context(), c.Query("is_editable") == "true")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out := make([]libraryDTO, len(libs))
	for i, lib := range libs {
		out[i] = libraryDTO{Name: lib.Name, IsEditable: lib.IsEditable}
	}
	response.RespondOK(c, out)
}

// GET /api/libraries/:name
func (h *LibraryHandler) Get(c *gin.Context) {
	lib, err := h.svc.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, libraryDTO{Name: lib.Name, IsEditable: lib.IsEditable})
}
