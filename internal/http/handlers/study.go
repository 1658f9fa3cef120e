package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/http/response"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/services"
)

type studyDTO struct {
	UID                 string    `json:"uid"`
	StudyNumber         string    `json:"study_number,omitempty"`
	StudyAcronym        string    `json:"study_acronym,omitempty"`
	ProjectNumber       string    `json:"project_number,omitempty"`
	StudyID             string    `json:"study_id"`
	StudyTitle          string    `json:"study_title,omitempty"`
	StudyShortTitle     string    `json:"study_short_title,omitempty"`
	Status              string    `json:"status"`
	LockedVersionNumber int       `json:"locked_version_number"`
	UserInitials        string    `json:"user_initials"`
	VersionStart        time.Time `json:"version_start_date"`
}

func studyPayload(ar *study.DefinitionAR) studyDTO {
	return studyDTO{
		UID:                 ar.UID,
		StudyNumber:         ar.Identification.StudyNumber,
		StudyAcronym:        ar.Identification.StudyAcronym,
		ProjectNumber:       ar.Identification.ProjectNumber,
		StudyID:             ar.Identification.StudyID(),
		StudyTitle:          ar.Description.StudyTitle,
		StudyShortTitle:     ar.Description.StudyShortTitle,
		Status:              string(ar.Status),
		LockedVersionNumber: ar.LockedVersionNumber,
		UserInitials:        ar.VersionAuthor,
		VersionStart:        ar.VersionStart,
	}
}

func studyPayloads(ars []*study.DefinitionAR) []studyDTO {
	out := make([]studyDTO, len(ars))
	for i, ar := range ars {
		out[i] = studyPayload(ar)
	}
	return out
}

// parseStudyVersionQuery reads the study selectors: a timestamp, a
// locked version number or a status.
func parseStudyVersionQuery(c *gin.Context) (services.StudyVersionQuery, error) {
	q := services.StudyVersionQuery{Status: c.Query("status")}
	at, err := timeQuery(c, "at_specified_date_time")
	if err != nil {
		return q, err
	}
	q.AtTime = at
	if q.LockedVersion, err = intQuery(c, "locked_version_number", 0); err != nil {
		return q, err
	}
	return q, nil
}

type StudyHandler struct {
	log     *logger.Logger
	svc     services.StudyService
	figures services.DesignFigureService
}

func NewStudyHandler(log *logger.Logger, svc services.StudyService, figures services.DesignFigureService) *StudyHandler {
	return &StudyHandler{log: log.With("handler", "StudyHandler"), svc: svc, figures: figures}
}

// POST /api/studies
func (h *StudyHandler) Create(c *gin.Context) {
	var in services.StudyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, studyPayload(ar))
}

// GET /api/studies
func (h *StudyHandler) GetAll(c *gin.Context) {
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
	response.RespondOK(c, response.Paged{Items: studyPayloads(ars), Total: total})
}

// GET /api/studies/:uid
func (h *StudyHandler) Get(c *gin.Context) {
	q, err := parseStudyVersionQuery(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	ar, err := h.svc.Get(c.Request.Context(), c.Param("uid"), q)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, studyPayload(ar))
}

// PATCH /api/studies/:uid
func (h *StudyHandler) EditMetadata(c *gin.Context) {
	var in services.StudyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ar, err := h.svc.EditMetadata(c.Request.Context(), c.Param("uid"), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, studyPayload(ar))
}

// POST /api/studies/:uid/locks
func (h *StudyHandler) Lock(c *gin.Context) {
	h.transition(c, h.svc.Lock)
}

// DELETE /api/studies/:uid/locks
func (h *StudyHandler) Unlock(c *gin.Context) {
	h.transition(c, h.svc.Unlock)
}

// POST /api/studies/:uid/releases
func (h *StudyHandler) Release(c *gin.Context) {
	h.transition(c, h.svc.Release)
}

// GET /api/studies/:uid/released-versions
func (h *StudyHandler) GetReleasedVersions(c *gin.Context) {
	versions, err := h.svc.ReleasedVersions(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if versions == nil {
		versions = []repos.ReleasedVersion{}
	}
	response.RespondOK(c, versions)
}

// GET /api/studies/:uid/audit-trail
func (h *StudyHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, entries)
}

// GET /api/studies/:uid/snapshot
func (h *StudyHandler) GetSnapshot(c *gin.Context) {
	q, err := parseStudyVersionQuery(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	snap, err := h.svc.Snapshot(c.Request.Context(), c.Param("uid"), q)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"study":           studyPayload(snap.Study),
		"epochs":          epochSnapshotPayloads(snap.Epochs),
		"activity_groups": activityGroupSelectionPayloads(snap.ActivityGroups),
		"activities":      activitySelectionPayloads(snap.Activities),
	})
}

// GET /api/studies/:uid/design.png
func (h *StudyHandler) GetDesignFigure(c *gin.Context) {
	at, err := timeQuery(c, "at_specified_date_time")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	png, err := h.figures.Render(c.Request.Context(), c.Param("uid"), at)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *StudyHandler) transition(c *gin.Context, op func(ctx context.Context, uid string) (*study.DefinitionAR, error)) {
	ar, err := op(c.Request.Context(), c.Param("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, studyPayload(ar))
}
