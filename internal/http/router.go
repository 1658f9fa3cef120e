package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/clinicalmdr-backend/internal/http/handlers"
	httpMW "github.com/yungbote/clinicalmdr-backend/internal/http/middleware"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	CORSOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware

	LibraryHandler          *httpH.LibraryHandler
	ActivityGroupHandler    *httpH.ActivityGroupHandler
	ActivitySubGroupHandler *httpH.ActivitySubGroupHandler
	ActivityHandler         *httpH.ActivityHandler
	CTTermHandler           *httpH.CTTermHandler

	TimeframeTemplateHandler *httpH.TimeframeTemplateHandler
	TimeframeHandler         *httpH.TimeframeHandler

	StudyHandler         *httpH.StudyHandler
	StudyEpochHandler    *httpH.StudyEpochHandler
	StudyActivityHandler *httpH.StudyActivityHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("clinicalmdr-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuthor())
		}

		// Libraries
		if cfg.LibraryHandler != nil {
			api.POST("/libraries", cfg.LibraryHandler.Create)
			api.GET("/libraries", cfg.LibraryHandler.GetAll)
			api.GET("/libraries/:name", cfg.LibraryHandler.Get)
		}

		// Activity groups
		if h := cfg.ActivityGroupHandler; h != nil {
			g := api.Group("/concepts/activity-groups")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.GET("/headers", h.GetHeaders)
			g.GET("/:uid", h.Get)
			g.PATCH("/:uid", h.Edit)
			g.DELETE("/:uid", h.Delete)
			g.GET("/:uid/versions", h.GetVersions)
			g.POST("/:uid/versions", h.NewVersion)
			g.GET("/:uid/audit-trail", h.GetAuditTrail)
			g.POST("/:uid/approvals", h.Approve)
			g.POST("/:uid/activations", h.Reactivate)
			g.DELETE("/:uid/activations", h.Inactivate)
		}

		// Activity subgroups
		if h := cfg.ActivitySubGroupHandler; h != nil {
			g := api.Group("/concepts/activity-subgroups")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.GET("/headers", h.GetHeaders)
			g.GET("/:uid", h.Get)
			g.PATCH("/:uid", h.Edit)
			g.DELETE("/:uid", h.Delete)
			g.GET("/:uid/versions", h.GetVersions)
			g.POST("/:uid/versions", h.NewVersion)
			g.GET("/:uid/audit-trail", h.GetAuditTrail)
			g.POST("/:uid/approvals", h.Approve)
			g.POST("/:uid/activations", h.Reactivate)
			g.DELETE("/:uid/activations", h.Inactivate)
		}

		// Activities
		if h := cfg.ActivityHandler; h != nil {
			g := api.Group("/concepts/activities")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.GET("/headers", h.GetHeaders)
			g.GET("/:uid", h.Get)
			g.PATCH("/:uid", h.Edit)
			g.DELETE("/:uid", h.Delete)
			g.GET("/:uid/versions", h.GetVersions)
			g.POST("/:uid/versions", h.NewVersion)
			g.GET("/:uid/audit-trail", h.GetAuditTrail)
			g.POST("/:uid/approvals", h.Approve)
			g.POST("/:uid/activations", h.Reactivate)
			g.DELETE("/:uid/activations", h.Inactivate)
		}

		// Controlled terminology
		if h := cfg.CTTermHandler; h != nil {
			g := api.Group("/ct/terms")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.GET("/:uid", h.Get)
			g.PATCH("/:uid", h.Edit)
			g.GET("/:uid/versions", h.GetVersions)
			g.POST("/:uid/versions", h.NewVersion)
			g.GET("/:uid/audit-trail", h.GetAuditTrail)
			g.POST("/:uid/approvals", h.Approve)
			g.POST("/:uid/activations", h.Reactivate)
			g.DELETE("/:uid/activations", h.Inactivate)
		}

		// Timeframe templates
		if h := cfg.TimeframeTemplateHandler; h != nil {
			g := api.Group("/timeframe-templates")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.GET("/:uid", h.Get)
			g.PATCH("/:uid", h.Edit)
			g.DELETE("/:uid", h.Delete)
			g.GET("/:uid/versions", h.GetVersions)
			g.POST("/:uid/versions", h.NewVersion)
			g.GET("/:uid/parameters", h.GetParameters)
			g.GET("/:uid/audit-trail", h.GetAuditTrail)
			g.POST("/:uid/approvals", h.Approve)
			g.POST("/:uid/activations", h.Reactivate)
			g.DELETE("/:uid/activations", h.Inactivate)
		}

		// Timeframes
		if h := cfg.TimeframeHandler; h != nil {
			g := api.Group("/timeframes")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.GET("/:uid", h.Get)
			g.PATCH("/:uid", h.Edit)
			g.DELETE("/:uid", h.Delete)
			g.GET("/:uid/versions", h.GetVersions)
			g.POST("/:uid/versions", h.NewVersion)
			g.GET("/:uid/audit-trail", h.GetAuditTrail)
			g.POST("/:uid/approvals", h.Approve)
			g.POST("/:uid/activations", h.Reactivate)
			g.DELETE("/:uid/activations", h.Inactivate)
		}

		// Studies
		if h := cfg.StudyHandler; h != nil {
			g := api.Group("/studies")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.GET("/:uid", h.Get)
			g.PATCH("/:uid", h.EditMetadata)
			g.POST("/:uid/locks", h.Lock)
			g.DELETE("/:uid/locks", h.Unlock)
			g.POST("/:uid/releases", h.Release)
			g.GET("/:uid/released-versions", h.GetReleasedVersions)
			g.GET("/:uid/audit-trail", h.GetAuditTrail)
			g.GET("/:uid/snapshot", h.GetSnapshot)
			g.GET("/:uid/design.png", h.GetDesignFigure)
		}

		// Study epochs
		if h := cfg.StudyEpochHandler; h != nil {
			g := api.Group("/studies/:uid/study-epochs")
			g.POST("", h.Create)
			g.GET("", h.GetAll)
			g.POST("/batch", h.Batch)
			g.PATCH("/:selection_uid", h.Edit)
			g.DELETE("/:selection_uid", h.Delete)
			g.PATCH("/:selection_uid/order", h.Reorder)
		}

		// Study activity groups and activities
		if h := cfg.StudyActivityHandler; h != nil {
			g := api.Group("/studies/:uid/study-activity-groups")
			g.POST("", h.CreateGroup)
			g.GET("", h.GetAllGroups)
			g.PATCH("/:selection_uid", h.EditGroup)
			g.DELETE("/:selection_uid", h.DeleteGroup)
			g.POST("/:selection_uid/accept-version", h.AcceptGroupVersion)

			a := api.Group("/studies/:uid/study-activities")
			a.POST("", h.Create)
			a.GET("", h.GetAll)
			a.PATCH("/:selection_uid", h.Edit)
			a.DELETE("/:selection_uid", h.Delete)
			a.PATCH("/:selection_uid/order", h.Reorder)
			a.POST("/:selection_uid/accept-version", h.AcceptVersion)
		}
	}

	return r
}
