package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/data/cache"
	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore/memstore"
	"github.com/yungbote/clinicalmdr-backend/internal/graphstore/neostore"
	httpServer "github.com/yungbote/clinicalmdr-backend/internal/http"
	"github.com/yungbote/clinicalmdr-backend/internal/http/handlers"
	"github.com/yungbote/clinicalmdr-backend/internal/http/middleware"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/config"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/envutil"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/neo4jdb"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/redisdb"
	"github.com/yungbote/clinicalmdr-backend/internal/services"
)

// epochCodelistDefault is the CDISC codelist every epoch term must
// belong to unless MDR_EPOCH_CODELIST overrides it.
const epochCodelistDefault = "C99079"

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed", "error", err)
	}

	ctx := context.Background()
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "clinicalmdr-backend",
		Environment: cfg.Env,
	})
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn("OTel shutdown failed", "error", err)
		}
	}()

	// Graph store: Neo4j when configured, otherwise in-process.
	log.Info("Setting up graph store...")
	var store graphstore.Store
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("Neo4j init failed", "error", err)
	}
	if neoClient != nil {
		defer neoClient.Close(context.Background())
		ns := neostore.New(neoClient, log)
		ns.EnsureSchema(ctx, repos.SchemaLabels)
		store = ns
		log.Info("Using Neo4j graph store")
	} else {
		store = memstore.New()
		log.Warn("NEO4J_URI not set, using in-process graph store")
	}

	// Cache: Redis when configured, otherwise in-process.
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	var itemCache cache.ItemCache
	redisClient, err := redisdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		itemCache = cache.NewRedis(redisClient, cacheTTL, log)
		log.Info("Using Redis item cache")
	} else {
		itemCache = cache.NewMemory(cacheTTL)
		log.Warn("REDIS_ADDR not set, using in-process item cache")
	}

	// Repos
	log.Info("Setting up repos...")
	repos.SetMaxPageSize(cfg.MaxPageSize)
	libraryRepo := repos.NewLibraryRepo(store, log)
	activityGroupRepo := repos.NewActivityGroupRepo(store, itemCache, log)
	activitySubGroupRepo := repos.NewActivitySubGroupRepo(store, itemCache, log)
	activityRepo := repos.NewActivityRepo(store, itemCache, log)
	ctTermRepo := repos.NewCTTermRepo(store, itemCache, log)
	timeframeTemplateRepo := repos.NewTimeframeTemplateRepo(store, itemCache, log)
	timeframeRepo := repos.NewTimeframeRepo(store, itemCache, log)
	studyRepo := repos.NewStudyRepo(store, itemCache, log)
	studyEpochRepo := repos.NewStudyEpochRepo(store, itemCache, log)
	studyActivityGroupRepo := repos.NewStudyActivityGroupRepo(store, itemCache, log)
	studyActivityRepo := repos.NewStudyActivityRepo(store, itemCache, log)

	// Services
	log.Info("Setting up services...")
	libraryService := services.NewLibraryService(log, libraryRepo)
	activityGroupService := services.NewActivityGroupService(log, activityGroupRepo, libraryRepo)
	activitySubGroupService := services.NewActivitySubGroupService(log, activitySubGroupRepo, activityGroupRepo, libraryRepo)
	activityService := services.NewActivityService(log, activityRepo, activitySubGroupRepo, libraryRepo)
	ctTermService := services.NewCTTermService(log, ctTermRepo, libraryRepo)
	timeframeTemplateService := services.NewTimeframeTemplateService(log, timeframeTemplateRepo, libraryRepo)
	timeframeService := services.NewTimeframeService(log, timeframeRepo, timeframeTemplateRepo, libraryRepo)
	studyService := services.NewStudyService(log, studyRepo, studyEpochRepo, studyActivityGroupRepo, studyActivityRepo)
	epochCodelist := envutil.String("MDR_EPOCH_CODELIST", epochCodelistDefault)
	studyEpochService := services.NewStudyEpochService(log, studyEpochRepo, ctTermRepo, epochCodelist)
	studyActivityService := services.NewStudyActivityService(log, studyActivityGroupRepo, studyActivityRepo)
	designFigureService := services.NewDesignFigureService(log, studyRepo, studyEpochRepo)

	// Handlers
	log.Info("Setting up handlers...")
	routerCfg := httpServer.RouterConfig{
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,

		AuthMiddleware: middleware.NewAuthMiddleware(log, cfg.JWTSecret, cfg.AuthDisabled),

		LibraryHandler:          handlers.NewLibraryHandler(log, libraryService),
		ActivityGroupHandler:    handlers.NewActivityGroupHandler(log, activityGroupService),
		ActivitySubGroupHandler: handlers.NewActivitySubGroupHandler(log, activitySubGroupService),
		ActivityHandler:         handlers.NewActivityHandler(log, activityService),
		CTTermHandler:           handlers.NewCTTermHandler(log, ctTermService),

		TimeframeTemplateHandler: handlers.NewTimeframeTemplateHandler(log, timeframeTemplateService),
		TimeframeHandler:         handlers.NewTimeframeHandler(log, timeframeService),

		StudyHandler:         handlers.NewStudyHandler(log, studyService, designFigureService),
		StudyEpochHandler:    handlers.NewStudyEpochHandler(log, studyEpochService),
		StudyActivityHandler: handlers.NewStudyActivityHandler(log, studyActivityService),

		HealthHandler: handlers.NewHealthHandler(),
	}

	server := httpServer.NewServer(routerCfg)
	address := fmt.Sprintf(":%d", cfg.HTTPPort)
	log.Info("Starting HTTP server", "address", address, "env", cfg.Env)
	if err := server.Run(address); err != nil {
		log.Fatal("HTTP server exited", "error", err)
	}
}
