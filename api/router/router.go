package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/bson"

	"town-desk/api/handlers"
	"town-desk/config"
	"town-desk/db"
	_ "town-desk/docs"
	"town-desk/drafts"
	"town-desk/eventbus"
	"town-desk/normalizer"
	"town-desk/repositories"
	"town-desk/threads"
)

func New(cfg config.AppConfig, bus eventbus.EventBus) *gin.Engine {
	r := gin.Default()

	co := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	r.Use(func(c *gin.Context) {
		co.HandlerFunc(c.Writer, c.Request)
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		if err := db.Database().RunCommand(context.Background(), bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mongo": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Swagger
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// v1 routes
	api := r.Group("/api/v1")
	{
		items := repositories.NewRawContentItemRepository(db.Database())
		runRepo := repositories.NewWorkflowRunRepository(db.Database())
		draftRepo := repositories.NewDraftRepository(db.Database())
		threadRepo := repositories.NewStoryThreadRepository(db.Database())
		linkRepo := repositories.NewStoryThreadArticleRepository(db.Database())
		triggerRepo := repositories.NewFollowUpTriggerRepository(db.Database())
		moderationRepo := repositories.NewModerationLogRepository(db.Database())
		lockRepo := repositories.NewPhaseLockRepository(db.Database(), 2*cfg.Pipeline.PhaseTimeout())

		// manual review endpoints never call the LLM, so no generator is wired
		orchestrator := drafts.NewOrchestrator(draftRepo, items, nil, cfg.Pipeline)
		threadManager := threads.NewManager(threadRepo, linkRepo, triggerRepo, lockRepo, cfg.Pipeline)

		norm := normalizer.New(items)

		api.POST("/ingest/email", handlers.IngestEmailHandler(norm, bus, cfg.Pipeline.MaxRetriesPerPhase))
		api.POST("/ingest/wire", handlers.IngestWireHandler(norm, bus, cfg.Pipeline.MaxRetriesPerPhase))
		api.GET("/runs", handlers.ListRunsHandler(runRepo))
		api.GET("/drafts", handlers.ListDraftsByStatusHandler(draftRepo))
		api.GET("/review/drafts", handlers.ListReviewDraftsHandler(draftRepo))
		api.POST("/review/drafts/:id/approve", handlers.ApproveDraftHandler(draftRepo, bus))
		api.POST("/review/drafts/:id/reject", handlers.RejectDraftHandler(orchestrator, draftRepo))
		api.GET("/threads", handlers.ListThreadsHandler(threadRepo))
		api.GET("/threads/:id", handlers.GetThreadHandler(threadRepo, linkRepo, triggerRepo))
		api.POST("/threads/:id/resolve", handlers.ResolveThreadHandler(threadManager))
		api.GET("/moderation/:kind/:id", handlers.ModerationHistoryHandler(moderationRepo))
	}

	return r
}
