package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/freedom_case_2/crcollector/internal/config"
	"github.com/freedom_case_2/crcollector/internal/db"
	"github.com/freedom_case_2/crcollector/internal/http/handlers"
	"github.com/freedom_case_2/crcollector/internal/http/middleware"
	"github.com/freedom_case_2/crcollector/internal/service"

	_ "github.com/freedom_case_2/crcollector/docs"
)

type Services struct {
	Query      *service.QueryService
	Collection *service.CollectionService
	Reports    *service.ReportService
}

func Router(cfg config.Config, store db.Store, svc Services, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = config.SplitList(cfg.CORSAllowed)
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      store,
		Query:      svc.Query,
		Collection: svc.Collection,
		Reports:    svc.Reports,
		Validator:  validator.New(),
		Logger:     logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/requests", h.RequestsList)
		api.GET("/requests/llm", h.RequestsLLM)
		api.GET("/requests/:cr", h.RequestDetails)
		api.GET("/summary", h.Summary)
		api.GET("/runs/latest", h.RunsLatest)
		api.GET("/sources", h.Sources)
		api.GET("/tasks", h.Tasks)
		api.POST("/tasks/convert", h.ConvertTasks)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.PATCH("/requests/:cr/status", h.UpdateStatus)
		admin.POST("/collect", h.Collect)
		admin.POST("/reports/daily", h.DailyReport)
	}

	cron := api.Group("/cron")
	cron.Use(middleware.CronSecret(cfg.CronSecret))
	{
		cron.GET("/collect", h.CronCollect)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
