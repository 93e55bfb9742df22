// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-params/internal/api/handlers"
	"github.com/andresuchdata/autopo-params/internal/api/middleware"
	"github.com/andresuchdata/autopo-params/internal/metrics"
	"github.com/andresuchdata/autopo-params/internal/service"
)

type Services struct {
	Parameters     *service.ParameterService
	Classification *service.ClassificationService
	Metrics        *metrics.Metrics
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger("/health", "/metrics"))
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if services == nil {
		return router
	}

	if services.Metrics != nil {
		router.GET("/metrics", gin.WrapH(services.Metrics.Handler()))
	}

	apiGroup := router.Group("/api/v1")

	if services.Parameters != nil {
		paramsHandler := handlers.NewParameterHandler(services.Parameters)
		paramsGroup := apiGroup.Group("/params")
		{
			paramsGroup.GET("/snapshot", paramsHandler.GetSnapshot)
			paramsGroup.GET("/settings", paramsHandler.GetSettings)
			paramsGroup.PUT("/settings", paramsHandler.SaveSettings)
			paramsGroup.PUT("/global", paramsHandler.UpdateGlobal)
			paramsGroup.PUT("/service-levels/:class", paramsHandler.UpdateServiceLevel)
			paramsGroup.PUT("/thresholds", paramsHandler.UpdateThresholds)
			paramsGroup.GET("/zscore", paramsHandler.ZScorePreview)

			paramsGroup.GET("/stores", paramsHandler.ListStoreOverrides)
			paramsGroup.PUT("/stores/:store", paramsHandler.PutStoreOverride)
			paramsGroup.PATCH("/stores/:store/active", paramsHandler.SetStoreOverrideActive)
			paramsGroup.DELETE("/stores/:store", paramsHandler.DeleteStoreOverride)

			paramsGroup.GET("/categories", paramsHandler.ListCategoryOverrides)
			paramsGroup.PUT("/categories/:category", paramsHandler.PutCategoryOverride)
			paramsGroup.PATCH("/categories/:category/active", paramsHandler.SetCategoryOverrideActive)
			paramsGroup.DELETE("/categories/:category", paramsHandler.DeleteCategoryOverride)

			paramsGroup.GET("/capacity", paramsHandler.ListCapacityConstraints)
			paramsGroup.PUT("/capacity/:store/:product", paramsHandler.PutCapacityConstraint)
			paramsGroup.PATCH("/capacity/:store/:product/active", paramsHandler.SetCapacityConstraintActive)
			paramsGroup.DELETE("/capacity/:store/:product", paramsHandler.DeleteCapacityConstraint)
		}

		resolveHandler := handlers.NewResolveHandler(services.Parameters)
		apiGroup.POST("/resolve", resolveHandler.Resolve)
		apiGroup.POST("/resolve/batch", resolveHandler.ResolveBatch)
		apiGroup.GET("/resolve/:store/:product", resolveHandler.ResolveTagged)
		apiGroup.POST("/orders/suggest", resolveHandler.SuggestOrder)
	}

	if services.Classification != nil {
		classificationHandler := handlers.NewClassificationHandler(services.Classification)
		classificationGroup := apiGroup.Group("/classification")
		{
			classificationGroup.POST("/run", classificationHandler.Run)
			classificationGroup.GET("/last", classificationHandler.LastRun)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
