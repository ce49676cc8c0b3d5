package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jengzang/memorymap-backend-go/internal/config"
	"github.com/jengzang/memorymap-backend-go/internal/handler"
	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/metrics"
	"github.com/jengzang/memorymap-backend-go/internal/middleware"
)

// Dependencies are the wired components the router serves
type Dependencies struct {
	Map     *handler.MapHandler
	Tokens  *middleware.ViewTokens
	Limiter *middleware.RateLimiter // nil disables rate limiting
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Log, deps.Metrics))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+middleware.ViewTokenHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Memory Map Backend API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API 路由组
	api := r.Group("/api/v1")
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter))
	}
	{
		h := deps.Map

		api.GET("/stats", h.Stats)
		api.GET("/globe", h.GlobeMarkers)
		api.GET("/notes/:noteId", h.GetNote)

		// 聚类查询接口
		clusters := api.Group("/clusters")
		{
			clusters.GET("/:clusterId/members", h.ClusterMembers)
			clusters.GET("/:clusterId/children", h.ClusterChildren)
		}

		// 地图视图接口
		api.POST("/views", h.CreateView)
		views := api.Group("/views/:id", middleware.RequireViewToken(deps.Tokens, "id"))
		{
			views.GET("", h.GetView)
			views.DELETE("", h.DeleteView)
			views.GET("/events", h.Events)
			views.POST("/settle", h.Settle)
			views.POST("/zoom-start", h.ZoomStart)
			views.POST("/background-click", h.BackgroundClick)
			views.POST("/focus", h.Focus)
			views.POST("/clusters/:clusterId/activate", h.ActivateCluster)
			views.POST("/points/:noteId/activate", h.ActivatePoint)
			views.POST("/globe/clusters/:clusterId/activate", h.GlobeActivateCluster)
			views.POST("/globe/notes/:noteId/activate", h.GlobeActivateNote)
		}
	}

	return r
}
