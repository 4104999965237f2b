package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mtwebit/tasker/pkg/api/handler"
	"github.com/mtwebit/tasker/pkg/api/middleware"
	"github.com/mtwebit/tasker/pkg/core/engine"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, runCfg engine.DriverConfig, version string) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	// 创建handlers
	taskHandler := handler.NewTaskHandler(eng, runCfg)
	healthHandler := handler.NewHealthHandler(version, eng.Repo())

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			tasks.GET("", taskHandler.List)
			tasks.POST("", taskHandler.Create)
			tasks.GET("/:id", taskHandler.Get)
			tasks.DELETE("/:id", taskHandler.Trash)
			tasks.POST("/:id/activate", taskHandler.Activate)
			tasks.POST("/:id/suspend", taskHandler.Suspend)
			tasks.POST("/:id/kill", taskHandler.Kill)
			tasks.POST("/:id/reset", taskHandler.Reset)
			tasks.POST("/:id/restart", taskHandler.Restart)
			tasks.POST("/:id/run", taskHandler.Run)
			tasks.POST("/:id/dependencies", taskHandler.AddDependency)
			tasks.POST("/:id/successors", taskHandler.AddSuccessor)
		}

		v1.GET("/handlers", taskHandler.Handlers)
	}

	return router
}
