package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/chat-orchestrator/api"
	"github.com/psds-microservice/chat-orchestrator/internal/handler"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func New(chatHandler *handler.ChatHandler, queueHandler *handler.QueueHandler, presenceHandler *handler.PresenceHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready)
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/conversations", chatHandler.Create)
		v1.GET("/conversations/:id", chatHandler.Get)
		v1.GET("/conversations/:id/messages", chatHandler.ListMessages)
		v1.POST("/conversations/:id/messages", chatHandler.SendCustomerMessage)
		v1.POST("/conversations/:id/staff-messages", chatHandler.SendStaffMessage)
		v1.POST("/conversations/:id/release", chatHandler.Release)
		v1.POST("/conversations/:id/close", chatHandler.Close)

		v1.GET("/queue", queueHandler.Waiting)
		v1.GET("/queue/stats", queueHandler.Stats)
		v1.GET("/queue/staff/:staff_id", queueHandler.StaffQueue)
		v1.POST("/queue/:conversation_id/assign", queueHandler.Assign)

		v1.GET("/presence", presenceHandler.List)
		v1.GET("/presence/available", presenceHandler.Available)
		v1.GET("/presence/:staff_id", presenceHandler.Get)
		v1.POST("/presence/:staff_id/online", presenceHandler.SetOnline)
		v1.POST("/presence/:staff_id/heartbeat", presenceHandler.Heartbeat)
	}

	return r
}
