package api

import (
	"github.com/gin-gonic/gin"

	"go-shipper/app/api/middleware"
	"go-shipper/app/internal/constants"
)

func ApiRoutes(engine *gin.Engine, s *Server) {
	loginCtl := &LoginCtl{service: s.userService}
	projectCtl := &ProjectCtl{service: s.projectService}
	environmentCtl := &EnvironmentCtl{service: s.environmentService}
	deployCtl := &DeployCtl{service: s.deployService, userService: s.userService}
	scheduleCtl := &ScheduleCtl{service: s.scheduleService, userService: s.userService}
	policyCtl := &PolicyCtl{gate: s.gate}
	consoleCtl := &ConsoleCtl{service: s.deployService}

	api := engine.Group("/api")
	api.POST("/login", loginCtl.Login)
	api.POST("/token/refresh", loginCtl.RefreshToken)

	authed := api.Group("", middleware.Auth)
	authed.DELETE("/logout", loginCtl.Logout)
	authed.GET("/user/info", loginCtl.UserInfo)
	authed.GET("/notifications", loginCtl.Notifications)
	authed.PUT("/notifications/:id/read", loginCtl.ReadNotification)

	viewer := authed.Group("", middleware.Permission(s.userService, constants.RoleViewer))
	viewer.GET("/environments", environmentCtl.List)
	viewer.GET("/environments/:id", environmentCtl.Detail)
	viewer.GET("/projects", projectCtl.List)
	viewer.GET("/projects/:id", projectCtl.Detail)
	viewer.GET("/projects/:id/deployments", deployCtl.List)
	viewer.GET("/projects/:id/deployments/latest-success", deployCtl.LatestSuccess)
	viewer.GET("/projects/:id/schedules", scheduleCtl.List)
	viewer.GET("/deployments/:id", deployCtl.Detail)
	viewer.GET("/deployments/:id/console", consoleCtl.Stream)
	viewer.GET("/schedules/:id", scheduleCtl.Detail)

	developer := authed.Group("", middleware.Permission(s.userService, constants.RoleDeveloper))
	developer.POST("/deployments", deployCtl.Create)
	developer.POST("/rollbacks", deployCtl.Rollback)
	developer.PUT("/deployments/:id/cancel", deployCtl.Cancel)
	developer.POST("/schedules", scheduleCtl.Create)
	developer.PUT("/schedules/:id/cancel", scheduleCtl.Cancel)

	admin := authed.Group("", middleware.Permission(s.userService, constants.RoleAdmin))
	admin.POST("/environments", environmentCtl.Save)
	admin.DELETE("/environments/:id", environmentCtl.Delete)
	admin.POST("/projects", projectCtl.Save)
	admin.DELETE("/projects/:id", projectCtl.Delete)
	admin.GET("/policies", policyCtl.List)
	admin.POST("/policies", policyCtl.Save)
	admin.DELETE("/policies/:id", policyCtl.Delete)
}
