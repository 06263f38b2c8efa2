package server

import (
	"github.com/labstack/echo/v4"

	"github.com/chogm/discordlite/internal/application/config"
	"github.com/chogm/discordlite/internal/infra/ports/http/handlers"
	"github.com/chogm/discordlite/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	channelHandler *handlers.ChannelHandler,
	deviceHandler *handlers.DeviceHandler,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			v1.GET("/me", authHandler.GetMe)

			v1.GET("/calls/ice", iceHandler.IceServers)

			v1.GET("/ws/chat/:channelId", wsHandler.HandleChat)
			v1.GET("/ws/signaling/:channelId", wsHandler.HandleSignaling)

			v1.GET("/channels", channelHandler.ListChannels)
			v1.POST("/channels", channelHandler.CreateChannel)
			v1.DELETE("/channels/:id", channelHandler.DeleteChannel)
			v1.POST("/channels/:id/join", channelHandler.JoinChannel)
			v1.GET("/channels/:id/messages", channelHandler.ListMessages)

			v1.POST("/devices", deviceHandler.RegisterDevice)
		}
	}

	return e
}
