// Package httpgw exposes the sync engine over HTTP and a websocket view
// stream. It is a thin translation layer: all state lives in the engine.
package httpgw

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/config"
	"github.com/dkeye/roomsync/internal/core"
	"github.com/dkeye/roomsync/internal/obs"
)

func SetupRouter(ctx context.Context, cfg *config.Config, engine *core.Engine) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctl := &Controller{engine: engine}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(obs.Handler()))

	api := r.Group("/api")
	api.GET("/session", ctl.GetSession)
	api.POST("/session/refresh", ctl.RefreshProfile)
	api.DELETE("/session", ctl.SignOut)

	api.POST("/rooms/:id/open", ctl.OpenRoom)
	api.DELETE("/rooms/current", ctl.CloseRoom)
	api.POST("/rooms/:id/join", ctl.JoinRoom)
	api.POST("/rooms/:id/leave", ctl.LeaveRoom)
	api.POST("/rooms/:id/messages", ctl.SendMessage)
	api.POST("/rooms/:id/media", ctl.UploadMedia)
	api.GET("/rooms/:id/ws", func(c *gin.Context) { ctl.HandleViewStream(ctx, c) })

	log.Info().Str("module", "httpgw").Msg("router setup")
	return r
}
