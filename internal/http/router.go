package http

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/config"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/logger"
)

func NewRouter(cfg *config.Config, h *Handler, log zerolog.Logger) *gin.Engine {
	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))
	r.Use(cors.New(corsConfig(cfg.CORS)))

	h.Register(r)
	return r
}

func corsConfig(c config.CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(c.AllowOrigins) == 0 || slices.Contains(c.AllowOrigins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.AllowOrigins
		cc.AllowCredentials = true
	}
	return cc
}
