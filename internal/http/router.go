package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/config"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/http/handler"
	httpmiddleware "github.com/PlasmaGamerz/Lyro-Spotify/internal/http/middleware"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, linkHandler *handler.LinkHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/", linkHandler.Home)
	r.GET("/healthz", linkHandler.Healthz)
	r.GET("/login", linkHandler.Login)
	r.GET("/callback", linkHandler.Callback)
	r.GET("/tokens", linkHandler.Tokens)
	// Route kept for bots still calling the old path.
	r.GET("/gettokens", linkHandler.Tokens)

	return r
}
