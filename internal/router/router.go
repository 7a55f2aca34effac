package router

import (
	"log/slog"

	"lessontalk/internal/handlers"
	"lessontalk/internal/middleware"
	"lessontalk/internal/services"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Services are the engine components the HTTP layer serves.
type Services struct {
	DB      *gorm.DB
	Remarks *services.RemarkStore
	Votes   *services.VoteLedger
	Tree    *services.TreeAssembler
	Feed    *services.Aggregator
}

type Options struct {
	SessionName   string
	SessionSecret string
	ElevatedRoles []string
	Logger        *slog.Logger
}

// New builds the gin engine with sessions, caller loading and access logging
// in front of the API routes.
func New(svc Services, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, MaxAge: 30 * 24 * 3600})
	r.Use(sessions.Sessions(opts.SessionName, store))
	r.Use(middleware.LoadCaller(opts.ElevatedRoles))
	r.Use(middleware.RequestLogger(opts.Logger))

	RegisterRoutes(r, svc)
	return r
}

func RegisterRoutes(r *gin.Engine, svc Services) {
	// Handlers
	healthHandler := handlers.NewHealthHandler(svc.DB)
	remarkHandler := handlers.NewRemarkHandler(svc.Remarks, svc.Tree, svc.Votes)
	voteHandler := handlers.NewVoteHandler(svc.Votes)
	feedHandler := handlers.NewFeedHandler(svc.Feed)

	api := r.Group("/api")

	// Public routes
	api.GET("/health", healthHandler.Health)
	api.GET("/ready", healthHandler.Ready)
	api.GET("/courses/:id/remarks", remarkHandler.ListByCourse)
	api.GET("/lessons/:id/remarks", remarkHandler.ListByLesson)
	api.GET("/remarks", remarkHandler.List)
	api.GET("/remarks/:id", remarkHandler.Get)
	api.GET("/discussions", feedHandler.List)

	// Protected routes
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/courses/:id/remarks", remarkHandler.CreateForCourse)
		authorized.POST("/lessons/:id/remarks", remarkHandler.CreateForLesson)
		authorized.POST("/remarks", remarkHandler.Create)
		authorized.DELETE("/remarks/:id", remarkHandler.Delete)
		authorized.POST("/remarks/:id/votes", voteHandler.Toggle)
	}
}
