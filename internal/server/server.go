package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/handler"
	appmw "github.com/shinyyama/bookloop-backend/internal/middleware"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/repository"
	"github.com/shinyyama/bookloop-backend/internal/service"
	"gorm.io/gorm"
)

// Pinger is an optional dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	DB       *gorm.DB
	Verifier appmw.TokenVerifier
	Hub      *realtime.Hub
	// Publisher defaults to Hub. Set it to a RedisRelay to share events
	// between instances.
	Publisher realtime.Publisher
	Broker    Pinger

	GatewayTimeout  time.Duration
	CORSAllowSuffix string
	Logger          zerolog.Logger

	SHA       string
	BuildTime string
}

type Server struct {
	e   *echo.Echo
	hub *realtime.Hub
}

func New(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	allowOrigin := originPolicy(d.CORSAllowSuffix)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmw.RequestLogger(d.Logger))
	e.Use(appmw.Metrics)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			return allowOrigin(origin), nil
		},
	}))

	pub := d.Publisher
	if pub == nil {
		pub = d.Hub
	}

	requestRepo := repository.NewRequestRepository(d.DB)
	messageRepo := repository.NewMessageRepository(d.DB)
	bookRepo := repository.NewBookRepository(d.DB)
	notifRepo := repository.NewNotificationRepository(d.DB)

	locks := service.NewKeyedLock()
	notifSvc := service.NewNotificationService(notifRepo, d.Logger)
	d.Hub.AddListener(notifSvc.HandleEvent)

	requestSvc := service.NewRequestService(requestRepo, messageRepo, bookRepo, pub, locks, d.Logger)
	convSvc := service.NewConversationService(requestRepo, messageRepo, notifSvc, pub, locks, d.Logger)
	streamSvc := service.NewStreamService(requestRepo, d.Hub)

	requestHandler := handler.NewRequestHandler(requestSvc, d.GatewayTimeout, d.Logger)
	convHandler := handler.NewConversationHandler(convSvc, d.GatewayTimeout, d.Logger)
	streamHandler := handler.NewStreamHandler(streamSvc, allowOrigin, d.GatewayTimeout, d.Logger)
	notifHandler := handler.NewNotificationHandler(notifSvc, d.GatewayTimeout, d.Logger)

	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		resp := map[string]string{
			"ok":         "true",
			"db":         "ok",
			"git_sha":    d.SHA,
			"build_time": d.BuildTime,
		}
		if err := pingDB(ctx, d.DB); err != nil {
			status = http.StatusServiceUnavailable
			resp["ok"] = "false"
			resp["db"] = err.Error()
		}
		if d.Broker != nil {
			resp["broker"] = "ok"
			if err := d.Broker.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["ok"] = "false"
				resp["broker"] = err.Error()
			}
		}
		return c.JSON(status, resp)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	authMw := appmw.NewAuthMiddleware(d.Verifier)
	api := e.Group("/api", authMw.RequireAuth)
	api.POST("/books/:id/requests", requestHandler.Create)
	api.GET("/requests", requestHandler.List)
	api.GET("/requests/:id", requestHandler.Get)
	api.POST("/requests/:id/accept", requestHandler.Accept)
	api.POST("/requests/:id/reject", requestHandler.Reject)
	api.POST("/requests/:id/complete", requestHandler.Complete)
	api.GET("/requests/:id/messages", convHandler.ListMessages)
	api.POST("/requests/:id/messages", convHandler.CreateMessage)
	api.POST("/requests/:id/read", convHandler.MarkRead)
	api.GET("/requests/:id/stream", streamHandler.Stream)
	api.GET("/notifications", notifHandler.List)
	api.POST("/notifications/read", notifHandler.MarkAllRead)

	return &Server{e: e, hub: d.Hub}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Shutdown ends live subscriptions first so websocket handlers return, then
// drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.e.Shutdown(ctx)
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return repository.ErrDBNotReady
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func originPolicy(suffix string) func(string) bool {
	return func(origin string) bool {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false
		}
		return suffix != "" && strings.HasSuffix(u.Hostname(), suffix)
	}
}
