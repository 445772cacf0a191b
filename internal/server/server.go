package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	obslogger "github.com/smallbiznis/ordersync/internal/observability/logger"
	obstracing "github.com/smallbiznis/ordersync/internal/observability/tracing"
	"github.com/smallbiznis/ordersync/internal/orderstore"
	"github.com/smallbiznis/ordersync/internal/persistence"
	"github.com/smallbiznis/ordersync/internal/realtime"
	shiftservice "github.com/smallbiznis/ordersync/internal/shift/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http")))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.String("addr", addr), zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	aggregator  *realtime.Aggregator
	orders      *orderstore.Store
	coordinator *persistence.Coordinator
	shifts      *shiftservice.Service
	bridge      *bridge.Bridge
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	Aggregator  *realtime.Aggregator     `optional:"true"`
	Orders      *orderstore.Store        `optional:"true"`
	Coordinator *persistence.Coordinator `optional:"true"`
	Shifts      *shiftservice.Service    `optional:"true"`
	Bridge      *bridge.Bridge           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		aggregator:  p.Aggregator,
		orders:      p.Orders,
		coordinator: p.Coordinator,
		shifts:      p.Shifts,
		bridge:      p.Bridge,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1", s.AuthRequired())

	// -------- Queue snapshot --------
	v1.GET("/snapshot", s.GetSnapshot)
	v1.GET("/snapshot/stream", s.StreamSnapshots)

	// -------- Orders --------
	v1.GET("/orders", s.ListOrders)
	v1.GET("/orders/current", s.GetCurrentOrder)
	v1.POST("/orders/current/save", s.SaveCurrentOrder)
	v1.POST("/orders/current/payments", s.CapturePayment)
	v1.POST("/orders/current/finalize", s.FinalizeCurrentOrder)
	v1.GET("/orders/:id", s.GetOrderByID)

	// -------- Shifts --------
	v1.POST("/shifts", s.OpenShift)
	v1.GET("/shifts/current", s.GetCurrentShift)
	v1.POST("/shifts/:id/close", s.CloseShift)
	v1.GET("/shifts/:id/summary", s.GetShiftSummary)

	// -------- Kitchen --------
	v1.GET("/kitchen/status", s.GetKitchenStatus)
	v1.GET("/kitchen/events/:topic", s.StreamKitchenEvents)
}
