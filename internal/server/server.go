package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	"github.com/smallbiznis/copybill/internal/clock"
	"github.com/smallbiznis/copybill/internal/config"
	"github.com/smallbiznis/copybill/internal/observability"
	obslogger "github.com/smallbiznis/copybill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/copybill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/copybill/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	Log         *zap.Logger
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(p.Log.Named("http"), obslogger.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if p.HTTPMetrics != nil {
		r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
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

type ServerParams struct {
	fx.In

	Engine   *gin.Engine
	Billing  billingdomain.Service
	Resolver billingperioddomain.Resolver
	Clock    clock.Clock
}

type Server struct {
	engine     *gin.Engine
	billingSvc billingdomain.Service
	resolver   billingperioddomain.Resolver
	clock      clock.Clock
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Engine,
		billingSvc: p.Billing,
		resolver:   p.Resolver,
		clock:      p.Clock,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	clients := v1.Group("/clients/:client_id")
	{
		clients.GET("/debt", s.GetClientDebt)
		clients.GET("/history", s.GetClientHistory)
		clients.GET("/forecast", s.GetClientForecast)
		clients.GET("/invoice-lines", s.GetInvoiceLines)
	}

	v1.GET("/devices/:device_id/consumption", s.GetDeviceConsumption)

	fleet := v1.Group("/fleet")
	{
		fleet.GET("/consumption", s.GetFleetConsumption)
		fleet.GET("/usage", s.GetFleetUsage)
	}

	v1.GET("/periods", s.ListPeriods)
}
