package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ticket-queue/config"
	"ticket-queue/infra"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Server struct {
	server  *http.Server
	metrics *http.Server

	logger *zap.SugaredLogger
}

func ProvideServer(cfg *config.Config, queue *QueueHandler, room *RoomHandler, seat *SeatHandler, loggerFactory *infra.LoggerFactory) *Server {
	logger := loggerFactory.Create("Server").Sugar()

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%v", cfg.ServerPort),
			Handler:      NewRouter(queue, room, seat, logger),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		metrics: &http.Server{
			Addr:    fmt.Sprintf(":%v", cfg.MetricsPort),
			Handler: promhttp.Handler(),
		},
		logger: logger,
	}
}

func NewRouter(queue *QueueHandler, room *RoomHandler, seat *SeatHandler, logger *zap.SugaredLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogRequestID: true,
		LogStatus:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debugf("%v %v id[%v] status[%v] latency[%vms]", v.Method, v.URI, v.RequestID, v.Status, v.Latency.Milliseconds())
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.PUT("/debug", func(c echo.Context) error {
		infra.LoggerLevel.SetLevel(zapcore.DebugLevel)
		logger.Info("debug logging enabled")
		return c.NoContent(http.StatusOK)
	})

	e.DELETE("/debug", func(c echo.Context) error {
		infra.LoggerLevel.SetLevel(zapcore.InfoLevel)
		logger.Info("debug logging disabled")
		return c.NoContent(http.StatusOK)
	})

	rooms := e.Group("/rooms/:roomId")
	rooms.POST("", room.Create)
	rooms.GET("", room.Get)
	rooms.POST("/open", room.Open)
	rooms.POST("/start", room.Start)
	rooms.PUT("/capacity", room.SetCapacity)
	rooms.PUT("/settings", room.UpdateSettings)
	rooms.PUT("/host", room.ChangeHost)
	rooms.PUT("/matches/:matchId/settings", room.ChangeMatchSetting)
	rooms.POST("/matches/:matchId/end", room.EndMatch)

	rooms.POST("/queue", queue.Enqueue)
	rooms.DELETE("/queue", queue.Leave)
	rooms.GET("/queue/position", queue.Position)

	seats := e.Group("/matches/:matchId/seats/:section/:row")
	seats.GET("", seat.Status)
	seats.DELETE("", seat.Release)
	seats.GET("/owner", seat.Owner)
	seats.POST("/hold", seat.Hold)
	seats.POST("/confirm", seat.Confirm)

	return e
}

// Run serves the API and the metrics endpoint until Shutdown.
func (s *Server) Run() error {
	go func() {
		s.logger.Infof("metrics server listening addr[%v]", s.metrics.Addr)
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("metrics server failed %v", err)
		}
	}()

	s.logger.Infof("server starts listening addr[%v]", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	_ = s.metrics.Shutdown(ctx)
	return s.server.Shutdown(ctx)
}
