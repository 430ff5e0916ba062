package server

import (
	"context"
	"net/http"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/config"
	"storefront-payments/internal/handler"
	appmw "storefront-payments/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Handlers struct {
	Paypal  *handler.PaypalHandler
	Bitcoin *handler.BitcoinHandler
	Monero  *handler.MoneroHandler
	Order   *handler.OrderHandler
}

type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	logger   *zap.Logger
	handlers Handlers
}

func NewServer(cfg *config.Config, logger *zap.Logger, handlers Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:     e,
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := appmw.AuthMiddleware(s.cfg.Auth.JWTSecret)
	webhook := []echo.MiddlewareFunc{middleware.BodyLimit("1M"), s.webhookLimiter()}

	orders := s.echo.Group("/orders", auth)
	orders.POST("", s.handlers.Order.Create)
	orders.GET("", s.handlers.Order.List)
	orders.GET("/:orderId", s.handlers.Order.Get)

	pay := s.echo.Group("/payment")

	// -------- paypal --------
	paypal := pay.Group("/paypal")
	paypal.POST("/create-order", s.handlers.Paypal.CreateOrder, auth)
	paypal.POST("/capture", s.handlers.Paypal.CaptureOrder, auth)
	paypal.POST("/webhook", s.handlers.Paypal.PayPalWebhook, webhook...)

	// -------- bitcoin --------
	bitcoin := pay.Group("/bitcoin")
	bitcoin.POST("/initialize", s.handlers.Bitcoin.Initialize, auth)
	bitcoin.GET("/status/:orderId", s.handlers.Bitcoin.Status, auth)
	bitcoin.POST("/webhook", s.handlers.Bitcoin.Webhook, webhook...)

	// -------- monero --------
	monero := pay.Group("/monero")
	monero.POST("/create", s.handlers.Monero.Create, auth)
	monero.GET("/status/:orderId", s.handlers.Monero.Status, auth)
	monero.POST("/webhook", s.handlers.Monero.Webhook, webhook...)
}

// webhookLimiter throttles callbacks per source IP. Idle visitors are evicted
// after the configured TTL.
func (s *Server) webhookLimiter() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.Webhook.RateLimit),
		Burst:     s.cfg.Webhook.Burst,
		ExpiresIn: s.cfg.Webhook.ExpiresIn,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.logger.Warn("webhook rate limited", zap.String("remote_ip", identifier), zap.String("path", c.Path()))
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			if userID := appmw.UserID(c); userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}

			switch {
			case v.Status >= http.StatusInternalServerError:
				logger.Error("request processed", fields...)
			case v.Status >= http.StatusBadRequest:
				logger.Warn("request processed", fields...)
			default:
				logger.Info("request processed", fields...)
			}
			return nil
		},
	})
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
