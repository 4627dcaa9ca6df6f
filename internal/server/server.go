// Package server exposes the checkout engine over HTTP. It owns the mapping
// from the error taxonomy to status codes; everything stateful lives in the
// store layer.
package server

import (
	"database/sql"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/glowmart/checkout/internal/metrics"
	"github.com/glowmart/checkout/internal/store"
)

type Server struct {
	echo        *echo.Echo
	db          *sql.DB
	coordinator *store.Coordinator
	metrics     *metrics.CheckoutMetrics
	log         *slog.Logger
}

func NewServer(db *sql.DB, coordinator *store.Coordinator, m *metrics.CheckoutMetrics, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:        e,
		db:          db,
		coordinator: coordinator,
		metrics:     m,
		log:         log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	s.echo.POST("/checkout/process", s.processCheckout)
	s.echo.POST("/checkout/summary", s.checkoutSummary)

	s.echo.GET("/payment-methods", s.listPaymentMethods)

	s.echo.POST("/products", s.createProduct)
	s.echo.GET("/products", s.listProducts)
	s.echo.GET("/products/:id", s.getProduct)
	s.echo.POST("/products/:id/restock", s.restockProduct)

	s.echo.POST("/cart/:customerID/lines", s.addCartLine)
	s.echo.GET("/cart/:customerID", s.getCart)
	s.echo.DELETE("/cart/:customerID/lines/:productID", s.removeCartLine)

	s.echo.GET("/orders", s.listOrders)
	s.echo.GET("/orders/:id/invoice", s.orderInvoice)
	s.echo.GET("/orders/:id/tracking", s.orderTracking)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
