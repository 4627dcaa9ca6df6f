package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glowmart/checkout/internal/database"
	"github.com/glowmart/checkout/internal/models"
	"github.com/glowmart/checkout/internal/payment"
	"github.com/glowmart/checkout/internal/store"
)

const idempotencyHeader = "Idempotency-Key"

type checkoutBody struct {
	Customer struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	Delivery struct {
		Address        string `json:"address"`
		Notes          string `json:"notes"`
		TimePreference string `json:"time_preference"`
	} `json:"delivery"`
	Payment struct {
		Method      models.PaymentType `json:"method"`
		CardNumber  string             `json:"card_number"`
		CardHolder  string             `json:"card_holder"`
		ExpiryMonth int                `json:"expiry_month"`
		ExpiryYear  int                `json:"expiry_year"`
		CVV         string             `json:"cvv"`
	} `json:"payment"`
	CartLines []struct {
		ProductID   int64  `json:"product_id"`
		ProductName string `json:"product_name"`
		Quantity    int    `json:"quantity"`
		PriceCents  int64  `json:"price_cents"`
		DiscountPct int    `json:"discount_pct"`
	} `json:"cart_lines"`
	OTP struct {
		Verified  bool   `json:"verified"`
		SessionID string `json:"session_id"`
	} `json:"otp"`
}

func (b *checkoutBody) toRequest() *store.CheckoutRequest {
	req := &store.CheckoutRequest{
		CustomerID:       b.Customer.ID,
		CustomerName:     b.Customer.Name,
		CustomerEmail:    b.Customer.Email,
		CustomerPhone:    b.Customer.Phone,
		DeliveryAddress:  b.Delivery.Address,
		DeliveryNotes:    b.Delivery.Notes,
		DeliveryTimePref: b.Delivery.TimePreference,
		Payment: models.PaymentDetails{
			Method:      models.PaymentMethod{Type: b.Payment.Method},
			CardNumber:  b.Payment.CardNumber,
			CardHolder:  b.Payment.CardHolder,
			ExpiryMonth: b.Payment.ExpiryMonth,
			ExpiryYear:  b.Payment.ExpiryYear,
			CVV:         b.Payment.CVV,
		},
		OTPVerified:  b.OTP.Verified,
		OTPSessionID: b.OTP.SessionID,
	}
	for _, line := range b.CartLines {
		req.Lines = append(req.Lines, models.CartLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			PriceCents:  line.PriceCents,
			DiscountPct: line.DiscountPct,
		})
	}
	return req
}

func (s *Server) processCheckout(c echo.Context) error {
	started := time.Now()

	var body checkoutBody
	if err := c.Bind(&body); err != nil {
		s.metrics.Observe("validation_error", msSince(started))
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	req := body.toRequest()
	req.IdempotencyKey = c.Request().Header.Get(idempotencyHeader)

	// The request body may omit cart lines; the server-side cart is the
	// snapshot provider then.
	if len(req.Lines) == 0 && req.CustomerID > 0 {
		lines, err := store.GetCartLines(c.Request().Context(), s.db, req.CustomerID)
		if err != nil {
			s.metrics.Observe("internal_error", msSince(started))
			return c.JSON(http.StatusInternalServerError, errorBody("checkout failed"))
		}
		req.Lines = lines
	}

	conf, err := s.coordinator.Process(c.Request().Context(), req)
	if err != nil {
		status, outcome, message := mapCheckoutError(err)
		s.metrics.Observe(outcome, msSince(started))
		if status == http.StatusInternalServerError {
			s.log.Error("checkout failed", "customer_id", req.CustomerID, "error", err)
		}
		return c.JSON(status, errorBody(message))
	}

	s.metrics.Observe("committed", msSince(started))
	return c.JSON(http.StatusOK, conf)
}

// mapCheckoutError folds the error taxonomy onto status codes and metric
// outcomes. Internal detail never leaks on the 500 path.
func mapCheckoutError(err error) (status int, outcome, message string) {
	var validationErr *store.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "validation_error", validationErr.Error()
	}

	var stockErr *database.InsufficientStockError
	if errors.As(err, &stockErr) {
		return http.StatusBadRequest, "insufficient_stock", stockErr.Error()
	}

	switch {
	case errors.Is(err, database.ErrProductNotFound):
		return http.StatusBadRequest, "validation_error", "a cart product no longer exists"
	case errors.Is(err, payment.ErrDeclined):
		return http.StatusBadRequest, "payment_declined", payment.ErrDeclined.Error()
	case errors.Is(err, payment.ErrNetwork):
		return http.StatusBadRequest, "payment_network_error", payment.ErrNetwork.Error()
	}

	return http.StatusInternalServerError, "internal_error", "checkout failed"
}

func (s *Server) checkoutSummary(c echo.Context) error {
	var body checkoutBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	req := body.toRequest()
	if len(req.Lines) == 0 && req.CustomerID > 0 {
		lines, err := store.GetCartLines(c.Request().Context(), s.db, req.CustomerID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorBody("summary failed"))
		}
		req.Lines = lines
	}

	return c.JSON(http.StatusOK, s.coordinator.Summary(req))
}

func (s *Server) listPaymentMethods(c echo.Context) error {
	enabled := make([]models.PaymentMethod, 0, len(models.PaymentMethods))
	for _, m := range models.PaymentMethods {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	return c.JSON(http.StatusOK, enabled)
}

func (s *Server) createProduct(c echo.Context) error {
	var body struct {
		SalonID     int64  `json:"salon_id"`
		Name        string `json:"name"`
		PriceCents  int64  `json:"price_cents"`
		DiscountPct int    `json:"discount_pct"`
		Stock       int    `json:"stock"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if body.Name == "" || body.PriceCents <= 0 || body.Stock < 0 {
		return c.JSON(http.StatusBadRequest, errorBody("name, positive price and non-negative stock required"))
	}
	if body.DiscountPct < 0 || body.DiscountPct > 100 {
		return c.JSON(http.StatusBadRequest, errorBody("discount must be between 0 and 100"))
	}

	product, err := store.CreateProduct(c.Request().Context(), s.db, body.SalonID, body.Name, body.PriceCents, body.DiscountPct, body.Stock)
	if err != nil {
		s.log.Error("create product failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("create product failed"))
	}
	return c.JSON(http.StatusCreated, product)
}

func (s *Server) listProducts(c echo.Context) error {
	page, pageSize := paging(c)
	result, err := store.ListProducts(c.Request().Context(), s.db, page, pageSize)
	if err != nil {
		s.log.Error("list products failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("list products failed"))
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getProduct(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid product id"))
	}

	product, err := store.GetProduct(c.Request().Context(), s.db, id)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("product not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("get product failed"))
	}
	return c.JSON(http.StatusOK, product)
}

func (s *Server) restockProduct(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid product id"))
	}

	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil || body.Quantity <= 0 {
		return c.JSON(http.StatusBadRequest, errorBody("positive quantity required"))
	}

	product, err := store.RestockProduct(c.Request().Context(), s.db, id, body.Quantity)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("product not found"))
		}
		s.log.Error("restock failed", "product_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("restock failed"))
	}
	return c.JSON(http.StatusOK, product)
}

func (s *Server) addCartLine(c echo.Context) error {
	customerID, err := pathID(c, "customerID")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid customer id"))
	}

	var body struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil || body.ProductID <= 0 || body.Quantity <= 0 {
		return c.JSON(http.StatusBadRequest, errorBody("product_id and positive quantity required"))
	}

	line, err := store.AddCartLine(c.Request().Context(), s.db, customerID, body.ProductID, body.Quantity)
	if err != nil {
		if errors.Is(err, database.ErrProductNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("product not found"))
		}
		s.log.Error("add cart line failed", "customer_id", customerID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("add to cart failed"))
	}
	return c.JSON(http.StatusCreated, line)
}

func (s *Server) getCart(c echo.Context) error {
	customerID, err := pathID(c, "customerID")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid customer id"))
	}

	lines, err := store.GetCartLines(c.Request().Context(), s.db, customerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("get cart failed"))
	}

	summary := s.coordinator.Summary(&store.CheckoutRequest{Lines: lines})
	return c.JSON(http.StatusOK, map[string]any{
		"lines":   lines,
		"summary": summary,
	})
}

func (s *Server) removeCartLine(c echo.Context) error {
	customerID, err := pathID(c, "customerID")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid customer id"))
	}
	productID, err := pathID(c, "productID")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid product id"))
	}

	if err := store.RemoveCartLine(c.Request().Context(), s.db, customerID, productID); err != nil {
		if errors.Is(err, database.ErrCartLineNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("cart line not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("remove cart line failed"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listOrders(c echo.Context) error {
	customerID, err := strconv.ParseInt(c.QueryParam("customer_id"), 10, 64)
	if err != nil || customerID <= 0 {
		return c.JSON(http.StatusBadRequest, errorBody("customer_id query parameter required"))
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	result, err := store.ListOrdersCursor(c.Request().Context(), s.db, customerID, c.QueryParam("cursor"), limit)
	if err != nil {
		s.log.Error("list orders failed", "customer_id", customerID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("list orders failed"))
	}
	return c.JSON(http.StatusOK, result)
}

// orderInvoice reads committed state only; rendering to PDF/HTML happens in
// a separate presentation service.
func (s *Server) orderInvoice(c echo.Context) error {
	order, err := s.loadOrder(c)
	if order == nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"order_number":     order.OrderNumber(),
		"order":            order,
		"payment_status":   invoicePaymentStatus(order),
		"delivery_address": order.DeliveryAddress,
	})
}

func (s *Server) orderTracking(c echo.Context) error {
	order, err := s.loadOrder(c)
	if order == nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"order_number": order.OrderNumber(),
		"tracking_ref": order.TrackingRef,
		"timeline":     store.TrackingTimeline(order, time.Now()),
	})
}

// loadOrder writes the error response itself; a nil order means the response
// has already been sent and the returned error is echo's.
func (s *Server) loadOrder(c echo.Context) (*models.Order, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, c.JSON(http.StatusBadRequest, errorBody("invalid order id"))
	}

	order, err := store.GetOrder(c.Request().Context(), s.db, id)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil, c.JSON(http.StatusNotFound, errorBody("order not found"))
		}
		return nil, c.JSON(http.StatusInternalServerError, errorBody("get order failed"))
	}
	return order, nil
}

func invoicePaymentStatus(order *models.Order) string {
	if order.IsPaid {
		return models.PaymentStatusPaid
	}
	return models.PaymentStatusDueOnDelivery
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func msSince(started time.Time) float64 {
	return float64(time.Since(started)) / float64(time.Millisecond)
}

func paging(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
