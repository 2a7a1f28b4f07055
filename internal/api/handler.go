package api

import (
	"context"
	"net/http"
	"time"

	"charging-service/internal/models"
	"charging-service/internal/service"
	"charging-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TokenResolver maps a bearer token to the user id it was issued for
type TokenResolver interface {
	ResolveUserID(token string) (string, error)
}

// IdempotencyStore keeps the first response written for an Idempotency-Key
type IdempotencyStore interface {
	LoadResponse(ctx context.Context, key string) (int, []byte, bool, error)
	SaveResponse(ctx context.Context, key string, status int, body []byte) error
}

// Options configures the optional parts of the HTTP surface
type Options struct {
	Tokens       TokenResolver
	AuthRequired bool
	Idempotency  IdempotencyStore
	Readiness    func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	booking  *service.BookingService
	accounts *service.AccountService
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(booking *service.BookingService, accounts *service.AccountService, opts Options) *Handler {
	return &Handler{
		booking:  booking,
		accounts: accounts,
		opts:     opts,
		logger:   util.Named("http"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := router.Group("/api")
	{
		public.GET("/stations", h.listStations)
		public.GET("/station/:id", h.getStation)
		public.POST("/register", h.idempotent(), h.register)
		public.POST("/login", h.login)
	}

	user := router.Group("/api", h.authenticate())
	{
		user.POST("/reserve", h.idempotent(), h.reserve)
		user.GET("/user/reservations/:userId", h.listReservations)
		user.GET("/user/profile/:userId", h.getProfile)
		user.PUT("/user/profile/:userId", h.updateProfile)
		user.GET("/user/vehicles/:userId", h.listVehicles)
		user.POST("/user/vehicles/:userId", h.addVehicle)
		user.DELETE("/user/vehicles/:userId/:index", h.deleteVehicle)
		user.POST("/process_payment", h.idempotent(), h.processPayment)
		user.GET("/reservations/:id/estimate", h.estimate)
		user.POST("/reservations/:id/pay", h.idempotent(), h.payEstimated)
		user.POST("/reservations/:id/cancel", h.idempotent(), h.cancel)
		user.GET("/transactions/:id", h.getTransaction)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether the backing stores answer
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.opts.Readiness != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.opts.Readiness(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listStations(c *gin.Context) {
	stations, err := h.booking.ListStations(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if stations == nil {
		stations = []models.Station{}
	}
	c.JSON(http.StatusOK, stations)
}

func (h *Handler) getStation(c *gin.Context) {
	station, err := h.booking.GetStation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, station)
}

// reserve handles port reservation. Unknown and exhausted stations are
// reported as 400.
func (h *Handler) reserve(c *gin.Context) {
	var req service.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing userId or stationId", err)
		return
	}

	if !h.authorize(c, req.UserID) {
		return
	}

	reservation, err := h.booking.Reserve(c.Request.Context(), req.UserID, req.StationID)
	if err != nil {
		if isClientError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, service.ReserveResponse{ReservationID: reservation.ID})
}

func (h *Handler) listReservations(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorize(c, userID) {
		return
	}

	reservations, err := h.booking.ListReservations(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservations)
}

// processPayment settles a reservation with a caller supplied amount
func (h *Handler) processPayment(c *gin.Context) {
	var req service.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing required payment fields", err)
		return
	}

	if !h.authorize(c, req.UserID) {
		return
	}

	tx, err := h.booking.Pay(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.PaymentResponse{TransactionID: tx.ID})
}

// estimateQuery carries the user id for read-only reservation routes
type estimateQuery struct {
	UserID string `form:"userId" binding:"required"`
}

func (h *Handler) estimate(c *gin.Context) {
	var q estimateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Missing userId", err)
		return
	}

	if !h.authorize(c, q.UserID) {
		return
	}

	estimate, err := h.booking.Estimate(c.Request.Context(), c.Param("id"), q.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

type payEstimatedRequest struct {
	UserID       string `json:"userId" binding:"required"`
	PaymentToken string `json:"paymentToken"`
}

// payEstimated settles a reservation for the estimated session amount
func (h *Handler) payEstimated(c *gin.Context) {
	var req payEstimatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing userId", err)
		return
	}

	if !h.authorize(c, req.UserID) {
		return
	}

	tx, err := h.booking.PayEstimated(c.Request.Context(), c.Param("id"), req.UserID, req.PaymentToken)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.PaymentResponse{TransactionID: tx.ID, Amount: tx.Amount})
}

type cancelRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *Handler) cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing userId", err)
		return
	}

	if !h.authorize(c, req.UserID) {
		return
	}

	reservation, err := h.booking.Cancel(c.Request.Context(), c.Param("id"), req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (h *Handler) getTransaction(c *gin.Context) {
	var q estimateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Missing userId", err)
		return
	}

	if !h.authorize(c, q.UserID) {
		return
	}

	tx, err := h.booking.GetTransaction(c.Request.Context(), c.Param("id"), q.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}
