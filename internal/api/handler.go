package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/util"
	"booking-service/internal/vectorindex"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type BookingService interface {
	Create(ctx context.Context, req *service.CreateBookingRequest) (*service.CreateBookingResponse, error)
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	ListActive(ctx context.Context) ([]models.Booking, error)
	Update(ctx context.Context, id int64, req *service.UpdateBookingRequest) (*models.Booking, error)
	Cancel(ctx context.Context, id int64) (*models.Booking, error)
	Delete(ctx context.Context, id int64) error
}

type WebhookService interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (*service.WebhookResult, error)
}

type SearchService interface {
	Search(ctx context.Context, query string, topK int) ([]vectorindex.Hit, error)
}

type CatalogService interface {
	Save(ctx context.Context, entity models.CatalogEntity) error
	Delete(ctx context.Context, t models.EntityType, id int64) error
}

type ReindexService interface {
	SyncAll(ctx context.Context, collection string) (*service.SyncReport, error)
}

// ReadinessCheck is one dependency checked by /ready
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services bundles everything the HTTP layer calls into
type Services struct {
	Bookings   BookingService
	Webhooks   WebhookService
	Search     SearchService
	Catalog    CatalogService
	Reindex    ReindexService
	Collection string
	Readiness  []ReadinessCheck
}

// Handler contains HTTP handlers
type Handler struct {
	svc         Services
	allowOrigin string
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. allowOrigin is the client app
// allowed by CORS.
func NewHandler(svc Services, allowOrigin string) *Handler {
	return &Handler{
		svc:         svc,
		allowOrigin: allowOrigin,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{h.allowOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/bookings", h.createBooking)
		v1.GET("/bookings", h.listBookings)
		v1.POST("/bookings/webhook", h.stripeWebhook)
		v1.GET("/bookings/:id", h.getBooking)
		v1.PUT("/bookings/:id", h.updateBooking)
		v1.DELETE("/bookings/:id", h.deleteBooking)
		v1.POST("/bookings/:id/cancel", h.cancelBooking)

		v1.GET("/search", h.search)

		v1.PUT("/catalog/:type", h.saveCatalogEntity)
		v1.DELETE("/catalog/:type/:id", h.deleteCatalogEntity)

		v1.POST("/admin/vector-sync", h.vectorSync)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, rc := range h.svc.Readiness {
		if err := rc.Check(ctx); err != nil {
			failed[rc.Name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"checks": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createBookingBody accepts dates as YYYY-MM-DD or RFC 3339
type createBookingBody struct {
	UserID      string          `json:"userId"`
	EntityID    int64           `json:"entityId"`
	BookingType string          `json:"bookingType"`
	StartDate   string          `json:"startDate"`
	EndDate     *string         `json:"endDate"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

type updateBookingBody struct {
	StartDate  string          `json:"startDate"`
	EndDate    *string         `json:"endDate"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// createBooking persists a pending booking and returns the checkout URL
func (h *Handler) createBooking(c *gin.Context) {
	var body createBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	start, end, err := parseSchedule(body.StartDate, body.EndDate)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp, err := h.svc.Bookings.Create(c.Request.Context(), &service.CreateBookingRequest{
		UserID:      body.UserID,
		EntityID:    body.EntityID,
		BookingType: body.BookingType,
		StartDate:   start,
		EndDate:     end,
		TotalPrice:  body.TotalPrice,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// listBookings returns active bookings
func (h *Handler) listBookings(c *gin.Context) {
	bookings, err := h.svc.Bookings.ListActive(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// getBooking handles get booking by ID
func (h *Handler) getBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	booking, err := h.svc.Bookings.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) updateBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var body updateBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	start, end, err := parseSchedule(body.StartDate, body.EndDate)
	if err != nil {
		h.writeError(c, err)
		return
	}

	booking, err := h.svc.Bookings.Update(c.Request.Context(), id, &service.UpdateBookingRequest{
		StartDate:  start,
		EndDate:    end,
		TotalPrice: body.TotalPrice,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) cancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	booking, err := h.svc.Bookings.Cancel(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *Handler) deleteBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	if err := h.svc.Bookings.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func bookingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid booking ID",
		})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
