package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stackvps/reseller-platform/provision-service/internal/config"
	"github.com/stackvps/reseller-platform/provision-service/internal/service"
)

// RateLimiter is a simple in-memory sliding-window limiter
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks whether a request for key fits in the window
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware applies a limiter keyed by user id or client IP
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
}

// User API limiter: 30 requests per user per minute
var userRateLimiter = NewRateLimiter(30, time.Minute)

// Batch sweeps hammer the upstream providers; a handful per hour is plenty
// even with retries after partial failures
var batchRateLimiter = NewRateLimiter(10, time.Hour)

func NewServer(cfg *config.Config, provisionService *service.ProvisionService, batchService *service.BatchService) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	handler := NewHandler(provisionService, batchService)

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "provision-service",
		})
	})

	adminAuth := AdminAuthMiddleware(s.cfg.Admin.APIKey)

	// Admin API - called by the admin portal
	admin := s.router.Group("/api/admin")
	admin.Use(adminAuth)
	{
		admin.GET("/orders", s.handler.ListOrders)
		admin.GET("/orders/:id/logs", s.handler.GetOrderLogs)
		admin.POST("/batch-provision", RateLimitMiddleware(batchRateLimiter), s.handler.BatchProvision)
	}

	// Order actions - same admin credential, portal-compatible paths
	orders := s.router.Group("/api/orders")
	orders.Use(adminAuth)
	{
		orders.POST("/provision", s.handler.ProvisionOrder)
		orders.POST("/update", s.handler.UpdateOrder)
	}

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter))
	{
		user.GET("/my/orders", s.handler.GetMyOrders)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Router exposes the underlying engine, used by handler tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
