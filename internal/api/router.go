// Package api wires together all HTTP routes for the gatepass server.
//
// Route grouping philosophy:
//   - Validation routes (/v1/validate/...) are consumed by access-point
//     devices on the hot path. They carry the validation rate limiter and no
//     session auth; the credential being validated is itself the secret.
//   - Passcode info (/v1/passcodes/:code/info) serves display clients that
//     hold the code and need the currently valid QR payload and rolling code.
//   - Management routes (/api/v1/...) cover issuance, revocation, the audit
//     trail, and device status, and carry the stricter issue rate limiter
//     where they mint credentials.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/gatepass/gatepass/internal/api/access"
	"github.com/gatepass/gatepass/internal/api/devices"
	"github.com/gatepass/gatepass/internal/api/passcodes"
	"github.com/gatepass/gatepass/internal/api/records"
	"github.com/gatepass/gatepass/internal/codes"
	"github.com/gatepass/gatepass/internal/config"
	"github.com/gatepass/gatepass/internal/db/repositories"
	"github.com/gatepass/gatepass/internal/jobs"
	"github.com/gatepass/gatepass/internal/middleware"
	"github.com/gatepass/gatepass/internal/safego"
	"github.com/gatepass/gatepass/internal/services"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	expirySweeper *jobs.ExpirySweeper
	rateLimiters  []*middleware.RateLimiter
	redisClient   *redis.Client
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.expirySweeper != nil {
		bg.expirySweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// Initialize repositories
	passcodeRepo := repositories.NewPasscodeRepository(db)
	accessRecordRepo := repositories.NewAccessRecordRepository(db)

	// Wrap *sql.DB with sqlx for the directory repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	userRepo := repositories.NewUserRepository(sqlxDB)
	applicationRepo := repositories.NewVisitorApplicationRepository(sqlxDB)

	// Initialize the credential generator
	generator, err := codes.NewGenerator(
		cfg.Passcode.QRSigningKey,
		cfg.Passcode.CodeBytes,
		cfg.Passcode.RollingStep,
		cfg.Passcode.RollingDigits,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize credential generator: %w", err)
	}

	// Initialize services
	recorder := services.NewAccessRecorder(accessRecordRepo)
	engine := services.NewEngine(passcodeRepo, userRepo, generator, recorder, cfg.Passcode.RecordUnmatched)
	passcodeService := services.NewPasscodeService(
		passcodeRepo, userRepo, applicationRepo, generator,
		cfg.Passcode.DefaultValidity, cfg.Passcode.DefaultUsageLimit,
	)
	deviceStatusService := services.NewDeviceStatusService(accessRecordRepo, cfg.Devices.OnlineThreshold)

	// Start the expiry sweep job
	expirySweeper := jobs.NewExpirySweeper(passcodeRepo, cfg.Passcode.ExpirySweepInterval)
	safego.Go(func() { expirySweeper.Start(context.Background()) })

	bg := &BackgroundServices{expirySweeper: expirySweeper}

	// Rate limiting: shared Redis counters when Redis is configured, otherwise
	// per-process token buckets
	var validateLimit, issueLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		validateCfg := middleware.ValidationRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			validateCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			validateCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}

		if cfg.Redis.Enabled {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			bg.redisClient = client
			validateLimit = middleware.RedisRateLimitMiddleware(middleware.NewRedisRateLimiter(client, validateCfg))
			issueLimit = middleware.RedisRateLimitMiddleware(middleware.NewRedisRateLimiter(client, middleware.IssueRateLimitConfig()))
			slog.Info("rate limiting enabled", "backend", "redis", "addr", cfg.Redis.Addr)
		} else {
			validateLimiter := middleware.NewRateLimiter(validateCfg)
			issueLimiter := middleware.NewRateLimiter(middleware.IssueRateLimitConfig())
			bg.rateLimiters = []*middleware.RateLimiter{validateLimiter, issueLimiter}
			validateLimit = middleware.RateLimitMiddleware(validateLimiter)
			issueLimit = middleware.RateLimitMiddleware(issueLimiter)
			slog.Info("rate limiting enabled", "backend", "memory")
		}
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Validation endpoints - the device-facing hot path
	v1 := router.Group("/v1")
	if validateLimit != nil {
		v1.Use(validateLimit)
	}
	{
		v1.POST("/validate", access.ValidateHandler(engine))
		v1.POST("/validate/qr", access.ValidateQRHandler(engine))
		v1.POST("/validate/rolling", access.ValidateRollingHandler(engine))

		// Display clients fetch the currently valid derived credentials here
		v1.GET("/passcodes/:code/info", passcodes.InfoHandler(passcodeService))
	}

	// Management endpoints
	apiV1 := router.Group("/api/v1")
	{
		if issueLimit != nil {
			apiV1.POST("/passcodes", issueLimit, passcodes.IssueHandler(passcodeService))
			apiV1.POST("/users/:user_id/passcode/refresh", issueLimit, passcodes.RefreshHandler(passcodeService))
		} else {
			apiV1.POST("/passcodes", passcodes.IssueHandler(passcodeService))
			apiV1.POST("/users/:user_id/passcode/refresh", passcodes.RefreshHandler(passcodeService))
		}
		apiV1.DELETE("/passcodes/:id", passcodes.RevokeHandler(passcodeService))

		apiV1.GET("/access-records", records.ListHandler(recorder))
		apiV1.GET("/access-records/stats", records.StatsHandler(recorder))

		apiV1.GET("/devices/:device_id/status", devices.StatusHandler(deviceStatusService))
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready": false,
				"error": "database not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready": true,
			"time":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request in the gin-style single-line text format.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	if query != "" {
		path = path + "?" + query
	}
	slog.Info(fmt.Sprintf("%3d | %13v | %15s | %-7s %s",
		c.Writer.Status(),
		latency,
		c.ClientIP(),
		c.Request.Method,
		path,
	))
}
