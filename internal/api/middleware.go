package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/audiofetch/audiofetch/internal/metrics"
	"github.com/audiofetch/audiofetch/internal/ratelimit"
	"github.com/audiofetch/audiofetch/pkg/types"
)

const requestIDKey = "request_id"

// RequestID assigns each request a unique id, echoed in the response and
// attached to request logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger logs each request with method, path, status and latency
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).Round(time.Microsecond).String(),
			"client_ip":  c.ClientIP(),
			requestIDKey: c.GetString(requestIDKey),
		}).Info("Request handled")
	}
}

// CORS allows browser clients from any origin to reach the API
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit denies submissions from clients that exceeded the admission
// window ceiling.
func RateLimit(limiter *ratelimit.Limiter, mets *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			if mets != nil {
				mets.RateLimited.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.ErrorResponse{
				Success: false,
				Message: fmt.Sprintf("Rate limit exceeded. Max %d downloads per minute.", limiter.Ceiling()),
			})
			return
		}
		c.Next()
	}
}
