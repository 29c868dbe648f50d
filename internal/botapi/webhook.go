package botapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler accepts update deliveries. Requests without the expected
// secret are rejected with 401 when secret is set. The handler blocks until
// the update is taken from out, so a slow consumer applies backpressure to
// the API server.
func WebhookHandler(secret string, out chan<- Update) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), []byte(secret)) != 1 {
			log.Warn().
				Str("component", "botapi").
				Str("operation", "webhook").
				Str("remote_ip", c.ClientIP()).
				Msg("rejected webhook request with bad secret")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		var u Update
		if err := c.ShouldBindJSON(&u); err != nil {
			log.Warn().
				Str("component", "botapi").
				Str("operation", "webhook").
				Err(err).
				Msg("invalid update body")
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		select {
		case out <- u:
			c.Status(http.StatusOK)
		case <-c.Request.Context().Done():
			c.AbortWithStatus(http.StatusServiceUnavailable)
		}
	}
}

// NewOpsRouter builds an HTTP server exposing /healthz and /metrics, with
// tracing and access logging on every route.
func NewOpsRouter(serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(otelgin.Middleware(serviceName))
	r.Use(accessLog())
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// NewWebhookRouter adds the update endpoint at path to an ops router.
func NewWebhookRouter(serviceName, path, secret string, out chan<- Update) *gin.Engine {
	r := NewOpsRouter(serviceName)
	r.POST(path, WebhookHandler(secret, out))
	return r
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		ev.Str("component", "botapi").
			Str("operation", "http").
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request completed")
	}
}
