package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stake-plus/postoracle/src/logging"
	"github.com/stake-plus/postoracle/src/observers"
)

type Options struct {
	Pipeline        Pipeline
	JWTSecret       string
	CORSOrigins     []string
	SubmitPerMinute int
	IPFSGateway     string
	Metrics         *observers.Metrics
	Logger          *log.Logger
}

// NewRouter builds the gin engine. The returned limiter must be stopped by the caller.
func NewRouter(opts Options) (*gin.Engine, *RateLimiter) {
	logger := logging.OrDiscard(opts.Logger)

	r := gin.New()
	r.Use(gin.Recovery(), requestLog(logger))
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	rate := opts.SubmitPerMinute
	if rate <= 0 {
		rate = 10
	}
	limiter := NewRateLimiter(rate, time.Minute)
	posts := NewPosts(opts.Pipeline, opts.IPFSGateway)

	v1 := r.Group("/v1")
	if opts.JWTSecret != "" {
		v1.Use(JWTMiddleware([]byte(opts.JWTSecret)))
	} else {
		logger.Printf("JWT_SECRET not set, /v1 is unauthenticated")
	}
	{
		v1.POST("/posts", RateLimitMiddleware(limiter), posts.Create)
		v1.GET("/posts/:id", posts.Get)
		v1.GET("/posts/:id/session", posts.Session)
		v1.POST("/posts/:id/watch", posts.Watch)
		v1.DELETE("/posts/:id/session", posts.Cancel)
	}
	return r, limiter
}

func requestLog(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Printf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func instrument(m *observers.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
