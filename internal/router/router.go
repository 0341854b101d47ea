package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	appointmenthandler "github.com/jwalitptl/telehealth-api/internal/handler/appointment"
	schedulehandler "github.com/jwalitptl/telehealth-api/internal/handler/schedule"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
)

type Router struct {
	engine       *gin.Engine
	authMW       *middleware.AuthMiddleware
	scheduleH    *schedulehandler.Handler
	appointmentH *appointmenthandler.Handler
	h            *handler.Handler
	metrics      *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

type Config struct {
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
	MetricsPrefix  string
}

func NewRouter(
	authMW *middleware.AuthMiddleware,
	scheduleH *schedulehandler.Handler,
	appointmentH *appointmenthandler.Handler,
	h *handler.Handler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	r := &Router{
		engine:       engine,
		authMW:       authMW,
		scheduleH:    scheduleH,
		appointmentH: appointmentH,
		h:            h,
		metrics:      initRouterMetrics(config.MetricsPrefix),
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)
	engine.Use(middleware.CORS(config.CORSConfig))

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.setupHealthCheck(api)

	protected := api.Group("")
	protected.Use(r.authMW.Authenticate())
	r.setupScheduleRoutes(protected)
	r.setupAppointmentRoutes(protected)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	health := rg.Group("/health")
	{
		health.GET("/live", r.h.LivenessCheck)
		health.GET("/ready", r.h.ReadinessCheck)
		health.GET("/metrics", r.h.MetricsHandler)
	}
}

func (r *Router) setupScheduleRoutes(rg *gin.RouterGroup) {
	rg.GET("/schedule/block-time-reasons", r.scheduleH.BlockTimeReasons)

	doctors := rg.Group("/doctors/:id")
	{
		// Reads are open to any authenticated caller; writes are gated to
		// doctors here and to the owning doctor in the service.
		doctors.GET("/schedule/template", r.scheduleH.GetTemplate)
		doctors.GET("/schedule/overrides", r.scheduleH.ListOverrides)
		doctors.GET("/schedule/days/:date", r.scheduleH.DayView)
		doctors.GET("/slots", r.scheduleH.AvailableSlots)

		writes := doctors.Group("")
		writes.Use(r.authMW.RequireRole(auth.RoleDoctor))
		{
			writes.PUT("/schedule/template", r.scheduleH.SetTemplate)
			writes.DELETE("/schedule/template", r.scheduleH.DeleteTemplate)
			writes.PUT("/schedule/overrides", r.scheduleH.SetOverride)
			writes.DELETE("/schedule/overrides/:date", r.scheduleH.DeleteOverride)
			writes.POST("/schedule/block-times", r.scheduleH.AddBlockTime)
			writes.POST("/schedule/regenerate", r.scheduleH.Regenerate)
		}
	}
}

func (r *Router) setupAppointmentRoutes(rg *gin.RouterGroup) {
	appointments := rg.Group("/appointments")
	{
		appointments.POST("", r.appointmentH.Create)
		appointments.GET("", r.appointmentH.List)
		appointments.GET("/upcoming", r.appointmentH.ListUpcoming)
		appointments.GET("/:id", r.appointmentH.Get)
		appointments.POST("/:id/cancel", r.appointmentH.Cancel)
		appointments.POST("/:id/reschedule", r.appointmentH.Reschedule)
		appointments.PATCH("/:id/status", r.appointmentH.UpdateStatus)
	}

	rg.GET("/doctors/:id/appointments/stats",
		r.authMW.RequireRole(auth.RoleDoctor), r.appointmentH.Stats)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := statusLabel(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
