package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session outcome counters.
var (
	Register = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_register_total",
		Help: "Registration attempts by outcome.",
	}, []string{"outcome"})

	Login = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	Refresh = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_total",
		Help: "Refresh token rotations by outcome.",
	}, []string{"outcome"})

	ReplayDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_replay_detected_total",
		Help: "Refresh tokens presented after they were rotated or revoked.",
	})

	Logout = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_logout_total",
		Help: "Logout calls.",
	})

	TokenRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_access_token_rejected_total",
		Help: "Access tokens rejected by the guard, by reason.",
	}, []string{"reason"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Outcome labels shared by the counters.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeDenied   = "denied"
	OutcomeInactive = "inactive"
	OutcomeExpired  = "expired"
	OutcomeReplay   = "replay"
	OutcomeError    = "error"
)

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Middleware records request latency by route template, so /admin/users/7
// and /admin/users/8 share a series.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			httpDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
