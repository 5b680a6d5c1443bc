package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vendordesk/internal/handler"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Handlers struct {
	Emails   *handler.EmailHandler
	Threads  *handler.ThreadHandler
	Sessions *handler.SessionHandler
	Vendors  *handler.VendorHandler
	Stats    *handler.StatsHandler
	// Admin is optional.
	Admin *handler.AdminHandler
}

type Options struct {
	CORSOrigins []string
	ReadyChecks map[string]ReadyCheck
}

func NewRouter(h Handlers, opts Options, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		TraceMiddleware(),
		RequestLogMiddleware(logger),
		MetricsMiddleware(),
		CORSMiddleware(opts.CORSOrigins),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range opts.ReadyChecks {
			if err := check(ctx); err != nil {
				logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "vendordesk"})
		})

		api.GET("/emails", h.Emails.ListEmails)
		api.GET("/emails/:id", h.Emails.GetEmail)
		api.POST("/emails/:id/reply", h.Emails.ReplyToEmail)

		api.GET("/threads", h.Threads.ListThreads)
		api.GET("/threads/:threadId", h.Threads.GetThread)
		api.POST("/threads/:threadId/reply", h.Threads.ReplyToThread)

		api.GET("/sessions", h.Sessions.ListSessions)
		api.GET("/sessions/counts", h.Sessions.Counts)
		api.GET("/sessions/:id", h.Sessions.GetSession)
		api.POST("/sessions/:id/assign", h.Sessions.AssignVendor)
		api.PATCH("/sessions/:id/status", h.Sessions.UpdateStatus)

		api.GET("/shipments", h.Sessions.ListSessions)
		api.GET("/shipments/:id", h.Sessions.GetSession)
		api.GET("/shipments/complete/list", h.Sessions.CompleteShipments())
		api.GET("/shipments/incomplete/list", h.Sessions.IncompleteShipments())

		api.GET("/vendors", h.Vendors.ListVendors)
		api.GET("/vendors/search", h.Vendors.SearchVendors)
		api.GET("/vendors/stats", h.Vendors.VendorStats)
		api.POST("/vendors", h.Vendors.CreateVendor)
		api.GET("/vendors/:id", h.Vendors.GetVendor)
		api.PUT("/vendors/:id", h.Vendors.UpdateVendor)
		api.DELETE("/vendors/:id", h.Vendors.DeleteVendor)

		api.GET("/stats", h.Stats.Summary)
		api.GET("/dashboard/stats", h.Stats.Dashboard)

		if h.Admin != nil {
			admin := api.Group("/admin")
			admin.POST("/outbox/replay", h.Admin.ReplayEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailed)
		}
	}

	return r
}
