// Package api exposes the inbound HTTP listener for trading alerts.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/geoffp/tradeproxy/internal/config"
	"github.com/geoffp/tradeproxy/internal/trade"
)

// UnknownRemote is logged when the fronting proxy sent no X-Real-IP.
const UnknownRemote = "[Remote address unknown]"

const remoteKey = "remote_addr"

// SignalHandler accepts a validated signal and returns its ID.
type SignalHandler interface {
	Handle(sig trade.IncomingSignal) string
}

// SignalObserver is told about every accepted signal.
type SignalObserver interface {
	ObserveSignal(action string)
}

type handler struct {
	settings *config.Store
	relay    SignalHandler
	observer SignalObserver
	logger   *zap.Logger
}

// NewRouter builds the gin engine serving POST /trade. observer may be nil.
func NewRouter(settings *config.Store, relay SignalHandler, observer SignalObserver, logger *zap.Logger) *gin.Engine {
	h := &handler{
		settings: settings,
		relay:    relay,
		observer: observer,
		logger:   logger,
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), h.requestLogger(), h.sourceFilter())

	router.NoMethod(reject(http.StatusBadRequest, "method not allowed"))
	router.NoRoute(reject(http.StatusBadRequest, "unknown route"))

	router.POST("/trade", h.trade)

	return router
}

func (h *handler) trade(c *gin.Context) {
	var sig trade.IncomingSignal
	if err := c.ShouldBindJSON(&sig); err != nil {
		h.logger.Info("signal rejected",
			zap.String(remoteKey, c.GetString(remoteKey)),
			zap.Error(err),
		)
		c.String(http.StatusBadRequest, "Rejected: %s", err)
		return
	}
	if err := sig.Validate(); err != nil {
		c.String(http.StatusBadRequest, "Rejected: %s", err)
		return
	}

	if h.observer != nil {
		h.observer.ObserveSignal(sig.Action.String())
	}
	id := h.relay.Handle(sig)
	c.Header("X-Signal-ID", id)
	c.String(http.StatusOK, "Success!")
}

// sourceFilter resolves the client address from X-Real-IP, notes alerts
// from TradingView and, when enforced, refuses everyone else.
func (h *handler) sourceFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		remote := c.GetHeader("X-Real-IP")
		if remote == "" {
			remote = UnknownRemote
		}
		c.Set(remoteKey, remote)

		settings, err := h.settings.Snapshot()
		if err != nil {
			h.logger.Error("settings unavailable", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		if settings.IsTradingViewIP(remote) {
			h.logger.Info("request from TradingView", zap.String(remoteKey, remote))
		} else if settings.EnforceAllowList {
			h.logger.Warn("request from unknown source refused", zap.String(remoteKey, remote))
			c.String(http.StatusForbidden, "Rejected: unknown source %s", remote)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String(remoteKey, c.GetString(remoteKey)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			h.logger.Error("request", fields...)
		} else {
			h.logger.Debug("request", fields...)
		}
	}
}

func reject(status int, reason string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(status, "Rejected: %s", reason)
	}
}
