package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"swissknife-chat/internal/bootstrap"
)

const healthProbeTimeout = 2 * time.Second

var errBrokerClosed = errors.New("connection closed")

// HealthHandler reports whether the backing stores behind chat and
// retrieval are reachable.
type HealthHandler struct {
	app *bootstrap.App
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

type probeResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func probe(err error) probeResult {
	if err != nil {
		return probeResult{Message: err.Error()}
	}
	return probeResult{OK: true}
}

// Check pings MySQL and Redis and inspects the broker connection. Any
// failed dependency turns the whole response into a 503.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	deps := gin.H{
		"mysql":    probe(h.pingMySQL(ctx)),
		"redis":    probe(h.app.Redis.Ping(ctx).Err()),
		"rabbitmq": probe(h.brokerAlive()),
	}

	status := http.StatusOK
	for _, dep := range deps {
		if !dep.(probeResult).OK {
			status = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(status, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": deps,
	})
}

func (h *HealthHandler) pingMySQL(ctx context.Context) error {
	sqlDB, err := h.app.MySQL.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (h *HealthHandler) brokerAlive() error {
	if h.app.MQConn == nil || h.app.MQConn.IsClosed() {
		return errBrokerClosed
	}
	return nil
}
