package controller

import (
	"net/http"

	"gochat/platform"

	"github.com/gin-gonic/gin"
)

type HealthController struct{}

// HealthStatus reports reachability of the backend persistence service.
// Informational only; nothing in the message lifecycle consumes it.
type HealthStatus struct {
	OK        bool   `json:"ok"`
	Reachable bool   `json:"reachable"`
	Status    int    `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (h HealthController) Check(c *gin.Context) {
	if platform.DB == nil {
		logger.Warnf("[%s] DB health: not initialized", c.GetString("requestId"))
		c.JSON(http.StatusOK, HealthStatus{Reason: "database not initialized"})
		return
	}

	sqlDB, err := platform.DB.DB()
	if err != nil {
		logger.Warnf("[%s] DB health: %s", c.GetString("requestId"), err)
		c.JSON(http.StatusOK, HealthStatus{Reason: err.Error()})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		logger.Warnf("[%s] DB health: unreachable, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusOK, HealthStatus{Reason: err.Error()})
		return
	}

	logger.Infof("[%s] DB health: reachable", c.GetString("requestId"))
	c.JSON(http.StatusOK, HealthStatus{OK: true, Reachable: true, Status: http.StatusOK})
}
