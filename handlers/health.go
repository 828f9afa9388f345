package handlers

import (
	"net/http"

	"tailortalk/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports which backends are wired and whether they answered
// the last probe.
func HealthHandler(c *gin.Context) {
	status := utils.GetHealthStatus()
	code := http.StatusOK
	state := "ok"
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{
		"status":    state,
		"backends":  status.Backends,
		"checks":    status.Checks,
		"checkedAt": status.CheckedAt,
	})
}
