package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/shoppinglist/internal/logger"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string    `json:"status"`
	CacheVersion      string    `json:"cache_version"`
	Goroutines        int       `json:"goroutines"`
	MemoryUsedPercent float64   `json:"memory_used_percent,omitempty"`
	Time              time.Time `json:"time"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:       "ok",
		CacheVersion: s.settings.Cache.Version,
		Goroutines:   runtime.NumGoroutine(),
		Time:         time.Now().UTC(),
	}

	vm, err := mem.VirtualMemoryWithContext(c.Request().Context())
	if err != nil {
		s.log.Debug("host memory stats unavailable", logger.Error(err))
	} else {
		resp.MemoryUsedPercent = vm.UsedPercent
	}

	return c.JSON(http.StatusOK, resp)
}
