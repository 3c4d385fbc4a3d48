package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"gatepass/internal/services"
)

// ScanHandler serves the venue-gate API on the dedicated gate server.
type ScanHandler struct {
	scans *services.ScanService
	redis *redis.Client
}

func NewScanHandler(scans *services.ScanService, redisClient *redis.Client) *ScanHandler {
	return &ScanHandler{
		scans: scans,
		redis: redisClient,
	}
}

// Scan - Validate a scanned credential. Every outcome is a 200 with a tagged
// status; only storage unavailability is a server error.
func (h *ScanHandler) Scan(c echo.Context) error {
	var req struct {
		Token      string `json:"token"`
		OperatorID string `json:"operator_id"`
	}

	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request",
		})
	}
	if req.Token == "" || req.OperatorID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "token and operator_id are required",
		})
	}

	result, err := h.scans.Scan(c.Request().Context(), req.Token, req.OperatorID)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Verification unavailable, try again",
		})
	}

	return c.JSON(http.StatusOK, result)
}

// ScanDashboard - Per-event accepted scan counts for ops.
func (h *ScanHandler) ScanDashboard(c echo.Context) error {
	ctx := c.Request().Context()

	keys, err := h.redis.Keys(ctx, "scans:accepted:*").Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "Dashboard unavailable",
		})
	}

	counts := make(map[string]int64, len(keys))
	for _, key := range keys {
		eventID := strings.TrimPrefix(key, "scans:accepted:")
		count, _ := h.redis.Get(ctx, key).Int64()
		counts[eventID] = count
	}

	return c.JSON(http.StatusOK, map[string]any{
		"accepted_scans": counts,
	})
}
