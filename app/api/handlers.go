package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"regscanner/app/database"
	"regscanner/app/scan"
)

const maxDateRangeDays = 60

func NewHandler(runner ScanRunnerInterface, updates database.UpdateRepository,
	health database.HealthRepository, db Pinger) *Handler {
	return &Handler{
		runner:  runner,
		updates: updates,
		health:  health,
		db:      db,
	}
}

func (h *Handler) TriggerScan(c *gin.Context) {
	started := time.Now()

	// An empty body means "scan with defaults"; binding reports io.EOF for it.
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if req.DateRangeDays < 0 || req.DateRangeDays > maxDateRangeDays {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "dateRangeDays must be between 1 and 60",
		})
		return
	}

	report, err := h.runner.Run(c.Request.Context(), scan.Options{
		DateRangeDays:     req.DateRangeDays,
		SelectedSourceIDs: req.SelectedSourceIDs,
	})
	if err != nil {
		slog.Error("Scan failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      err.Error(),
			"elapsed_ms": time.Since(started).Milliseconds(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetHealth(c *gin.Context) {
	status := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"status":    "ok",
	}

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		slog.Error("Database ping failed", "error", err)
		status["status"] = "degraded"
		status["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}

	if count, err := h.updates.Count(c.Request.Context()); err == nil {
		status["updates"] = count
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{}

	if count, err := h.updates.Count(c.Request.Context()); err == nil {
		stats["updates"] = count
	}

	records, err := h.health.GetAll(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_source_health", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	counts := map[string]int{}
	for _, r := range records {
		counts[r.Status]++
	}
	stats["sources"] = map[string]interface{}{
		"total":    len(records),
		"healthy":  counts[database.StatusHealthy],
		"degraded": counts[database.StatusDegraded],
		"failing":  counts[database.StatusFailing],
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIGetSourceHealth(c *gin.Context) {
	records, err := h.health.GetAll(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_source_health", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		entry := map[string]interface{}{
			"source_name":          r.SourceName,
			"source_url":           r.SourceURL,
			"source_type":          r.SourceType,
			"status":               r.Status,
			"last_check":           r.LastCheck.Format(time.RFC3339),
			"items_fetched":        r.ItemsFetched,
			"consecutive_failures": r.ConsecutiveFailures,
			"retries_used":         r.RetriesUsed,
		}
		if r.LastSuccess != nil {
			entry["last_success"] = r.LastSuccess.Format(time.RFC3339)
		}
		if r.ErrorMessage != "" {
			entry["error_message"] = r.ErrorMessage
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{"sources": out, "count": len(out)})
}
