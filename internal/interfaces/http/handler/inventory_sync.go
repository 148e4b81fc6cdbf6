package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domain "github.com/photocatalog/backend/internal/domain/reconcile"
	"github.com/photocatalog/backend/internal/infrastructure/logger"
	"github.com/photocatalog/backend/internal/infrastructure/scheduler"
	"github.com/photocatalog/backend/internal/interfaces/http/dto"
)

// SyncController is the scheduler surface exposed to operators
type SyncController interface {
	Start(ctx context.Context, interval time.Duration) error
	Stop(ctx context.Context) error
	SetMode(mode domain.Mode) error
	RunOnce(ctx context.Context) (*domain.RunReport, bool)
	LastRunReport() *domain.RunReport
	Stats() scheduler.SchedulerStats
}

// InventorySyncHandler serves the operator endpoints of the inventory sync
type InventorySyncHandler struct {
	BaseHandler
	controller SyncController
}

// NewInventorySyncHandler creates a new InventorySyncHandler
func NewInventorySyncHandler(controller SyncController) *InventorySyncHandler {
	return &InventorySyncHandler{controller: controller}
}

// GetStats returns the scheduler snapshot
// GET /admin/inventory-sync/stats
func (h *InventorySyncHandler) GetStats(c *gin.Context) {
	h.Success(c, h.controller.Stats())
}

// GetReport returns the last published run report
// GET /admin/inventory-sync/report
func (h *InventorySyncHandler) GetReport(c *gin.Context) {
	report := h.controller.LastRunReport()
	if report == nil {
		h.NotFound(c, "No run has completed yet")
		return
	}
	h.Success(c, report)
}

// RunNow runs one reconciliation immediately
// POST /admin/inventory-sync/run
func (h *InventorySyncHandler) RunNow(c *gin.Context) {
	report, ran := h.controller.RunOnce(c.Request.Context())
	if !ran {
		h.Conflict(c, "A reconcile run is already in progress")
		return
	}

	logger.L(c.Request.Context()).Info("Manual reconcile run finished",
		zap.String("run_id", report.RunID.String()),
	)
	h.Accepted(c, report)
}

// SetMode changes the mode for subsequent runs
// PUT /admin/inventory-sync/mode
func (h *InventorySyncHandler) SetMode(c *gin.Context) {
	var req dto.SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidMode, "Mode must be one of observe, safe, full")
		return
	}

	if err := h.controller.SetMode(domain.Mode(req.Mode)); err != nil {
		h.HandleError(c, err)
		return
	}

	logger.L(c.Request.Context()).Info("Reconcile mode set by operator", zap.String("mode", req.Mode))
	h.Success(c, dto.ModeResponse{Mode: h.controller.Stats().Mode.String()})
}

// Start begins scheduled runs
// POST /admin/inventory-sync/start
func (h *InventorySyncHandler) Start(c *gin.Context) {
	var req dto.StartSchedulerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BadRequest(c, "interval_minutes must be between 1 and 1440")
		return
	}

	interval := time.Duration(req.IntervalMinutes) * time.Minute
	// the scheduler outlives this request
	if err := h.controller.Start(context.WithoutCancel(c.Request.Context()), interval); err != nil {
		if errors.Is(err, scheduler.ErrInvalidInterval) {
			h.BadRequest(c, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Success(c, h.state())
}

// Stop halts scheduled runs. An in-flight run finishes.
// POST /admin/inventory-sync/stop
func (h *InventorySyncHandler) Stop(c *gin.Context) {
	if err := h.controller.Stop(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, h.state())
}

func (h *InventorySyncHandler) state() dto.SchedulerStateResponse {
	stats := h.controller.Stats()
	return dto.SchedulerStateResponse{
		Started:         stats.Started,
		IntervalSeconds: stats.IntervalSeconds,
	}
}
