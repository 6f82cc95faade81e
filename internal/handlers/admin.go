package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mauv0809/concession-impact/internal/analysis"
	"github.com/mauv0809/concession-impact/internal/db"
	"github.com/mauv0809/concession-impact/internal/export"
	"github.com/mauv0809/concession-impact/internal/pipeline"
)

// PipelineRunner runs one pipeline execution.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
}

// Warehouse is the subset of the seed repository the admin endpoints use.
type Warehouse interface {
	Seed(ctx context.Context, dataDir string, logger zerolog.Logger) (db.SeedResult, error)
	Counts(ctx context.Context) (db.TableCounts, error)
}

// AdminHandler triggers pipeline runs and warehouse seeding.
type AdminHandler struct {
	newRunner func() PipelineRunner
	warehouse Warehouse
	dataDir   string
	logger    zerolog.Logger
}

// NewAdminHandler creates an admin handler. warehouse may be nil when no
// database is configured; the seed and status endpoints then answer 503.
func NewAdminHandler(newRunner func() PipelineRunner, warehouse Warehouse, dataDir string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		newRunner: newRunner,
		warehouse: warehouse,
		dataDir:   dataDir,
		logger:    logger,
	}
}

// AdminResponse is the JSON response for admin endpoints.
type AdminResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
	Count   int    `json:"count,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
}

// Run handles POST /admin/run
// Re-runs the pipeline with the server's configuration and rewrites the
// exports the viewer reads.
func (h *AdminHandler) Run(c echo.Context) error {
	ctx := c.Request().Context()
	start := time.Now()

	h.logger.Info().Msg("starting pipeline run")
	report, err := h.newRunner().Run(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("pipeline run failed")
		return c.JSON(http.StatusInternalServerError, AdminResponse{
			Success: false,
			Message: fmt.Sprintf("Pipeline run failed: %v", err),
		})
	}

	total := analysis.GrandTotal(report.Result.MonthlyTotals)
	return c.JSON(http.StatusOK, AdminResponse{
		Success: true,
		Message: fmt.Sprintf("Estimated additional cost %s", export.FormatPounds(total)),
		RunID:   report.RunID,
		Count:   len(report.Result.Impact),
		Elapsed: time.Since(start).String(),
	})
}

// Seed handles POST /admin/seed
// Loads the cache files into the local warehouse.
func (h *AdminHandler) Seed(c echo.Context) error {
	if h.warehouse == nil {
		return c.JSON(http.StatusServiceUnavailable, AdminResponse{Message: "No database configured"})
	}
	ctx := c.Request().Context()
	start := time.Now()

	res, err := h.warehouse.Seed(ctx, h.dataDir, h.logger)
	if err != nil {
		h.logger.Error().Err(err).Msg("seeding warehouse failed")
		return c.JSON(http.StatusInternalServerError, AdminResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to seed warehouse: %v", err),
		})
	}

	count := res.Concessions + res.TariffRows + res.Prescribing
	return c.JSON(http.StatusOK, AdminResponse{
		Success: true,
		Message: fmt.Sprintf("Seeded %d concessions, %d tariff prices and %d prescribing rows", res.Concessions, res.TariffRows, res.Prescribing),
		Count:   count,
		Elapsed: time.Since(start).String(),
	})
}

// Status handles GET /admin/status
// Returns warehouse row counts.
func (h *AdminHandler) Status(c echo.Context) error {
	if h.warehouse == nil {
		return c.JSON(http.StatusServiceUnavailable, AdminResponse{Message: "No database configured"})
	}
	counts, err := h.warehouse.Counts(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, AdminResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to count rows: %v", err),
		})
	}
	return c.JSON(http.StatusOK, counts)
}
