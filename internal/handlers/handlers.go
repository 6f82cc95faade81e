package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mauv0809/concession-impact/internal/analysis"
	"github.com/mauv0809/concession-impact/internal/export"
	"github.com/mauv0809/concession-impact/internal/models"
	"github.com/mauv0809/concession-impact/internal/views"
)

// Handler serves the report viewer over the exported cost-impact file.
type Handler struct {
	impactPath string
	logger     zerolog.Logger
}

func New(impactPath string, logger zerolog.Logger) *Handler {
	return &Handler{impactPath: impactPath, logger: logger}
}

// Health reports that the server is up.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Index renders the monthly totals as an HTML table. A missing export is
// shown as a message rather than an error page.
func (h *Handler) Index(c echo.Context) error {
	data := views.IndexData{Source: h.impactPath}

	totals, err := h.monthlyTotals()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data.Message = "No impact export found yet. Run the pipeline to produce one."
		return Render(c, http.StatusOK, views.Index(data))
	case err != nil:
		h.logger.Error().Err(err).Msg("loading impact export")
		return echo.NewHTTPError(http.StatusInternalServerError, "could not read impact export")
	}

	for _, t := range totals {
		data.Months = append(data.Months, views.MonthRow{
			Label:        t.Month.Label(),
			Total:        export.FormatPounds(t.AdditionalCost),
			Contributors: t.Contributors,
		})
	}
	data.Total = export.FormatPounds(analysis.GrandTotal(totals))
	return Render(c, http.StatusOK, views.Index(data))
}

// MonthlyResponse is the JSON body of GET /api/impact/monthly.
type MonthlyResponse struct {
	Months []models.MonthlyImpact `json:"months"`
	Total  decimal.Decimal        `json:"total"`
}

// MonthlyImpact handles GET /api/impact/monthly
func (h *Handler) MonthlyImpact(c echo.Context) error {
	totals, err := h.monthlyTotals()
	if errors.Is(err, fs.ErrNotExist) {
		return echo.NewHTTPError(http.StatusNotFound, "no impact export found")
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("loading impact export")
		return echo.NewHTTPError(http.StatusInternalServerError, "could not read impact export")
	}
	if totals == nil {
		totals = []models.MonthlyImpact{}
	}
	return c.JSON(http.StatusOK, MonthlyResponse{
		Months: totals,
		Total:  analysis.GrandTotal(totals),
	})
}

func (h *Handler) monthlyTotals() ([]models.MonthlyImpact, error) {
	records, err := export.ReadImpactCSV(h.impactPath)
	if err != nil {
		return nil, err
	}
	return analysis.MonthlyTotals(records), nil
}
