package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauv0809/concession-impact/internal/analysis"
	"github.com/mauv0809/concession-impact/internal/db"
	"github.com/mauv0809/concession-impact/internal/export"
	"github.com/mauv0809/concession-impact/internal/models"
	"github.com/mauv0809/concession-impact/internal/pipeline"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func writeImpact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "3_months_post.csv")
	records := []models.CostImpactRecord{
		{
			RollingQuantity: models.RollingQuantity{BNFCode: "bnf-A", WindowStart: models.NewMonth(2023, time.July), Quantity: decimal.NewFromInt(3000)},
			Delta: &models.EpisodePriceDelta{
				Episode:           models.Episode{DrugID: "A", FirstMonth: models.NewMonth(2023, time.January), LastMonth: models.NewMonth(2023, time.March), DurationMonths: 3},
				BNFCode:           "bnf-A",
				Name:              "<Drug A>",
				ImpactAnchorMonth: models.NewMonth(2023, time.July),
			},
			AdditionalCost: decPtr("1234.5"),
		},
		{
			RollingQuantity: models.RollingQuantity{BNFCode: "bnf-A", WindowStart: models.NewMonth(2023, time.June), Quantity: decimal.NewFromInt(3000)},
		},
	}
	require.NoError(t, export.WriteImpactCSV(path, records))
	return path
}

func serve(t *testing.T, h *Handler, admin *AdminHandler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := NewServer(h, admin, zerolog.Nop())
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, New("unused.csv", zerolog.Nop()), nil, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIndex_RendersMonthlyTable(t *testing.T) {
	rec := serve(t, New(writeImpact(t), zerolog.Nop()), nil, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, "<td>Jun 2023</td>")
	assert.Contains(t, body, "<td>Jul 2023</td>")
	assert.Contains(t, body, "£1,234.50")
	assert.Less(t, strings.Index(body, "Jun 2023"), strings.Index(body, "Jul 2023"), "months ascend")
}

func TestIndex_MissingExport(t *testing.T) {
	rec := serve(t, New(filepath.Join(t.TempDir(), "missing.csv"), zerolog.Nop()), nil, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No impact export found yet")
}

func TestMonthlyImpact_JSON(t *testing.T) {
	rec := serve(t, New(writeImpact(t), zerolog.Nop()), nil, http.MethodGet, "/api/impact/monthly")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Months []struct {
			Month          string `json:"month"`
			AdditionalCost string `json:"additional_cost"`
			Contributors   int    `json:"contributors"`
		} `json:"months"`
		Total string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Months, 2)
	assert.Equal(t, "2023-06-01", resp.Months[0].Month)
	assert.Equal(t, "0", resp.Months[0].AdditionalCost)
	assert.Equal(t, 0, resp.Months[0].Contributors)
	assert.Equal(t, "2023-07-01", resp.Months[1].Month)
	assert.Equal(t, "1234.5", resp.Months[1].AdditionalCost)
	assert.Equal(t, "1234.5", resp.Total)
}

func TestMonthlyImpact_MissingExport(t *testing.T) {
	rec := serve(t, New(filepath.Join(t.TempDir(), "missing.csv"), zerolog.Nop()), nil, http.MethodGet, "/api/impact/monthly")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubRunner struct {
	report *pipeline.Report
	err    error
}

func (s stubRunner) Run(context.Context) (*pipeline.Report, error) { return s.report, s.err }

type stubWarehouse struct {
	seeded db.SeedResult
	err    error
}

func (s stubWarehouse) Seed(context.Context, string, zerolog.Logger) (db.SeedResult, error) {
	return s.seeded, s.err
}

func (s stubWarehouse) Counts(context.Context) (db.TableCounts, error) {
	return db.TableCounts{VMPPs: 2, Concessions: 3}, s.err
}

func TestAdminRun(t *testing.T) {
	report := &pipeline.Report{
		RunID: "run-1",
		Result: &analysis.Result{
			Impact:        make([]models.CostImpactRecord, 19),
			MonthlyTotals: []models.MonthlyImpact{{AdditionalCost: decimal.NewFromInt(300)}},
		},
	}
	admin := NewAdminHandler(func() PipelineRunner { return stubRunner{report: report} }, nil, "data", zerolog.Nop())

	rec := serve(t, New("unused.csv", zerolog.Nop()), admin, http.MethodPost, "/admin/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AdminResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 19, resp.Count)
	assert.Contains(t, resp.Message, "£300.00")
}

func TestAdminRun_Failure(t *testing.T) {
	admin := NewAdminHandler(func() PipelineRunner { return stubRunner{err: errors.New("warehouse down")} }, nil, "data", zerolog.Nop())

	rec := serve(t, New("unused.csv", zerolog.Nop()), admin, http.MethodPost, "/admin/run")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "warehouse down")
}

func TestAdminSeedAndStatus(t *testing.T) {
	wh := stubWarehouse{seeded: db.SeedResult{Concessions: 3, TariffRows: 5, Prescribing: 2}}
	admin := NewAdminHandler(nil, wh, "data", zerolog.Nop())
	h := New("unused.csv", zerolog.Nop())

	rec := serve(t, h, admin, http.MethodPost, "/admin/seed")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AdminResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Count)

	rec = serve(t, h, admin, http.MethodGet, "/admin/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"vmpps":2,"concessions":3,"tariff_rows":0,"prescribing":0}`, rec.Body.String())
}

func TestAdminSeed_NoDatabase(t *testing.T) {
	admin := NewAdminHandler(nil, nil, "data", zerolog.Nop())
	rec := serve(t, New("unused.csv", zerolog.Nop()), admin, http.MethodPost, "/admin/seed")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
