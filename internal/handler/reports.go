package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tabletab/api/internal/service"
)

// ReportHandler serves the P&L summary. Manager and admin only; route
// gating happens in the router.
type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/reports/summary", h.Summary)
}

// Summary builds the P&L for ?start=YYYY-MM-DD&end=YYYY-MM-DD. The end
// date is exclusive; omitted parameters default to today's single day.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	if s := q.Get("start"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start, want YYYY-MM-DD"})
			return
		}
		start = t
	}
	if s := q.Get("end"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end, want YYYY-MM-DD"})
			return
		}
		end = t
	}
	if !end.After(start) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be after start"})
		return
	}

	summary, err := h.reports.GenerateSummary(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
