package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

const (
	bookingLatencyMetric = "clinic_scheduling_operation_latency_seconds"
	latencyScope         = "service"
)

type dashboardDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DashboardRepo counts appointments per local day in loc for the dashboard.
type DashboardRepo interface {
	AppointmentsByDay(ctx context.Context, clinicID string, start, end time.Time, loc *time.Location) ([]ScheduleDay, error)
}

// ScheduleDay counts a day's appointments by outcome. Booked excludes
// cancellations.
type ScheduleDay struct {
	Day       time.Time `json:"-"`
	DayLabel  string    `json:"day"`
	Booked    int64     `json:"booked"`
	Cancelled int64     `json:"cancelled"`
	NoShow    int64     `json:"no_show"`
	Completed int64     `json:"completed"`
}

// LatencySnapshot summarises create latency across the whole service, not one
// clinic: the histogram carries no clinic label.
type LatencySnapshot struct {
	Scope   string          `json:"scope"`
	Total   int64           `json:"total"`
	P90Ms   float64         `json:"p90_ms"`
	P95Ms   float64         `json:"p95_ms"`
	Buckets []LatencyBucket `json:"buckets"`
}

type LatencyBucket struct {
	LeSeconds float64 `json:"le_seconds"`
	Label     string  `json:"label,omitempty"`
	Count     int64   `json:"count"`
}

type ScheduleDashboard struct {
	ClinicID       string          `json:"clinic_id"`
	Timezone       string          `json:"timezone"`
	PeriodStart    string          `json:"period_start"`
	PeriodEnd      string          `json:"period_end"`
	Booked         int64           `json:"booked"`
	Cancelled      int64           `json:"cancelled"`
	NoShow         int64           `json:"no_show"`
	Completed      int64           `json:"completed"`
	NoShowRatePct  float64         `json:"no_show_rate_pct"`
	BookingLatency LatencySnapshot `json:"booking_latency"`
	Daily          []ScheduleDay   `json:"daily"`
}

// DashboardRepository aggregates appointments in Postgres.
type DashboardRepository struct {
	db dashboardDB
}

func NewDashboardRepository(db dashboardDB) *DashboardRepository {
	if db == nil {
		panic("clinic: db required for dashboard")
	}
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) AppointmentsByDay(ctx context.Context, clinicID string, start, end time.Time, loc *time.Location) ([]ScheduleDay, error) {
	if err := checkDashboardArgs(clinicID, start, end); err != nil {
		return nil, err
	}
	loc = orUTC(loc)

	query := `
		SELECT date_trunc('day', start_time AT TIME ZONE $4) AS day,
		       COUNT(*) FILTER (WHERE status <> 'cancelled') AS booked,
		       COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled,
		       COUNT(*) FILTER (WHERE status = 'no_show') AS no_show,
		       COUNT(*) FILTER (WHERE status = 'completed') AS completed
		FROM appointments
		WHERE clinic_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.Query(ctx, query, clinicID, start, end, loc.String())
	if err != nil {
		return nil, fmt.Errorf("clinic dashboard: query schedule: %w", err)
	}
	defer rows.Close()

	var results []ScheduleDay
	for rows.Next() {
		var d ScheduleDay
		if err := rows.Scan(&d.Day, &d.Booked, &d.Cancelled, &d.NoShow, &d.Completed); err != nil {
			return nil, fmt.Errorf("clinic dashboard: scan schedule: %w", err)
		}
		// the truncated value is a wall-clock date in loc
		d.Day = time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, loc)
		d.DayLabel = d.Day.Format("2006-01-02")
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clinic dashboard: iterate schedule: %w", err)
	}
	return results, nil
}

type appointmentLister interface {
	List(ctx context.Context, clinicID string, filter scheduling.ListFilter) ([]*scheduling.Appointment, error)
}

// EngineDashboardRepository aggregates through the scheduling engine, for
// deployments running on the in-memory store.
type EngineDashboardRepository struct {
	lister appointmentLister
}

func NewEngineDashboardRepository(lister appointmentLister) *EngineDashboardRepository {
	return &EngineDashboardRepository{lister: lister}
}

func (r *EngineDashboardRepository) AppointmentsByDay(ctx context.Context, clinicID string, start, end time.Time, loc *time.Location) ([]ScheduleDay, error) {
	if err := checkDashboardArgs(clinicID, start, end); err != nil {
		return nil, err
	}
	loc = orUTC(loc)
	appts, err := r.lister.List(ctx, clinicID, scheduling.ListFilter{From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("clinic dashboard: list appointments: %w", err)
	}

	byDay := map[string]*ScheduleDay{}
	var order []string
	for _, appt := range appts {
		// the list filter is inclusive at both ends
		if !appt.StartTime.Before(end) {
			continue
		}
		day := localMidnight(appt.StartTime, loc)
		key := day.Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			d = &ScheduleDay{Day: day, DayLabel: key}
			byDay[key] = d
			order = append(order, key)
		}
		switch appt.Status {
		case scheduling.StatusCancelled:
			d.Cancelled++
			continue
		case scheduling.StatusNoShow:
			d.NoShow++
		case scheduling.StatusCompleted:
			d.Completed++
		}
		d.Booked++
	}
	sort.Strings(order)
	out := make([]ScheduleDay, 0, len(order))
	for _, key := range order {
		out = append(out, *byDay[key])
	}
	return out, nil
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func localMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func checkDashboardArgs(clinicID string, start, end time.Time) error {
	if strings.TrimSpace(clinicID) == "" {
		return fmt.Errorf("clinic dashboard: clinic_id required")
	}
	if !end.After(start) {
		return fmt.Errorf("clinic dashboard: invalid time range")
	}
	return nil
}

// DashboardHandler serves the schedule dashboard JSON for a clinic.
type DashboardHandler struct {
	repo     DashboardRepo
	configs  ConfigStore
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	now      func() time.Time
}

func NewDashboardHandler(repo DashboardRepo, gatherer prometheus.Gatherer, logger *logging.Logger) *DashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &DashboardHandler{
		repo:     repo,
		gatherer: gatherer,
		logger:   logger,
		now:      time.Now,
	}
}

// WithConfigStore makes the handler bucket days in each clinic's timezone.
// Without one, days are UTC.
func (h *DashboardHandler) WithConfigStore(configs ConfigStore) *DashboardHandler {
	h.configs = configs
	return h
}

func (h *DashboardHandler) location(ctx context.Context, clinicID string) (*time.Location, error) {
	if h.configs == nil {
		return time.UTC, nil
	}
	cfg, err := h.configs.Get(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	return cfg.Location(), nil
}

// GetDashboard returns daily appointment counts and booking latency.
// GET /clinics/dashboard
// Query params:
//   - start, end: RFC3339 timestamps (both or neither)
//   - days: integer window (default 7) when start/end omitted, ending at the
//     next local midnight in the clinic's timezone
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"clinic_id required"}`, http.StatusBadRequest)
		return
	}
	if h.repo == nil {
		http.Error(w, `{"error":"dashboard disabled"}`, http.StatusServiceUnavailable)
		return
	}

	loc, err := h.location(r.Context(), clinicID)
	if err != nil {
		h.logger.WithClinic(clinicID).Error("failed to load clinic timezone", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	start, end, err := parseDashboardWindow(r, h.now(), loc)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	days, err := h.repo.AppointmentsByDay(r.Context(), clinicID, start, end, loc)
	if err != nil {
		h.logger.WithClinic(clinicID).Error("failed to query schedule dashboard", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	days = fillMissingDays(days, start, end, loc)

	resp := ScheduleDashboard{
		ClinicID:       clinicID,
		Timezone:       loc.String(),
		PeriodStart:    start.In(loc).Format(time.RFC3339),
		PeriodEnd:      end.In(loc).Format(time.RFC3339),
		BookingLatency: snapshotBookingLatency(h.gatherer),
		Daily:          days,
	}
	for _, d := range days {
		resp.Booked += d.Booked
		resp.Cancelled += d.Cancelled
		resp.NoShow += d.NoShow
		resp.Completed += d.Completed
	}
	if resp.Booked > 0 {
		resp.NoShowRatePct = float64(resp.NoShow) / float64(resp.Booked) * 100.0
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func parseDashboardWindow(r *http.Request, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	q := r.URL.Query()

	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	if (startRaw == "") != (endRaw == "") {
		return time.Time{}, time.Time{}, fmt.Errorf("both start and end must be provided, or neither")
	}
	if startRaw != "" {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start time, use RFC3339 format")
		}
		end, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end time, use RFC3339 format")
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end must be after start")
		}
		return start, end, nil
	}

	days := 7
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid days; must be 1-90")
		}
		days = parsed
	}

	end := localMidnight(now, loc).AddDate(0, 0, 1)
	return end.AddDate(0, 0, -days), end, nil
}

func fillMissingDays(existing []ScheduleDay, start, end time.Time, loc *time.Location) []ScheduleDay {
	startDay := localMidnight(start, loc)

	lookup := make(map[string]ScheduleDay, len(existing))
	for _, d := range existing {
		lookup[d.DayLabel] = d
	}

	var out []ScheduleDay
	for day := startDay; day.Before(end); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		if found, ok := lookup[key]; ok {
			out = append(out, found)
			continue
		}
		out = append(out, ScheduleDay{Day: day, DayLabel: key})
	}
	return out
}

// snapshotBookingLatency summarises the create-operation latency histogram.
func snapshotBookingLatency(gatherer prometheus.Gatherer) LatencySnapshot {
	mfs, err := gatherer.Gather()
	if err != nil {
		return LatencySnapshot{Scope: latencyScope}
	}

	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	for _, mf := range mfs {
		if mf == nil || mf.GetName() != bookingLatencyMetric {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if metric == nil || !hasLabel(metric, "operation", "create") {
				continue
			}
			h := metric.GetHistogram()
			if h == nil {
				continue
			}
			sampleCount += h.GetSampleCount()
			for _, b := range h.GetBucket() {
				cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
			}
		}
	}
	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return LatencySnapshot{Scope: latencyScope}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)
	// client_golang omits the +Inf bucket; the sample count stands in for it
	if !math.IsInf(uppers[len(uppers)-1], 1) {
		uppers = append(uppers, math.Inf(1))
		cumulativeByUpper[math.Inf(1)] = sampleCount
	}

	return LatencySnapshot{
		Scope:   latencyScope,
		Total:   int64(sampleCount),
		P90Ms:   histogramQuantile(0.90, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		P95Ms:   histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		Buckets: latencyBuckets(uppers, cumulativeByUpper),
	}
}

func latencyBuckets(uppers []float64, cumulativeByUpper map[float64]uint64) []LatencyBucket {
	buckets := make([]LatencyBucket, 0, len(uppers))
	var prev uint64
	var lastFinite float64
	for _, upper := range uppers {
		cum := cumulativeByUpper[upper]
		count := int64(cum)
		if cum >= prev {
			count = int64(cum - prev)
		}
		prev = cum
		if math.IsInf(upper, 1) {
			if count > 0 {
				buckets = append(buckets, LatencyBucket{LeSeconds: lastFinite, Label: ">" + formatSeconds(lastFinite), Count: count})
			}
			continue
		}
		lastFinite = upper
		buckets = append(buckets, LatencyBucket{LeSeconds: upper, Count: count})
	}
	return buckets
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// histogramQuantile interpolates linearly inside the bucket holding q.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper, prevCum = upper, cum
			continue
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		bucketCount := cum - prevCum
		if bucketCount <= 0 {
			return upper
		}
		fraction := math.Min(math.Max((target-prevCum)/bucketCount, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	return prevUpper
}

func formatSeconds(seconds float64) string {
	switch {
	case seconds <= 0:
		return "0s"
	case seconds < 1:
		return fmt.Sprintf("%.2fs", seconds)
	case seconds < 10:
		return fmt.Sprintf("%.1fs", seconds)
	default:
		return fmt.Sprintf("%.0fs", seconds)
	}
}
