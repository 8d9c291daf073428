package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/timegrid"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	ReadRatio       float64
	Days            int // bookings spread over this many days from tomorrow
	PatientLimit    int
	PostgresDSN     string
	Grid            timegrid.Config
}

type DataPool struct {
	Patients      []uuid.UUID
	Practitioners []uuid.UUID
	Procedures    []uuid.UUID

	mu           sync.RWMutex
	appointments []uuid.UUID // created during the run
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func pick(rng *rand.Rand, ids []uuid.UUID) uuid.UUID {
	return ids[rng.Intn(len(ids))]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking    OperationMetrics
	Reschedule OperationMetrics
	Calendar   OperationMetrics
	Detail     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	grid    timegrid.Grid
	client  *http.Client
	logger  *logging.Logger
	metrics Metrics
}

func main() {
	logger := logging.New(&logging.Config{Level: "info", Console: true}).With("component", "simulate")
	logger.Info("simulator starting")

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}
	grid, err := timegrid.New(cfg.Grid)
	if err != nil {
		logger.Error("invalid grid", "error", err.Error())
		os.Exit(1)
	}

	logger.Info("config",
		"duration", cfg.Duration.String(),
		"workers", cfg.Workers,
		"booking", cfg.BookingRatio,
		"reschedule", cfg.RescheduleRatio,
		"read", cfg.ReadRatio,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", "error", err.Error())
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("loaded data pool",
		"patients", len(dataPool.Patients),
		"practitioners", len(dataPool.Practitioners),
		"procedures", len(dataPool.Procedures),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		grid:   grid,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("load base config: %w", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.4),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.4),
		Days:            getInt("SIM_DAYS", 5),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 4000),
		PostgresDSN:     baseCfg.PostgresDSN,
		Grid:            baseCfg.Grid(),
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.ReadRatio /= total
	}

	if cfg.Workers <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_DAYS must be > 0")
	}
	return cfg, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	var (
		dp  DataPool
		err error
	)
	if dp.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if dp.Practitioners, err = loadIDs(ctx, pool, `SELECT id FROM practitioners`); err != nil {
		return nil, fmt.Errorf("load practitioners: %w", err)
	}
	if dp.Procedures, err = loadIDs(ctx, pool, `SELECT id FROM procedures`); err != nil {
		return nil, fmt.Errorf("load procedures: %w", err)
	}

	switch {
	case len(dp.Patients) == 0:
		return nil, fmt.Errorf("no patients loaded")
	case len(dp.Practitioners) == 0:
		return nil, fmt.Errorf("no practitioners loaded")
	case len(dp.Procedures) == 0:
		return nil, fmt.Errorf("no procedures loaded")
	}
	return &dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration.String(), "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.RescheduleRatio:
				s.doReschedule(ctx, rng)
			case rng.Intn(2) == 0:
				s.doCalendar(ctx, rng)
			default:
				s.doDetail(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomDay(rng *rand.Rand) appointment.Date {
	return appointment.DateOf(time.Now()).AddDays(1 + rng.Intn(s.config.Days))
}

// call sends a JSON request and decodes a JSON response into out when out is non-nil.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func conflictStatus(code int) bool {
	return code == http.StatusConflict || code == http.StatusUnprocessableEntity
}

// doBooking walks a wizard from patient selection to commit, choosing a random free slot.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	success, conflict := s.book(ctx, rng)
	s.metrics.Booking.Record(time.Since(start), success, conflict)
}

func (s *Simulator) book(ctx context.Context, rng *rand.Rand) (success, conflict bool) {
	var wz struct {
		ID string `json:"id"`
	}
	code, err := s.call(ctx, http.MethodPost, "/wizards", map[string]any{"date": s.randomDay(rng).String()}, &wz)
	if err != nil || code != http.StatusCreated {
		return false, false
	}
	base := "/wizards/" + wz.ID
	defer func() {
		if !success {
			_, _ = s.call(context.Background(), http.MethodDelete, base, nil, nil)
		}
	}()

	steps := []struct {
		path string
		body any
	}{
		{"/patient", map[string]any{"patient_id": pick(rng, s.pool.Patients).String()}},
		{"/practitioner", map[string]any{"practitioner_id": pick(rng, s.pool.Practitioners).String()}},
		{"/procedure", map[string]any{"procedure_id": pick(rng, s.pool.Procedures).String()}},
	}
	for _, st := range steps {
		if code, err := s.call(ctx, http.MethodPost, base+st.path, st.body, nil); err != nil || code != http.StatusOK {
			return false, false
		}
	}

	var day struct {
		Morning   []slot `json:"morning"`
		Afternoon []slot `json:"afternoon"`
	}
	if code, err := s.call(ctx, http.MethodGet, base+"/slots", nil, &day); err != nil || code != http.StatusOK {
		return false, false
	}
	var free []string
	for _, sl := range append(day.Morning, day.Afternoon...) {
		if sl.Available {
			free = append(free, sl.Time)
		}
	}
	if len(free) == 0 {
		return false, true
	}

	code, err = s.call(ctx, http.MethodPost, base+"/slot", map[string]any{"time": free[rng.Intn(len(free))]}, nil)
	if err != nil || code != http.StatusOK {
		return false, false
	}

	var res struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	code, err = s.call(ctx, http.MethodPost, base+"/commit", nil, &res)
	switch {
	case err != nil:
		return false, false
	case code == http.StatusCreated:
		s.pool.AddAppointment(res.Appointment.ID)
		return true, false
	default:
		return false, conflictStatus(code)
	}
}

type slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// doReschedule picks up a booked appointment and drops it on a random row of the same day.
func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()

	var drag struct {
		ID    string `json:"id"`
		State struct {
			Drag struct {
				OriginalDate string `json:"original_date"`
			} `json:"drag"`
		} `json:"state"`
	}
	code, err := s.call(ctx, http.MethodPost, "/drags", map[string]any{"appointment_id": apptID.String(), "range": "day"}, &drag)
	if err != nil || code != http.StatusCreated {
		s.metrics.Reschedule.Record(time.Since(start), false, code == http.StatusConflict)
		return
	}

	rows := s.grid.Rows()
	offset := rows[rng.Intn(len(rows))].Offset
	code, err = s.call(ctx, http.MethodPost, "/drags/"+drag.ID+"/drop", map[string]any{
		"date":   drag.State.Drag.OriginalDate,
		"offset": offset,
	}, nil)
	s.metrics.Reschedule.Record(time.Since(start), err == nil && code == http.StatusOK, conflictStatus(code))
}

func (s *Simulator) doCalendar(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	path := fmt.Sprintf("/calendar?anchor=%s&range=week", s.randomDay(rng))
	code, err := s.call(ctx, http.MethodGet, path, nil, nil)
	s.metrics.Calendar.Record(time.Since(start), err == nil && code == http.StatusOK, false)
}

func (s *Simulator) doDetail(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	code, err := s.call(ctx, http.MethodGet, "/appointments/"+apptID.String(), nil, nil)
	s.metrics.Detail.Record(time.Since(start), err == nil && code == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Wizard booking", &s.metrics.Booking)
	printOperationReport("Drag reschedule", &s.metrics.Reschedule)
	printOperationReport("Calendar week", &s.metrics.Calendar)
	printOperationReport("Appointment detail", &s.metrics.Detail)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
