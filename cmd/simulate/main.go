package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/config"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/db"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/logging"
)

type simConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	BookRatio   float64
	CancelRatio float64
	DoctorLimit int
	Days        int
}

// target is a doctor and date pair that workers race to book.
type target struct {
	DoctorID uuid.UUID
	Date     string
	Slots    []string
}

type dataPool struct {
	targets []target

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *dataPool) addAppointment(id uuid.UUID) {
	dp.mu.Lock()
	dp.appointments = append(dp.appointments, id)
	dp.mu.Unlock()
}

func (dp *dataPool) randomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type opMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *opMetrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *opMetrics) percentile(p float64) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), om.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*p)]
}

type simulator struct {
	cfg    simConfig
	pool   *dataPool
	client *http.Client
	log    zerolog.Logger

	book         opMetrics
	cancel       opMetrics
	readByID     opMetrics
	availability opMetrics
}

func main() {
	var sc simConfig

	rootCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive concurrent booking traffic against a running api-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), sc)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&sc.APIBaseURL, "api", "http://localhost:8080", "api-server base URL")
	flags.DurationVar(&sc.Duration, "duration", 30*time.Second, "how long to generate load")
	flags.IntVar(&sc.Workers, "workers", 10, "concurrent workers")
	flags.Float64Var(&sc.BookRatio, "book-ratio", 0.5, "share of operations that book")
	flags.Float64Var(&sc.CancelRatio, "cancel-ratio", 0.1, "share of operations that cancel")
	flags.IntVar(&sc.DoctorLimit, "doctors", 10, "verified doctors to target")
	flags.IntVar(&sc.Days, "days", 7, "days ahead to book into")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, sc simConfig) error {
	if sc.Workers <= 0 || sc.Duration <= 0 || sc.Days <= 0 {
		return fmt.Errorf("workers, duration and days must be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "simulate")

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(loadCtx, cfg.PostgresDSN, "simulate")
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgPool.Close()

	sim := &simulator{
		cfg:    sc,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	doctors, err := loadDoctors(loadCtx, pgPool, sc.DoctorLimit)
	if err != nil {
		return err
	}
	sim.pool, err = sim.loadTargets(loadCtx, doctors, appointment.DateOf(time.Now(), cfg.Location))
	if err != nil {
		return err
	}

	logger.Info().
		Int("doctors", len(doctors)).
		Int("targets", len(sim.pool.targets)).
		Int("workers", sc.Workers).
		Dur("duration", sc.Duration).
		Msg("starting simulation")

	sim.run(ctx)
	sim.report()
	return nil
}

func loadDoctors(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM doctors
		WHERE verified AND accepting_bookings
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no bookable doctors found, run seed first")
	}
	return ids, nil
}

// loadTargets asks the API for each doctor's free slots so workers only
// contend for times the validator accepts.
func (s *simulator) loadTargets(ctx context.Context, doctors []uuid.UUID, today time.Time) (*dataPool, error) {
	from := today.AddDate(0, 0, 1).Format(appointment.DateLayout)
	to := today.AddDate(0, 0, s.cfg.Days).Format(appointment.DateLayout)

	dp := &dataPool{}
	for _, doctorID := range doctors {
		var days []struct {
			Date  string                 `json:"date"`
			Slots []appointment.TimeSlot `json:"slots"`
		}
		url := fmt.Sprintf("%s/doctors/%s/availability?from=%s&to=%s", s.cfg.APIBaseURL, doctorID, from, to)
		if _, err := s.getJSON(ctx, url, &days); err != nil {
			return nil, fmt.Errorf("availability for %s: %w", doctorID, err)
		}

		for _, d := range days {
			t := target{DoctorID: doctorID, Date: d.Date}
			for _, slot := range d.Slots {
				if slot.IsAvailable {
					t.Slots = append(t.Slots, slot.StartTime.String())
				}
			}
			if len(t.Slots) > 0 {
				dp.targets = append(dp.targets, t)
			}
		}
	}
	if len(dp.targets) == 0 {
		return nil, fmt.Errorf("no free slots in the next %d days", s.cfg.Days)
	}
	return dp, nil
}

func (s *simulator) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.cfg.BookRatio:
			s.doBook(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doReadByID(ctx, rng)
		default:
			s.doAvailability(ctx, rng)
		}
	}
}

func (s *simulator) doBook(ctx context.Context, rng *rand.Rand) {
	t := s.pool.targets[rng.Intn(len(s.pool.targets))]
	body := map[string]any{
		"patient_id":       uuid.NewString(),
		"doctor_id":        t.DoctorID.String(),
		"date":             t.Date,
		"time":             t.Slots[rng.Intn(len(t.Slots))],
		"appointment_type": "consultation",
		"purpose":          gofakeit.RandomString([]string{"Tư vấn trực tuyến", "Khám tại phòng khám", "Follow-up", "Lab results review"}),
		"created_by":       "simulator",
	}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.sendJSON(ctx, http.MethodPost, s.cfg.APIBaseURL+"/appointments", body, &resp)
	s.book.record(time.Since(start), statusOrZero(status, err))

	if status == http.StatusCreated && resp.ID != uuid.Nil {
		s.pool.addAppointment(resp.ID)
	}
}

func (s *simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.randomAppointment(rng)
	if !ok {
		return
	}
	body := map[string]string{"reason": gofakeit.Sentence(4), "cancelled_by": "simulator"}

	start := time.Now()
	status, err := s.sendJSON(ctx, http.MethodPost, fmt.Sprintf("%s/appointments/%s/cancel", s.cfg.APIBaseURL, id), body, nil)
	s.cancel.record(time.Since(start), statusOrZero(status, err))
}

func (s *simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.randomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.getJSON(ctx, fmt.Sprintf("%s/appointments/%s", s.cfg.APIBaseURL, id), nil)
	s.readByID.record(time.Since(start), statusOrZero(status, err))
}

func (s *simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	t := s.pool.targets[rng.Intn(len(s.pool.targets))]
	url := fmt.Sprintf("%s/doctors/%s/availability?from=%s&to=%s", s.cfg.APIBaseURL, t.DoctorID, t.Date, t.Date)

	start := time.Now()
	status, err := s.getJSON(ctx, url, nil)
	s.availability.record(time.Since(start), statusOrZero(status, err))
}

func (s *simulator) getJSON(ctx context.Context, url string, out any) (int, error) {
	return s.sendJSON(ctx, http.MethodGet, url, nil, out)
}

func (s *simulator) sendJSON(ctx context.Context, method, url string, in, out any) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func statusOrZero(status int, err error) int {
	if err != nil {
		return 0
	}
	return status
}

func (s *simulator) report() {
	for _, op := range []struct {
		name string
		m    *opMetrics
	}{
		{"book", &s.book},
		{"cancel", &s.cancel},
		{"read_by_id", &s.readByID},
		{"availability", &s.availability},
	} {
		total := atomic.LoadInt64(&op.m.Total)
		if total == 0 {
			continue
		}
		s.log.Info().
			Str("op", op.name).
			Int64("total", total).
			Int64("success", atomic.LoadInt64(&op.m.Success)).
			Int64("conflict", atomic.LoadInt64(&op.m.Conflict)).
			Int64("error", atomic.LoadInt64(&op.m.Error)).
			Dur("p50", op.m.percentile(0.50)).
			Dur("p95", op.m.percentile(0.95)).
			Msg("operation summary")
	}
}
