package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbase/appointment-scheduling/internal/config"
	"github.com/clinicbase/appointment-scheduling/internal/db"
)

// simulate hammers the booking endpoint with overlapping slot choices
// to demonstrate that concurrent attempts on one slot yield exactly one
// winner and a conflict for everyone else.

type simConfig struct {
	APIBaseURL string
	Duration   time.Duration
	Workers    int
	Providers  int
	SlotSpread int // distinct start minutes workers contend over
}

type dataPool struct {
	TenantID  uuid.UUID
	Patients  []uuid.UUID
	Providers []uuid.UUID
}

type outcomeCounters struct {
	total     atomic.Int64
	booked    atomic.Int64
	conflicts atomic.Int64
	transient atomic.Int64
	errors    atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (c *outcomeCounters) record(latency time.Duration, status int) {
	c.total.Add(1)
	switch {
	case status == http.StatusCreated:
		c.booked.Add(1)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		c.conflicts.Add(1)
	case status == http.StatusServiceUnavailable:
		c.transient.Add(1)
	default:
		c.errors.Add(1)
	}

	c.mu.Lock()
	c.latencies = append(c.latencies, latency)
	c.mu.Unlock()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	sim := simConfig{
		APIBaseURL: getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:   getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:    getIntEnv("SIM_WORKERS", 32),
		Providers:  getIntEnv("SIM_PROVIDERS", 5),
		SlotSpread: getIntEnv("SIM_SLOT_SPREAD", 8),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	data, err := loadData(context.Background(), pool, sim.Providers)
	if err != nil {
		log.Fatalf("load simulation data: %v", err)
	}
	log.Printf("loaded %d patients, %d providers, tenant %s",
		len(data.Patients), len(data.Providers), data.TenantID)

	targetDate := nextWeekday(time.Now(), time.Monday).Format("2006-01-02")
	log.Printf("booking against %s with %d workers for %s", targetDate, sim.Workers, sim.Duration)

	counters := &outcomeCounters{}
	client := &http.Client{Timeout: 10 * time.Second}

	runCtx, stopRun := context.WithTimeout(context.Background(), sim.Duration)
	defer stopRun()

	var wg sync.WaitGroup
	for w := 0; w < sim.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for runCtx.Err() == nil {
				bookOnce(runCtx, client, sim, data, targetDate, rng, counters)
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	report(counters)
}

func bookOnce(ctx context.Context, client *http.Client, sim simConfig, data *dataPool, date string, rng *rand.Rand, counters *outcomeCounters) {
	patient := data.Patients[rng.Intn(len(data.Patients))]
	provider := data.Providers[rng.Intn(len(data.Providers))]
	// Narrow start-minute spread keeps contention on the same slots high.
	start := 9*60 + 30*rng.Intn(sim.SlotSpread)

	body, _ := json.Marshal(map[string]any{
		"patient_id":   patient.String(),
		"provider_id":  provider.String(),
		"date":         date,
		"start_minute": start,
		"reason":       "load test",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sim.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", data.TenantID.String())

	began := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			counters.record(time.Since(began), 0)
		}
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	counters.record(time.Since(began), resp.StatusCode)
}

func loadData(ctx context.Context, pool *pgxpool.Pool, providerLimit int) (*dataPool, error) {
	data := &dataPool{}

	rows, err := pool.Query(ctx, `SELECT id, tenant_id FROM patients LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, tenantID uuid.UUID
		if err := rows.Scan(&id, &tenantID); err != nil {
			return nil, err
		}
		data.Patients = append(data.Patients, id)
		data.TenantID = tenantID
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	provRows, err := pool.Query(ctx, `SELECT id FROM providers WHERE is_available LIMIT $1`, providerLimit)
	if err != nil {
		return nil, err
	}
	defer provRows.Close()
	for provRows.Next() {
		var id uuid.UUID
		if err := provRows.Scan(&id); err != nil {
			return nil, err
		}
		data.Providers = append(data.Providers, id)
	}
	if err := provRows.Err(); err != nil {
		return nil, err
	}

	if len(data.Patients) == 0 || len(data.Providers) == 0 {
		return nil, fmt.Errorf("no seeded patients/providers found, run cmd/seed first")
	}
	return data, nil
}

func report(c *outcomeCounters) {
	c.mu.Lock()
	latencies := c.latencies
	c.mu.Unlock()

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	pct := func(p float64) time.Duration {
		if len(latencies) == 0 {
			return 0
		}
		idx := int(float64(len(latencies)-1) * p)
		return latencies[idx]
	}

	log.Printf("total=%d booked=%d conflicts=%d transient=%d errors=%d",
		c.total.Load(), c.booked.Load(), c.conflicts.Load(), c.transient.Load(), c.errors.Load())
	log.Printf("latency p50=%s p95=%s p99=%s", pct(0.50), pct(0.95), pct(0.99))
}

func nextWeekday(from time.Time, day time.Weekday) time.Time {
	delta := (int(day) - int(from.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return from.AddDate(0, 0, delta)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
