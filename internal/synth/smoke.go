package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/okian/autotrain/pkg/logger"
)

// SmokeConfig drives a prediction smoke check against a running server.
type SmokeConfig struct {
	BaseURL  string
	Requests int
	Workers  int
	Timeout  time.Duration
	Seed     uint64
}

// SmokeStats summarizes a smoke check.
type SmokeStats struct {
	Requests    int
	Successful  int
	Unavailable int
	Rejected    int
	Failed      int
	P50         time.Duration
	P99         time.Duration
	Duration    time.Duration
}

// Smoke checks /healthz, then posts generated rows to /predict concurrently.
// A 503 (no model yet) is counted, not treated as an error.
func Smoke(ctx context.Context, cfg SmokeConfig) (SmokeStats, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	log := logger.Get().Named("smoke")
	client := &http.Client{Timeout: cfg.Timeout}
	start := time.Now()

	if err := checkHealth(ctx, client, cfg.BaseURL); err != nil {
		return SmokeStats{}, fmt.Errorf("service health check failed: %w", err)
	}

	opts := DefaultOptions()
	opts.Rows, opts.Seed, opts.OmitTarget, opts.DuplicateRate = cfg.Requests, cfg.Seed, true, 0
	rows := Generate(opts)

	var (
		successful, unavailable, rejected, failed int64
		mu                                        sync.Mutex
		latencies                                 = make([]time.Duration, 0, len(rows))
	)
	work := make(chan int, cfg.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				delete(rows[i], "_id")
				t0 := time.Now()
				status, err := postPrediction(ctx, client, cfg.BaseURL, rows[i])
				took := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					log.Debug(ctx, "request failed", logger.Error(err))
					continue
				case status == http.StatusOK:
					atomic.AddInt64(&successful, 1)
				case status == http.StatusServiceUnavailable:
					atomic.AddInt64(&unavailable, 1)
				case status == http.StatusBadRequest:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				mu.Lock()
				latencies = append(latencies, took)
				mu.Unlock()
			}
		}()
	}

send:
	for i := range rows {
		select {
		case <-ctx.Done():
			break send
		case work <- i:
		}
	}
	close(work)
	wg.Wait()

	out := SmokeStats{
		Requests:    len(rows),
		Successful:  int(successful),
		Unavailable: int(unavailable),
		Rejected:    int(rejected),
		Failed:      int(failed),
		Duration:    time.Since(start),
	}
	out.P50, out.P99 = percentile(latencies, 50), percentile(latencies, 99)
	log.Info(ctx, "smoke check finished",
		logger.Int("successful", out.Successful),
		logger.Int("unavailable", out.Unavailable),
		logger.Int("rejected", out.Rejected),
		logger.Int("failed", out.Failed),
		logger.Duration("p50", out.P50),
		logger.Duration("p99", out.P99),
	)
	return out, ctx.Err()
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func postPrediction(ctx context.Context, client *http.Client, baseURL string, row map[string]any) (int, error) {
	body, err := json.Marshal(map[string]any{"row": row})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func percentile(d []time.Duration, pct float64) time.Duration {
	data := make(stats.Float64Data, len(d))
	for i, v := range d {
		data[i] = float64(v)
	}
	p, err := stats.Percentile(data, pct)
	if err != nil {
		return 0
	}
	return time.Duration(p)
}
