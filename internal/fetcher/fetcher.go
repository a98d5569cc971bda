// Package fetcher orchestrates raw feed downloads from upstream retailers.
//
// Fetches run in bounded batches with a fixed inter-batch delay so a full
// cycle never hammers every upstream host at once. A single source failing
// (timeout, bad status, non-JSON body) becomes a value in its result slot;
// it never aborts the cycle or cancels sibling fetches.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/fuelwatch/fuelwatch/internal/metrics"
	"github.com/fuelwatch/fuelwatch/internal/useragent"
)

// ErrSourceUnavailable marks a source that could not be fetched after all
// retry attempts were exhausted.
var ErrSourceUnavailable = errors.New("source unavailable")

// SourceResult is the raw outcome of fetching one source. Payload is the
// structurally validated JSON body; Err is set when all attempts failed.
type SourceResult struct {
	Source  config.Source
	Payload []byte
	Err     error
}

// Options tunes the fetch orchestration.
type Options struct {
	// BatchSize is the number of concurrent fetches per batch.
	BatchSize int
	// BatchDelay is the fixed pause between batches.
	BatchDelay time.Duration
	// Timeout is the hard per-request deadline.
	Timeout time.Duration
	// Retries is the number of attempts per source.
	Retries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
}

// DefaultOptions returns the standard fetch tuning.
func DefaultOptions() Options {
	return Options{
		BatchSize:  3,
		BatchDelay: 2 * time.Second,
		Timeout:    30 * time.Second,
		Retries:    3,
		RetryDelay: 2 * time.Second,
	}
}

// Fetcher downloads raw feeds from configured sources. It is stateless
// beyond its HTTP client and safe for reuse across cycles.
type Fetcher struct {
	client  *http.Client
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Set
}

// New creates a new Fetcher.
func New(opts Options, m *metrics.Set, logger zerolog.Logger) *Fetcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	return &Fetcher{
		// Per-request deadlines come from the context, not the client.
		client:  &http.Client{},
		opts:    opts,
		logger:  logger.With().Str("component", "fetcher").Logger(),
		metrics: m,
	}
}

// FetchAll fetches every given source and returns one result per source, in
// input order regardless of completion order. The second return value is
// true when more than half of the sources failed.
func (f *Fetcher) FetchAll(ctx context.Context, sources []config.Source) ([]SourceResult, bool) {
	results := make([]SourceResult, len(sources))

	for start := 0; start < len(sources); start += f.opts.BatchSize {
		if start > 0 && f.opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				for i := start; i < len(sources); i++ {
					results[i] = SourceResult{Source: sources[i], Err: fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())}
				}
				return results, f.degraded(results)
			case <-time.After(f.opts.BatchDelay):
			}
		}

		end := start + f.opts.BatchSize
		if end > len(sources) {
			end = len(sources)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				payload, err := f.fetchWithRetry(ctx, sources[i])
				results[i] = SourceResult{Source: sources[i], Payload: payload, Err: err}
			}(i)
		}
		wg.Wait()
	}

	return results, f.degraded(results)
}

func (f *Fetcher) degraded(results []SourceResult) bool {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	return len(results) > 0 && failed*2 > len(results)
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, src config.Source) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.opts.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())
			case <-time.After(f.opts.RetryDelay):
			}
		}

		start := time.Now()
		payload, err := f.fetchOnce(ctx, src)
		duration := time.Since(start)

		if err == nil {
			f.metrics.RecordFetch(src.Name, "success", duration.Seconds())
			f.logger.Debug().
				Str("retailer", src.Name).
				Int("bytes", len(payload)).
				Dur("duration", duration).
				Msg("fetched feed")
			return payload, nil
		}

		lastErr = err
		f.metrics.RecordFetch(src.Name, "error", duration.Seconds())
		f.logger.Warn().
			Err(err).
			Str("retailer", src.Name).
			Int("attempt", attempt).
			Msg("feed fetch attempt failed")
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrSourceUnavailable, src.Name, f.opts.Retries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, src config.Source) ([]byte, error) {
	// The timeout cancels only this request, never sibling fetches.
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", useragent.Random())
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "json") {
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	// Structural check only; field validation is the normalizer's job.
	var probe struct {
		Stations *[]json.RawMessage `json:"stations"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	if probe.Stations == nil {
		return nil, errors.New("response missing stations array")
	}

	return body, nil
}
