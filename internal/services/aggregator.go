package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wordbloom/analytics-backend/internal/clients/studystore"
	"github.com/wordbloom/analytics-backend/internal/config"
	"github.com/wordbloom/analytics-backend/internal/httpx"
	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/scoring"
	"github.com/wordbloom/analytics-backend/internal/types"
)

// Aggregator folds raw attempts and sessions into per-user totals. Both
// passes are read-only against the store and keep no state across calls, so
// re-running against unchanged data is idempotent.
type Aggregator interface {
	AggregatePoints(ctx context.Context, userIDs []string, since *time.Time) (map[string]float64, error)
	AggregateStars(ctx context.Context, userIDs []string, since *time.Time) (map[string]int, error)
}

type aggregator struct {
	log         *logger.Logger
	store       studystore.Client
	chunkSize   int
	pageSize    int
	concurrency int
	pageRetries int
}

func NewAggregator(store studystore.Client, baseLog *logger.Logger, cfg config.AggregationConfig) Aggregator {
	serviceLog := baseLog.With("service", "Aggregator")
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &aggregator{
		log:         serviceLog,
		store:       store,
		chunkSize:   cfg.ChunkSize,
		pageSize:    cfg.PageSize,
		concurrency: concurrency,
		pageRetries: cfg.PageRetries,
	}
}

// AggregatePoints sums attempt points per user over the window. Chunks are
// fanned out with bounded concurrency; each chunk pages offset-exact windows
// until a short page signals end-of-data (no count query).
func (a *aggregator) AggregatePoints(ctx context.Context, userIDs []string, since *time.Time) (map[string]float64, error) {
	totals := make(map[string]float64)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, chunk := range chunkIDs(userIDs, a.chunkSize) {
		chunk := chunk
		g.Go(func() error {
			local := make(map[string]float64)
			from := 0
			for {
				filters := []studystore.Filter{
					studystore.In("user_id", chunk),
					studystore.NotNull("points"),
				}
				if since != nil {
					filters = append(filters, studystore.Gte("created_at", since.UTC().Format(time.RFC3339)))
				}
				var rows []types.Attempt
				q := studystore.Query{
					Select:  "user_id,points,created_at",
					Filters: filters,
					Order:   "id.asc",
					Range:   &[2]int{from, from + a.pageSize - 1},
				}
				if err := a.selectPage(gctx, studystore.TableAttempts, q, &rows); err != nil {
					return err
				}
				for _, row := range rows {
					local[row.UserID] += scoring.PointsOf(row)
				}
				if len(rows) < a.pageSize {
					break
				}
				from += a.pageSize
			}
			mu.Lock()
			for id, v := range local {
				totals[id] += v
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}

type sessionKey struct {
	userID   string
	listName string
	mode     string
}

// AggregateStars keeps the best star rating per (user, list, mode) across
// qualifying sessions, then sums the bests per user. Sessions never lower a
// recorded best; rows deriving to zero stars cannot be anyone's best and are
// skipped outright.
func (a *aggregator) AggregateStars(ctx context.Context, userIDs []string, since *time.Time) (map[string]int, error) {
	best := make(map[sessionKey]int)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, chunk := range chunkIDs(userIDs, a.chunkSize) {
		chunk := chunk
		g.Go(func() error {
			local := make(map[sessionKey]int)
			from := 0
			for {
				filters := []studystore.Filter{
					studystore.In("user_id", chunk),
					studystore.NotNull("ended_at"),
				}
				if since != nil {
					filters = append(filters, studystore.Gte("ended_at", since.UTC().Format(time.RFC3339)))
				}
				var rows []types.Session
				q := studystore.Query{
					Select:  "user_id,list_name,mode,summary,ended_at",
					Filters: filters,
					Order:   "id.asc",
					Range:   &[2]int{from, from + a.pageSize - 1},
				}
				if err := a.selectPage(gctx, studystore.TableSessions, q, &rows); err != nil {
					return err
				}
				for _, row := range rows {
					stars := scoring.DeriveStars(row.Summary)
					if stars <= 0 {
						continue
					}
					key := sessionKey{userID: row.UserID, listName: row.ListName, mode: row.Mode}
					if stars > local[key] {
						local[key] = stars
					}
				}
				if len(rows) < a.pageSize {
					break
				}
				from += a.pageSize
			}
			mu.Lock()
			for key, v := range local {
				if v > best[key] {
					best[key] = v
				}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	totals := make(map[string]int)
	for key, v := range best {
		totals[key.userID] += v
	}
	return totals, nil
}

// selectPage retries a single page on retryable statuses; the data client
// itself never retries.
func (a *aggregator) selectPage(ctx context.Context, table string, q studystore.Query, dest any) error {
	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := a.store.Select(ctx, table, q, dest)
		if err == nil {
			return nil
		}
		var se *studystore.StoreError
		if attempt >= a.pageRetries || !errors.As(err, &se) || !httpx.IsRetryableHTTPStatus(se.Status) {
			return err
		}
		a.log.Warn("Retrying store page", "table", table, "attempt", attempt+1, "status", se.Status)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(httpx.JitterSleep(backoff)):
		}
		backoff *= 2
	}
}

func chunkIDs(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
