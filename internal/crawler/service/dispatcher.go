package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang-fundamental-scryper/internal/crawler/metrics"
	"golang-fundamental-scryper/pkg/logger"
	"golang-fundamental-scryper/pkg/utils"

	"golang.org/x/sync/semaphore"
)

// ErrNotDispatched marks tasks that never got a permit because the run was cancelled.
var ErrNotDispatched = errors.New("fetch not dispatched")

const defaultFetchTimeout = 20 * time.Second

var errWorkerPanicked = errors.New("fetch worker panicked")

// FetchTask is one detail page to process.
type FetchTask struct {
	Identifier string
	URL        string
}

// FetchResult is the completion of one FetchTask. Err is nil on success.
type FetchResult struct {
	Task    FetchTask
	Err     error
	Elapsed time.Duration
}

// WorkFunc processes a single task under its own deadline.
type WorkFunc func(ctx context.Context, task FetchTask) error

// Dispatcher runs tasks concurrently with at most maxConcurrent in flight.
type Dispatcher struct {
	log           *logger.Logger
	maxConcurrent int64
	fetchTimeout  time.Duration
}

func NewDispatcher(log *logger.Logger, maxConcurrent int64, fetchTimeout time.Duration) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &Dispatcher{
		log:           log,
		maxConcurrent: maxConcurrent,
		fetchTimeout:  fetchTimeout,
	}
}

// Dispatch starts every task and returns a channel carrying exactly one result per task.
// The channel is closed once all tasks have resolved. Cancelling ctx stops admission;
// tasks still waiting for a permit resolve with ErrNotDispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []FetchTask, work WorkFunc) <-chan FetchResult {
	results := make(chan FetchResult, d.maxConcurrent)
	permits := semaphore.NewWeighted(d.maxConcurrent)

	utils.GoSafe(func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(results)
		}()

		for i, task := range tasks {
			if err := permits.Acquire(ctx, 1); err != nil {
				d.log.WarnContext(ctx, "Run cancelled, skipping remaining fetches",
					logger.IntField("remaining", len(tasks)-i), logger.ErrorField(err))
				for _, skipped := range tasks[i:] {
					results <- FetchResult{Task: skipped, Err: fmt.Errorf("%w: %v", ErrNotDispatched, err)}
				}
				return
			}

			wg.Add(1)
			metrics.InFlightFetches.Inc()
			utils.GoSafe(func() {
				defer wg.Done()
				defer metrics.InFlightFetches.Dec()
				defer permits.Release(1)

				start := time.Now()
				result := FetchResult{Task: task, Err: errWorkerPanicked}
				defer func() {
					result.Elapsed = time.Since(start)
					results <- result
				}()

				fetchCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
				defer cancel()
				result.Err = work(fetchCtx, task)
			})
		}
	})

	return results
}
