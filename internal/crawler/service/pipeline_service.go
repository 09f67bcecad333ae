package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang-fundamental-scryper/internal/crawler/allowlist"
	"golang-fundamental-scryper/internal/crawler/config"
	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/metrics"
	"golang-fundamental-scryper/internal/crawler/parser"
	"golang-fundamental-scryper/internal/crawler/repository"
	"golang-fundamental-scryper/internal/entity"
	"golang-fundamental-scryper/pkg/logger"
	"golang-fundamental-scryper/pkg/telegram"
	"golang-fundamental-scryper/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrRunInProgress is returned when another run holds the run lock.
var ErrRunInProgress = errors.New("a crawl run is already in progress")

const finalizeTimeout = 10 * time.Second

// PipelineService runs the listing bootstrap and the concurrent detail fan-out.
type PipelineService interface {
	// Run executes one run synchronously and returns its summary.
	Run(ctx context.Context, trigger string) (*dto.RunSummary, error)
	// Start takes the run lock and executes the run in the background, returning its id.
	Start(ctx context.Context, trigger string) (string, error)
}

// NewPipelineService wires the pipeline. eventRepo, notifier and insights may be nil.
func NewPipelineService(
	cfg *config.Config,
	log *logger.Logger,
	instrumentRepo repository.InstrumentRepository,
	runRepo repository.CrawlRunRepository,
	sourceRepo repository.SourceRepository,
	lockRepo repository.RunLockRepository,
	eventRepo repository.RunEventRepository,
	notifier telegram.Notifier,
	insights InsightService,
) PipelineService {
	return &pipelineService{
		cfg:            cfg,
		log:            log,
		instrumentRepo: instrumentRepo,
		runRepo:        runRepo,
		sourceRepo:     sourceRepo,
		lockRepo:       lockRepo,
		eventRepo:      eventRepo,
		notifier:       notifier,
		insights:       insights,
		dispatcher:     NewDispatcher(log, cfg.Crawler.MaxConcurrentFetches, cfg.Crawler.FetchTimeout),
		now:            utils.TimeNowIST,
	}
}

type pipelineService struct {
	cfg            *config.Config
	log            *logger.Logger
	instrumentRepo repository.InstrumentRepository
	runRepo        repository.CrawlRunRepository
	sourceRepo     repository.SourceRepository
	lockRepo       repository.RunLockRepository
	eventRepo      repository.RunEventRepository
	notifier       telegram.Notifier
	insights       InsightService
	dispatcher     *Dispatcher
	now            func() time.Time
}

func (s *pipelineService) Run(ctx context.Context, trigger string) (*dto.RunSummary, error) {
	runID := uuid.NewString()
	unlock, err := s.lock(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.execute(ctx, runID, trigger)
}

// Start detaches the run from ctx's cancellation so it outlives the triggering request.
func (s *pipelineService) Start(ctx context.Context, trigger string) (string, error) {
	runID := uuid.NewString()
	unlock, err := s.lock(ctx, runID)
	if err != nil {
		return "", err
	}

	runCtx := context.WithoutCancel(ctx)
	utils.GoSafe(func() {
		defer unlock()
		if _, err := s.execute(runCtx, runID, trigger); err != nil {
			s.log.ErrorContext(logger.WithRunID(runCtx, runID), "Background crawl run failed", logger.ErrorField(err))
		}
	})
	return runID, nil
}

func (s *pipelineService) lock(ctx context.Context, runID string) (func(), error) {
	ok, err := s.lockRepo.TryLock(ctx, runID, s.cfg.Crawler.RunLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to take run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
		if err := s.lockRepo.Unlock(releaseCtx, runID); err != nil {
			s.log.WarnContext(releaseCtx, "Failed to release run lock", logger.StringField("run_id", runID), logger.ErrorField(err))
		}
	}, nil
}

func (s *pipelineService) execute(ctx context.Context, runID, trigger string) (*dto.RunSummary, error) {
	ctx = logger.WithRunID(ctx, runID)
	summary := &dto.RunSummary{
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: s.now(),
		Failures:  make(map[dto.FailureReason]int),
	}

	run := &entity.CrawlRun{
		ID:        runID,
		Trigger:   trigger,
		Status:    entity.CrawlRunStatusRunning,
		StartedAt: summary.StartedAt,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		s.log.WarnContext(ctx, "Failed to record crawl run start", logger.ErrorField(err))
	}

	s.log.InfoContext(ctx, "Crawl run started", logger.StringField("trigger", trigger))
	runErr := s.pipeline(ctx, summary)
	summary.FinishedAt = s.now()
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	s.finalize(ctx, run, summary, runErr)
	return summary, runErr
}

func (s *pipelineService) pipeline(ctx context.Context, summary *dto.RunSummary) error {
	bootstrap, err := s.bootstrap(ctx)
	summary.Bootstrap = bootstrap
	if err != nil {
		return err
	}

	urls, err := s.instrumentRepo.ListDetailURLs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list detail urls: %w", err)
	}

	tasks := uniqueTasks(urls)
	s.log.InfoContext(ctx, "Dispatching detail fetches",
		logger.IntField("tasks", len(tasks)),
		logger.Field("max_concurrent", s.cfg.Crawler.MaxConcurrentFetches))

	var ambiguous atomic.Int64
	for result := range s.dispatcher.Dispatch(ctx, tasks, s.processDetail(&ambiguous)) {
		summary.Attempted++
		if result.Err == nil {
			summary.Succeeded++
			continue
		}

		reason := failureReason(result.Err)
		summary.Failed++
		summary.Failures[reason]++
		s.log.WarnContext(ctx, "Failed to update instrument",
			logger.StringField("identifier", result.Task.Identifier),
			logger.StringField("url", result.Task.URL),
			logger.StringField("reason", string(reason)),
			logger.DurationField("elapsed", result.Elapsed),
			logger.ErrorField(result.Err))
	}
	summary.Ambiguous = int(ambiguous.Load())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl run interrupted: %w", err)
	}
	return nil
}

// bootstrap fills the listing when the store has none. Failing to read or parse the listing is fatal.
func (s *pipelineService) bootstrap(ctx context.Context) (dto.BootstrapSummary, error) {
	var result dto.BootstrapSummary

	populated, err := s.instrumentRepo.IsListingPopulated(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to check listing: %w", err)
	}
	if populated {
		s.log.InfoContext(ctx, "Listing already populated, skipping listing fetch")
		result.Skipped = true
		return result, nil
	}

	s.log.InfoContext(ctx, "Listing not available, fetching listing page", logger.StringField("url", s.cfg.Crawler.ListingURL))
	start := time.Now()
	page, err := s.sourceRepo.Fetch(ctx, s.cfg.Crawler.ListingURL)
	if err != nil {
		metrics.ObserveFetch("listing", "error", start)
		s.log.ErrorContext(ctx, "Failed to fetch listing page", logger.ErrorField(err))
		return result, fmt.Errorf("failed to fetch listing page: %w", err)
	}
	metrics.ObserveFetch("listing", "ok", start)

	entries, err := parser.ExtractListing(bytes.NewReader(page.Body), page.FinalURL)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to extract listing", logger.ErrorField(err))
		return result, fmt.Errorf("failed to extract listing: %w", err)
	}
	result.Discovered = len(entries)

	for _, entry := range entries {
		err := s.instrumentRepo.UpsertListing(ctx, entry)
		metrics.IncUpsert("listing", err)
		switch {
		case err == nil:
			result.Stored++
		case errors.Is(err, allowlist.ErrAllowListViolation):
			result.Rejected++
			s.log.WarnContext(ctx, "Listing entry outside allow-list",
				logger.StringField("identifier", entry.Identifier),
				logger.StringField("title", entry.Title))
		default:
			s.log.WarnContext(ctx, "Failed to store listing entry",
				logger.StringField("identifier", entry.Identifier),
				logger.ErrorField(err))
		}
	}

	s.log.InfoContext(ctx, "Listing bootstrap finished",
		logger.IntField("discovered", result.Discovered),
		logger.IntField("stored", result.Stored),
		logger.IntField("rejected", result.Rejected))
	return result, nil
}

func (s *pipelineService) processDetail(ambiguous *atomic.Int64) WorkFunc {
	return func(ctx context.Context, task FetchTask) error {
		start := time.Now()
		page, err := s.sourceRepo.Fetch(ctx, task.URL)
		if err != nil {
			metrics.ObserveFetch("detail", "error", start)
			return err
		}
		metrics.ObserveFetch("detail", "ok", start)

		identifier := task.Identifier
		if resolved, _, ok := parser.InstrumentFromURL(page.FinalURL); ok {
			identifier = resolved
		}

		indicators, err := parser.ExtractIndicators(bytes.NewReader(page.Body))
		if err != nil {
			return fmt.Errorf("failed to extract indicators for %s: %w", identifier, err)
		}

		unparsed := indicators.Ambiguous()
		if len(unparsed) > 0 {
			sort.Strings(unparsed)
			ambiguous.Add(int64(len(unparsed)))
			s.log.DebugContext(ctx, "Indicator values without a number",
				logger.StringField("identifier", identifier),
				logger.StringField("indicators", strings.Join(unparsed, ",")))
		}

		peRatio := indicators.Get(parser.FieldPERatio)
		err = s.instrumentRepo.UpsertIndicators(ctx, dto.IndicatorUpdate{
			Identifier:  identifier,
			MarketCap:   indicators.Get(parser.FieldMarketCap),
			PERatio:     peRatio,
			BookValue:   indicators.Get(parser.FieldBookValue),
			EPSTTM:      indicators.Get(parser.FieldEPSTTM),
			FaceValue:   indicators.Get(parser.FieldFaceValue),
			IndustryPE:  indicators.Get(parser.FieldIndustryPE),
			PriceToCash: indicators.Get(parser.FieldPriceToCash),
			PriceToBook: indicators.Get(parser.FieldPriceToBook),
			PEBucket:    parser.PEBucket(peRatio),
			UpdatedOn:   s.now(),
		})
		metrics.IncUpsert("indicators", err)
		return err
	}
}

// finalize records the outcome. It runs on a detached context so a cancelled run is still recorded.
func (s *pipelineService) finalize(ctx context.Context, run *entity.CrawlRun, summary *dto.RunSummary, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	status := entity.CrawlRunStatusCompleted
	if runErr != nil {
		status = entity.CrawlRunStatusFailed
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}
	run.Status = status
	run.CompletedAt = sql.NullTime{Time: summary.FinishedAt, Valid: true}
	if payload, err := json.Marshal(summary); err == nil {
		run.Summary = datatypes.JSON(payload)
	}
	if err := s.runRepo.Update(ctx, run); err != nil {
		s.log.WarnContext(ctx, "Failed to record crawl run result", logger.ErrorField(err))
	}

	metrics.ObserveRun(summary.Trigger, string(status), summary.Duration())

	if s.insights != nil {
		s.insights.Invalidate()
	}

	if runErr == nil && s.eventRepo != nil {
		if err := s.eventRepo.PublishRunCompleted(ctx, *summary); err != nil {
			s.log.WarnContext(ctx, "Failed to publish run completed event", logger.ErrorField(err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendMessage(telegram.FormatRunSummary(*summary)); err != nil {
			s.log.WarnContext(ctx, "Failed to send run summary to telegram", logger.ErrorField(err))
		}
	}

	fields := []zap.Field{
		logger.StringField("status", string(status)),
		logger.IntField("attempted", summary.Attempted),
		logger.IntField("succeeded", summary.Succeeded),
		logger.IntField("failed", summary.Failed),
		logger.Field("failures", summary.Failures),
		logger.DurationField("duration", summary.Duration()),
	}
	if runErr != nil {
		s.log.ErrorContext(ctx, "Crawl run failed", append(fields, logger.ErrorField(runErr))...)
		return
	}
	s.log.InfoContext(ctx, "Crawl run completed", fields...)
}

// uniqueTasks drops empty and repeated detail URLs, keeping the first identifier seen for each.
func uniqueTasks(urls []dto.InstrumentURL) []FetchTask {
	tasks := make([]FetchTask, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		detailURL := strings.TrimSpace(u.DetailURL)
		if detailURL == "" {
			continue
		}
		if _, dup := seen[detailURL]; dup {
			continue
		}
		seen[detailURL] = struct{}{}
		tasks = append(tasks, FetchTask{Identifier: u.Identifier, URL: detailURL})
	}
	return tasks
}

func failureReason(err error) dto.FailureReason {
	switch {
	case errors.Is(err, ErrNotDispatched):
		return dto.FailureCancelled
	case errors.Is(err, allowlist.ErrAllowListViolation):
		return dto.FailureAllowList
	case errors.Is(err, parser.ErrLayoutChanged):
		return dto.FailureLayoutChanged
	case errors.Is(err, repository.ErrPersistence):
		return dto.FailurePersistence
	case errors.Is(err, repository.ErrTransport):
		return dto.FailureTransport
	default:
		return dto.FailureOther
	}
}
