// Package scheduler triggers pipeline runs on a cron expression.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"golang-fundamental-scryper/internal/crawler/service"
	"golang-fundamental-scryper/pkg/common"
	"golang-fundamental-scryper/pkg/logger"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs the pipeline on every tick of its schedule.
type Scheduler struct {
	cron     *cron.Cron
	pipeline service.PipelineService
	logger   *logger.Logger
	spec     string
}

// New validates spec and prepares a scheduler. Overlapping ticks are skipped.
func New(spec string, pipeline service.PipelineService, log *logger.Logger) (*Scheduler, error) {
	if _, err := cronParser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid crawler schedule %q: %w", spec, err)
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		pipeline: pipeline,
		logger:   log,
		spec:     spec,
	}, nil
}

// Start blocks until ctx is done, then waits for a running tick to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("failed to register schedule: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Crawler scheduler started", logger.StringField("schedule", s.spec))

	<-ctx.Done()
	s.logger.Info("Crawler scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	summary, err := s.pipeline.Run(ctx, common.CrawlTriggerSchedule)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		s.logger.Info("Scheduled crawl skipped, another run is in progress")
	case err != nil:
		s.logger.Error("Scheduled crawl failed", logger.ErrorField(err))
	default:
		s.logger.Info("Scheduled crawl finished",
			logger.StringField("run_id", summary.RunID),
			logger.IntField("succeeded", summary.Succeeded),
			logger.IntField("failed", summary.Failed))
	}
}
