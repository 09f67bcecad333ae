package service

import (
	"context"
	"encoding/json"

	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/repository"
	"golang-fundamental-scryper/internal/entity"
)

const defaultRunHistoryLimit = 20

// CrawlRunService exposes the run history.
type CrawlRunService interface {
	GetRun(ctx context.Context, id string) (*dto.CrawlRunResponse, error)
	ListRuns(ctx context.Context, limit int) ([]dto.CrawlRunResponse, error)
}

// NewCrawlRunService creates a new crawl run service.
func NewCrawlRunService(runRepo repository.CrawlRunRepository) CrawlRunService {
	return &crawlRunService{runRepo: runRepo}
}

type crawlRunService struct {
	runRepo repository.CrawlRunRepository
}

func (s *crawlRunService) GetRun(ctx context.Context, id string) (*dto.CrawlRunResponse, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toCrawlRunResponse(*run)
	return &resp, nil
}

func (s *crawlRunService) ListRuns(ctx context.Context, limit int) ([]dto.CrawlRunResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultRunHistoryLimit
	}
	runs, err := s.runRepo.FindRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	resp := make([]dto.CrawlRunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toCrawlRunResponse(run))
	}
	return resp, nil
}

func toCrawlRunResponse(run entity.CrawlRun) dto.CrawlRunResponse {
	resp := dto.CrawlRunResponse{
		ID:        run.ID,
		Trigger:   run.Trigger,
		Status:    string(run.Status),
		StartedAt: run.StartedAt,
	}
	if run.CompletedAt.Valid {
		completed := run.CompletedAt.Time
		resp.CompletedAt = &completed
	}
	if run.ErrorMessage.Valid {
		resp.ErrorMessage = run.ErrorMessage.String
	}
	if len(run.Summary) > 0 {
		var summary dto.RunSummary
		if err := json.Unmarshal(run.Summary, &summary); err == nil {
			resp.Summary = &summary
		}
	}
	return resp
}
