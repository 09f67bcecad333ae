package repository

import (
	"context"
	"errors"
	"fmt"

	"golang-fundamental-scryper/internal/entity"

	"gorm.io/gorm"
)

// ErrRunNotFound is returned when a crawl run id is unknown.
var ErrRunNotFound = errors.New("crawl run not found")

// CrawlRunRepository defines the interface for crawl run history.
type CrawlRunRepository interface {
	Create(ctx context.Context, run *entity.CrawlRun) error
	Update(ctx context.Context, run *entity.CrawlRun) error
	FindByID(ctx context.Context, id string) (*entity.CrawlRun, error)
	FindRecent(ctx context.Context, limit int) ([]entity.CrawlRun, error)
}

// NewCrawlRunRepository creates a new GORM-based crawl run repository.
func NewCrawlRunRepository(db *gorm.DB) CrawlRunRepository {
	return &crawlRunRepository{db: db}
}

type crawlRunRepository struct {
	db *gorm.DB
}

func (r *crawlRunRepository) Create(ctx context.Context, run *entity.CrawlRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create crawl run: %w", err)
	}
	return nil
}

func (r *crawlRunRepository) Update(ctx context.Context, run *entity.CrawlRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to update crawl run %s: %w", run.ID, err)
	}
	return nil
}

// FindByID retrieves a crawl run by its id.
func (r *crawlRunRepository) FindByID(ctx context.Context, id string) (*entity.CrawlRun, error) {
	var run entity.CrawlRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to find crawl run %s: %w", id, err)
	}
	return &run, nil
}

// FindRecent returns the latest runs, newest first.
func (r *crawlRunRepository) FindRecent(ctx context.Context, limit int) ([]entity.CrawlRun, error) {
	var runs []entity.CrawlRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	return runs, nil
}
