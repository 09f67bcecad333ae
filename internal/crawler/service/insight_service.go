package service

import (
	"context"
	"fmt"
	"time"

	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/metrics"
	"golang-fundamental-scryper/internal/crawler/repository"
	"golang-fundamental-scryper/internal/entity"

	"github.com/patrickmn/go-cache"
)

const (
	insightCacheTTL     = 10 * time.Minute
	insightCacheCleanup = 20 * time.Minute

	pebucketsCacheKey = "insight:pe_buckets"
)

// InsightService serves read-only reports over the stored instruments.
type InsightService interface {
	TopSectors(ctx context.Context, n int) (*dto.TopSectorsResponse, error)
	PEBuckets(ctx context.Context) (*dto.PEBucketsResponse, error)
	ListInstruments(ctx context.Context, req dto.InstrumentListRequest) ([]entity.Instrument, error)
	// Invalidate drops cached reports. Called after every run.
	Invalidate()
}

// NewInsightService creates a new insight service with an in-memory report cache.
func NewInsightService(instrumentRepo repository.InstrumentRepository) InsightService {
	return &insightService{
		instrumentRepo: instrumentRepo,
		inmemoryCache:  cache.New(insightCacheTTL, insightCacheCleanup),
	}
}

type insightService struct {
	instrumentRepo repository.InstrumentRepository
	inmemoryCache  *cache.Cache
}

func (s *insightService) TopSectors(ctx context.Context, n int) (*dto.TopSectorsResponse, error) {
	key := fmt.Sprintf("insight:top_sectors:%d", n)
	if cached, found := s.inmemoryCache.Get(key); found {
		metrics.IncCacheAccess(true)
		return cached.(*dto.TopSectorsResponse), nil
	}
	metrics.IncCacheAccess(false)

	sectors, err := s.instrumentRepo.TopSectors(ctx, n)
	if err != nil {
		return nil, err
	}
	resp := &dto.TopSectorsResponse{N: n, Sectors: sectors}
	s.inmemoryCache.SetDefault(key, resp)
	return resp, nil
}

func (s *insightService) PEBuckets(ctx context.Context) (*dto.PEBucketsResponse, error) {
	if cached, found := s.inmemoryCache.Get(pebucketsCacheKey); found {
		metrics.IncCacheAccess(true)
		return cached.(*dto.PEBucketsResponse), nil
	}
	metrics.IncCacheAccess(false)

	buckets, err := s.instrumentRepo.PEBucketHistogram(ctx)
	if err != nil {
		return nil, err
	}
	resp := &dto.PEBucketsResponse{Buckets: buckets}
	s.inmemoryCache.SetDefault(pebucketsCacheKey, resp)
	return resp, nil
}

// ListInstruments is not cached; filters make the key space unbounded.
func (s *insightService) ListInstruments(ctx context.Context, req dto.InstrumentListRequest) ([]entity.Instrument, error) {
	return s.instrumentRepo.ListInstruments(ctx, req)
}

func (s *insightService) Invalidate() {
	s.inmemoryCache.Flush()
}
