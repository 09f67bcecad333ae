package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang-fundamental-scryper/internal/crawler/allowlist"
	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/parser"
	"golang-fundamental-scryper/internal/entity"
	"golang-fundamental-scryper/pkg/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultInstrumentListLimit = 100

var (
	listingColumns   = []string{"display_title", "sector", "detail_url"}
	indicatorColumns = []string{
		"market_cap", "pe_ratio", "book_value", "eps_ttm", "face_value",
		"industry_pe", "price_to_cash", "price_to_book", "pe_bucket", "updated_on",
	}
)

// InstrumentRepository defines the interface for reading and writing instrument rows.
// Every write is checked against the allow-list before it reaches the database,
// and the database enforces the same set through fk_instruments_allowed.
type InstrumentRepository interface {
	UpsertListing(ctx context.Context, entry parser.ListingEntry) error
	UpsertIndicators(ctx context.Context, update dto.IndicatorUpdate) error
	ListDetailURLs(ctx context.Context) ([]dto.InstrumentURL, error)
	IsListingPopulated(ctx context.Context) (bool, error)
	SyncAllowList(ctx context.Context) (removed int64, err error)
	ListInstruments(ctx context.Context, req dto.InstrumentListRequest) ([]entity.Instrument, error)
	TopSectors(ctx context.Context, n int) ([]dto.SectorMarketCap, error)
	PEBucketHistogram(ctx context.Context) ([]dto.PEBucketCount, error)
}

// NewInstrumentRepository creates a new instance of InstrumentRepository.
func NewInstrumentRepository(db *gorm.DB, guard *allowlist.Guard) InstrumentRepository {
	return &instrumentRepository{
		db:    db,
		guard: guard,
	}
}

type instrumentRepository struct {
	db    *gorm.DB
	guard *allowlist.Guard
}

// UpsertListing inserts the instrument or refreshes its title, sector and detail URL.
func (r *instrumentRepository) UpsertListing(ctx context.Context, entry parser.ListingEntry) error {
	if err := r.guard.Check(entry.Identifier); err != nil {
		return err
	}

	instrument := entity.Instrument{
		Identifier:   entry.Identifier,
		DisplayTitle: utils.ToPointer(entry.Title),
		Sector:       utils.ToPointer(entry.Sector),
		DetailURL:    utils.ToPointer(entry.DetailURL),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns(listingColumns),
	}).Create(&instrument).Error
	return mapStoreError(err, "upsert listing", entry.Identifier)
}

// UpsertIndicators writes every indicator column, the P/E bucket and updated_on in one statement.
func (r *instrumentRepository) UpsertIndicators(ctx context.Context, update dto.IndicatorUpdate) error {
	if err := r.guard.Check(update.Identifier); err != nil {
		return err
	}

	updatedOn := update.UpdatedOn
	instrument := entity.Instrument{
		Identifier:  update.Identifier,
		MarketCap:   update.MarketCap,
		PERatio:     update.PERatio,
		BookValue:   update.BookValue,
		EPSTTM:      update.EPSTTM,
		FaceValue:   update.FaceValue,
		IndustryPE:  update.IndustryPE,
		PriceToCash: update.PriceToCash,
		PriceToBook: update.PriceToBook,
		PEBucket:    utils.ToPointer(update.PEBucket),
		UpdatedOn:   &updatedOn,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns(indicatorColumns),
	}).Create(&instrument).Error
	return mapStoreError(err, "upsert indicators", update.Identifier)
}

func (r *instrumentRepository) ListDetailURLs(ctx context.Context) ([]dto.InstrumentURL, error) {
	var urls []dto.InstrumentURL
	err := r.db.WithContext(ctx).
		Model(&entity.Instrument{}).
		Select("identifier", "detail_url").
		Where("detail_url IS NOT NULL AND detail_url <> ''").
		Order("identifier").
		Scan(&urls).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list detail urls: %v", ErrPersistence, err)
	}
	return urls, nil
}

// IsListingPopulated reports whether any instrument already carries a detail URL.
func (r *instrumentRepository) IsListingPopulated(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.WithContext(ctx).
		Raw("SELECT EXISTS (SELECT 1 FROM instruments WHERE detail_url IS NOT NULL AND detail_url <> '')").
		Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("%w: failed to check listing: %v", ErrPersistence, err)
	}
	return exists, nil
}

// SyncAllowList upserts the configured members into allowed_instruments and removes
// members no longer configured. Instrument rows are never deleted here: if a removed
// member is still referenced, nothing is written and ErrStaleAllowList names it.
func (r *instrumentRepository) SyncAllowList(ctx context.Context) (int64, error) {
	ids := r.guard.Identifiers()
	members := make([]entity.AllowedInstrument, 0, len(ids))
	for _, id := range ids {
		members = append(members, entity.AllowedInstrument{Identifier: id, Version: r.guard.Version()})
	}

	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: allow-list %s is empty", ErrPersistence, r.guard.Version())
	}

	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referenced []string
		err := tx.Raw(`
			SELECT a.identifier FROM allowed_instruments a
			WHERE a.identifier NOT IN ?
			AND EXISTS (SELECT 1 FROM instruments i WHERE i.identifier = a.identifier)
			ORDER BY a.identifier`,
			ids).Scan(&referenced).Error
		if err != nil {
			return fmt.Errorf("failed to check removed allow-list members: %w", err)
		}
		if len(referenced) > 0 {
			return fmt.Errorf("%w: %s", ErrStaleAllowList, strings.Join(referenced, ", "))
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identifier"}},
			DoUpdates: clause.AssignmentColumns([]string{"version"}),
		}).CreateInBatches(&members, 500).Error
		if err != nil {
			return fmt.Errorf("failed to upsert allow-list: %w", err)
		}

		res := tx.Exec(`
			DELETE FROM allowed_instruments
			WHERE identifier NOT IN ?`,
			ids)
		if res.Error != nil {
			return fmt.Errorf("failed to prune allow-list: %w", res.Error)
		}
		removed = res.RowsAffected
		return nil
	})
	if errors.Is(err, ErrStaleAllowList) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return removed, nil
}

func (r *instrumentRepository) ListInstruments(ctx context.Context, req dto.InstrumentListRequest) ([]entity.Instrument, error) {
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultInstrumentListLimit
	}

	query := r.db.WithContext(ctx).Model(&entity.Instrument{})
	if req.Sector != "" {
		query = query.Where("sector = ?", req.Sector)
	}
	if req.PEBucket != "" {
		query = query.Where("pe_bucket = ?", req.PEBucket)
	}

	var instruments []entity.Instrument
	err := query.Order("identifier").Limit(limit).Offset(req.Offset).Find(&instruments).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list instruments: %v", ErrPersistence, err)
	}
	return instruments, nil
}

// TopSectors returns the n sectors with the largest summed market cap.
func (r *instrumentRepository) TopSectors(ctx context.Context, n int) ([]dto.SectorMarketCap, error) {
	var sectors []dto.SectorMarketCap
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			sector,
			SUM(market_cap) AS total_market_cap,
			COUNT(*) AS instruments
		FROM instruments
		WHERE sector IS NOT NULL AND market_cap IS NOT NULL
		GROUP BY sector
		ORDER BY total_market_cap DESC, sector
		LIMIT ?`, n).Scan(&sectors).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query top sectors: %v", ErrPersistence, err)
	}
	return sectors, nil
}

// PEBucketHistogram groups instruments by P/E bucket, listing their titles per bucket.
func (r *instrumentRepository) PEBucketHistogram(ctx context.Context) ([]dto.PEBucketCount, error) {
	var buckets []dto.PEBucketCount
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			pe_bucket,
			COUNT(*) AS instruments,
			array_agg(COALESCE(display_title, identifier) ORDER BY identifier) AS titles
		FROM instruments
		WHERE pe_bucket IS NOT NULL
		GROUP BY pe_bucket
		ORDER BY MIN(pe_ratio) NULLS FIRST, pe_bucket`).Scan(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query pe buckets: %v", ErrPersistence, err)
	}
	return buckets, nil
}
