package dto

import (
	"time"
)

// InstrumentURL is a stored detail page address for one instrument.
type InstrumentURL struct {
	Identifier string `gorm:"column:identifier"`
	DetailURL  string `gorm:"column:detail_url"`
}

// IndicatorUpdate carries one parsed detail page into the store.
// A nil indicator is written as NULL.
type IndicatorUpdate struct {
	Identifier  string
	MarketCap   *float64
	PERatio     *float64
	BookValue   *float64
	EPSTTM      *float64
	FaceValue   *float64
	IndustryPE  *float64
	PriceToCash *float64
	PriceToBook *float64
	PEBucket    string
	UpdatedOn   time.Time
}

// InstrumentListRequest filters GET /instruments.
type InstrumentListRequest struct {
	Sector   string `query:"sector"`
	PEBucket string `query:"pe_bucket"`
	Limit    int    `query:"limit"`
	Offset   int    `query:"offset"`
}
