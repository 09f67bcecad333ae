package entity

import (
	"time"
)

// Instrument is the latest known state of one tracked company.
// Indicator columns are pointers so a missing value is stored as NULL, never as zero.
type Instrument struct {
	Identifier   string     `gorm:"primaryKey;type:text" json:"identifier"`
	DisplayTitle *string    `json:"display_title,omitempty"`
	Sector       *string    `json:"sector,omitempty"`
	DetailURL    *string    `gorm:"column:detail_url" json:"detail_url,omitempty"`
	PEBucket     *string    `gorm:"column:pe_bucket" json:"pe_bucket,omitempty"`
	MarketCap    *float64   `json:"market_cap,omitempty"`
	PERatio      *float64   `gorm:"column:pe_ratio" json:"pe_ratio,omitempty"`
	BookValue    *float64   `json:"book_value,omitempty"`
	EPSTTM       *float64   `gorm:"column:eps_ttm" json:"eps_ttm,omitempty"`
	FaceValue    *float64   `json:"face_value,omitempty"`
	IndustryPE   *float64   `gorm:"column:industry_pe" json:"industry_pe,omitempty"`
	PriceToCash  *float64   `json:"price_to_cash,omitempty"`
	PriceToBook  *float64   `json:"price_to_book,omitempty"`
	UpdatedOn    *time.Time `json:"updated_on,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for the Instrument model.
func (Instrument) TableName() string {
	return "instruments"
}

// AllowedInstrument is one member of the allow-list, referenced by instruments.identifier.
type AllowedInstrument struct {
	Identifier string    `gorm:"primaryKey;type:text"`
	Version    string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (AllowedInstrument) TableName() string {
	return "allowed_instruments"
}
