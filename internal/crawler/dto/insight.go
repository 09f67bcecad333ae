package dto

import (
	"github.com/lib/pq"
)

// SectorMarketCap is one row of the top sectors report.
type SectorMarketCap struct {
	Sector         string  `json:"sector" gorm:"column:sector"`
	TotalMarketCap float64 `json:"total_market_cap" gorm:"column:total_market_cap"`
	Instruments    int     `json:"instruments" gorm:"column:instruments"`
}

// PEBucketCount is one row of the P/E bucket histogram. Titles falls back to the
// identifier when the listing title is missing.
type PEBucketCount struct {
	Bucket string         `json:"bucket" gorm:"column:pe_bucket"`
	Count  int            `json:"count" gorm:"column:instruments"`
	Titles pq.StringArray `json:"titles" gorm:"column:titles;type:text[]"`
}

// TopSectorsResponse is returned by GET /insights/top-sectors.
type TopSectorsResponse struct {
	N       int               `json:"n"`
	Sectors []SectorMarketCap `json:"sectors"`
}

// PEBucketsResponse is returned by GET /insights/pe-buckets.
type PEBucketsResponse struct {
	Buckets []PEBucketCount `json:"buckets"`
}
