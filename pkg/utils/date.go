package utils

import (
	"time"
)

const sourceTimeZone = "Asia/Kolkata"

// GetISTTimeLocation returns the source market time zone, falling back to a fixed +05:30 zone
// when tzdata is unavailable.
func GetISTTimeLocation() *time.Location {
	loc, err := time.LoadLocation(sourceTimeZone)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

func TimeNowIST() time.Time {
	return time.Now().In(GetISTTimeLocation())
}
