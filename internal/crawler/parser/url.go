package parser

import (
	"net/url"
	"strings"
)

// InstrumentFromURL derives the identifier (second to last path segment) and the sector
// (third to last) from a detail page URL such as
// /india/stockpricequote/computerssoftware/infosys/IT.
func InstrumentFromURL(u *url.URL) (identifier, sector string, ok bool) {
	if u == nil {
		return "", "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 {
		return "", "", false
	}
	identifier = strings.TrimSpace(segments[len(segments)-2])
	sector = strings.TrimSpace(segments[len(segments)-3])
	if identifier == "" {
		return "", "", false
	}
	return identifier, sector, true
}
