package parser

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractListing(t *testing.T) {
	f, err := os.Open("testdata/listing.html")
	require.NoError(t, err)
	defer f.Close()

	base, _ := url.Parse("http://www.moneycontrol.com/india/stockpricequote/A")
	entries, err := ExtractListing(f, base)
	require.NoError(t, err)

	assert.Equal(t, []ListingEntry{
		{
			Identifier: "infosys",
			Title:      "Infosys",
			Sector:     "computerssoftware",
			DetailURL:  "http://www.moneycontrol.com/india/stockpricequote/computerssoftware/infosys/IT",
		},
		{
			Identifier: "bajajfinserv",
			Title:      "Bajaj Finserv",
			Sector:     "financeinvestments",
			DetailURL:  "http://www.moneycontrol.com/india/stockpricequote/financeinvestments/bajajfinserv/BF04",
		},
		{
			Identifier: "hdfcbank",
			Title:      "HDFC Bank",
			Sector:     "banksprivatesector",
			DetailURL:  "http://www.moneycontrol.com/india/stockpricequote/banksprivatesector/hdfcbank/HDF01",
		},
		{
			Identifier: "wipro",
			Title:      "Wipro",
			Sector:     "computerssoftware",
			DetailURL:  "http://www.moneycontrol.com/india/stockpricequote/computerssoftware/wipro/W",
		},
	}, entries)
}

func TestExtractListingLayoutChanged(t *testing.T) {
	_, err := ExtractListing(strings.NewReader(`<html><table class="other"><tr><td><a href="/a/b/c/d">X</a></td></tr></table></html>`), nil)
	assert.True(t, errors.Is(err, ErrLayoutChanged))
}

func TestExtractListingEmptyTable(t *testing.T) {
	entries, err := ExtractListing(strings.NewReader(`<table class="pcq_tbl MT10"><tr><td></td></tr></table>`), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstrumentFromURL(t *testing.T) {
	u, _ := url.Parse("https://www.moneycontrol.com/india/stockpricequote/computerssoftware/infosys/IT/")
	id, sector, ok := InstrumentFromURL(u)
	assert.True(t, ok)
	assert.Equal(t, "infosys", id)
	assert.Equal(t, "computerssoftware", sector)

	u, _ = url.Parse("https://www.moneycontrol.com/infosys/IT")
	_, _, ok = InstrumentFromURL(u)
	assert.False(t, ok)

	_, _, ok = InstrumentFromURL(nil)
	assert.False(t, ok)
}
