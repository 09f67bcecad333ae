package service

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang-fundamental-scryper/internal/crawler/allowlist"
	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/parser"
	"golang-fundamental-scryper/internal/crawler/repository"
	"golang-fundamental-scryper/internal/entity"
)

const testListingURL = "http://www.moneycontrol.com/stocks/marketinfo/marketcap/bse/index.html"

func detailURL(sector, slug string) string {
	return fmt.Sprintf("http://www.moneycontrol.com/india/stockpricequote/%s/%s/%s01", sector, slug, slug)
}

func listingHTML(entries ...parser.ListingEntry) string {
	html := `<html><body><table class="pcq_tbl MT10"><tr>`
	for _, e := range entries {
		html += fmt.Sprintf(`<td><a href="%s">%s</a></td>`, e.DetailURL, e.Title)
	}
	return html + `</tr></table></body></html>`
}

func detailHTML(pe string) string {
	return `<html><body><div id="mktdet_1">
		<div class="PA7 brdb"><div class="FL gL_10 UC">Market Cap (Rs Cr.)</div><div class="FR gD_12">1,200.50</div></div>
		<div class="PA7 brdb"><div class="FL gL_10 UC">P/E</div><div class="FR gD_12">` + pe + `</div></div>
		<div class="PA7 brdb"><div class="FL gL_10 UC">Face Value (Rs)</div><div class="FR gD_12">--</div></div>
	</div></body></html>`
}

type fakeInstrumentRepo struct {
	mu          sync.Mutex
	guard       *allowlist.Guard
	rows        map[string]*entity.Instrument
	upsertCalls int
	listErr     error
}

func newFakeInstrumentRepo(guard *allowlist.Guard) *fakeInstrumentRepo {
	return &fakeInstrumentRepo{guard: guard, rows: make(map[string]*entity.Instrument)}
}

func (r *fakeInstrumentRepo) UpsertListing(_ context.Context, entry parser.ListingEntry) error {
	if err := r.guard.Check(entry.Identifier); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[entry.Identifier]
	if !ok {
		row = &entity.Instrument{Identifier: entry.Identifier}
		r.rows[entry.Identifier] = row
	}
	title, sector, u := entry.Title, entry.Sector, entry.DetailURL
	row.DisplayTitle, row.Sector, row.DetailURL = &title, &sector, &u
	return nil
}

func (r *fakeInstrumentRepo) UpsertIndicators(_ context.Context, update dto.IndicatorUpdate) error {
	if err := r.guard.Check(update.Identifier); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	row, ok := r.rows[update.Identifier]
	if !ok {
		row = &entity.Instrument{Identifier: update.Identifier}
		r.rows[update.Identifier] = row
	}
	bucket, updatedOn := update.PEBucket, update.UpdatedOn
	row.MarketCap, row.PERatio, row.BookValue, row.EPSTTM = update.MarketCap, update.PERatio, update.BookValue, update.EPSTTM
	row.FaceValue, row.IndustryPE, row.PriceToCash, row.PriceToBook = update.FaceValue, update.IndustryPE, update.PriceToCash, update.PriceToBook
	row.PEBucket, row.UpdatedOn = &bucket, &updatedOn
	return nil
}

func (r *fakeInstrumentRepo) ListDetailURLs(context.Context) ([]dto.InstrumentURL, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var urls []dto.InstrumentURL
	for id, row := range r.rows {
		if row.DetailURL != nil && *row.DetailURL != "" {
			urls = append(urls, dto.InstrumentURL{Identifier: id, DetailURL: *row.DetailURL})
		}
	}
	sort.Slice(urls, func(i, j int) bool { return urls[i].Identifier < urls[j].Identifier })
	return urls, nil
}

func (r *fakeInstrumentRepo) IsListingPopulated(ctx context.Context) (bool, error) {
	urls, err := r.ListDetailURLs(ctx)
	return len(urls) > 0, err
}

func (r *fakeInstrumentRepo) SyncAllowList(context.Context) (int64, error) { return 0, nil }

func (r *fakeInstrumentRepo) ListInstruments(context.Context, dto.InstrumentListRequest) ([]entity.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Instrument
	for _, row := range r.rows {
		out = append(out, *row)
	}
	return out, nil
}

func (r *fakeInstrumentRepo) TopSectors(context.Context, int) ([]dto.SectorMarketCap, error) {
	return nil, nil
}

func (r *fakeInstrumentRepo) PEBucketHistogram(context.Context) ([]dto.PEBucketCount, error) {
	return nil, nil
}

func (r *fakeInstrumentRepo) row(id string) *entity.Instrument {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		cp := *row
		return &cp
	}
	return nil
}

func (r *fakeInstrumentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]entity.CrawlRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]entity.CrawlRun)}
}

func (r *fakeRunRepo) Create(_ context.Context, run *entity.CrawlRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *fakeRunRepo) Update(ctx context.Context, run *entity.CrawlRun) error {
	return r.Create(ctx, run)
}

func (r *fakeRunRepo) FindByID(_ context.Context, id string) (*entity.CrawlRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	return &run, nil
}

func (r *fakeRunRepo) FindRecent(context.Context, int) ([]entity.CrawlRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var runs []entity.CrawlRun
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	return runs, nil
}

type fakePage struct {
	body     string
	finalURL string
	err      error
	delay    time.Duration
}

type fakeSource struct {
	mu       sync.Mutex
	pages    map[string]fakePage
	calls    map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{pages: make(map[string]fakePage), calls: make(map[string]int)}
}

func (s *fakeSource) Fetch(ctx context.Context, rawURL string) (*repository.Page, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls[rawURL]++
	page, ok := s.pages[rawURL]
	s.mu.Unlock()

	if page.delay > 0 {
		select {
		case <-time.After(page.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", repository.ErrTransport, ctx.Err())
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s returned status 404", repository.ErrTransport, rawURL)
	}
	if page.err != nil {
		return nil, page.err
	}

	final := rawURL
	if page.finalURL != "" {
		final = page.finalURL
	}
	u, err := url.Parse(final)
	if err != nil {
		return nil, err
	}
	return &repository.Page{RequestedURL: rawURL, FinalURL: u, StatusCode: 200, Body: []byte(page.body)}, nil
}

func (s *fakeSource) callCount(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[rawURL]
}

type fakeEvents struct {
	mu        sync.Mutex
	published []dto.RunSummary
}

func (e *fakeEvents) PublishRunCompleted(_ context.Context, summary dto.RunSummary) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.published = append(e.published, summary)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) SendMessage(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

type fakeInsights struct {
	invalidated atomic.Int32
}

func (f *fakeInsights) TopSectors(context.Context, int) (*dto.TopSectorsResponse, error) {
	return &dto.TopSectorsResponse{}, nil
}

func (f *fakeInsights) PEBuckets(context.Context) (*dto.PEBucketsResponse, error) {
	return &dto.PEBucketsResponse{}, nil
}

func (f *fakeInsights) ListInstruments(context.Context, dto.InstrumentListRequest) ([]entity.Instrument, error) {
	return nil, nil
}

func (f *fakeInsights) Invalidate() {
	f.invalidated.Add(1)
}
