package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang-fundamental-scryper/internal/crawler/allowlist"
	"golang-fundamental-scryper/internal/crawler/config"
	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/internal/crawler/parser"
	"golang-fundamental-scryper/internal/crawler/repository"
	"golang-fundamental-scryper/internal/entity"
	"golang-fundamental-scryper/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	cfg         *config.Config
	instruments *fakeInstrumentRepo
	runs        *fakeRunRepo
	source      *fakeSource
	lock        repository.RunLockRepository
	events      *fakeEvents
	notifier    *fakeNotifier
	insights    *fakeInsights
	svc         PipelineService
}

func newPipelineFixture(t *testing.T, allowed ...string) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		cfg: &config.Config{Crawler: config.Crawler{
			ListingURL:           testListingURL,
			MaxConcurrentFetches: 2,
			FetchTimeout:         time.Second,
			RunLockTTL:           time.Minute,
		}},
		instruments: newFakeInstrumentRepo(allowlist.New("test", allowed)),
		runs:        newFakeRunRepo(),
		source:      newFakeSource(),
		lock:        repository.NewLocalRunLockRepository(),
		events:      &fakeEvents{},
		notifier:    &fakeNotifier{},
		insights:    &fakeInsights{},
	}
	f.svc = NewPipelineService(f.cfg, logger.NewNop(), f.instruments, f.runs, f.source, f.lock, f.events, f.notifier, f.insights)
	return f
}

func entry(sector, slug, title string) parser.ListingEntry {
	return parser.ListingEntry{Identifier: slug, Title: title, Sector: sector, DetailURL: detailURL(sector, slug)}
}

func TestPipelineBootstrapAndFanOut(t *testing.T) {
	f := newPipelineFixture(t, "alpha", "bravo", "charlie", "delta")
	alpha := entry("banks", "alpha", "Alpha Bank")
	bravo := entry("banks", "bravo", "Bravo Bank")
	charlie := entry("steel", "charlie", "Charlie Steel")
	delta := entry("steel", "delta", "Delta Steel")
	rogue := entry("misc", "rogue", "Rogue Co")

	f.source.pages[testListingURL] = fakePage{body: listingHTML(alpha, bravo, charlie, delta, rogue)}
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("12.5")}
	f.source.pages[bravo.DetailURL] = fakePage{body: detailHTML("N/A")}
	f.source.pages[charlie.DetailURL] = fakePage{err: errors.New("boom")}
	f.source.pages[delta.DetailURL] = fakePage{body: "<html><body>maintenance</body></html>"}

	summary, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)

	assert.Equal(t, dto.BootstrapSummary{Discovered: 5, Stored: 4, Rejected: 1}, summary.Bootstrap)
	assert.Equal(t, 4, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Failures[dto.FailureLayoutChanged])
	assert.Equal(t, 1, summary.Failures[dto.FailureOther])
	assert.Equal(t, summary.Attempted, summary.Succeeded+summary.Failed)

	assert.Nil(t, f.instruments.row("rogue"))

	a := f.instruments.row("alpha")
	require.NotNil(t, a)
	require.NotNil(t, a.PERatio)
	assert.Equal(t, 12.5, *a.PERatio)
	assert.Equal(t, "10-15", *a.PEBucket)
	assert.Equal(t, 1200.5, *a.MarketCap)
	assert.Nil(t, a.FaceValue)
	assert.NotNil(t, a.UpdatedOn)

	b := f.instruments.row("bravo")
	require.NotNil(t, b)
	assert.Nil(t, b.PERatio)
	assert.Equal(t, "null", *b.PEBucket)

	c := f.instruments.row("charlie")
	require.NotNil(t, c)
	assert.Nil(t, c.UpdatedOn, "failed fetch must leave indicators untouched")

	run, err := f.runs.FindByID(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, entity.CrawlRunStatusCompleted, run.Status)
	assert.True(t, run.CompletedAt.Valid)
	assert.NotEmpty(t, run.Summary)

	assert.Len(t, f.events.published, 1)
	assert.Len(t, f.notifier.messages, 1)
	assert.EqualValues(t, 1, f.insights.invalidated.Load())
	assert.LessOrEqual(t, f.source.maxSeen.Load(), int32(2))
}

func TestPipelineSkipsListingWhenPopulated(t *testing.T) {
	f := newPipelineFixture(t, "alpha")
	alpha := entry("banks", "alpha", "Alpha Bank")
	require.NoError(t, f.instruments.UpsertListing(context.Background(), alpha))
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("40")}

	summary, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)

	assert.True(t, summary.Bootstrap.Skipped)
	assert.Zero(t, f.source.callCount(testListingURL))
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, "40-45", *f.instruments.row("alpha").PEBucket)
}

func TestPipelineRerunIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, "alpha", "bravo")
	alpha := entry("banks", "alpha", "Alpha Bank")
	bravo := entry("banks", "bravo", "Bravo Bank")
	f.source.pages[testListingURL] = fakePage{body: listingHTML(alpha, bravo)}
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("-3.2")}
	f.source.pages[bravo.DetailURL] = fakePage{body: detailHTML("250")}

	_, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)
	first := f.instruments.row("alpha")

	second, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)

	assert.Equal(t, 2, f.instruments.count())
	assert.True(t, second.Bootstrap.Skipped)
	assert.Equal(t, 1, f.source.callCount(testListingURL))

	again := f.instruments.row("alpha")
	assert.Equal(t, *first.PERatio, *again.PERatio)
	assert.Equal(t, "<0", *again.PEBucket)
	assert.Equal(t, "100+", *f.instruments.row("bravo").PEBucket)
}

func TestPipelineListingLayoutChangedIsFatal(t *testing.T) {
	f := newPipelineFixture(t, "alpha")
	f.source.pages[testListingURL] = fakePage{body: "<html><body><table class=\"other\"></table></body></html>"}

	summary, err := f.svc.Run(context.Background(), "cli")
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrLayoutChanged)
	assert.Zero(t, summary.Attempted)
	assert.Zero(t, f.instruments.count())

	run, findErr := f.runs.FindByID(context.Background(), summary.RunID)
	require.NoError(t, findErr)
	assert.Equal(t, entity.CrawlRunStatusFailed, run.Status)
	assert.True(t, run.ErrorMessage.Valid)
	assert.Empty(t, f.events.published)
	assert.Len(t, f.notifier.messages, 1)
}

func TestPipelineListingTransportFailureIsFatal(t *testing.T) {
	f := newPipelineFixture(t, "alpha")

	_, err := f.svc.Run(context.Background(), "cli")
	assert.ErrorIs(t, err, repository.ErrTransport)
}

func TestPipelineStoreUnavailableIsFatal(t *testing.T) {
	f := newPipelineFixture(t, "alpha")
	require.NoError(t, f.instruments.UpsertListing(context.Background(), entry("banks", "alpha", "Alpha")))
	f.instruments.listErr = repository.ErrPersistence

	_, err := f.svc.Run(context.Background(), "cli")
	assert.ErrorIs(t, err, repository.ErrPersistence)
}

func TestPipelineUsesResolvedURLIdentifier(t *testing.T) {
	f := newPipelineFixture(t, "alpha", "alphanew")
	alpha := entry("banks", "alpha", "Alpha Bank")
	require.NoError(t, f.instruments.UpsertListing(context.Background(), alpha))
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("22"), finalURL: detailURL("banks", "alphanew")}

	summary, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	require.NotNil(t, f.instruments.row("alphanew"))
	assert.Nil(t, f.instruments.row("alpha").PERatio)
}

func TestPipelineRedirectOutsideAllowListIsRejected(t *testing.T) {
	f := newPipelineFixture(t, "alpha")
	alpha := entry("banks", "alpha", "Alpha Bank")
	require.NoError(t, f.instruments.UpsertListing(context.Background(), alpha))
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("22"), finalURL: detailURL("banks", "stranger")}

	summary, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failures[dto.FailureAllowList])
	assert.Equal(t, 1, f.instruments.count())
}

func TestPipelineShortResolvedPathFallsBackToListedIdentifier(t *testing.T) {
	f := newPipelineFixture(t, "alpha")
	alpha := entry("banks", "alpha", "Alpha Bank")
	require.NoError(t, f.instruments.UpsertListing(context.Background(), alpha))
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("5"), finalURL: "http://www.moneycontrol.com/quote"}

	summary, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, "5-10", *f.instruments.row("alpha").PEBucket)
}

func TestPipelineFetchTimeoutIsPerInstrument(t *testing.T) {
	f := newPipelineFixture(t, "alpha", "bravo")
	f.cfg.Crawler.FetchTimeout = 50 * time.Millisecond
	f.svc = NewPipelineService(f.cfg, logger.NewNop(), f.instruments, f.runs, f.source, f.lock, nil, nil, nil)

	alpha := entry("banks", "alpha", "Alpha Bank")
	bravo := entry("banks", "bravo", "Bravo Bank")
	require.NoError(t, f.instruments.UpsertListing(context.Background(), alpha))
	require.NoError(t, f.instruments.UpsertListing(context.Background(), bravo))
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("1"), delay: time.Second}
	f.source.pages[bravo.DetailURL] = fakePage{body: detailHTML("2")}

	summary, err := f.svc.Run(context.Background(), "cli")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failures[dto.FailureTransport])
}

func TestPipelineRunInProgress(t *testing.T) {
	f := newPipelineFixture(t, "alpha")
	ok, err := f.lock.TryLock(context.Background(), "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Run(context.Background(), "cli")
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, err = f.svc.Start(context.Background(), "http")
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestPipelineStartRunsInBackground(t *testing.T) {
	f := newPipelineFixture(t, "alpha")
	alpha := entry("banks", "alpha", "Alpha Bank")
	require.NoError(t, f.instruments.UpsertListing(context.Background(), alpha))
	f.source.pages[alpha.DetailURL] = fakePage{body: detailHTML("7")}

	ctx, cancel := context.WithCancel(context.Background())
	runID, err := f.svc.Start(ctx, "http")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		run, err := f.runs.FindByID(context.Background(), runID)
		return err == nil && run.Status == entity.CrawlRunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		ok, _ := f.lock.TryLock(context.Background(), "next", time.Minute)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "lock must be released after the run")
}

func TestUniqueTasks(t *testing.T) {
	tasks := uniqueTasks([]dto.InstrumentURL{
		{Identifier: "a", DetailURL: "http://x/1"},
		{Identifier: "b", DetailURL: " "},
		{Identifier: "c", DetailURL: "http://x/1"},
		{Identifier: "d", DetailURL: "http://x/2"},
	})
	assert.Equal(t, []FetchTask{{Identifier: "a", URL: "http://x/1"}, {Identifier: "d", URL: "http://x/2"}}, tasks)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, dto.FailureAllowList, failureReason(allowlist.New("v", nil).Check("x")))
	assert.Equal(t, dto.FailureLayoutChanged, failureReason(parser.ErrLayoutChanged))
	assert.Equal(t, dto.FailurePersistence, failureReason(repository.ErrPersistence))
	assert.Equal(t, dto.FailureTransport, failureReason(repository.ErrTransport))
	assert.Equal(t, dto.FailureCancelled, failureReason(ErrNotDispatched))
	assert.Equal(t, dto.FailureOther, failureReason(errors.New("boom")))
}
