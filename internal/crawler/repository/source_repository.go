package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang-fundamental-scryper/internal/crawler/config"
	"golang-fundamental-scryper/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxPageBytes = 8 << 20

// Page is a fetched HTML document together with the URL it was finally served from.
type Page struct {
	RequestedURL string
	FinalURL     *url.URL
	StatusCode   int
	Body         []byte
}

// SourceRepository fetches pages from the source site.
type SourceRepository interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

type sourceRepository struct {
	cfg            *config.Config
	log            *logger.Logger
	httpClient     *http.Client
	requestLimiter *rate.Limiter
}

// NewSourceRepository builds a SourceRepository. A zero max_request_per_minute leaves requests unthrottled.
// The per-request deadline comes from the caller's context.
func NewSourceRepository(cfg *config.Config, log *logger.Logger, httpClient *http.Client) SourceRepository {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var requestLimiter *rate.Limiter
	if cfg.Crawler.MaxRequestPerMinute > 0 {
		perRequest := time.Minute / time.Duration(cfg.Crawler.MaxRequestPerMinute)
		requestLimiter = rate.NewLimiter(rate.Every(perRequest), 1)
	}

	return &sourceRepository{
		cfg:            cfg,
		log:            log,
		httpClient:     httpClient,
		requestLimiter: requestLimiter,
	}
}

// Fetch performs a GET. Non-2xx responses, network failures and timeouts are reported as ErrTransport.
func (r *sourceRepository) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	fields := []zap.Field{
		logger.StringField("url", rawURL),
	}

	if r.requestLimiter != nil {
		if err := r.requestLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: failed to wait for request limit: %v", ErrTransport, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s: %v", ErrTransport, rawURL, err)
	}
	req.Header.Set("User-Agent", r.cfg.Crawler.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch %s: %v", ErrTransport, rawURL, err)
	}
	defer resp.Body.Close()

	fields = append(fields,
		logger.IntField("status_code", resp.StatusCode),
		logger.DurationField("elapsed", time.Since(start)),
	)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		r.log.DebugContext(ctx, "Source returned non-success status", fields...)
		return nil, fmt.Errorf("%w: %s returned status %d", ErrTransport, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body of %s: %v", ErrTransport, rawURL, err)
	}

	finalURL := resp.Request.URL
	r.log.DebugContext(ctx, "Fetched source page", append(fields, logger.StringField("final_url", finalURL.String()))...)

	return &Page{
		RequestedURL: rawURL,
		FinalURL:     finalURL,
		StatusCode:   resp.StatusCode,
		Body:         body,
	}, nil
}
