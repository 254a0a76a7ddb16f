package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"skill-sync-engine/internal/config"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/ingest"
)

// StatusError is a non-2xx answer from the scraper service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scraper returned status=%d body=%s", e.Status, e.Body)
}

type scrapeRequest struct {
	Source   string `json:"source"`
	Query    string `json:"query"`
	Location string `json:"location,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type scrapeResponse struct {
	Postings []job.RawPosting `json:"postings"`
}

// Client fetches postings from the scraper service over HTTP.
type Client struct {
	baseURL     string
	client      *http.Client
	maxAttempts uint64
	newBackOff  func() backoff.BackOff
	logger      *zap.Logger
}

func NewClient(cfg config.ScraperConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:      &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		logger: logger.Named("scraper"),
	}
}

// Fetch asks the scraper service for one source's postings. Transport errors
// and 5xx answers are retried; 4xx answers are not.
func (c *Client) Fetch(ctx context.Context, source string, q ingest.Query) ([]job.RawPosting, error) {
	if c.baseURL == "" {
		return nil, errors.New("scraper base url not configured")
	}
	body, err := json.Marshal(scrapeRequest{
		Source:   source,
		Query:    strings.TrimSpace(q.Keyword),
		Location: strings.TrimSpace(q.Location),
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, err
	}

	var (
		out     []job.RawPosting
		attempt int
	)
	op := func() error {
		attempt++
		postings, err := c.post(ctx, body)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Status < 500 {
				return backoff.Permanent(err)
			}
			c.logger.Warn("scrape attempt failed",
				zap.String("step", "fetch"),
				zap.String("source", source),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		out = postings
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxAttempts-1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}

	c.logger.Info("scrape fetched",
		zap.String("step", "fetch"),
		zap.String("source", source),
		zap.Int("postings", len(out)),
		zap.Int("attempts", attempt),
	)
	return out, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]job.RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(rb))}
	}

	var out scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}
	return out.Postings, nil
}

var _ ingest.Fetcher = (*Client)(nil)
