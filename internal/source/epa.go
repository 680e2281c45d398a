package source

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"ghgquant/internal/config"
	apperrors "ghgquant/internal/errors"
	"ghgquant/internal/georef"
	"ghgquant/pkg/contracts/domain"
)

// SourceIDEPA identifies EPA's Envirofacts efservice-style API.
const SourceIDEPA = "epa"

// EPAClient fetches GHGRP records from EPA's efservice-style REST API.
// Requests are rate limited, retried with bounded exponential backoff on
// transient failures, and guarded by a circuit breaker so a flapping
// upstream fails fast instead of hammering the host.
type EPAClient struct {
	baseURL    string
	table      string
	batchSize  int
	maxRetries uint64
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewEPAClient creates an EPA client from source configuration.
func NewEPAClient(cfg config.SourceConfig, logger *slog.Logger) *EPAClient {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:     "epa-efservice",
		Interval: 60 * time.Second,
		Timeout:  120 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &EPAClient{
		baseURL:    strings.TrimRight(cfg.EPABaseURL, "/"),
		table:      cfg.DefaultTable,
		batchSize:  cfg.BatchSize,
		maxRetries: uint64(cfg.MaxRetries),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger.With(slog.String("component", "epa_client")),
	}
}

// Fetch retrieves every record matching the query, paging through the
// upstream in batches until a short page signals the end of the result
// set. A query matching zero records returns an EMPTY_RESULT error, which
// callers treat as non-fatal.
func (c *EPAClient) Fetch(ctx context.Context, q Query) ([]domain.RawRecord, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	table := q.Table
	if table == "" {
		table = c.table
	}
	state := georef.NormalizeStateCode(q.StateCode)

	var records []domain.RawRecord
	for offset := 0; ; offset += c.batchSize {
		page, err := c.fetchPage(ctx, table, state, q.Year, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)

		c.logger.DebugContext(ctx, "fetched page",
			slog.String("table", table),
			slog.String("state", state),
			slog.Int("offset", offset),
			slog.Int("page_size", len(page)))

		if len(page) < c.batchSize {
			break
		}
	}

	if len(records) == 0 {
		return nil, apperrors.NewEmptyResultError(
			fmt.Sprintf("no records found for state %s (table %s)", state, table)).
			WithContext("state", state).
			WithContext("year", q.Year)
	}

	c.logger.InfoContext(ctx, "fetch complete",
		slog.String("table", table),
		slog.String("state", state),
		slog.Int("record_count", len(records)))
	return records, nil
}

// fetchPage retrieves one page, retrying transient failures with
// exponential backoff. 4xx responses other than 408 and 429 are treated
// as permanent.
func (c *EPAClient) fetchPage(ctx context.Context, table, state string, year, offset int) ([]domain.RawRecord, error) {
	url := c.pageURL(table, state, year, offset)

	var page []domain.RawRecord
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		result, err := c.breaker.Execute(func() (any, error) {
			return c.doRequest(ctx, url)
		})
		if err != nil {
			if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(apperrors.NewNetworkError("upstream circuit open", err))
			}
			return err
		}
		page = result.([]domain.RawRecord)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		var appErr *apperrors.AppError
		if stderrors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewNetworkError(fmt.Sprintf("fetch %s failed after retries", url), err)
	}
	return page, nil
}

// doRequest performs a single HTTP round trip and decodes the JSON body.
func (c *EPAClient) doRequest(ctx context.Context, url string) ([]domain.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(apperrors.NewNetworkError("failed to build request", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("upstream unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		netErr := apperrors.NewNetworkError(
			fmt.Sprintf("upstream returned status %d", resp.StatusCode), nil).
			WithContext("url", url).
			WithContext("body", strings.TrimSpace(string(body)))
		if retryableStatus(resp.StatusCode) {
			return nil, netErr
		}
		return nil, backoff.Permanent(netErr)
	}

	var rows []domain.RawRecord
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, backoff.Permanent(apperrors.NewParsingError("upstream returned malformed JSON", err))
	}
	return rows, nil
}

// pageURL builds an efservice-style row-window URL:
// {base}/{table}/STATE_CODE/{state}[/REPORTING_YEAR/{year}]/JSON/rows/{start}:{end}
func (c *EPAClient) pageURL(table, state string, year, offset int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s/STATE_CODE/%s", c.baseURL, table, state)
	if year != 0 {
		fmt.Fprintf(&b, "/REPORTING_YEAR/%d", year)
	}
	fmt.Fprintf(&b, "/JSON/rows/%d:%d", offset, offset+c.batchSize-1)
	return b.String()
}

// retryableStatus reports whether an HTTP status is worth retrying.
// 5xx, 408 and 429 are transient; other 4xx are caller errors.
func retryableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}
