package msi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"github.com/couchcryptid/msi-broadcast-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// maxBulletinBytes caps a single memorandum download.
const maxBulletinBytes = 8 << 20

// ErrPermanent marks fetch failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent fetch failure")

// ErrUnknownSource is returned for a source key with no memorandum file.
var ErrUnknownSource = fmt.Errorf("%w: unknown source", ErrPermanent)

// ErrBulletinTooLarge is returned when a memorandum exceeds the download cap.
// A truncated bulletin would yield a silently incomplete last report.
var ErrBulletinTooLarge = fmt.Errorf("%w: bulletin too large", ErrPermanent)

// Memoranda maps each source key to its daily memorandum file.
var Memoranda = map[string]string{
	"Pacific":   "DailyMemXII.txt",
	"HYDROPAC":  "DailyMemPAC.txt",
	"Atlantic":  "DailyMemIV.txt",
	"HYDROLANT": "DailyMemLAN.txt",
	"HYDROARC":  "DailyMemARC.txt",
}

// ValidateSources rejects source keys with no memorandum file, so a typo in
// the configured list fails at startup instead of on every run.
func ValidateSources(sources []string) error {
	var errs []error
	for _, src := range sources {
		if _, ok := Memoranda[src]; !ok {
			errs = append(errs, fmt.Errorf("%w %q", ErrUnknownSource, src))
		}
	}
	if len(errs) > 0 {
		known := make([]string, 0, len(Memoranda))
		for k := range Memoranda {
			known = append(known, k)
		}
		sort.Strings(known)
		errs = append(errs, fmt.Errorf("known sources: %s", strings.Join(known, ",")))
	}
	return errors.Join(errs...)
}

// StatusError reports a non-200 response.
type StatusError struct {
	Source string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("msi %s: status %d: %s", e.Source, e.Code, e.Body)
}

// Unwrap lets callers test for ErrPermanent with errors.Is.
func (e *StatusError) Unwrap() error {
	if retryableStatus(e.Code) {
		return nil
	}
	return ErrPermanent
}

// Client fetches daily memoranda from the NGA MSI publications API.
// It implements pipeline.BulletinFetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	maxBytes   int64
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewClient creates a client that makes up to attempts requests per fetch,
// waiting backoff between the first two and doubling up to 5s after that.
func NewClient(baseURL string, timeout time.Duration, attempts int, backoff time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		httpClient: newHTTPClient(timeout),
		baseURL:    baseURL,
		attempts:   attempts,
		backoff:    backoff,
		maxBackoff: 5 * time.Second,
		maxBytes:   maxBulletinBytes,
		metrics:    metrics,
		logger:     logger,
		clock:      clockwork.NewRealClock(),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Fetch downloads the memorandum for source, retrying transient failures.
func (c *Client) Fetch(ctx context.Context, source string) (domain.Bulletin, error) {
	file, ok := Memoranda[source]
	if !ok {
		return domain.Bulletin{}, fmt.Errorf("%w %q", ErrUnknownSource, source)
	}
	u := c.baseURL + file

	var text string
	err := retry(ctx, c.attempts, c.backoff, c.maxBackoff, func(attempt int) error {
		var err error
		text, err = c.get(ctx, source, u)
		switch {
		case err == nil:
			c.metrics.FetchRequests.WithLabelValues(source, "success").Inc()
		case isRetryable(err) && attempt < c.attempts:
			c.metrics.FetchRequests.WithLabelValues(source, "retry").Inc()
			c.logger.Warn("bulletin fetch failed, retrying",
				"source", source, "attempt", attempt, "error", err)
		default:
			c.metrics.FetchRequests.WithLabelValues(source, "error").Inc()
		}
		return err
	})
	if err != nil {
		return domain.Bulletin{}, fmt.Errorf("fetch %s: %w", source, err)
	}

	return domain.Bulletin{
		Source:    source,
		FetchedAt: c.clock.Now().UTC(),
		Text:      text,
	}, nil
}

func (c *Client) get(ctx context.Context, source, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w: %w", ErrPermanent, err)
	}
	req.Header.Set("Accept", "text/plain")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Source: source, Code: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrBulletinTooLarge, source, c.maxBytes)
	}
	return string(body), nil
}
