// Package epss fetches exploit prediction scores from FIRST.org and refreshes them on findings.
package epss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

const (
	// DefaultURL is the FIRST.org EPSS endpoint.
	DefaultURL = "https://api.first.org/data/v1/epss"
	// MaxBatchSize is the most identifiers the API answers in one page.
	MaxBatchSize = 100
)

// Score is the exploit prediction of one vulnerability identifier.
type Score struct {
	CVE        string  `json:"cve" yaml:"cve"`
	EPSS       float64 `json:"epss" yaml:"epss"`
	Percentile float64 `json:"percentile" yaml:"percentile"`
	Date       string  `json:"date" yaml:"date"`
}

type response struct {
	Status string `json:"status"`
	Total  int    `json:"total"`
	Data   []struct {
		CVE        string `json:"cve"`
		EPSS       string `json:"epss"`
		Percentile string `json:"percentile"`
		Date       string `json:"date"`
	} `json:"data"`
}

// Client queries the EPSS API.
type Client struct {
	http    *http.Client
	baseURL string
	retries uint64
	logger  *zap.Logger
}

// NewClient creates a client. A nil httpClient gets a 30 second timeout.
func NewClient(httpClient *http.Client, baseURL string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{http: httpClient, baseURL: baseURL, retries: 3, logger: util.OrNop(logger)}
}

// Scores looks up a batch of CVE identifiers. Identifiers unknown to the API are absent from
// the result. Batches larger than MaxBatchSize are split into several requests.
func (c *Client) Scores(ctx context.Context, cves []string) (map[string]Score, error) {
	out := map[string]Score{}
	for start := 0; start < len(cves); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(cves))
		if err := c.fetch(ctx, cves[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, cves []string, out map[string]Score) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid EPSS URL %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("cve", strings.Join(cves, ","))
	q.Set("limit", strconv.Itoa(len(cves)))
	u.RawQuery = q.Encode()

	var body response
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	err = backoff.RetryNotify(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("EPSS API returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("EPSS API returned %s: %s", resp.Status, strings.TrimSpace(string(msg))))
		}
		body = response{}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding EPSS response: %w", err))
		}
		return nil
	}, bo, func(err error, wait time.Duration) {
		c.logger.Warn("Retrying EPSS lookup", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return err
	}

	for _, d := range body.Data {
		score, errScore := strconv.ParseFloat(d.EPSS, 64)
		pct, errPct := strconv.ParseFloat(d.Percentile, 64)
		if errScore != nil || errPct != nil {
			c.logger.Debug("Skipping malformed EPSS entry", zap.String("cve", d.CVE))
			continue
		}
		id := strings.ToUpper(d.CVE)
		out[id] = Score{CVE: id, EPSS: score, Percentile: pct, Date: d.Date}
	}
	return nil
}
