// Package analysis talks to a document-intelligence style REST backend: submit the document,
// then poll the returned operation until it settles.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/faxintake/internal/extract"
)

const (
	DefaultAPIVersion   = "2024-11-30"
	DefaultPollInterval = time.Second
	DefaultTimeout      = 2 * time.Minute
	keyHeader           = "Ocp-Apim-Subscription-Key"
)

var (
	// ErrAnalysisFailed is returned when the backend settles the operation as failed or canceled.
	ErrAnalysisFailed = errors.New("document analysis failed")
	// ErrNoOperation is returned when the submit response lacks an Operation-Location header.
	ErrNoOperation = errors.New("analyze response has no operation location")
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis backend returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	Endpoint     string
	APIKey       string
	APIVersion   string
	PollInterval time.Duration
	// Timeout bounds one Analyze call, submit plus polling.
	Timeout time.Duration
	// RequestsPerSecond throttles submissions; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	schema  *jsonschema.Schema
	logger  *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("analysis endpoint is required")
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter, schema: schema, logger: logger}, nil
}

// Analyze submits content to modelID and waits for the result.
func (c *Client) Analyze(ctx context.Context, content io.Reader, modelID string) (*extract.Result, error) {
	if modelID == "" {
		return nil, extract.ErrModelNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqID := uuid.NewString()
	log := c.logger.With(zap.String("req_id", reqID), zap.String("model_id", modelID))
	start := time.Now()

	body, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	opURL, retryAfter, err := c.submit(ctx, modelID, body, log)
	if err != nil {
		return nil, err
	}

	op, err := c.poll(ctx, opURL, retryAfter, log)
	if err != nil {
		log.Error("analysis.failed", zap.Error(err), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, err
	}
	log.Info("analysis.ok",
		zap.Int("documents", len(op.AnalyzeResult.Documents)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return op.AnalyzeResult.toResult(), nil
}

func (c *Client) analyzeURL(modelID string) string {
	return fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.cfg.Endpoint, url.PathEscape(modelID), url.QueryEscape(c.cfg.APIVersion))
}

func (c *Client) submit(ctx context.Context, modelID string, body []byte, log *zap.Logger) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL(modelID), bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(keyHeader, c.cfg.APIKey)

	log.Info("analysis.http.submit", zap.Int("content_length", len(body)))
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", 0, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	loc := resp.Header.Get("Operation-Location")
	if loc == "" {
		return "", 0, ErrNoOperation
	}
	return loc, retryAfter(resp.Header), nil
}

func (c *Client) poll(ctx context.Context, opURL string, wait time.Duration, log *zap.Logger) (*operation, error) {
	if wait <= 0 {
		wait = c.cfg.PollInterval
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for analysis: %w", ctx.Err())
		case <-timer.C:
		}

		op, next, err := c.get(ctx, opURL)
		if err != nil {
			return nil, err
		}
		log.Debug("analysis.http.poll", zap.Int("attempt", attempt), zap.String("status", op.Status))

		switch op.Status {
		case statusSucceeded:
			if op.AnalyzeResult == nil {
				op.AnalyzeResult = &analyzeResult{}
			}
			return op, nil
		case statusFailed, statusCanceled:
			if op.Error != nil {
				return nil, fmt.Errorf("%w: %s: %s", ErrAnalysisFailed, op.Error.Code, op.Error.Message)
			}
			return nil, fmt.Errorf("%w: operation %s", ErrAnalysisFailed, op.Status)
		}

		if next <= 0 {
			next = c.cfg.PollInterval
		}
		timer.Reset(next)
	}
}

func (c *Client) get(ctx context.Context, opURL string) (*operation, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set(keyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		return nil, 0, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if err := validate(c.schema, raw); err != nil {
		return nil, 0, err
	}
	var op operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, 0, fmt.Errorf("decode operation: %w", err)
	}
	return &op, retryAfter(resp.Header), nil
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ extract.Analyzer = (*Client)(nil)
