// Package fetcher performs outbound HTTP GETs to sources with a bounded
// per-attempt timeout and exponential backoff between attempts.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/retry"
)

// Request describes one GET.
type Request struct {
	// SourceID labels logs, metrics and the circuit breaker.
	SourceID string
	URL      string
	// Accept defaults to */*.
	Accept string
	// AuthEnv names an environment variable holding a bearer token.
	AuthEnv string
	Headers map[string]string
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Fetcher is implemented by RetryingFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Recorder receives one observation per attempt.
type Recorder interface {
	RecordFetch(sourceID, outcome string, d time.Duration)
}

// Fetch outcomes passed to Recorder.
const (
	OutcomeSuccess     = "success"
	OutcomeClientError = "client_error"
	OutcomeServerError = "server_error"
	OutcomeNetwork     = "network_error"
	OutcomeCircuitOpen = "circuit_open"
)

// RetryingFetcher is safe for concurrent use.
type RetryingFetcher struct {
	client   *http.Client
	cfg      Config
	log      logger.Logger
	breakers *circuitbreaker.Group
	recorder Recorder
	sleep    func(context.Context, time.Duration) error
	getenv   func(string) string
}

var _ Fetcher = (*RetryingFetcher)(nil)

// Option configures a RetryingFetcher.
type Option func(*RetryingFetcher)

// WithHTTPClient replaces the default client. Its Timeout is overwritten
// with Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(f *RetryingFetcher) {
		f.client = c
	}
}

// WithBreakers guards each source with a circuit breaker from g.
func WithBreakers(g *circuitbreaker.Group) Option {
	return func(f *RetryingFetcher) {
		f.breakers = g
	}
}

// WithRecorder reports attempts to r.
func WithRecorder(r Recorder) Option {
	return func(f *RetryingFetcher) {
		f.recorder = r
	}
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(f *RetryingFetcher) {
		f.sleep = sleep
	}
}

// WithGetenv replaces os.Getenv for auth token lookup.
func WithGetenv(getenv func(string) string) Option {
	return func(f *RetryingFetcher) {
		f.getenv = getenv
	}
}

// New creates a RetryingFetcher.
func New(cfg Config, log logger.Logger, opts ...Option) *RetryingFetcher {
	f := &RetryingFetcher{
		cfg:    cfg.WithDefaults(),
		log:    log,
		sleep:  retry.SleepContext,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = newHTTPClient()
	}
	f.client.Timeout = f.cfg.Timeout
	if f.log == nil {
		f.log = logger.NewNop()
	}
	return f
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

// Fetch issues req. 2xx returns at once; 4xx fails at once with a
// *ClientError; 5xx and network failures are retried up to MaxAttempts
// total, then fail with a *FetchError naming the URL and attempt count.
func (f *RetryingFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	log := f.log.With(logger.SourceID(req.SourceID), logger.URL(req.URL))

	var (
		resp        *Response
		lastAttempt int
	)
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  f.cfg.MaxAttempts,
		InitialDelay: f.cfg.BackoffBase,
		Multiplier:   2,
		IsRetryable:  isTransient,
		Sleep:        f.sleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("Fetch attempt failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", delay),
				logger.Error(err),
			)
		},
	}, func(attempt int) error {
		lastAttempt = attempt
		r, attemptErr := f.attempt(ctx, req)
		if attemptErr != nil {
			return attemptErr
		}
		r.Attempts = attempt
		resp = r
		return nil
	})

	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, retry.ErrMaxAttemptsExceeded):
		return nil, &FetchError{URL: req.URL, Attempts: f.cfg.MaxAttempts, Err: err}
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		// Not permanent: the job is retried by its queue once the cooldown
		// has had a chance to pass.
		return nil, &FetchError{URL: req.URL, Attempts: lastAttempt, Err: err}
	default:
		return nil, err
	}
}

func (f *RetryingFetcher) attempt(ctx context.Context, req Request) (*Response, error) {
	var breaker *circuitbreaker.Breaker
	if f.breakers != nil {
		breaker = f.breakers.Get(req.SourceID)
		if err := breaker.Allow(); err != nil {
			f.record(req.SourceID, OutcomeCircuitOpen, 0)
			return nil, err
		}
	}

	start := time.Now()
	resp, err := f.do(ctx, req)
	elapsed := time.Since(start)

	outcome := OutcomeSuccess
	var ce *ClientError
	var se *ServerError
	switch {
	case err == nil:
	case errors.As(err, &ce):
		outcome = OutcomeClientError
	case errors.As(err, &se):
		outcome = OutcomeServerError
	default:
		outcome = OutcomeNetwork
	}
	f.record(req.SourceID, outcome, elapsed)

	if breaker != nil {
		// 4xx says nothing about upstream health
		if outcome == OutcomeClientError {
			breaker.Record(nil)
		} else {
			breaker.Record(err)
		}
	}

	return resp, err
}

func (f *RetryingFetcher) do(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request %s: %w", req.URL, err))
	}
	f.setHeaders(httpReq, req)

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("GET %s: %w", req.URL, err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, &ServerError{URL: req.URL, StatusCode: httpResp.StatusCode}
	case httpResp.StatusCode >= http.StatusBadRequest:
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1024))
		return nil, &ClientError{URL: req.URL, StatusCode: httpResp.StatusCode, Body: string(snippet)}
	case httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices:
		return nil, retry.Permanent(fmt.Errorf("GET %s: unexpected status %d", req.URL, httpResp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", req.URL, err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", req.URL, ErrBodyTooLarge, f.cfg.MaxBodyBytes)
	}

	return &Response{
		URL:        req.URL,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (f *RetryingFetcher) setHeaders(httpReq *http.Request, req Request) {
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)

	accept := req.Accept
	if accept == "" {
		accept = defaultAccept
	}
	httpReq.Header.Set("Accept", accept)

	if req.AuthEnv == "" {
		return
	}
	token := f.getenv(req.AuthEnv)
	if token == "" {
		f.log.Warn("Auth token environment variable is empty, sending unauthenticated request",
			logger.SourceID(req.SourceID),
			logger.String("env", req.AuthEnv),
		)
		return
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
}

func (f *RetryingFetcher) record(sourceID, outcome string, d time.Duration) {
	if f.recorder != nil {
		f.recorder.RecordFetch(sourceID, outcome, d)
	}
}
