package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	ierrors "github.com/cnosuke/imgcheck/internal/errors"
	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	MethodHead  = "head"
	MethodRange = "range"
)

type Config struct {
	Timeout            time.Duration
	UserAgent          string
	Method             string
	RangeBytes         int
	HeadFallback       bool
	MaxAttempts        int
	BackoffBase        time.Duration
	MaxRedirects       int
	InsecureSkipVerify bool
	// MaxConnsPerHost sizes the idle pool; usually the run concurrency.
	MaxConnsPerHost int
}

// Checker resolves one request to one result. Implementations must not fail:
// every outcome, including transport faults, is expressed as a CheckResult.
type Checker interface {
	Check(ctx context.Context, req types.CheckRequest) types.CheckResult
}

// HTTPChecker implements Checker with lightweight HTTP requests and a bounded retry loop.
type HTTPChecker struct {
	client   *http.Client
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	observer Observer
	now      func() time.Time
}

// Option customizes an HTTPChecker.
type Option func(*HTTPChecker)

// WithObserver reports results and retries to o.
func WithObserver(o Observer) Option {
	return func(c *HTTPChecker) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *HTTPChecker) { c.sleep = sleep }
}

// WithHTTPClient replaces the HTTP client built from Config.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPChecker) { c.client = client }
}

// NewHTTPChecker creates a new HTTPChecker.
func NewHTTPChecker(cfg Config, opts ...Option) (*HTTPChecker, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.Method == "" {
		cfg.Method = MethodHead
	}
	if cfg.Method != MethodHead && cfg.Method != MethodRange {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown method %q", cfg.Method)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 10
	}

	zap.S().Infow("creating new HTTP checker",
		"timeout", cfg.Timeout,
		"user_agent", cfg.UserAgent,
		"method", cfg.Method,
		"max_attempts", cfg.MaxAttempts,
		"backoff_base", cfg.BackoffBase,
		"insecure_skip_verify", cfg.InsecureSkipVerify)

	c := &HTTPChecker{
		client:   newHTTPClient(cfg),
		cfg:      cfg,
		sleep:    sleepContext,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient(cfg Config) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}
	maxRedirects := cfg.MaxRedirects
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// attempt is the outcome of one network round trip.
type attempt struct {
	code          int
	reason        string
	contentLength int64
	err           error
}

func (a attempt) status() types.Status {
	if a.err != nil {
		return ClassifyError(a.err)
	}
	return Classify(a.code)
}

// Check resolves req. It never panics past its boundary and never returns an error.
func (c *HTTPChecker) Check(ctx context.Context, req types.CheckRequest) (res types.CheckResult) {
	identifier := req.Identifier
	if identifier == "" {
		identifier = types.DefaultIdentifier
	}
	res = types.CheckResult{Identifier: identifier, URL: req.URL, ContentLength: -1}

	defer func() {
		if rec := recover(); rec != nil {
			zap.S().Errorw("check panicked", "url", req.URL, "panic", rec)
			res.Code = 0
			res.Status = types.StatusError
			res.Reason = fmt.Sprintf("panic: %v", rec)
		}
	}()

	target, err := Normalize(req.URL)
	if err != nil {
		res.Status = types.StatusInvalidURL
		res.Reason = err.Error()
		return res
	}
	res.URL = target

	start := c.now()
	var last attempt
	for n := 1; n <= c.cfg.MaxAttempts; n++ {
		res.Attempts = n
		last = c.do(ctx, target)
		status := last.status()

		if n == c.cfg.MaxAttempts || !retryable(status, last.code) || ctx.Err() != nil {
			break
		}

		delay := time.Duration(n) * c.cfg.BackoffBase
		zap.S().Debugw("retrying check",
			"url", target,
			"attempt", n,
			"status", status,
			"code", last.code,
			"backoff", delay)
		c.observer.ObserveRetry(status, last.code)
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	res.Status = last.status()
	res.Code = last.code
	res.Reason = last.reason
	res.ContentLength = last.contentLength
	if last.err != nil {
		res.Reason = last.err.Error()
	}
	if res.Status.Network() {
		res.Code = 0
		res.ContentLength = -1
	}
	c.observer.ObserveResult(res, c.now().Sub(start))
	return res
}

// do performs one attempt, falling back from HEAD to a ranged GET when the server refuses HEAD.
func (c *HTTPChecker) do(ctx context.Context, target string) attempt {
	method := c.cfg.Method
	a := c.roundTrip(ctx, method, target)
	if method == MethodHead && c.cfg.HeadFallback && a.err == nil &&
		(a.code == http.StatusMethodNotAllowed || a.code == http.StatusNotImplemented) {
		zap.S().Debugw("HEAD refused, retrying with ranged GET", "url", target, "code", a.code)
		return c.roundTrip(ctx, MethodRange, target)
	}
	return a
}

func (c *HTTPChecker) roundTrip(ctx context.Context, method, target string) attempt {
	httpMethod := http.MethodHead
	if method == MethodRange {
		httpMethod = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, target, nil)
	if err != nil {
		return attempt{err: ierrors.Wrap(err, "failed to create request")}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	if method == MethodRange {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", c.cfg.RangeBytes))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return attempt{err: ierrors.Wrap(err, "failed to execute request")}
	}
	defer resp.Body.Close()
	// Drain what little the server sent so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, int64(c.cfg.RangeBytes)+512))

	zap.S().Debugw(
		"response received",
		"url", target,
		"method", httpMethod,
		"status", resp.StatusCode,
		"content-length", resp.ContentLength,
		"content_type", resp.Header.Get("Content-Type"),
	)

	return attempt{
		code:          resp.StatusCode,
		reason:        statusText(resp),
		contentLength: objectSize(resp),
	}
}

// statusText strips the numeric code from the status line.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// objectSize prefers the total from Content-Range, since a ranged GET only carries a slice.
func objectSize(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(strings.TrimSpace(cr[i+1:]), 10, 64); err == nil {
				return n
			}
		}
	}
	if resp.StatusCode == http.StatusPartialContent {
		return -1
	}
	return resp.ContentLength
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
