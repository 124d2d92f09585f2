package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/GriffinCanCode/proxyview/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/proxyview/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DesktopUserAgent is sent with every upstream request. Some sites serve
// stripped-down or blocked pages to unknown agents.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrBodyTooLarge       = errors.New("response body exceeds limit")
	ErrServiceUnavailable = errors.New("upstream unavailable: circuit breaker open")
)

// errServerStatus marks a 5xx result so the breaker counts it as a failure
// while the caller still receives the response.
var errServerStatus = errors.New("upstream server error")

// Options configures a Client
type Options struct {
	Timeout      time.Duration
	Retries      int
	MaxRedirects int
	MaxBodyBytes int64
	UserAgent    string
	// RateLimit is requests per second across all hosts; <= 0 means unlimited
	RateLimit float64
}

// DefaultOptions returns production defaults
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		Retries:      2,
		MaxRedirects: 10,
		MaxBodyBytes: 10 << 20,
		UserAgent:    DesktopUserAgent,
	}
}

// Result is the outcome of a completed HTTP exchange. Any status is a result;
// only transport failures are errors.
type Result struct {
	Status      int           `json:"status"`
	Content     string        `json:"-"`
	FinalURL    string        `json:"final_url"`
	ContentType string        `json:"content_type"`
	Charset     string        `json:"charset"`
	Duration    time.Duration `json:"duration"`
}

// Fetcher retrieves a document
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Result, error)
}

// Client wraps resty with retries, rate limiting and per-host circuit breakers
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	maxBody  int64
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu sync.RWMutex
}

// New creates a fetch client. A nil logger or metrics is allowed.
func New(opts Options, logger *zap.Logger, metrics *monitoring.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = def.MaxRedirects
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = &retryLogger{logger: logger.Named("retry")}
	// Keep the last response instead of a synthesized "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	// Retries live in the transport, so resty's own retry loop stays off
	restyClient := resty.New().
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient}).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(opts.MaxRedirects)).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	breakers := resilience.NewGroup("fetch", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Fetch breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	c := &Client{
		resty:    restyClient,
		breakers: breakers,
		maxBody:  opts.MaxBodyBytes,
		logger:   logger,
		metrics:  metrics,
	}
	c.SetRateLimit(opts.RateLimit)
	return c
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// Breakers exposes the per-host breaker group
func (c *Client) Breakers() *resilience.Group {
	return c.breakers
}

// Fetch retrieves target and decodes the body to UTF-8
func (c *Client) Fetch(ctx context.Context, target string) (*Result, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}

	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	res, err := resilience.Do(c.breakers.Get(u.Hostname()), func() (*Result, error) {
		r, err := c.do(ctx, target)
		if err == nil && r.Status >= http.StatusInternalServerError {
			return r, errServerStatus
		}
		return r, err
	})
	if errors.Is(err, errServerStatus) {
		err = nil
	}
	duration := time.Since(start)

	if err != nil {
		c.metrics.RecordFetch(0, duration)
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, u.Hostname())
		}
		c.logger.Debug("Fetch failed", zap.String("url", target), zap.Error(err))
		return nil, err
	}

	res.Duration = duration
	c.metrics.RecordFetch(res.Status, duration)
	c.logger.Debug("Fetched document",
		zap.String("url", target),
		zap.String("final_url", res.FinalURL),
		zap.Int("status", res.Status),
		zap.String("content_type", res.ContentType),
		zap.String("charset", res.Charset),
		zap.Duration("duration", duration))
	return res, nil
}

func (c *Client) do(ctx context.Context, target string) (*Result, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}

	raw := resp.RawBody()
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, c.maxBody)
	}

	finalURL := target
	if rr := resp.RawResponse; rr != nil && rr.Request != nil && rr.Request.URL != nil {
		finalURL = rr.Request.URL.String()
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = DetectContentType(body)
	}
	content, name := Decode(body, contentType)

	return &Result{
		Status:      resp.StatusCode(),
		Content:     content,
		FinalURL:    finalURL,
		ContentType: contentType,
		Charset:     name,
	}, nil
}

// retryLogger adapts zap to retryablehttp's LeveledLogger
type retryLogger struct {
	logger *zap.Logger
}

func (l *retryLogger) Error(msg string, kv ...interface{}) { l.logger.Sugar().Errorw(msg, kv...) }
func (l *retryLogger) Info(msg string, kv ...interface{})  { l.logger.Sugar().Debugw(msg, kv...) }
func (l *retryLogger) Debug(msg string, kv ...interface{}) { l.logger.Sugar().Debugw(msg, kv...) }
func (l *retryLogger) Warn(msg string, kv ...interface{})  { l.logger.Sugar().Warnw(msg, kv...) }
