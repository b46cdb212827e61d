package request

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/solquant/harness/log"
	"golang.org/x/time/rate"
)

// New returns a new Requester
func New(name string, httpRequester *http.Client, opts ...RequesterOption) (*Requester, error) {
	if name == "" {
		return nil, errServiceNameUnset
	}
	if httpRequester == nil {
		return nil, errHTTPClientIsNil
	}
	r := &Requester{
		HTTPClient: httpRequester,
		Name:       name,
		limiter:    NewRateLimit(0, 0),
		subLogger:  log.Global,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// WithLimiter sets the limiter every request waits on
func WithLimiter(l *rate.Limiter) RequesterOption {
	return func(r *Requester) {
		if l != nil {
			r.limiter = l
		}
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) RequesterOption {
	return func(r *Requester) {
		r.UserAgent = ua
	}
}

// WithSubLogger routes verbose output to sl
func WithSubLogger(sl *log.SubLogger) RequesterOption {
	return func(r *Requester) {
		if sl != nil {
			r.subLogger = sl
		}
	}
}

// NewRateLimit creates a new RateLimit based of time interval and how many
// actions allowed and breaks it down to an actions-per-second basis. Burst
// rate is kept as one as this is not supported for out-bound requests.
func NewRateLimit(interval time.Duration, actions int) *rate.Limiter {
	if actions <= 0 || interval <= 0 {
		// Returns an un-restricted rate limiter
		return rate.NewLimiter(rate.Inf, 1)
	}
	i := 1 / interval.Seconds()
	rps := i * float64(actions)
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// SendPayload waits for the rate limiter, sends the request and returns the
// response body. Non 2xx responses return a *StatusError
func (r *Requester) SendPayload(ctx context.Context, i *Item) ([]byte, error) {
	if r == nil {
		return nil, errRequestSystemIsNil
	}
	req, err := i.validateRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	if err = r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if i.Verbose {
		log.Debugf(r.subLogger, "%s request %s %s", r.Name, i.Method, i.Path)
		if len(i.Body) > 0 {
			log.Debugf(r.subLogger, "%s request body: %s", r.Name, i.Body)
		}
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	contents, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if i.Verbose {
		log.Debugf(r.subLogger, "%s HTTP status: %s, raw response: %s", r.Name, resp.Status, contents)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if len(contents) > drainBodyLimit {
			contents = contents[:drainBodyLimit]
		}
		return nil, &StatusError{Name: r.Name, Code: resp.StatusCode, Body: contents}
	}
	return contents, nil
}

// validateRequest validates the requester item fields
func (i *Item) validateRequest(ctx context.Context, r *Requester) (*http.Request, error) {
	if i == nil {
		return nil, errRequestItemNil
	}
	if i.Path == "" {
		return nil, errInvalidPath
	}
	method := i.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if i.Body != nil {
		body = bytes.NewReader(i.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, i.Path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range i.Headers {
		req.Header.Add(k, v)
	}
	if i.Body != nil && req.Header.Get(contentType) == "" {
		req.Header.Set(contentType, "application/json")
	}
	if r.UserAgent != "" && req.Header.Get(userAgent) == "" {
		req.Header.Add(userAgent, r.UserAgent)
	}
	return req, nil
}

// IsRetryable reports whether err is a transport failure or a status that
// is worth retrying: 429 and 5xx
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, errRequestItemNil) && !errors.Is(err, errInvalidPath)
}
