package request

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/solquant/harness/log"
	"golang.org/x/time/rate"
)

const (
	userAgent      = "User-Agent"
	contentType    = "Content-Type"
	drainBodyLimit = 1 << 14
)

var (
	// ErrUnexpectedStatus is wrapped by StatusError
	ErrUnexpectedStatus   = errors.New("unsuccessful HTTP status code")
	errRequestSystemIsNil = errors.New("request system is nil")
	errRequestItemNil     = errors.New("request item is nil")
	errInvalidPath        = errors.New("invalid path")
	errServiceNameUnset   = errors.New("service name unset")
	errHTTPClientIsNil    = errors.New("http client is nil")
)

// Requester sends rate limited HTTP requests to one service
type Requester struct {
	Name       string
	HTTPClient *http.Client
	UserAgent  string
	limiter    *rate.Limiter
	subLogger  *log.SubLogger
}

// RequesterOption configures a Requester
type RequesterOption func(*Requester)

// Item is a single request
type Item struct {
	Method  string
	Path    string
	Body    []byte
	Headers map[string]string
	Verbose bool
}

// StatusError carries the status code and body of a non 2xx response
type StatusError struct {
	Name string
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %v: %d raw response: %s", e.Name, ErrUnexpectedStatus, e.Code, e.Body)
}

// Unwrap allows errors.Is(err, ErrUnexpectedStatus)
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
