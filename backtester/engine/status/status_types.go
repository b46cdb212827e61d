package status

import (
	"errors"
	"net/http"
	"sync"

	"github.com/solquant/harness/backtester/engine"
)

var (
	errEmptyListenAddress = errors.New("listen address is empty")
	errAlreadyStarted     = errors.New("status server already started")
)

// Route is a named handler for one method and path
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Server serves the latest published snapshot over HTTP
type Server struct {
	mu      sync.RWMutex
	latest  engine.Snapshot
	hasData bool
	server  *http.Server
}
