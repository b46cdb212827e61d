package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/engine"
	"github.com/solquant/harness/log"
)

// New returns a server with no snapshot yet
func New() *Server {
	return &Server{}
}

// Publish stores s as the latest snapshot
func (s *Server) Publish(snap engine.Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.hasData = true
	s.mu.Unlock()
}

// Latest returns the latest snapshot and whether one was published
func (s *Server) Latest() (engine.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasData
}

// RESTLogger logs the requests internally
func RESTLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		log.Debugf(log.StatusMgr, "%s\t%s\t%s\t%s", r.Method, r.RequestURI, name, time.Since(start))
	})
}

// Router returns the status routes
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	routes := []Route{
		{"Health", http.MethodGet, "/healthz", s.getHealth},
		{"Status", http.MethodGet, "/status", s.getStatus},
		{"Positions", http.MethodGet, "/positions", s.getPositions},
		{"Position", http.MethodGet, "/positions/{base}/{quote}", s.getPosition},
	}
	for _, route := range routes {
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(RESTLogger(route.HandlerFunc, route.Name))
	}
	return router
}

// Start listens on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("%w %w", common.ErrConfiguration, errEmptyListenAddress)
	}
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errAlreadyStarted
	}
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	log.Infof(log.StatusMgr, "status server listening on http://%s", ln.Addr())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf(log.StatusMgr, "status server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf(log.StatusMgr, "status server shutdown: %v", err)
		}
	}()
	return nil
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot published yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getPositions(w http.ResponseWriter, _ *http.Request) {
	snap, _ := s.Latest()
	writeJSON(w, http.StatusOK, snap.Positions)
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["base"] + "/" + vars["quote"]
	snap, _ := s.Latest()
	for i := range snap.Positions {
		if snap.Positions[i].Symbol == symbol {
			writeJSON(w, http.StatusOK, snap.Positions[i])
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no open position for " + symbol})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf(log.StatusMgr, "writing response: %v", err)
	}
}
