package transitdata

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/theoremus-urban-solutions/transitdata/internal/logging"
)

// Server exposes run status and the manifest over HTTP.
type Server struct {
	runner *Runner
	opts   RunOptions
	// ctx bounds runs triggered over HTTP
	ctx  context.Context
	http *http.Server
}

func NewServer(ctx context.Context, r *Runner, port int, opts RunOptions) *Server {
	s := &Server{runner: r, opts: opts, ctx: ctx}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router builds the API routes.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/manifest", s.handleManifest).Methods(http.MethodGet)
	router.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)
	return router
}

func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()
	logging.Infof("server listening on %s", s.http.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// HandleGracefulShutdown blocks until SIGINT or SIGTERM, then cancels the
// daemon context and shuts the server down.
func HandleGracefulShutdown(s *Server, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logging.Infof("shutdown signal received")
	cancel()

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := s.Shutdown(ctx); err != nil {
		logging.Errorf("server shutdown error: %v", err)
	} else {
		logging.Infof("server shut down successfully")
	}
}
