package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/stake-plus/postoracle/src/config"
	"github.com/stake-plus/postoracle/src/logging"
)

const shutdownTimeout = 10 * time.Second

// Server runs the API until its context ends, then shuts down gracefully.
type Server struct {
	http    *http.Server
	tls     *TLSReloader
	limiter *RateLimiter
	logger  *log.Logger
}

func NewServer(cfg config.Config, opts Options) (*Server, error) {
	logger := logging.OrDiscard(opts.Logger)
	router, limiter := NewRouter(opts)

	s := &Server{
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
	if cfg.TLSCertFile != "" {
		reloader, err := NewTLSReloader(cfg.TLSCertFile, cfg.TLSKeyFile, logger)
		if err != nil {
			limiter.Stop()
			return nil, err
		}
		s.tls = reloader
		s.http.TLSConfig = reloader.Config()
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run blocks until ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Stop()
	if s.tls != nil {
		defer s.tls.Stop()
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if s.tls != nil {
			s.logger.Printf("listening on %s (TLS)", s.http.Addr)
			err = s.http.ListenAndServeTLS("", "")
		} else {
			s.logger.Printf("listening on %s", s.http.Addr)
			err = s.http.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutCtx)
}
