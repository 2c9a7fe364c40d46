package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"example.com/blogfeed/internal/auth"
	appkafka "example.com/blogfeed/internal/broker"
	"example.com/blogfeed/internal/content"
	"example.com/blogfeed/internal/gateway"
	config "example.com/blogfeed/internal/init"
	"example.com/blogfeed/internal/live"
	"example.com/blogfeed/internal/logger"
	"example.com/blogfeed/internal/metrics"
	"example.com/blogfeed/internal/middleware"
	"example.com/blogfeed/internal/store"
	"example.com/blogfeed/internal/upload"
)

// Server wires the API components into one http.Server.
type Server struct {
	cfg         *config.Config
	store       store.StoreInterface
	kafkaWriter appkafka.KafkaWriter

	auth    *auth.Service
	content *content.Service
	gateway *gateway.Gateway
	images  *upload.FileStore
	hub     *live.Hub
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
}

var logg = logger.New()

// New builds the server. Post events go to writer and to live subscribers.
func New(cfg *config.Config, st store.StoreInterface, writer appkafka.KafkaWriter) (*Server, error) {
	authSvc, err := auth.New(st, cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	images, err := upload.NewFileStore(cfg.ImagesDir, cfg.ImagesURLPrefix)
	if err != nil {
		return nil, err
	}

	hub := live.NewHub()
	m := metrics.New()

	contentSvc := content.NewService(st)
	contentSvc.SetNotifier(content.Notifiers{
		appkafka.NewPostEventPublisher(writer),
		live.NewHubNotifier(hub),
	})

	gw, err := gateway.New(contentSvc, authSvc)
	if err != nil {
		return nil, err
	}
	gw.SetObserver(m)

	s := &Server{
		cfg:         cfg,
		store:       st,
		kafkaWriter: writer,
		auth:        authSvc,
		content:     contentSvc,
		gateway:     gw,
		images:      images,
		hub:         hub,
		metrics:     m,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		if err := s.limiter.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler returns the full route tree with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	identity := middleware.Identity(s.auth)

	// API endpoints: the caller identity is attached, never enforced here
	mux.Handle("/graphql", s.limited(identity(s.gateway)))
	uploads := upload.NewHandler(s.images, s.cfg.UploadMaxBytes)
	uploads.SetImageOwners(s.content)
	mux.Handle("/post-image", s.limited(identity(uploads)))

	// Live post events
	mux.Handle("/ws", live.ServeWS(s.hub, s.auth))

	// Static images
	prefix := "/" + strings.Trim(s.cfg.ImagesURLPrefix, "/")
	mux.Handle(prefix+"/", http.StripPrefix(prefix, s.images.Handler()))

	// Operations
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", s.metrics.Handler())

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog,
		s.metrics.Instrument,
		middleware.CORS,
	)
}

func (s *Server) limited(h http.Handler) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Handler(h)
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second, // uploads
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	tlsEnabled := s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != ""

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsEnabled {
			logg.Info("server", "Starting HTTPS server on "+ln.Addr().String())
			err = srv.ServeTLS(ln, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	select {
	case err := <-errCh:
		if err != nil {
			logg.Error("server", "Server stopped unexpectedly", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func Run(ctx context.Context, cfg *config.Config, st store.StoreInterface, writer appkafka.KafkaWriter) error {
	s, err := New(cfg, st, writer)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ServerAddr, err)
	}
	return s.Serve(ctx, ln)
}
