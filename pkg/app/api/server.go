// Package api implements app.Runner for the API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/dsphq/dapphub/pkg/app/http"
	"github.com/dsphq/dapphub/pkg/chainrpc"
	"github.com/dsphq/dapphub/pkg/config"
	dappservice "github.com/dsphq/dapphub/pkg/dapp/service"
	"github.com/dsphq/dapphub/pkg/dapp/source"
	"github.com/dsphq/dapphub/pkg/metadata"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("rpc_url", cfg.Chain.RPCURL),
	)

	rpcClient := chainrpc.New(cfg.Chain.RPCURL, logger)

	src := source.New(rpcClient, source.Contracts{
		Services:    cfg.Chain.Contracts.Services,
		Vesting:     cfg.Chain.Contracts.Vesting,
		TokenSymbol: cfg.Chain.Contracts.TokenSymbol,
		SymbolScope: cfg.Chain.Contracts.SymbolScope,
	}, logger)

	registry := metadata.New(cfg.Metadata.ProvidersURL, cfg.Metadata.ServicesURL, logger)

	aggregator := dappservice.New(src, registry, logger)

	router := s.setupRouter(aggregator, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func (s *Server) setupRouter(aggregator *dappservice.Service, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Aggregation endpoints
	dappservice.RegisterRoutes(r, aggregator, logger)

	return r
}
