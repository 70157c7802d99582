package web

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/okafor/smc_ranger_bot/internal/domain"
	"github.com/okafor/smc_ranger_bot/internal/usecase"
)

// Server exposes the bot's state as a read-only JSON API.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	service   *usecase.RangerService
	tradeRepo domain.TradeRepository
	logger    *zap.Logger
}

func NewServer(
	port int,
	service *usecase.RangerService,
	tradeRepo domain.TradeRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		service:   service,
		tradeRepo: tradeRepo,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /api/zones", s.handleZones)
	s.router.HandleFunc("GET /api/guard", s.handleGuard)
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
	s.router.HandleFunc("POST /api/position/close", s.handleClosePosition)
}

func (s *Server) Start() error {
	s.logger.Info("web server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
