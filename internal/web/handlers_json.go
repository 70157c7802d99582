package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response failed", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.CurrentZones())
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.GuardStates())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.tradeRepo.ListTrades(r.Context(), limit)
	if err != nil {
		s.logger.Error("list trades failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load trades"})
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// handleClosePosition flattens the open position, or part of it when a
// fraction between 0 and 1 is given.
func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	fraction := decimal.NewFromInt(1)
	if v := r.URL.Query().Get("fraction"); v != "" {
		f, err := decimal.NewFromString(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fraction"})
			return
		}
		fraction = f
	}
	if err := s.service.ClosePosition(r.Context(), fraction); err != nil {
		s.logger.Error("manual close failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
