// Trader routes complete the spec's HTTP surface beyond its explicit
// §6.1 list so C9's buy/sell operations are reachable.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type traderBuyRequest struct {
	CharacterID string `json:"characterId"`
	TraderID    string `json:"traderId"`
	OfferID     string `json:"offerId"`
	Quantity    int    `json:"quantity"`
}

type traderSellRequest struct {
	CharacterID string `json:"characterId"`
	TraderID    string `json:"traderId"`
	IID         string `json:"iid"`
	StackSold   int    `json:"stackSold"`
}

func (s *Server) registerTraderRoutes(r chi.Router) {
	r.Post("/trader/buy", s.handleTraderBuy)
	r.Post("/trader/sell", s.handleTraderSell)
	r.Get("/trader/{traderId}", s.handleGetTrader)
	r.Get("/trader/{traderId}/reputation", s.handleTraderReputation)
}

func (s *Server) handleTraderBuy(w http.ResponseWriter, r *http.Request) {
	var req traderBuyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	minted, err := s.trd.Buy(req.CharacterID, req.TraderID, req.OfferID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, minted)
}

func (s *Server) handleTraderSell(w http.ResponseWriter, r *http.Request) {
	var req traderSellRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	credit, err := s.trd.Sell(req.CharacterID, req.TraderID, req.IID, req.StackSold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"goldCredited": credit})
}

func (s *Server) handleGetTrader(w http.ResponseWriter, r *http.Request) {
	traderID := chi.URLParam(r, "traderId")
	t := s.trd.GetTrader(traderID)
	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trader_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTraderReputation(w http.ResponseWriter, r *http.Request) {
	traderID := chi.URLParam(r, "traderId")
	characterID := r.URL.Query().Get("characterId")
	level := s.trd.ReputationLevel(characterID, traderID)
	writeJSON(w, http.StatusOK, map[string]string{"level": string(level)})
}
