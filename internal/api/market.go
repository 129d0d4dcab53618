// Market routes complete the spec's HTTP surface beyond its explicit
// §6.1 list so C8's listing lifecycle is reachable.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
)

type marketCreateRequest struct {
	CharacterID   string `json:"characterId"`
	OpID          string `json:"opId"`
	IID           string `json:"iid"`
	Price         int    `json:"price"`
	DurationHours int    `json:"durationHours"`
}

type marketCancelRequest struct {
	CharacterID string `json:"characterId"`
	ListingID   string `json:"listingId"`
}

type marketBuyRequest struct {
	BuyerID   string `json:"buyerId"`
	OpID      string `json:"opId"`
	ListingID string `json:"listingId"`
}

func (s *Server) registerMarketRoutes(r chi.Router) {
	r.Post("/market/create", s.handleMarketCreate)
	r.Post("/market/cancel", s.handleMarketCancel)
	r.Post("/market/buy", s.handleMarketBuy)
	r.Get("/market/mine", s.handleMarketMine)
	r.Get("/market/listing/{listingId}", s.handleMarketGetListing)
	r.Get("/market/active", s.handleMarketActive)
}

func (s *Server) handleMarketCreate(w http.ResponseWriter, r *http.Request) {
	var req marketCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.mkt.Create(req.CharacterID, req.OpID, req.IID, req.Price, req.DurationHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleMarketCancel(w http.ResponseWriter, r *http.Request) {
	var req marketCancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.mkt.Cancel(req.CharacterID, req.ListingID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleMarketBuy(w http.ResponseWriter, r *http.Request) {
	var req marketBuyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.mkt.Buy(req.BuyerID, req.OpID, req.ListingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleMarketMine(w http.ResponseWriter, r *http.Request) {
	characterID := r.URL.Query().Get("characterId")
	writeJSON(w, http.StatusOK, s.mkt.GetMine(characterID))
}

func (s *Server) handleMarketGetListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingId")
	l := s.mkt.GetListing(listingID)
	if l == nil {
		writeError(w, apierr.ErrListingNotFound)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleMarketActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mkt.ListActive())
}
