// Package api implements C10: the HTTP request router over the control
// plane's services. Grounded on klingdex's internal/rpc.Server — a struct
// holding every backing service plus a registerHandlers table — adapted
// from JSON-RPC 2.0 dispatch to a REST router (go-chi/chi/v5) since the
// spec's routes are plain HTTP/JSON rather than method-dispatch RPC.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/friends"
	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/lobby"
	"github.com/The404Studios/zsdu-backend/internal/logging"
	"github.com/The404Studios/zsdu-backend/internal/market"
	"github.com/The404Studios/zsdu-backend/internal/orchestrator"
	"github.com/The404Studios/zsdu-backend/internal/raid"
	"github.com/The404Studios/zsdu-backend/internal/registry"
	"github.com/The404Studios/zsdu-backend/internal/trader"
)

// Matchmaker is the surface Server needs for /match/find's spawn-and-wait
// behavior (satisfied by *orchestrator.Orchestrator).
type Matchmaker interface {
	GetAvailableServer() *registry.Server
}

// Server holds every backing service and exposes an http.Handler.
type Server struct {
	reg   *registry.Registry
	orch  Matchmaker
	fr    *friends.Directory
	lob   *lobby.Service
	inv   *inventory.Service
	raids *raid.Service
	mkt   *market.Service
	trd   *trader.Service
	log   *logging.Logger

	router chi.Router
}

// New builds a Server and wires every route.
func New(reg *registry.Registry, orch Matchmaker, fr *friends.Directory, lob *lobby.Service, inv *inventory.Service, raids *raid.Service, mkt *market.Service, trd *trader.Service, log *logging.Logger) *Server {
	s := &Server{
		reg: reg, orch: orch, fr: fr, lob: lob, inv: inv, raids: raids, mkt: mkt, trd: trd,
		log: log.Component("api"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	s.registerHealthRoutes(r)
	s.registerServerRoutes(r)
	s.registerInventoryRoutes(r)
	s.registerMatchRoutes(r)
	s.registerFriendRoutes(r)
	s.registerLobbyRoutes(r)
	s.registerRaidRoutes(r)
	s.registerMarketRoutes(r)
	s.registerTraderRoutes(r)

	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierr.As(err); ok {
		writeJSON(w, apiErr.HTTPStatus(), map[string]string{"error": apiErr.Kind})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": apierr.ErrInternal.Kind})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apierr.ErrInvalidRequest
	}
	return nil
}
