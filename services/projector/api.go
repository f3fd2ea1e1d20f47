package projector

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
)

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/events", s.handleEvents).Methods("GET")
	r.HandleFunc("/events/{name}", s.handleEvents).Methods("GET")
	r.HandleFunc("/projector/cursor", s.handleCursor).Methods("GET")
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.writer.GetEvents(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Service) handleCursor(w http.ResponseWriter, r *http.Request) {
	next, err := s.writer.Cursor(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"next_block": next})
}
