package reconciler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/NeptuneChain-Inc/NPC-Backend/internal/errors"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
)

const roleAdmin = "admin"

var statuses = []reconcile.Status{
	reconcile.StatusPending,
	reconcile.StatusRepaired,
	reconcile.StatusDiscarded,
	reconcile.StatusNeedsReview,
	reconcile.StatusFailed,
}

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/reconciliation/records", s.handleList).Methods("GET")
	r.HandleFunc("/reconciliation/records/{id}", s.handleGet).Methods("GET")
	r.HandleFunc("/reconciliation/repair", s.handleRepair).Methods("POST")
	r.HandleFunc("/reconciliation/audit", s.handleAudit).Methods("POST")
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireRole(w, r, roleAdmin) {
		return
	}
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	records, err := s.queue.List(r.Context(), status)
	if err != nil {
		httputil.WriteServiceError(w, r, apperrors.Internal("failed to list reconciliation records", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireRole(w, r, roleAdmin) {
		return
	}
	id := mux.Vars(r)["id"]
	rec, err := s.queue.Get(r.Context(), id)
	switch {
	case errors.Is(err, projection.ErrNotFound):
		httputil.WriteServiceError(w, r, apperrors.NotFound("reconciliation record", id))
		return
	case err != nil:
		httputil.WriteServiceError(w, r, apperrors.Internal("failed to read reconciliation record", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Service) handleRepair(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireRole(w, r, roleAdmin) {
		return
	}
	res, err := s.Repair(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, apperrors.Internal("repair pass failed", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireRole(w, r, roleAdmin) {
		return
	}
	found, err := s.Audit(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, apperrors.Internal("audit pass failed", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"inconsistencies": found})
}

func parseStatus(raw string) (reconcile.Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	for _, st := range statuses {
		if string(st) == raw {
			return st, nil
		}
	}
	return "", apperrors.BadRequest("unknown status " + raw).WithDetails("allowed", statuses)
}
