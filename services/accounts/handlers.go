package accounts

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
)

// Roles allowed to moderate other accounts.
var moderatorRoles = []string{"admin", "verifier"}

// RegisterInput is the POST /accounts body. AccountID defaults to the
// caller; registering anyone else requires the admin role.
type RegisterInput struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	TxAddress string `json:"tx_address"`
}

// BlacklistInput is the POST /accounts/{id}/blacklist body.
type BlacklistInput struct {
	Blacklisted bool `json:"blacklisted"`
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input RegisterInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	accountID := input.AccountID
	if accountID == "" {
		accountID = userID
	}
	if accountID != userID && !httputil.RequireRole(w, r, "admin") {
		return
	}
	role, err := ParseRole(input.Role)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	res, err := s.gate.Register(r.Context(), accountID, role, input.TxAddress)
	httputil.WriteOutcome(w, r, http.StatusCreated, outcome(res), err)
}

func (s *Service) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if !httputil.RequireRole(w, r, moderatorRoles...) {
		return
	}
	var input BlacklistInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	res, err := s.gate.Blacklist(r.Context(), userID, mux.Vars(r)["id"], input.Blacklisted)
	httputil.WriteOutcome(w, r, http.StatusOK, outcome(res), err)
}

func (s *Service) handleLastActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	accountID := mux.Vars(r)["id"]
	if accountID != userID && !httputil.RequireRole(w, r, "admin") {
		return
	}

	res, err := s.gate.UpdateLastActive(r.Context(), accountID)
	httputil.WriteOutcome(w, r, http.StatusOK, outcome(res), err)
}

func (s *Service) handleDequeue(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}
	if !httputil.RequireRole(w, r, moderatorRoles...) {
		return
	}
	entry, err := s.gate.Dequeue(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// =============================================================================
// Reads
// =============================================================================

func (s *Service) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	view, err := s.gate.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (s *Service) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := s.gate.GetRegistration(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

func (s *Service) handleIsRegistered(w http.ResponseWriter, r *http.Request) {
	ok, err := s.gate.IsRegistered(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"registered": ok})
}

func (s *Service) handleStanding(w http.ResponseWriter, r *http.Request) {
	ok, err := s.gate.IsNotBlacklisted(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"not_blacklisted": ok})
}

func (s *Service) handleVerifyRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role, err := ParseRole(vars["role"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	ok, err := s.gate.VerifyRole(r.Context(), vars["id"], role)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"role": role, "verified": ok})
}

func (s *Service) handleQueue(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}
	if !httputil.RequireRole(w, r, moderatorRoles...) {
		return
	}
	entries, err := s.gate.Queue(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"queue": entries})
}

func outcome(res *Result) interface{} {
	if res == nil {
		return nil
	}
	return res
}
