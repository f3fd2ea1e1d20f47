package assets

import (
	"math/big"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
)

// Roles allowed to approve assets and close disputes.
var reviewerRoles = []string{"verifier", "admin"}

// SubmitInput is the POST /assets body.
type SubmitInput struct {
	AssetID     string   `json:"asset_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// DisputeInput is the POST /assets/{id}/disputes body.
type DisputeInput struct {
	Reason string `json:"reason"`
}

// ResolveInput is the POST /disputes/{id}/resolve body.
type ResolveInput struct {
	Solution string `json:"solution"`
	Status   string `json:"status"`
}

// ApproveInput is the POST /assets/{id}/approve body.
type ApproveInput struct {
	CreditTypes  []string       `json:"credit_types"`
	SupplyLimits []amount.Value `json:"supply_limits"`
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input SubmitInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.AssetID == "" {
		httputil.BadRequest(w, "asset_id required")
		return
	}

	meta := &Metadata{Name: input.Name, Description: input.Description, Tags: input.Tags}
	res, err := s.lifecycle.Submit(r.Context(), userID, input.AssetID, meta)
	httputil.WriteOutcome(w, r, http.StatusCreated, outcome(res), err)
}

func (s *Service) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := s.lifecycle.GetAsset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, asset)
}

func (s *Service) handleDispute(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input DisputeInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	res, err := s.lifecycle.Dispute(r.Context(), userID, mux.Vars(r)["id"], input.Reason)
	httputil.WriteOutcome(w, r, http.StatusCreated, outcome(res), err)
}

func (s *Service) handleResolve(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if !httputil.RequireRole(w, r, reviewerRoles...) {
		return
	}
	var input ResolveInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	status, err := ParseResolution(input.Status)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	res, err := s.lifecycle.ResolveDispute(r.Context(), userID, mux.Vars(r)["id"], input.Solution, status)
	httputil.WriteOutcome(w, r, http.StatusOK, outcome(res), err)
}

func (s *Service) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := s.lifecycle.GetDispute(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (s *Service) handleApprove(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if !httputil.RequireRole(w, r, reviewerRoles...) {
		return
	}
	var input ApproveInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	limits := make([]*big.Int, len(input.SupplyLimits))
	for i, v := range input.SupplyLimits {
		limits[i] = v.Int
	}

	res, err := s.lifecycle.Approve(r.Context(), userID, mux.Vars(r)["id"], input.CreditTypes, limits)
	httputil.WriteOutcome(w, r, http.StatusOK, outcome(res), err)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.lifecycle.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h)
}

// outcome keeps a nil *Result from becoming a non-nil interface.
func outcome(res *Result) interface{} {
	if res == nil {
		return nil
	}
	return res
}
