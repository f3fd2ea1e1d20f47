package credits

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/amount"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/httputil"
)

// Roles allowed to issue credits.
var issuerRoles = []string{"producer", "admin"}

// LineInput names a supply line in a request body.
type LineInput struct {
	Producer   string `json:"producer"`
	Verifier   string `json:"verifier"`
	CreditType string `json:"creditType"`
}

func (l LineInput) key() Key {
	return Key{Producer: l.Producer, Verifier: l.Verifier, CreditType: l.CreditType}
}

// IssueInput is the POST /credits/issue body.
type IssueInput struct {
	LineInput
	AssetTokenID string       `json:"asset_token_id"`
	Amount       amount.Value `json:"amount"`
}

// BuyInput is the POST /credits/buy body.
type BuyInput struct {
	LineInput
	Amount amount.Value `json:"amount"`
	Price  amount.Value `json:"price"`
}

// TransferInput is the POST /credits/transfer body.
type TransferInput struct {
	LineInput
	RecipientID string       `json:"recipient_id"`
	Amount      amount.Value `json:"amount"`
	Price       amount.Value `json:"price"`
}

// DonateInput is the POST /credits/donate body.
type DonateInput struct {
	LineInput
	Amount amount.Value `json:"amount"`
}

// TotalsResponse is the GET /credits/totals body.
type TotalsResponse struct {
	Certificates amount.Value `json:"certificates"`
	Sold         amount.Value `json:"sold"`
}

// =============================================================================
// Mutations
// =============================================================================

func (s *Service) handleIssue(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if !httputil.RequireRole(w, r, issuerRoles...) {
		return
	}
	var input IssueInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.AssetTokenID == "" {
		httputil.BadRequest(w, "asset_token_id required")
		return
	}

	res, err := s.orchestrator.IssueCredits(r.Context(), userID, input.AssetTokenID, input.key(), input.Amount.Int)
	httputil.WriteOutcome(w, r, http.StatusCreated, outcome(res), err)
}

func (s *Service) handleBuy(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input BuyInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	res, err := s.orchestrator.BuyCredits(r.Context(), userID, input.key(), input.Amount.Int, input.Price.Int)
	httputil.WriteOutcome(w, r, http.StatusCreated, outcome(res), err)
}

func (s *Service) handleTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input TransferInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.RecipientID == "" {
		httputil.BadRequest(w, "recipient_id required")
		return
	}

	res, err := s.orchestrator.TransferCredits(r.Context(), userID, input.RecipientID, input.key(), input.Amount.Int, input.Price.Int)
	httputil.WriteOutcome(w, r, http.StatusOK, outcome(res), err)
}

func (s *Service) handleDonate(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input DonateInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	res, err := s.orchestrator.DonateCredits(r.Context(), userID, input.key(), input.Amount.Int)
	httputil.WriteOutcome(w, r, http.StatusOK, outcome(res), err)
}

// =============================================================================
// Reads
// =============================================================================

func (s *Service) handleGetSupply(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := Key{Producer: vars["producer"], Verifier: vars["verifier"], CreditType: vars["creditType"]}
	view, err := s.orchestrator.GetSupply(r.Context(), key)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (s *Service) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := amount.ParsePositive(mux.Vars(r)["id"])
	if err != nil {
		httputil.BadRequest(w, "invalid certificate id: "+err.Error())
		return
	}
	view, err := s.orchestrator.GetCertificateByID(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (s *Service) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := Key{Producer: q.Get("producer"), Verifier: q.Get("verifier"), CreditType: q.Get("creditType")}
	if key.Producer == "" || key.Verifier == "" || key.CreditType == "" {
		httputil.BadRequest(w, "producer, verifier and creditType query parameters required")
		return
	}
	accountID := mux.Vars(r)["id"]
	balance, err := s.orchestrator.GetAccountBalance(r.Context(), accountID, key)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"producer":   key.Producer,
		"verifier":   key.Verifier,
		"creditType": key.CreditType,
		"balance":    amount.Value{Int: balance},
	})
}

func (s *Service) handleAccountCertificates(w http.ResponseWriter, r *http.Request) {
	ids, err := s.orchestrator.GetAccountCertificates(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"certificates": ids})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.orchestrator.History(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("kind"))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h)
}

func (s *Service) handleTotals(w http.ResponseWriter, r *http.Request) {
	certs, err := s.orchestrator.GetTotalCertificates(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	sold, err := s.orchestrator.GetTotalSold(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TotalsResponse{
		Certificates: amount.Value{Int: certs},
		Sold:         amount.Value{Int: sold},
	})
}

func (s *Service) handleRecoveryDuration(w http.ResponseWriter, r *http.Request) {
	d, err := s.orchestrator.GetRecoveryDuration(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"seconds": amount.Value{Int: d}})
}

func (s *Service) handleProducers(w http.ResponseWriter, r *http.Request) {
	producers, err := s.orchestrator.GetProducers(r.Context())
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"producers": nonNil(producers)})
}

func (s *Service) handleProducerRegistered(w http.ResponseWriter, r *http.Request) {
	producer := mux.Vars(r)["producer"]
	ok, err := s.orchestrator.IsProducerRegistered(r.Context(), producer)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"producer": producer, "registered": ok})
}

func (s *Service) handleProducerVerifiers(w http.ResponseWriter, r *http.Request) {
	producer := mux.Vars(r)["producer"]
	verifiers, err := s.orchestrator.GetProducerVerifiers(r.Context(), producer)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"producer": producer, "verifiers": nonNil(verifiers)})
}

func (s *Service) handleVerifierRegistered(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ok, err := s.orchestrator.IsVerifierRegistered(r.Context(), vars["producer"], vars["verifier"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"producer":   vars["producer"],
		"verifier":   vars["verifier"],
		"registered": ok,
	})
}

func (s *Service) handleOwnerOf(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	owner, err := s.orchestrator.OwnerOf(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"asset_token_id": id, "owner": owner})
}

func (s *Service) handleCreditTypes(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	types, err := s.orchestrator.GetCreditTypes(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"asset_token_id": id, "credit_types": nonNil(types)})
}

func (s *Service) handleSupplyLimit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit, err := s.orchestrator.GetCreditSupplyLimit(r.Context(), vars["id"], vars["creditType"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"asset_token_id": vars["id"],
		"creditType":     vars["creditType"],
		"limit":          amount.Value{Int: limit},
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// outcome keeps a nil *Result from becoming a non-nil interface.
func outcome(res *Result) interface{} {
	if res == nil {
		return nil
	}
	return res
}
