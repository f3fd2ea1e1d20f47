package credits

func (s *Service) registerRoutes() {
	r := s.Router()

	r.HandleFunc("/credits/issue", s.handleIssue).Methods("POST")
	r.HandleFunc("/credits/buy", s.handleBuy).Methods("POST")
	r.HandleFunc("/credits/transfer", s.handleTransfer).Methods("POST")
	r.HandleFunc("/credits/donate", s.handleDonate).Methods("POST")
	r.HandleFunc("/credits/totals", s.handleTotals).Methods("GET")
	r.HandleFunc("/credits/recovery-duration", s.handleRecoveryDuration).Methods("GET")

	r.HandleFunc("/supply/{producer}/{verifier}/{creditType}", s.handleGetSupply).Methods("GET")
	r.HandleFunc("/certificates/{id}", s.handleGetCertificate).Methods("GET")

	r.HandleFunc("/accounts/{id}/balance", s.handleGetBalance).Methods("GET")
	r.HandleFunc("/accounts/{id}/certificates", s.handleAccountCertificates).Methods("GET")
	r.HandleFunc("/accounts/{id}/credits", s.handleHistory).Methods("GET")

	r.HandleFunc("/producers", s.handleProducers).Methods("GET")
	r.HandleFunc("/producers/{producer}", s.handleProducerRegistered).Methods("GET")
	r.HandleFunc("/producers/{producer}/verifiers", s.handleProducerVerifiers).Methods("GET")
	r.HandleFunc("/producers/{producer}/verifiers/{verifier}", s.handleVerifierRegistered).Methods("GET")

	r.HandleFunc("/tokens/{id}/owner", s.handleOwnerOf).Methods("GET")
	r.HandleFunc("/tokens/{id}/credit-types", s.handleCreditTypes).Methods("GET")
	r.HandleFunc("/tokens/{id}/supply-limits/{creditType}", s.handleSupplyLimit).Methods("GET")
}
