package assets

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/assets", s.handleSubmit).Methods("POST")
	r.HandleFunc("/assets/{id}", s.handleGetAsset).Methods("GET")
	r.HandleFunc("/assets/{id}/disputes", s.handleDispute).Methods("POST")
	r.HandleFunc("/assets/{id}/approve", s.handleApprove).Methods("POST")
	r.HandleFunc("/disputes/{id}", s.handleGetDispute).Methods("GET")
	r.HandleFunc("/disputes/{id}/resolve", s.handleResolve).Methods("POST")
	r.HandleFunc("/accounts/{id}/assets", s.handleHistory).Methods("GET")
}
