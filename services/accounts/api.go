package accounts

func (s *Service) registerRoutes() {
	r := s.Router()

	r.HandleFunc("/accounts", s.handleRegister).Methods("POST")
	r.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods("GET")
	r.HandleFunc("/accounts/{id}/registration", s.handleGetRegistration).Methods("GET")
	r.HandleFunc("/accounts/{id}/registered", s.handleIsRegistered).Methods("GET")
	r.HandleFunc("/accounts/{id}/standing", s.handleStanding).Methods("GET")
	r.HandleFunc("/accounts/{id}/roles/{role}", s.handleVerifyRole).Methods("GET")
	r.HandleFunc("/accounts/{id}/blacklist", s.handleBlacklist).Methods("POST")
	r.HandleFunc("/accounts/{id}/last-active", s.handleLastActive).Methods("POST")

	r.HandleFunc("/verification/queue", s.handleQueue).Methods("GET")
	r.HandleFunc("/verification/queue/{id}", s.handleDequeue).Methods("DELETE")
}
