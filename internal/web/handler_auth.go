package web

import (
	"context"
	"net/http"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ShopName string `json:"shop_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	id, err := s.auth.SignUp(ctx, req.Email, req.Password, req.ShopName)
	if err != nil {
		s.writeError(w, r, "sign up", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusCreated, id)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonError(w, s.logger, http.StatusBadRequest, "email and password required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	id, err := s.auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, "sign in", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusOK, id)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	if err := s.auth.SignOut(ctx, getClaims(r.Context())); err != nil {
		s.writeError(w, r, "sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
