package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/fileshare/internal/server/services"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) error {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	u, err := s.users.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, envelope{"message": "User registered successfully", "user_id": u.ID})
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	pair, err := s.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	writeTokens(w, pair)
	return nil
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	pair, err := s.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	writeTokens(w, pair)
	return nil
}

func writeTokens(w http.ResponseWriter, pair *services.TokenPair) {
	writeJSON(w, http.StatusOK, envelope{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"user_id":       pair.UserID,
	})
}
