package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/outpost-core/internal/auth"
)

// defaultTokenTTLMinutes is the access token lifetime when the config does
// not set one.
const defaultTokenTTLMinutes = 15

// loginRequest is the request body for POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /api/auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin verifies the configured admin credential and issues an
// access token. Username and password failures are indistinguishable to
// the caller.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authCfg.Enabled {
		writeUnavailable(w, "authentication is not enabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Username != s.authCfg.AdminUser {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, s.authCfg.AdminPasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "error", err)
		writeInternalError(w, "failed to verify credentials")
		return
	}
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	ttl := s.authCfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTLMinutes
	}

	token, err := auth.GenerateAccessToken(req.Username, s.authCfg.JWTSecret, ttl)
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("admin login", "username", req.Username)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
	})
}
