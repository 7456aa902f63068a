// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// CreateLobbyHandler builds an ephemeral lobby in memory and returns its
// join code.
func CreateLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := EnsureSession(w, r); err != nil {
			s.Logger.Warnf("session setup failed: %v", err)
			writeError(w, err)
			return
		}
		l := s.Store.Create()
		s.Logger.Infof("lobby %s created", l.Code)
		writeJSON(w, http.StatusOK, map[string]string{"code": l.Code})
	}
}

// JoinLobbyHandler adds a named player to a lobby and hands back the secret
// used for every subsequent call.
func JoinLobbyHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, err := EnsureSession(w, r); err != nil {
			s.Logger.Warnf("session setup failed: %v", err)
			writeError(w, err)
			return
		}

		var req struct {
			Code string `json:"code"`
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.Name == "" {
			http.Error(w, "code and name are required", http.StatusBadRequest)
			return
		}

		l, err := s.Store.Get(req.Code)
		if err != nil {
			writeError(w, err)
			return
		}
		secret, err := l.Join(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, secret)
	}
}

// ListLobbiesHandler lists live lobby codes, typically for debugging.
func ListLobbiesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"lobbies": s.Store.Codes()})
	}
}
