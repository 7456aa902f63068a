// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/blanks/internal/lobby"
)

// Server bundles the dependencies the HTTP and WebSocket handlers share.
type Server struct {
	Store  *lobby.Store
	Logger *logrus.Logger
}

// NewServer builds a handler server around a lobby store.
func NewServer(store *lobby.Store, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{Store: store, Logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the lobby error taxonomy onto HTTP. Validation failures
// carry their reason code and context verbatim.
func writeError(w http.ResponseWriter, err error) {
	var ve *lobby.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusConflict, ve)
	case errors.Is(err, lobby.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "unauthenticated"})
	case errors.Is(err, lobby.ErrUpstreamTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"reason": "upstream_timeout"})
	case errors.Is(err, lobby.ErrLobbyNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"reason": "lobby_not_found"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"reason": "internal"})
	}
}
