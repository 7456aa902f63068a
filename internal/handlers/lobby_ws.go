// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blanks/internal/lobby"
	"github.com/jason-s-yu/blanks/internal/models"
	"github.com/sirupsen/logrus"
)

// registerEnvelope is the first frame a client must send after the handshake.
type registerEnvelope struct {
	Player uuid.UUID `json:"player"`
	Token  uuid.UUID `json:"token"`
}

// wsCommand is every frame after registration. Fields are interpreted per Type.
type wsCommand struct {
	Type    string      `json:"type"`
	Cards   []uuid.UUID `json:"cards,omitempty"`
	Winner  *int        `json:"winner,omitempty"`
	Code    string      `json:"code,omitempty"`
	Players []uuid.UUID `json:"players,omitempty"`
	Rule    string      `json:"rule,omitempty"`
	Name    string      `json:"name,omitempty"`
}

// LobbyWSHandler upgrades the connection, registers it against the lobby and
// runs the read/write pumps until the client goes away.
func LobbyWSHandler(s *Server) http.HandlerFunc {
	logger := s.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"blanks"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "blanks" {
			c.Close(BadSubprotocolError, "client must speak the blanks subprotocol")
			return
		}

		l, err := s.Store.Get(code)
		if err != nil {
			c.Close(InvalidLobbyCodeError, "lobby does not exist")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// First frame is the register envelope carrying the join secret.
		readCtx, readCancel := context.WithTimeout(ctx, 10*time.Second)
		_, raw, err := c.Read(readCtx)
		readCancel()
		if err != nil {
			logger.Warnf("lobby %s: register frame never arrived: %v", code, err)
			return
		}
		var env registerEnvelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Player == uuid.Nil || env.Token == uuid.Nil {
			c.Close(BadRegisterEnvelope, "first frame must be a register envelope")
			return
		}
		secret := lobby.Secret{Player: env.Player, Token: env.Token}

		conn, snap, err := l.RegisterConnection(secret, cancel)
		if err != nil {
			c.Close(InvalidSecretError, "secret does not match any player in this lobby")
			return
		}
		logger.Infof("player %v (%s) connected to lobby %s", env.Player, r.RemoteAddr, code)

		// Private frames (errors, hands, history) bypass the snapshot channel.
		priv := make(chan interface{}, 16)
		priv <- snap

		go writePump(ctx, c, conn, priv, logger)
		readPump(ctx, c, l, secret, priv, logger)

		l.UnregisterConnection(env.Player, conn)
		logger.Infof("player %v disconnected from lobby %s", env.Player, code)
	}
}

// readPump consumes command frames until the connection dies. Lobby methods
// serialize internally, so frames are dispatched without any handler-side lock.
func readPump(ctx context.Context, c *websocket.Conn, l *lobby.Lobby, secret lobby.Secret, priv chan<- interface{}, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("lobby %s: websocket closed normally for player %v", l.Code, secret.Player)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("lobby %s: read error for player %v: %v", l.Code, secret.Player, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var cmd wsCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			sendPrivate(priv, errorFrame(errors.New("invalid json")))
			continue
		}

		frame, leave, err := dispatchCommand(l, secret, cmd)
		if err != nil {
			sendPrivate(priv, errorFrame(err))
			continue
		}
		if frame != nil {
			sendPrivate(priv, frame)
		}
		if leave {
			c.Close(websocket.StatusNormalClosure, "left lobby")
			return
		}
	}
}

// dispatchCommand maps a command frame onto the matching lobby operation.
// The returned frame, if any, goes only to the sender.
func dispatchCommand(l *lobby.Lobby, secret lobby.Secret, cmd wsCommand) (interface{}, bool, error) {
	switch cmd.Type {
	case "play":
		hand, err := l.PlayCards(secret, cmd.Cards)
		if err != nil {
			return nil, false, err
		}
		return handFrame(hand), false, nil
	case "judge":
		if cmd.Winner == nil {
			return nil, false, errors.New("judge requires a winner index")
		}
		return nil, false, l.ChooseWinner(secret, *cmd.Winner)
	case "start_game":
		hand, err := l.StartGame(secret)
		if err != nil {
			return nil, false, err
		}
		return handFrame(hand), false, nil
	case "add_deck":
		return nil, false, l.AddDeck(secret, cmd.Code)
	case "add_ai":
		return nil, false, l.AddAI(secret, cmd.Name)
	case "enable_rule":
		return nil, false, l.EnableRule(secret, models.HouseRule(cmd.Rule))
	case "disable_rule":
		return nil, false, l.DisableRule(secret, models.HouseRule(cmd.Rule))
	case "redraw":
		hand, err := l.Redraw(secret)
		if err != nil {
			return nil, false, err
		}
		return handFrame(hand), false, nil
	case "skip":
		return nil, false, l.Skip(secret, cmd.Players)
	case "back":
		return nil, false, l.Back(secret)
	case "hand":
		hand, err := l.Hand(secret)
		if err != nil {
			return nil, false, err
		}
		return handFrame(hand), false, nil
	case "history":
		hist, err := l.History(secret)
		if err != nil {
			return nil, false, err
		}
		return map[string]interface{}{"type": "history", "rounds": hist}, false, nil
	case "leave":
		return nil, true, l.Leave(secret)
	default:
		return nil, false, errors.New("unknown command type")
	}
}

func handFrame(hand []models.ResponseCard) interface{} {
	return map[string]interface{}{"type": "hand", "cards": hand}
}

// errorFrame renders an error the same way the HTTP surface does, as a frame.
func errorFrame(err error) interface{} {
	var vErr *lobby.ValidationError
	switch {
	case errors.As(err, &vErr):
		frame := map[string]interface{}{"type": "error", "reason": vErr.Reason}
		if vErr.Context != nil {
			frame["context"] = vErr.Context
		}
		return frame
	case errors.Is(err, lobby.ErrUnauthenticated):
		return map[string]interface{}{"type": "error", "reason": "unauthenticated"}
	case errors.Is(err, lobby.ErrUpstreamTimeout):
		return map[string]interface{}{"type": "error", "reason": "upstream_timeout"}
	default:
		return map[string]interface{}{"type": "error", "reason": "internal", "context": map[string]string{"detail": err.Error()}}
	}
}

func sendPrivate(priv chan<- interface{}, frame interface{}) {
	select {
	case priv <- frame:
	default:
		// Slow consumer. The snapshot stream still carries authoritative state.
	}
}

// writePump interleaves broadcast snapshots and private frames onto the socket
// and keeps the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *lobby.Connection, priv <-chan interface{}, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.Close(websocket.StatusGoingAway, "write pump stopping")

	write := func(v interface{}) bool {
		data, err := json.Marshal(v)
		if err != nil {
			logger.Warnf("failed to marshal outgoing frame for player %v: %v", conn.PlayerID, err)
			return true
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = c.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			logger.Warnf("failed to write to websocket for player %v: %v", conn.PlayerID, err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-conn.OutChan:
			if !ok {
				return
			}
			if !write(snap) {
				return
			}
		case frame := <-priv:
			if !write(frame) {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to ping player %v, assuming disconnect: %v", conn.PlayerID, err)
				return
			}
		}
	}
}
