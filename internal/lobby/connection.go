// internal/lobby/connection.go
package lobby

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Connection is a single player's live presence in the lobby's broadcast
// stream. OutChan is drained by the transport's write pump.
type Connection struct {
	PlayerID uuid.UUID
	OutChan  chan *Snapshot
	Cancel   func()
}

// Write pushes a snapshot onto the connection's out channel non-blockingly.
// A full channel drops the message; the next broadcast carries a complete
// snapshot anyway, so a slow subscriber is never behind for long. The lobby
// removes a connection from its set before closing OutChan, so Write never
// races a close.
func (c *Connection) Write(snap *Snapshot) {
	select {
	case c.OutChan <- snap:
	default:
		logrus.Warnf("connection %s: out channel full, dropped snapshot v%d", c.PlayerID, snap.Version)
	}
}
