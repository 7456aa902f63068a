// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby handler. These give clients
// more specific reasons for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidSecretError    = 3001 // Register envelope carried a bad player secret.
	InvalidLobbyCodeError = 3002 // Target lobby code in the WS URL does not exist.
	BadRegisterEnvelope   = 3003 // First frame was not a valid register envelope.
)
