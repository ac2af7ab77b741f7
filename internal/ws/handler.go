package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier resolves a player token to a player id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// DeviceVerifier checks a console's credentials.
type DeviceVerifier interface {
	Verify(ctx context.Context, deviceID, secret string) error
}

// Authenticator identifies the player behind an upgrade request.
type Authenticator struct {
	Tokens  TokenVerifier
	Devices DeviceVerifier
}

// Authenticate reads the player token from the token query parameter or a
// Bearer header. Device credentials are optional but must be valid when
// present.
func (a Authenticator) Authenticate(r *http.Request) (playerID, deviceID string, err error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		return "", "", ErrUnauthorized
	}
	playerID, err = a.Tokens.Verify(token)
	if err != nil {
		return "", "", errors.Join(ErrUnauthorized, err)
	}

	deviceID = r.Header.Get("X-Device-ID")
	if deviceID == "" {
		return playerID, "", nil
	}
	if a.Devices == nil {
		return "", "", ErrUnauthorized
	}
	if err := a.Devices.Verify(r.Context(), deviceID, r.Header.Get("X-Device-Secret")); err != nil {
		return "", "", errors.Join(ErrUnauthorized, err)
	}
	return playerID, deviceID, nil
}

// Upgrader builds the websocket upgrader; allowedOrigin "*" accepts any
// origin.
func Upgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
		},
	}
}

// HandleWebSocket authenticates the request, upgrades it and starts the
// session pumps.
func HandleWebSocket(hub *Hub, authn Authenticator, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, deviceID, err := authn.Authenticate(c.Request)
		if err != nil {
			log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("[WS] Rejected connection")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("player_id", playerID).Msg("[WS] Upgrade error")
			return
		}

		s := newSession(hub, conn, playerID, deviceID)
		go s.writePump()
		hub.Register(s)
		go s.readPump()
	}
}
