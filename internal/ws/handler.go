package ws

import (
	"net/http"
	"strconv"

	"typestake/internal/logger"
	"typestake/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HandleWS upgrades GET /duel/ws?duelId= and streams that duel's updates.
// A token is optional; when given it must be valid.
func HandleWS(hub *Hub, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		duelID, err := strconv.ParseUint(c.Query("duelId"), 10, 64)
		if err != nil || duelID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duelId required"})
			return
		}

		var address string
		if token := c.Query("token"); token != "" {
			address, err = service.ParseJWT(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("ws upgrade error", "error", err)
			return
		}

		client := NewClient(duelID, address, conn, hub)
		go client.Run()
	}
}
