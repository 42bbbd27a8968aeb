package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens upstream; the gateway strips cross-origin traffic.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and attaches the connection to the hub. The
// goroutine then becomes the read loop; outbound frames are written by the
// hub under the connection's write lock.
func (h *Handler) ServeWS(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed for user %s: %v", userID, err)
		return
	}

	conn, err := h.hub.Register(userID, sock)
	if err != nil {
		h.logger.Warnf("WebSocket rejected for user %s: %v", userID, err)
		sock.WriteJSON(gin.H{"error": err.Error()})
		sock.Close()
		return
	}

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			break
		}
		h.hub.HandleMessage(conn, raw)
	}
	h.hub.Unregister(conn)
}
