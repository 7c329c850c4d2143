package httpgw

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomsync/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeDeadline = 5 * time.Second
	pingPeriod    = 54 * time.Second
)

// HandleViewStream upgrades to a websocket and pushes the merged room
// view on every reconciler change signal. The room must match the
// currently open room; open it first via the REST call or let the
// stream do it.
func (ctl *Controller) HandleViewStream(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	view, err := ctl.engine.OpenRoom(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "httpgw").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "httpgw").Str("room", string(roomID)).Msg("view stream opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// reads only matter for detecting the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		_ = ws.Close()
		log.Info().Str("module", "httpgw").Str("room", string(roomID)).Msg("view stream closed")
	}()

	if !ctl.writeState(ws, view.State()) {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case lost := <-ctl.engine.ConnectionLost():
			// surfaced, not auto-recovered; the client decides to reconnect
			_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = ws.WriteJSON(map[string]string{"type": "connection_lost", "error": lost.Error()})
			return
		case <-view.Updates():
			if !ctl.writeState(ws, view.State()) {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) writeState(ws *websocket.Conn, state any) bool {
	data, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Str("module", "httpgw").Msg("state marshal")
		return false
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Error().Err(err).Str("module", "httpgw").Msg("state write")
		return false
	}
	return true
}
