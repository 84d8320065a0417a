package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the request and runs one recognition session until the
// peer goes away. Messages are handled strictly in arrival order.
func (h *Handler) serveWS(c *gin.Context) {
	mode := anpr.Mode(h.config.Session.Mode)
	if m := c.Query("mode"); m != "" {
		mode = anpr.Mode(m)
	}
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse("mode must be single or multi"))
		return
	}

	if h.authService.Enabled() {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("missing token"))
			return
		}
		if !h.authorize(c, token) {
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to upgrade to websocket")
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := h.log.With().Str("session_id", id).Logger()
	sess := session.New(id, session.Options{
		Mode:            mode,
		IncludeOCRDebug: h.config.Session.IncludeOCRDebug,
	}, h.anprService, log)

	log.Info().Str("mode", string(mode)).Str("client_ip", c.ClientIP()).Msg("websocket connected")

	conn.SetReadLimit(h.config.Session.MaxMessageBytes)
	ctx := c.Request.Context()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			break
		}

		reply, ok := sess.Handle(ctx, raw)
		if !ok {
			continue
		}

		if timeout := h.config.Session.WriteTimeout; timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Msg("websocket write failed")
			break
		}
	}

	log.Info().Msg("websocket disconnected")
}
