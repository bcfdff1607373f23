package httpserver

import (
	"errors"
	"net/http"
	"time"

	"lobcast/domain/orderbook"
	"lobcast/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// stream upgrades to WebSocket and forwards the instrument's messages as
// JSON text frames. depth=0 (the default here) keeps full-depth views so
// clients can rebuild the book from deltas.
func (h *Handler) stream(c *gin.Context) {
	id := orderbook.InstrumentID(c.Param("instrument"))
	depth := 0
	if c.Query("depth") != "" {
		d, err := h.depth(c)
		if err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		depth = d
	}

	sub, err := h.engine.Subscribe(id)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, orderbook.ErrUnknownInstrument) {
			code = http.StatusNotFound
		}
		writeError(c, code, err)
		return
	}
	defer h.engine.Unsubscribe(sub)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("instrument", string(id)).Str("subscription", sub.ID()).Logger()
	log.Info().Str("remote", c.Request.RemoteAddr).Msg("websocket opened")

	// the read side only exists to observe close frames and pongs
	gone := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.opts.PingInterval))
	})
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.opts.PingInterval))
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			log.Info().Msg("websocket closed by client")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case m, ok := <-sub.C():
			if !ok {
				reason := "subscription ended"
				if errors.Is(sub.Err(), service.ErrSubscriberOverrun) {
					reason = "fell behind, resubscribe"
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason),
					time.Now().Add(writeWait))
				log.Warn().AnErr("reason", sub.Err()).Msg("websocket subscription ended")
				return
			}
			m.View = m.View.Truncate(depth)
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				log.Warn().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}
