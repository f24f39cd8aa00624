package server

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/peterlharding/dserver/pkg/protocol"
)

// handleWebSocket serves one WebSocket session: each text message is a
// request and each reply is sent as one text message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c.SetReadLimit(int64(s.cfg.MaxMessageSize))

	sess := protocol.NewSession(TransportWebSocket, r.RemoteAddr)
	s.conns.add(sess, wsCloser{c})
	s.handlers.Add(1)
	defer func() {
		s.conns.remove(sess)
		_ = c.CloseNow()
		s.handlers.Done()
	}()

	log := s.logger.With("session", sess.ID.String(), "remote", sess.RemoteAddr)
	log.Debug("websocket opened")

	ctx := s.ctx
	limiter := s.newLimiter()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Debug("websocket closed by client", "requests", sess.Requests())
			} else if !errors.Is(err, ctx.Err()) {
				log.Debug("websocket closed", "reason", err)
			}
			return
		}
		if typ != websocket.MessageText {
			_ = c.Close(websocket.StatusUnsupportedData, "text messages only")
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		reply := s.dispatcher.Process(sess, string(data))
		if err := c.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}
	}
}

type wsCloser struct {
	c *websocket.Conn
}

func (w wsCloser) Close() error {
	return w.c.Close(websocket.StatusGoingAway, "server shutting down")
}
