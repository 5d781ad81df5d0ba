package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/phonomatch/internal/observe"
)

// handleStream upgrades to a websocket and answers every JSON
// [RecognizeRequest] with one [RecognizeResponse], in order. A message that
// is not valid JSON gets an error reply and the stream stays open.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written an error response.
		observe.Logger(r.Context()).Debug("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(ctx)
	log.Debug("server: stream opened", "remote", r.RemoteAddr)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("server: stream closed")
			default:
				log.Debug("server: stream read failed", "err", err)
			}
			return
		}

		var resp RecognizeResponse
		var req RecognizeRequest
		switch {
		case typ != websocket.MessageText:
			resp = RecognizeResponse{Error: "invalid message: expected text frame"}
		case json.Unmarshal(data, &req) != nil:
			resp = RecognizeResponse{Error: "invalid message: not a JSON recognize request"}
		default:
			_, resp = s.recognize(ctx, req.Text)
		}

		if err := wsjson.Write(ctx, conn, resp); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("server: stream write failed", "err", err)
			}
			return
		}
	}
}
