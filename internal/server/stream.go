package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"repolens/internal/pipeline"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

func newStreamUpgrader(origins originList) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Requests without an Origin header come from non-browser clients.
		CheckOrigin: func(r *http.Request) bool {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			return origin == "" || origins.allows(origin)
		},
	}
}

// handleStream reads one AnswerRequest, then writes pipeline events as
// JSON text frames until the answer or a failure event, and closes.
func (h *handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	var in AnswerRequest
	if err := conn.ReadJSON(&in); err != nil {
		writeFinal(conn, pipeline.Event{Kind: pipeline.EventFailed, Code: pipeline.CodeInvalidRequest, Message: "first message must be an answer request"})
		return
	}
	req, err := in.ToPipeline(true)
	if err != nil {
		writeFinal(conn, pipeline.Event{Kind: pipeline.EventFailed, Code: pipeline.Kind(err), Message: err.Error()})
		return
	}

	// The reader only watches for the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	writeCh := make(chan pipeline.Event, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case evt, ok := <-writeCh:
				if !ok {
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					cancel()
					return
				}
				if err := conn.WriteJSON(evt); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					cancel()
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	observe := func(evt pipeline.Event) {
		select {
		case writeCh <- evt:
		case <-writerDone:
		}
	}
	_, err = h.svc.Answer(pipeline.WithObserver(ctx, observe), req)
	if err != nil {
		h.logger.Debug("stream answer failed", zap.String("code", pipeline.Kind(err)), zap.Error(err))
	}
	close(writeCh)
	<-writerDone

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func writeFinal(conn *websocket.Conn, evt pipeline.Event) {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(evt); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
