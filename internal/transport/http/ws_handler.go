package http

import (
	"log"
	"net/http"
	"time"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSHandler streams quiz status changes over a websocket.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeStatus pushes {type:"status"} messages until the quiz is READY or the
// client goes away. It never triggers acquisition.
func (h *WSHandler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		http.Error(w, "missing keyword", http.StatusBadRequest)
		return
	}
	source, err := domain.ParseSource(r.URL.Query().Get("source"))
	if err != nil {
		code, msg := clientError(err)
		http.Error(w, msg, code)
		return
	}
	key := domain.QuizKey{Keyword: keyword, Source: source}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.WatchStatus(r.Context(), key)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[statusErrorResponse]{
			Type:    "error",
			Payload: statusErrorResponse{Keyword: key.Keyword, Source: string(key.Source), Error: statusErrorMessage(key, err)},
		})
		closeNormal(conn)
		return
	}
	defer cancel()

	// The reader only exists to notice the client closing the socket.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ready := domain.StatusReady.View().Progress
	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			msg := outboundMessage[statusMessage]{
				Type:    "status",
				Payload: statusMessage{Keyword: key.Keyword, Source: string(key.Source), QuizStatus: status},
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
			if status.Progress >= ready {
				closeNormal(conn)
				return
			}
		case <-gone:
			return
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(wsWriteWait))
}
